package kernel

import (
	"fmt"

	"exokern/mem"
)

// EnvID names one incarnation of an environment slot.
//
// The bits below envGenShift select the slot; the bits above are a generation
// counter bumped on every allocation of that slot, so stale ids stop matching.
// Zero means "the calling environment".
type EnvID uint32

// envGenShift is the position of the generation counter in an EnvID. The
// bits below it hold the table slot.
const envGenShift = 12

func (id EnvID) String() string { return fmt.Sprintf("%08x", uint32(id)) }

// Status is the scheduling state of an environment.
type Status uint8

const (
	Free Status = iota
	Dying
	Runnable
	Running
	NotRunnable
)

func (s Status) String() string {
	switch s {
	case Free:
		return "free"
	case Dying:
		return "dying"
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case NotRunnable:
		return "not-runnable"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// Type classifies environments for halt decisions. System environments do not
// keep the machine alive on their own.
type Type uint8

const (
	User Type = iota
	System
)

func (t Type) String() string {
	switch t {
	case User:
		return "user"
	case System:
		return "system"
	default:
		return fmt.Sprintf("type(%d)", t)
	}
}

type ipcState struct {
	recving bool
	dstva   uint32
	value   uint32
	from    EnvID
	perm    mem.PTE
}

// Env is one slot of the environment table. Every field is guarded by the
// kernel lock.
type Env struct {
	id     EnvID
	parent EnvID
	typ    Type
	status Status
	cpu    *CPU
	as     *mem.AddrSpace
	tf     Trapframe

	upcalls [NumUpcalls]uint32
	ipc     ipcState

	netWaiting bool
	runs       int
	faults     int

	image *Image
	th    *thread
}

func (e *Env) runningOn(c *CPU) bool {
	return e.status == Running && e.cpu == c && c.cur == e
}

func (k *Kernel) envx(id EnvID) int { return int(id) & (len(k.envs) - 1) }

// envid2env resolves id relative to cur. With checkperm set the target must be
// cur itself or one of its immediate children.
func (k *Kernel) envid2env(cur *Env, id EnvID, checkperm bool) (*Env, Err) {
	if id == 0 {
		return cur, 0
	}
	e := &k.envs[k.envx(id)]
	if e.status == Free || e.id != id {
		return nil, ErrBadEnv
	}
	if checkperm && e != cur && e.parent != cur.id {
		return nil, ErrBadEnv
	}
	return e, 0
}

// alloc takes the first free slot and gives it a fresh address space and id.
// The new environment is NotRunnable.
func (k *Kernel) alloc(parent EnvID) (*Env, Err) {
	slot := -1
	for i := range k.envs {
		if k.envs[i].status == Free {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, ErrNoFreeEnv
	}
	e := &k.envs[slot]

	const step = int32(1) << envGenShift
	gen := (int32(e.id) + step) &^ (int32(len(k.envs)) - 1)
	if gen <= 0 {
		gen = step
	}

	*e = Env{
		id:     EnvID(gen | int32(slot)),
		parent: parent,
		typ:    User,
		status: NotRunnable,
		as:     mem.NewAddrSpace(k.kern),
		tf:     userTrapframe(mem.USTACKTOP, 0),
	}
	k.log.Debug().Stringer("env", e.id).Stringer("parent", parent).Msg("new env")
	return e, 0
}

// free releases e's address space and slot. A started thread that is not
// currently executing is told to unwind.
func (k *Kernel) free(e *Env) {
	k.log.Debug().Stringer("env", e.id).Msg("free env")
	if e.as != nil {
		e.as.Free()
		e.as = nil
	}
	if c := e.cpu; c != nil && c.cur == e {
		c.cur = nil
	}
	running := e.status == Running
	e.status = Free
	e.cpu = nil
	e.ipc = ipcState{}
	e.netWaiting = false
	e.image = nil
	if th := e.th; th != nil {
		th.dead = true
		if th.started && !running {
			th.ring()
		}
		e.th = nil
	}
}

// destroy tears e down on behalf of an environment running on c (c may be
// nil for the kernel itself). An environment running on another CPU is only
// marked Dying and is freed when it next enters the kernel. When e is the
// environment running on c, another environment is scheduled.
func (k *Kernel) destroy(c *CPU, e *Env) {
	if (e.status == Running || e.status == Dying) && e.cpu != c {
		e.status = Dying
		return
	}
	self := c != nil && c.cur == e
	k.free(e)
	if self {
		k.yield(c)
	}
}

// Create loads img into a new environment of type typ and makes it runnable.
// The text region is mapped read-only and one stack page below USTACKTOP is
// mapped writable.
func (k *Kernel) Create(img *Image, typ Type) (EnvID, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, kerr := k.alloc(0)
	if kerr != 0 {
		return 0, fmt.Errorf("create %s: %w", img.Name(), kerr)
	}
	if err := k.load(e, img); err != nil {
		k.free(e)
		return 0, fmt.Errorf("create %s: %w", img.Name(), err)
	}
	e.typ = typ
	e.status = Runnable
	k.log.Info().Stringer("env", e.id).Str("image", img.Name()).Stringer("type", typ).Msg("created")
	return e.id, nil
}

// Destroy destroys environment id from outside any environment, as the
// monitor does. An environment executing on a CPU dies at its next kernel
// entry.
func (k *Kernel) Destroy(id EnvID) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if id == 0 {
		return fmt.Errorf("destroy %v: %w", id, ErrBadEnv)
	}
	e, kerr := k.envid2env(nil, id, false)
	if kerr != 0 {
		return fmt.Errorf("destroy %v: %w", id, kerr)
	}
	k.log.Info().Stringer("env", id).Msg("destroyed by monitor")
	k.destroy(nil, e)
	return nil
}

func (k *Kernel) load(e *Env, img *Image) error {
	for i := 0; i < img.TextPages(); i++ {
		if err := k.mapZero(e, mem.UTEXT+uint32(i)*mem.PGSIZE, mem.PteU); err != nil {
			return err
		}
	}
	if err := k.mapZero(e, mem.USTACKTOP-mem.PGSIZE, mem.PteU|mem.PteW); err != nil {
		return err
	}
	e.image = img
	e.tf.EIP = img.Start()
	return nil
}

func (k *Kernel) mapZero(e *Env, va uint32, perm mem.PTE) error {
	pp, err := k.phys.Alloc(true)
	if err != nil {
		return err
	}
	if err := e.as.Insert(pp, va, perm); err != nil {
		k.phys.Free(pp)
		return err
	}
	return nil
}
