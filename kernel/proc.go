package kernel

import (
	"encoding/binary"
	"runtime/debug"

	"exokern/mem"
)

// thread is the goroutine executing an environment's user code. It holds
// the CPU only between being rung and its next wait.
type thread struct {
	doorbell chan struct{}
	started  bool
	dead     bool
}

func newThread() *thread { return &thread{doorbell: make(chan struct{}, 1)} }

// ring wakes the thread to run or to notice that it is dead.
func (th *thread) ring() {
	select {
	case th.doorbell <- struct{}{}:
	default:
	}
}

// killed unwinds a thread whose environment was freed.
type killed struct{}

// Proc is an environment as seen from its own user code: the processor
// state that traps into the kernel. A Proc belongs to its thread and must not
// be shared with other goroutines.
type Proc struct {
	k   *Kernel
	env *Env
	th  *thread
	id  EnvID
	img *Image
	pc  uint32
}

func (k *Kernel) start(e *Env) {
	p := &Proc{k: k, env: e, th: e.th, id: e.id, img: e.image, pc: e.tf.EIP}
	var entry Entry
	var err error
	if e.image == nil {
		err = errNoImage
	} else {
		entry, err = e.image.entry(e.tf.EIP)
	}
	if err != nil {
		k.log.Warn().Stringer("env", e.id).Err(err).Msg("bad entry point")
		entry = func(p *Proc) {
			p.enter(func(c *CPU, e *Env) { k.destroy(c, e) })
		}
	}
	go p.main(entry)
}

func (p *Proc) main(entry Entry) {
	r, stack := p.call(entry)
	if _, ok := r.(killed); ok {
		return
	}
	if r != nil {
		p.k.reportPanic(PanicInfo{EnvID: p.id, Value: r, Stack: stack})
	}
	// Falling off the entry point exits.
	p.call(func(p *Proc) { p.Syscall(SysEnvDestroy, 0, 0, 0, 0, 0) })
}

func (p *Proc) call(fn Entry) (r any, stack []byte) {
	defer func() {
		if r = recover(); r != nil {
			if _, ok := r.(killed); !ok {
				stack = debug.Stack()
			}
		}
	}()
	fn(p)
	return nil, nil
}

// enter traps into the kernel: fn runs under the kernel lock on behalf of
// p's environment, after which p returns to user mode, waiting for a CPU if
// it lost its own. enter returns the environment's EAX.
func (p *Proc) enter(fn func(c *CPU, e *Env)) uint32 {
	k := p.k
	k.mu.Lock()
	if p.th.dead {
		k.mu.Unlock()
		panic(killed{})
	}
	e := p.env
	c := e.cpu
	e.tf.EIP = p.pc
	if e.status == Dying {
		k.destroy(c, e)
		return p.resume()
	}
	k.trap(c, e, fn)
	if !p.th.dead && c.cur == e {
		switch {
		case e.status != Running:
			k.yield(c)
		case c.preempt:
			c.preempt = false
			k.yield(c)
		}
	}
	return p.resume()
}

// trap runs fn for e with the kernel lock held. A panic in kernel code
// destroys e and leaves the lock held, so the caller's thread unwinds at its
// next resume.
func (k *Kernel) trap(c *CPU, e *Env, fn func(c *CPU, e *Env)) {
	id := e.id
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		k.log.Error().
			Stringer("env", id).
			Interface("panic", r).
			Bytes("stack", debug.Stack()).
			Msg("kernel panic in trap")
		if e.status != Free && e.id == id {
			k.destroy(c, e)
		}
	}()
	fn(c, e)
}

// resume is called with the kernel lock held and releases it.
func (p *Proc) resume() uint32 {
	k := p.k
	e := p.env
	for {
		if p.th.dead {
			k.mu.Unlock()
			panic(killed{})
		}
		if c := e.cpu; c != nil && c.cur == e {
			switch e.status {
			case Running:
				eax := e.tf.Regs.EAX
				k.mu.Unlock()
				return eax
			case Dying:
				k.destroy(c, e)
				continue
			}
		}
		k.mu.Unlock()
		<-p.th.doorbell
		k.mu.Lock()
	}
}

// peek runs fn under the kernel lock without entering the kernel, like a
// user-mode read of a kernel-exported structure.
func (p *Proc) peek(fn func(e *Env)) {
	k := p.k
	k.mu.Lock()
	defer k.mu.Unlock()
	if p.th.dead {
		panic(killed{})
	}
	fn(p.env)
}

// ID is the environment id, as seen before any system call.
func (p *Proc) ID() EnvID { return p.id }

// Image is the program the environment executes.
func (p *Proc) Image() *Image { return p.img }

// PC is the address the next trap is taken from. A child created by exofork
// starts at the PC its parent trapped from.
func (p *Proc) PC() uint32 { return p.pc }

func (p *Proc) SetPC(pc uint32) { p.pc = pc }

// Syscall traps into the kernel with system call no.
func (p *Proc) Syscall(no, a1, a2, a3, a4, a5 uint32) int32 {
	return int32(p.enter(func(c *CPU, e *Env) {
		r := p.k.dispatch(c, e, no, a1, a2, a3, a4, a5)
		if e.runningOn(c) {
			e.tf.Regs.EAX = uint32(r)
		}
	}))
}

// Frame returns a copy of the environment's saved registers.
func (p *Proc) Frame() Trapframe {
	var tf Trapframe
	p.peek(func(e *Env) { tf = e.tf })
	return tf
}

// Mapping is one present page table entry of the user region.
type Mapping struct {
	VA  uint32
	PTE mem.PTE
}

// Mappings lists the present entries in [lo, hi) in address order, the view
// user code has through UVPT.
func (p *Proc) Mappings(lo, hi uint32) []Mapping {
	var out []Mapping
	p.peek(func(e *Env) {
		e.as.Entries(func(va uint32, pte mem.PTE) bool {
			if va >= hi {
				return false
			}
			if va >= lo {
				out = append(out, Mapping{VA: va, PTE: pte})
			}
			return true
		})
	})
	return out
}

// PTE returns the entry mapping va, zero if none.
func (p *Proc) PTE(va uint32) mem.PTE {
	var pte mem.PTE
	p.peek(func(e *Env) {
		if va < mem.UTOP {
			pte, _ = e.as.Lookup(va)
		}
	})
	return pte
}

// Load reads len(buf) bytes at va. A fault is delivered to the environment's
// page fault upcall and the access retried once the handler returns.
func (p *Proc) Load(va uint32, buf []byte) { p.access(va, buf, false) }

// Store writes buf at va, faulting like Load.
func (p *Proc) Store(va uint32, buf []byte) { p.access(va, buf, true) }

func (p *Proc) LoadU32(va uint32) uint32 {
	var b [4]byte
	p.Load(va, b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func (p *Proc) StoreU32(va, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	p.Store(va, b[:])
}

func (p *Proc) access(va uint32, buf []byte, write bool) {
	for {
		var up *upcall
		p.enter(func(c *CPU, e *Env) {
			up = p.k.userAccess(c, e, va, buf, write)
		})
		if up == nil {
			return
		}
		p.upcall(up)
	}
}

// Trap raises exception trapno, such as TDivide, in the environment.
func (p *Proc) Trap(trapno uint32) {
	var up *upcall
	p.enter(func(c *CPU, e *Env) {
		up = p.k.raise(c, e, trapno, 0, 0)
	})
	if up != nil {
		p.upcall(up)
	}
}
