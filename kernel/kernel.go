package kernel

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"exokern/mem"
)

// Console is the character device behind cputs and cgetc.
type Console interface {
	io.Writer
	// Getc returns the next pending input byte, or 0 if there is none.
	Getc() byte
}

// NIC is the network device behind send_packet and recv_packet.
type NIC interface {
	// Transmit queues pkt and reports false when the transmit queue is full.
	Transmit(pkt []byte) bool
	// Receive copies the next packet into buf, reporting false when none is queued.
	Receive(buf []byte) (int, bool)
	// RxReady delivers the receive interrupt. It may return nil.
	RxReady() <-chan struct{}
}

// Config describes the machine the kernel boots on.
type Config struct {
	// NEnv is the size of the environment table. It must be a power of two.
	NEnv int
	// CPUs is the number of simulated processors.
	CPUs int
	// PhysPages is the number of physical page frames.
	PhysPages int
	// KernPages is the number of frames mapped at KERNBASE in every address space.
	KernPages int
	// Tick is the timer interrupt period reported by time_msec.
	Tick time.Duration

	Log     zerolog.Logger
	Console Console
	NIC     NIC
}

// Defaults for zero Config fields.
const (
	DefaultNEnv      = 1024
	DefaultCPUs      = 1
	DefaultPhysPages = 8192
	DefaultKernPages = 16
	DefaultTick      = 10 * time.Millisecond
)

// Kernel is the single kernel context: the environment table, the CPUs and
// physical memory, all guarded by one lock.
type Kernel struct {
	mu sync.Mutex

	log     zerolog.Logger
	tick    time.Duration
	phys    *mem.Phys
	kern    *mem.AddrSpace
	envs    []Env
	cpus    []*CPU
	console Console
	nic     NIC

	ticks uint64

	doneOnce sync.Once
	done     chan struct{}

	panicHandler func(PanicInfo)
}

// New boots a kernel: physical memory, the kernel address space template, an
// empty environment table and cfg.CPUs halted processors.
func New(cfg Config) (*Kernel, error) {
	if cfg.NEnv == 0 {
		cfg.NEnv = DefaultNEnv
	}
	if cfg.CPUs == 0 {
		cfg.CPUs = DefaultCPUs
	}
	if cfg.PhysPages == 0 {
		cfg.PhysPages = DefaultPhysPages
	}
	if cfg.KernPages == 0 {
		cfg.KernPages = DefaultKernPages
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.NEnv < 0 || cfg.NEnv&(cfg.NEnv-1) != 0 || cfg.NEnv > 1<<envGenShift {
		return nil, fmt.Errorf("kernel: env table size %d is not a power of two up to %d", cfg.NEnv, 1<<envGenShift)
	}
	if cfg.CPUs < 0 {
		return nil, fmt.Errorf("kernel: invalid cpu count %d", cfg.CPUs)
	}

	phys, err := mem.NewPhys(cfg.PhysPages)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}
	kern, err := mem.NewTemplate(phys, cfg.KernPages)
	if err != nil {
		_ = phys.Close()
		return nil, fmt.Errorf("kernel: %w", err)
	}

	k := &Kernel{
		log:     cfg.Log,
		tick:    cfg.Tick,
		phys:    phys,
		kern:    kern,
		envs:    make([]Env, cfg.NEnv),
		console: cfg.Console,
		nic:     cfg.NIC,
		done:    make(chan struct{}),
	}
	if k.console == nil {
		k.console = discardConsole{}
	}
	for i := 0; i < cfg.CPUs; i++ {
		k.cpus = append(k.cpus, &CPU{id: i, halted: true})
	}
	k.log.Info().
		Int("envs", cfg.NEnv).
		Int("cpus", cfg.CPUs).
		Int("pages", cfg.PhysPages).
		Msg("kernel initialized")
	return k, nil
}

// Done is closed once no user environment is left.
func (k *Kernel) Done() <-chan struct{} { return k.done }

func (k *Kernel) finish() {
	k.doneOnce.Do(func() { close(k.done) })
}

// Close releases physical memory. Run must have returned.
func (k *Kernel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.phys.Close()
}

// EnvInfo is a snapshot of one environment.
type EnvInfo struct {
	ID     EnvID
	Parent EnvID
	Type   Type
	Status Status
	CPU    int // -1 when not running
	Image  string
	Runs   int
	Faults int
	Pages  int
}

// Envs returns a snapshot of every allocated environment in slot order.
func (k *Kernel) Envs() []EnvInfo {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []EnvInfo
	for i := range k.envs {
		e := &k.envs[i]
		if e.status == Free {
			continue
		}
		info := EnvInfo{
			ID:     e.id,
			Parent: e.parent,
			Type:   e.typ,
			Status: e.status,
			CPU:    -1,
			Runs:   e.runs,
			Faults: e.faults,
		}
		if e.cpu != nil && e.status == Running {
			info.CPU = e.cpu.id
		}
		if e.image != nil {
			info.Image = e.image.Name()
		}
		if e.as != nil {
			e.as.Entries(func(uint32, mem.PTE) bool {
				info.Pages++
				return true
			})
		}
		out = append(out, info)
	}
	return out
}

// Stats is a snapshot of machine-wide counters.
type Stats struct {
	Ticks      uint64
	Uptime     time.Duration
	PhysPages  int
	FreePages  int
	EnvSlots   int
	CPUs       int
	HaltedCPUs int
}

func (k *Kernel) Stats() Stats {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := Stats{
		Ticks:     k.ticks,
		Uptime:    time.Duration(k.ticks) * k.tick,
		PhysPages: k.phys.Pages(),
		FreePages: k.phys.NumFree(),
		EnvSlots:  len(k.envs),
		CPUs:      len(k.cpus),
	}
	for _, c := range k.cpus {
		if c.halted {
			s.HaltedCPUs++
		}
	}
	return s
}

type discardConsole struct{}

func (discardConsole) Write(p []byte) (int, error) { return len(p), nil }
func (discardConsole) Getc() byte                  { return 0 }
