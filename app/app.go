package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"exokern/config"
	"exokern/display"
	"exokern/hal"
	"exokern/kernel"
	"exokern/monitor"
	"exokern/user"
)

type system struct {
	h      hal.HAL
	cfg    config.Config
	log    zerolog.Logger
	k      *kernel.Kernel
	screen *display.Screen

	cancel  context.CancelFunc
	kernErr chan error
	monDone chan struct{}

	finished bool
	err      error
}

// New boots the configured programs on h and returns the step function the
// HAL runner calls every tick. Step returns hal.ErrStopped once the kernel
// has no user environments left and the monitor, if enabled, has exited.
func New(h hal.HAL, cfg config.Config, log zerolog.Logger) func() error {
	s, err := newSystem(h, cfg, log)
	if err != nil {
		return func() error { return err }
	}
	return s.step
}

func newSystem(h hal.HAL, cfg config.Config, log zerolog.Logger) (*system, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &system{
		h:       h,
		cfg:     cfg,
		log:     log,
		kernErr: make(chan error, 1),
	}

	var screenOut io.Writer = io.Discard
	if d := h.Display(); d != nil && d.Framebuffer() != nil {
		s.screen = display.New(d.Framebuffer())
		screenOut = s.screen.Console()
	}
	cons := &console{
		out:      io.MultiWriter(h.Console(), screenOut),
		in:       h.Console(),
		readOnly: cfg.Machine.Monitor,
	}

	k, err := kernel.New(kernel.Config{
		NEnv:      cfg.Kernel.Envs,
		CPUs:      cfg.Kernel.CPUs,
		PhysPages: cfg.Kernel.PhysPages,
		KernPages: cfg.Kernel.KernPages,
		Tick:      cfg.Kernel.Tick,
		Log:       log,
		Console:   cons,
		NIC:       nic{h.Network()},
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	s.k = k
	k.SetPanicHandler(panicHandler(log, cons))

	for _, name := range cfg.Boot.Programs {
		if _, err := s.spawn(name); err != nil {
			_ = k.Close()
			return nil, fmt.Errorf("app: boot: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		s.kernErr <- k.Run(ctx, h.Time().Ticks())
	}()

	if cfg.Machine.Monitor {
		s.monDone = make(chan struct{})
		mon := monitor.New(monitor.Config{
			Kernel:   k,
			Out:      cons,
			Spawn:    s.spawn,
			Programs: user.Names(),
		})
		go func() {
			defer close(s.monDone)
			if err := mon.Run(h.Console()); err != nil {
				log.Error().Err(err).Msg("monitor")
			}
			cancel()
		}()
	}

	if cfg.Boot.Ping > 0 {
		go ping(ctx, log, h.Wire(), cfg.Boot.Ping)
	}
	return s, nil
}

func (s *system) spawn(name string) (kernel.EnvID, error) {
	prog, err := user.Lookup(name)
	if err != nil {
		return 0, err
	}
	select {
	case <-s.k.Done():
		return 0, errors.New("kernel has halted")
	default:
	}
	return s.k.Create(prog.Build(), prog.Type)
}

func (s *system) step() error {
	if s.err != nil {
		return s.err
	}

	if s.screen != nil {
		var snap display.Snapshotter
		if !s.finished {
			snap = s.k
		}
		if err := s.screen.Step(snap); err != nil {
			return err
		}
	}

	if !s.finished {
		select {
		case err := <-s.kernErr:
			s.finished = true
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error().Err(err).Msg("kernel stopped")
				return s.stop(err)
			}
			s.log.Info().Msg("kernel halted")
		default:
			return nil
		}
	}

	if s.monDone != nil {
		select {
		case <-s.monDone:
		default:
			return nil
		}
	}
	return s.stop(hal.ErrStopped)
}

// stop releases the machine once and makes every later step return err.
func (s *system) stop(err error) error {
	s.cancel()
	if cerr := s.k.Close(); cerr != nil && errors.Is(err, hal.ErrStopped) {
		err = cerr
	}
	s.err = err
	return err
}

// console is the kernel's console: output goes to the machine console and
// the screen. With the monitor running, the monitor owns input and cgetc
// always reports none.
type console struct {
	mu       sync.Mutex
	out      io.Writer
	in       hal.Console
	readOnly bool
}

func (c *console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *console) Getc() byte {
	if c.readOnly {
		return 0
	}
	return c.in.Getc()
}

// nic adapts the HAL network device to the kernel's driver interface.
type nic struct {
	n hal.Network
}

func (a nic) Transmit(pkt []byte) bool { return a.n.Send(pkt) == nil }

func (a nic) Receive(buf []byte) (int, bool) {
	n, err := a.n.Recv(buf)
	return n, err == nil
}

func (a nic) RxReady() <-chan struct{} { return a.n.RxReady() }
