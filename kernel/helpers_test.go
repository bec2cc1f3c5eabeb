package kernel

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"exokern/mem"
)

type bufConsole struct {
	mu  sync.Mutex
	buf bytes.Buffer
	in  []byte
}

func (c *bufConsole) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *bufConsole) Getc() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.in) == 0 {
		return 0
	}
	b := c.in[0]
	c.in = c.in[1:]
	return b
}

func (c *bufConsole) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func newTestKernel(t *testing.T, cfg Config) *Kernel {
	t.Helper()
	if cfg.NEnv == 0 {
		cfg.NEnv = 16
	}
	if cfg.PhysPages == 0 {
		cfg.PhysPages = 512
	}
	if cfg.KernPages == 0 {
		cfg.KernPages = 1
	}
	cfg.Log = zerolog.Nop()
	k, err := New(cfg)
	require.NoError(t, err)
	return k
}

// running allocates an environment and installs it as the one running on
// CPU 0 without giving it a thread, so system calls can be dispatched for it
// directly.
func running(t *testing.T, k *Kernel, parent EnvID) *Env {
	t.Helper()
	e, err := k.alloc(parent)
	require.Zero(t, err)
	c := k.cpus[0]
	c.cur = e
	c.halted = false
	e.cpu = c
	e.status = Running
	return e
}

// parked allocates a runnable environment whose thread is already started,
// so dispatching it only rings its doorbell.
func parked(t *testing.T, k *Kernel, parent EnvID) *Env {
	t.Helper()
	e, err := k.alloc(parent)
	require.Zero(t, err)
	e.th = newThread()
	e.th.started = true
	e.status = Runnable
	return e
}

func (k *Kernel) sys(cur *Env, no uint32, args ...uint32) int32 {
	var a [5]uint32
	copy(a[:], args)
	return k.dispatch(cur.cpu, cur, no, a[0], a[1], a[2], a[3], a[4])
}

// runKernel runs k with a 1ms tick until every user environment is gone.
func runKernel(t *testing.T, k *Kernel) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ticks := make(chan uint64)
	go func() {
		tk := time.NewTicker(time.Millisecond)
		defer tk.Stop()
		var n uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				n++
				select {
				case ticks <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	require.NoError(t, k.Run(ctx, ticks))
	select {
	case <-k.Done():
	default:
		t.Fatalf("Run() returned before the kernel finished")
	}
}

func mustCreate(t *testing.T, k *Kernel, img *Image) EnvID {
	t.Helper()
	id, err := k.Create(img, User)
	require.NoError(t, err)
	return id
}

func pageAt(t *testing.T, e *Env, va uint32) mem.PTE {
	t.Helper()
	pte, ok := e.as.Lookup(va)
	require.True(t, ok, "no mapping at %08x", va)
	return pte
}
