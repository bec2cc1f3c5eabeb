package user

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"exokern/kernel"
)

type console struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *console) Getc() byte { return 0 }

func (c *console) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func newKernel(t *testing.T, cfg kernel.Config) (*kernel.Kernel, *console) {
	t.Helper()
	cons := &console{}
	if cfg.CPUs == 0 {
		cfg.CPUs = 1
	}
	cfg.NEnv = 64
	cfg.PhysPages = 2048
	cfg.KernPages = 1
	cfg.Console = cons
	cfg.Log = zerolog.Nop()
	k, err := kernel.New(cfg)
	require.NoError(t, err)
	return k, cons
}

func ticker(ctx context.Context) <-chan uint64 {
	ticks := make(chan uint64)
	go func() {
		tk := time.NewTicker(time.Millisecond)
		defer tk.Stop()
		for n := uint64(1); ; n++ {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
			}
			select {
			case ticks <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ticks
}

// boot runs the named program alone until the kernel runs out of
// environments and returns the console output.
func boot(t *testing.T, name string, cpus int) string {
	t.Helper()
	prog, err := Lookup(name)
	require.NoError(t, err)
	k, cons := newKernel(t, kernel.Config{CPUs: cpus})
	_, err = k.Create(prog.Build(), prog.Type)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, k.Run(ctx, ticker(ctx)))
	require.NoError(t, k.Close())
	return cons.String()
}
