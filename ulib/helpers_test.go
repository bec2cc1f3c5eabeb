package ulib

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

func boot(t *testing.T, cfg kernel.Config) (*kernel.Kernel, *console) {
	t.Helper()
	cons := &console{}
	cfg.NEnv = 32
	cfg.PhysPages = 1024
	cfg.KernPages = 1
	cfg.Console = cons
	cfg.Log = zerolog.Nop()
	k, err := kernel.New(cfg)
	require.NoError(t, err)
	return k, cons
}

func run(t *testing.T, k *kernel.Kernel, imgs ...*kernel.Image) {
	t.Helper()
	for _, img := range imgs {
		_, err := k.Create(img, kernel.User)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
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
	require.NoError(t, k.Run(ctx, ticks))
	require.NoError(t, k.Close())
}

func faults(k *kernel.Kernel, id kernel.EnvID) int {
	for _, info := range k.Envs() {
		if info.ID == id {
			return info.Faults
		}
	}
	return -1
}
