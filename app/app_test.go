package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"exokern/config"
	"exokern/hal"
	"exokern/kernel"
)

type fakeConsole struct {
	mu  sync.Mutex
	out bytes.Buffer
	in  io.Reader
}

func (c *fakeConsole) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *fakeConsole) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

func (c *fakeConsole) Getc() byte { return 0 }

func (c *fakeConsole) Read(p []byte) (int, error) {
	if c.in == nil {
		return 0, io.EOF
	}
	return c.in.Read(p)
}

type fakeTime struct{ ch chan uint64 }

func (t fakeTime) Ticks() <-chan uint64 { return t.ch }

type fakeHAL struct {
	cons      *fakeConsole
	t         fakeTime
	net, wire *hal.NetPort
}

func newFakeHAL(t *testing.T, input string) *fakeHAL {
	h := &fakeHAL{cons: &fakeConsole{}, t: fakeTime{ch: make(chan uint64)}}
	if input != "" {
		h.cons.in = strings.NewReader(input)
	}
	h.net, h.wire = hal.NewNetPipe()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
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
			case h.t.ch <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return h
}

func (h *fakeHAL) Console() hal.Console { return h.cons }
func (h *fakeHAL) Display() hal.Display { return nil }
func (h *fakeHAL) Time() hal.Time       { return h.t }
func (h *fakeHAL) Network() hal.Network { return h.net }
func (h *fakeHAL) Wire() hal.Network    { return h.wire }

func testConfig(programs ...string) config.Config {
	cfg := config.Default()
	cfg.Kernel.Envs = 64
	cfg.Kernel.PhysPages = 1024
	cfg.Kernel.KernPages = 1
	cfg.Kernel.Tick = time.Millisecond
	cfg.Boot.Programs = programs
	return cfg
}

// runSteps calls step like a HAL runner until it returns an error.
func runSteps(t *testing.T, step func() error) error {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if err := step(); err != nil {
			return err
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("machine did not stop")
	return nil
}

func TestBootRunsPrograms(t *testing.T) {
	h := newFakeHAL(t, "")
	step := New(h, testConfig("hello", "pingpong"), zerolog.Nop())

	require.ErrorIs(t, runSteps(t, step), hal.ErrStopped)
	out := h.cons.String()
	require.Contains(t, out, "hello, world\n")
	require.Contains(t, out, "got 10 from")
	require.ErrorIs(t, step(), hal.ErrStopped, "a stopped machine stays stopped")
}

func TestBootUnknownProgram(t *testing.T) {
	h := newFakeHAL(t, "")
	step := New(h, testConfig("nosuch"), zerolog.Nop())
	err := step()
	require.Error(t, err)
	require.False(t, errors.Is(err, hal.ErrStopped))
	require.Contains(t, err.Error(), `no program "nosuch"`)
}

func TestMonitorOwnsConsole(t *testing.T) {
	h := newFakeHAL(t, "mem\nexit\n")
	cfg := testConfig()
	cfg.Machine.Monitor = true
	step := New(h, cfg, zerolog.Nop())

	require.ErrorIs(t, runSteps(t, step), hal.ErrStopped)
	out := h.cons.String()
	require.Contains(t, out, "Welcome to the exokern kernel monitor!")
	require.Contains(t, out, "K> physical pages: 1024 total")
}

func TestPingGetsReplies(t *testing.T) {
	a, b := hal.NewNetPipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Echo every frame straight back.
	go func() {
		buf := make([]byte, hal.MaxPacketBytes)
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.RxReady():
			}
			for {
				n, err := b.Recv(buf)
				if err != nil {
					break
				}
				_ = b.Send(buf[:n])
			}
		}
	}()

	var logs bytes.Buffer
	ping(ctx, zerolog.New(&logs), a, 3)
	require.Equal(t, 3, strings.Count(logs.String(), `"message":"ping reply"`), logs.String())
	require.NotContains(t, logs.String(), "timeout")
}

func TestNICAdapter(t *testing.T) {
	a, b := hal.NewNetPipe()
	n := nic{a}

	require.True(t, n.Transmit([]byte("out")))
	buf := make([]byte, 16)
	m, err := b.Recv(buf)
	require.NoError(t, err)
	require.Equal(t, "out", string(buf[:m]))

	_, ok := n.Receive(buf)
	require.False(t, ok)
	require.NoError(t, b.Send([]byte("in")))
	m, ok = n.Receive(buf)
	require.True(t, ok)
	require.Equal(t, "in", string(buf[:m]))
	require.False(t, n.Transmit(make([]byte, hal.MaxPacketBytes+1)))
}

func TestPanicHandler(t *testing.T) {
	var out, logs bytes.Buffer
	h := panicHandler(zerolog.New(&logs).Level(zerolog.DebugLevel), &out)
	h(kernel.PanicInfo{EnvID: 0x1001, Value: "boom", Stack: []byte("goroutine 7\n\nmain.f()\n")})

	require.Equal(t, "[00001001] user panic: boom\n", out.String())
	require.Equal(t, 2, strings.Count(logs.String(), "\n"))
}
