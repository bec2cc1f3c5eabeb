package kernel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exokern/mem"
)

func TestReturnFromMainExits(t *testing.T) {
	k := newTestKernel(t, Config{})
	var ran atomic.Bool
	mustCreate(t, k, NewImage("exit", func(p *Proc) { ran.Store(true) }))

	runKernel(t, k)
	require.True(t, ran.Load())
	require.Empty(t, k.Envs())
}

func TestDestroySelfNeverReturns(t *testing.T) {
	k := newTestKernel(t, Config{})
	var before, after atomic.Bool
	mustCreate(t, k, NewImage("suicide", func(p *Proc) {
		before.Store(true)
		p.Syscall(SysEnvDestroy, 0, 0, 0, 0, 0)
		after.Store(true)
	}))

	runKernel(t, k)
	require.True(t, before.Load())
	require.False(t, after.Load(), "env_destroy(0) returned to its caller")
}

func TestIPCRoundTrip(t *testing.T) {
	for _, cpus := range []int{1, 2} {
		k := newTestKernel(t, Config{CPUs: cpus})

		var got IPCResult
		var r int32 = -1
		recvID := mustCreate(t, k, NewImage("recv", func(p *Proc) {
			r = p.Syscall(SysIPCRecv, mem.UTOP, 0, 0, 0, 0)
			got = p.IPCResult()
		}))
		var sendID EnvID
		var attempts int
		sendID = mustCreate(t, k, NewImage("send", func(p *Proc) {
			for {
				attempts++
				r := p.Syscall(SysIPCTrySend, uint32(recvID), 0xcafe, mem.UTOP, 0, 0)
				if r == errno(ErrIPCNotRecv) {
					p.Syscall(SysYield, 0, 0, 0, 0, 0)
					continue
				}
				assert.Zero(t, r)
				return
			}
		}))

		runKernel(t, k)
		require.Zero(t, r, "cpus=%d", cpus)
		require.Equal(t, IPCResult{Value: 0xcafe, From: sendID}, got, "cpus=%d", cpus)
		require.GreaterOrEqual(t, attempts, 1)
	}
}

func TestExoforkChildResumesWithZero(t *testing.T) {
	k := newTestKernel(t, Config{})

	var childEAX uint32 = 1
	var childID, forked EnvID
	mustCreate(t, k, NewImage("fork", func(p *Proc) {
		child := p.Image().Entry("child", func(p *Proc) {
			childEAX = p.Frame().Regs.EAX
			childID = p.ID()
		})
		pc := p.PC()
		p.SetPC(child)
		r := p.Syscall(SysExofork, 0, 0, 0, 0, 0)
		p.SetPC(pc)
		if !assert.Greater(t, r, int32(0)) {
			return
		}
		forked = EnvID(r)
		assert.Zero(t, p.Syscall(SysEnvSetStatus, uint32(forked), uint32(Runnable), 0, 0, 0))
	}))

	runKernel(t, k)
	require.Zero(t, childEAX)
	require.Equal(t, forked, childID)
}

func TestFaultWithoutUpcallDestroys(t *testing.T) {
	k := newTestKernel(t, Config{})
	var after atomic.Bool
	mustCreate(t, k, NewImage("faultnull", func(p *Proc) {
		p.LoadU32(0)
		after.Store(true)
	}))

	runKernel(t, k)
	require.False(t, after.Load())
}

func TestWriteToTextFaults(t *testing.T) {
	k := newTestKernel(t, Config{})
	var after atomic.Bool
	mustCreate(t, k, NewImage("faultro", func(p *Proc) {
		p.StoreU32(mem.UTEXT, 1)
		after.Store(true)
	}))

	runKernel(t, k)
	require.False(t, after.Load())
}

func TestFaultKernelAddressDestroys(t *testing.T) {
	k := newTestKernel(t, Config{})
	var after atomic.Bool
	mustCreate(t, k, NewImage("faultkern", func(p *Proc) {
		p.LoadU32(mem.KERNBASE)
		after.Store(true)
	}))

	runKernel(t, k)
	require.False(t, after.Load())
}

// installHandler gives p an exception stack and makes h its upcall for trapno.
func installHandler(t *testing.T, p *Proc, trapno uint32, h Handler) {
	t.Helper()
	assert.Zero(t, p.Syscall(SysPageAlloc, 0, mem.UXSTACKTOP-mem.PGSIZE, permUW, 0, 0))
	addr := p.Image().Handler("handler", h)
	assert.Zero(t, p.Syscall(SysEnvSetUpcall, 0, trapno, addr, 0, 0))
}

func TestPageFaultUpcall(t *testing.T) {
	k := newTestKernel(t, Config{})

	var records []UTrapframe
	var value uint32
	mustCreate(t, k, NewImage("faultalloc", func(p *Proc) {
		installHandler(t, p, TPgflt, func(p *Proc, utf *UTrapframe) {
			records = append(records, *utf)
			va := mem.RoundDown(utf.FaultVA)
			assert.Zero(t, p.Syscall(SysPageAlloc, 0, va, permUW, 0, 0))
			if va == mem.UTEMP {
				// Fault again while on the exception stack.
				p.StoreU32(mem.UTEMP+mem.PGSIZE, 2)
			}
		})
		p.StoreU32(mem.UTEMP+8, 0xfeed)
		value = p.LoadU32(mem.UTEMP + 8)
	}))

	runKernel(t, k)
	require.Equal(t, uint32(0xfeed), value)
	require.Len(t, records, 2)

	outer, inner := records[0], records[1]
	require.Equal(t, uint32(mem.UTEMP+8), outer.FaultVA)
	require.Equal(t, uint32(FecU|FecWr), outer.Err)
	require.Equal(t, uint32(mem.USTACKTOP), outer.ESP)

	require.Equal(t, uint32(mem.UTEMP+mem.PGSIZE), inner.FaultVA)
	require.GreaterOrEqual(t, inner.ESP, uint32(mem.UXSTACKTOP-mem.PGSIZE))
	require.Less(t, inner.ESP, uint32(mem.UXSTACKTOP))
	require.Equal(t, uint32(mem.UXSTACKTOP)-UTrapframeSize, inner.ESP)
}

func TestFaultWithoutExceptionStackDestroys(t *testing.T) {
	k := newTestKernel(t, Config{})
	var handled, after atomic.Bool
	mustCreate(t, k, NewImage("nostack", func(p *Proc) {
		addr := p.Image().Handler("handler", func(*Proc, *UTrapframe) { handled.Store(true) })
		assert.Zero(t, p.Syscall(SysEnvSetPgfaultUpcall, 0, addr, 0, 0, 0))
		p.LoadU32(0)
		after.Store(true)
	}))

	runKernel(t, k)
	require.False(t, handled.Load())
	require.False(t, after.Load())
}

func TestBadUpcallAddressDestroys(t *testing.T) {
	k := newTestKernel(t, Config{})
	var after atomic.Bool
	mustCreate(t, k, NewImage("badupcall", func(p *Proc) {
		assert.Zero(t, p.Syscall(SysPageAlloc, 0, mem.UXSTACKTOP-mem.PGSIZE, permUW, 0, 0))
		assert.Zero(t, p.Syscall(SysEnvSetPgfaultUpcall, 0, 0xdeadbeef, 0, 0, 0))
		p.LoadU32(0)
		after.Store(true)
	}))

	runKernel(t, k)
	require.False(t, after.Load())
}

func TestDivideUpcall(t *testing.T) {
	k := newTestKernel(t, Config{})
	var got []uint32
	mustCreate(t, k, NewImage("divzero", func(p *Proc) {
		installHandler(t, p, TDivide, func(p *Proc, utf *UTrapframe) {
			got = append(got, utf.EIP)
		})
		p.Trap(TDivide)
		p.Trap(TDivide)
	}))

	runKernel(t, k)
	require.Len(t, got, 2)
}

func TestTimerPreemptsSpinningEnv(t *testing.T) {
	k := newTestKernel(t, Config{CPUs: 1})
	var flag atomic.Bool
	var spins int
	mustCreate(t, k, NewImage("spinner", func(p *Proc) {
		for !flag.Load() {
			p.LoadU32(mem.USTACKTOP - 4)
			spins++
		}
	}))
	mustCreate(t, k, NewImage("setter", func(p *Proc) { flag.Store(true) }))

	runKernel(t, k)
	require.True(t, flag.Load())
	require.Greater(t, spins, 0)
}

func TestUserPanicDestroysOnlyThatEnv(t *testing.T) {
	k := newTestKernel(t, Config{})
	var mu sync.Mutex
	var infos []PanicInfo
	k.SetPanicHandler(func(info PanicInfo) {
		mu.Lock()
		defer mu.Unlock()
		infos = append(infos, info)
	})

	var survivor atomic.Bool
	bad := mustCreate(t, k, NewImage("boom", func(p *Proc) { panic("boom") }))
	mustCreate(t, k, NewImage("fine", func(p *Proc) {
		p.Syscall(SysYield, 0, 0, 0, 0, 0)
		survivor.Store(true)
	}))

	runKernel(t, k)
	require.True(t, survivor.Load())
	require.Len(t, infos, 1)
	require.Equal(t, bad, infos[0].EnvID)
	require.Equal(t, "boom", infos[0].Value)
	require.NotEmpty(t, infos[0].Stack)
}

func TestKernelPanicDestroysOnlyThatEnv(t *testing.T) {
	k := newTestKernel(t, Config{CPUs: 2})

	var survivor, after atomic.Bool
	bad := mustCreate(t, k, NewImage("bug", func(p *Proc) {
		p.enter(func(c *CPU, e *Env) { panic("page table corrupt") })
		after.Store(true)
	}))
	mustCreate(t, k, NewImage("fine", func(p *Proc) {
		for i := 0; i < 5; i++ {
			p.Syscall(SysYield, 0, 0, 0, 0, 0)
		}
		survivor.Store(true)
	}))

	runKernel(t, k)
	require.True(t, survivor.Load())
	require.False(t, after.Load(), "thread kept running after a kernel panic")
	for _, info := range k.Envs() {
		require.NotEqual(t, bad, info.ID)
	}
}

func TestAtMostOneCPUPerEnv(t *testing.T) {
	k := newTestKernel(t, Config{CPUs: 4, NEnv: 16})
	for i := 0; i < 10; i++ {
		mustCreate(t, k, NewImage("yielder", func(p *Proc) {
			for j := 0; j < 200; j++ {
				p.Syscall(SysYield, 0, 0, 0, 0, 0)
				p.LoadU32(mem.USTACKTOP - 4)
			}
		}))
	}

	stop := make(chan struct{})
	violations := make(chan string, 1)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			k.mu.Lock()
			seen := map[*Env]int{}
			for _, c := range k.cpus {
				if c.cur != nil && c.cur.status == Running {
					seen[c.cur]++
				}
			}
			for i := range k.envs {
				e := &k.envs[i]
				if e.status == Running && (e.cpu == nil || e.cpu.cur != e) {
					select {
					case violations <- "running env not current on its cpu":
					default:
					}
				}
				if seen[e] > 1 {
					select {
					case violations <- "env current on two cpus":
					default:
					}
				}
			}
			k.mu.Unlock()
		}
	}()

	runKernel(t, k)
	close(stop)
	select {
	case v := <-violations:
		t.Fatalf("invariant violated: %s", v)
	default:
	}
}

func TestRunCancelKillsBlockedEnvs(t *testing.T) {
	k := newTestKernel(t, Config{})
	var after atomic.Bool
	mustCreate(t, k, NewImage("stuck", func(p *Proc) {
		p.Syscall(SysIPCRecv, mem.UTOP, 0, 0, 0, 0)
		after.Store(true)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ticks := make(chan uint64)
	err := k.Run(ctx, ticks)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, k.Envs())
	require.False(t, after.Load())
}

func TestBadEntryPointDestroys(t *testing.T) {
	k := newTestKernel(t, Config{})
	var ran atomic.Bool
	img := NewImage("parent", func(p *Proc) {
		pc := p.PC()
		p.SetPC(0x10)
		r := p.Syscall(SysExofork, 0, 0, 0, 0, 0)
		p.SetPC(pc)
		assert.Zero(t, p.Syscall(SysEnvSetStatus, uint32(r), uint32(Runnable), 0, 0, 0))
		ran.Store(true)
	})
	mustCreate(t, k, img)

	runKernel(t, k)
	require.True(t, ran.Load())
	require.Empty(t, k.Envs())
}
