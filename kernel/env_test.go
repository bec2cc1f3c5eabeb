package kernel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"exokern/mem"
)

func TestAllocExhaustsTable(t *testing.T) {
	k := newTestKernel(t, Config{NEnv: 8})

	for i := 0; i < 8; i++ {
		if _, err := k.alloc(0); err != 0 {
			t.Fatalf("alloc() #%d err = %v, want nil", i, err)
		}
	}
	if _, err := k.alloc(0); err != ErrNoFreeEnv {
		t.Fatalf("alloc() #9 err = %v, want %v", err, ErrNoFreeEnv)
	}
}

func TestAllocAfterFreeReusesSlot(t *testing.T) {
	k := newTestKernel(t, Config{NEnv: 4})

	var envs []*Env
	for i := 0; i < 4; i++ {
		e, err := k.alloc(0)
		require.Zero(t, err)
		envs = append(envs, e)
	}
	k.free(envs[2])

	e, err := k.alloc(0)
	require.Zero(t, err)
	require.Same(t, envs[2], e)
	require.Equal(t, 2, k.envx(e.id))
}

func TestStaleEnvIDRejected(t *testing.T) {
	k := newTestKernel(t, Config{NEnv: 4})
	cur := running(t, k, 0)

	e, err := k.alloc(0)
	require.Zero(t, err)
	stale := e.id
	k.free(e)

	again, err := k.alloc(0)
	require.Zero(t, err)
	require.Same(t, e, again)
	require.NotEqual(t, stale, again.id)
	require.Equal(t, k.envx(stale), k.envx(again.id))
	require.Equal(t, EnvID(1)<<envGenShift, again.id-stale)

	if _, err := k.envid2env(cur, stale, false); err != ErrBadEnv {
		t.Fatalf("envid2env(stale) err = %v, want %v", err, ErrBadEnv)
	}
	got, err := k.envid2env(cur, again.id, false)
	require.Zero(t, err)
	require.Same(t, again, got)
}

func TestEnvid2envPermission(t *testing.T) {
	k := newTestKernel(t, Config{})
	cur := running(t, k, 0)
	child, _ := k.alloc(cur.id)
	grandchild, _ := k.alloc(child.id)
	other, _ := k.alloc(0)

	tests := []struct {
		name string
		id   EnvID
		want *Env
		err  Err
	}{
		{name: "self by zero", id: 0, want: cur},
		{name: "self by id", id: cur.id, want: cur},
		{name: "child", id: child.id, want: child},
		{name: "grandchild", id: grandchild.id, err: ErrBadEnv},
		{name: "unrelated", id: other.id, err: ErrBadEnv},
		{name: "never allocated", id: 0x7ff, err: ErrBadEnv},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := k.envid2env(cur, tt.id, true)
			if err != tt.err {
				t.Fatalf("envid2env(%v) err = %v, want %v", tt.id, err, tt.err)
			}
			if got != tt.want {
				t.Fatalf("envid2env(%v) = %p, want %p", tt.id, got, tt.want)
			}
		})
	}

	// Without the permission check anyone can be named.
	got, err := k.envid2env(cur, other.id, false)
	require.Zero(t, err)
	require.Same(t, other, got)
}

func TestFreeReleasesUserPages(t *testing.T) {
	k := newTestKernel(t, Config{})
	before := k.phys.NumFree()

	e, err := k.alloc(0)
	require.Zero(t, err)
	require.NoError(t, k.load(e, NewImage("t", func(*Proc) {})))
	require.Less(t, k.phys.NumFree(), before)

	k.free(e)
	require.Equal(t, before, k.phys.NumFree())
	require.Equal(t, Free, e.status)
}

func TestDestroyRunningElsewhereMarksDying(t *testing.T) {
	k := newTestKernel(t, Config{CPUs: 2})
	e := running(t, k, 0)

	k.destroy(k.cpus[1], e)
	require.Equal(t, Dying, e.status)
	require.NotNil(t, e.as)

	k.destroy(nil, e)
	require.Equal(t, Dying, e.status, "destroy from the kernel must not free a running env")
}

func TestCreateMapsTextAndStack(t *testing.T) {
	k := newTestKernel(t, Config{})
	img := NewImage("prog", func(*Proc) {})
	id := mustCreate(t, k, img)

	e := &k.envs[k.envx(id)]
	require.Equal(t, Runnable, e.status)
	require.Equal(t, img.Start(), e.tf.EIP)
	require.Equal(t, uint32(mem.USTACKTOP), e.tf.ESP)
	require.Equal(t, uint32(GDUserText|3), e.tf.CS)

	text := pageAt(t, e, mem.UTEXT)
	require.False(t, text.Has(mem.PteW), "text mapped writable")
	require.True(t, text.Has(mem.PteU))
	stack := pageAt(t, e, mem.USTACKTOP-mem.PGSIZE)
	require.True(t, stack.Has(mem.PteU|mem.PteW))
}

func TestCreateOutOfEnvs(t *testing.T) {
	k := newTestKernel(t, Config{NEnv: 1})
	img := NewImage("prog", func(*Proc) {})
	mustCreate(t, k, img)

	_, err := k.Create(img, User)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNoFreeEnv), "Create() err = %v", err)
}

func TestDestroyFromMonitor(t *testing.T) {
	k := newTestKernel(t, Config{})
	img := NewImage("prog", func(*Proc) {})
	id := mustCreate(t, k, img)
	other := mustCreate(t, k, img)

	require.NoError(t, k.Destroy(id))
	require.Equal(t, Free, k.envs[k.envx(id)].status)
	require.Equal(t, Runnable, k.envs[k.envx(other)].status)

	require.ErrorIs(t, k.Destroy(id), ErrBadEnv)
	require.ErrorIs(t, k.Destroy(0), ErrBadEnv)
}

func TestNewRejectsBadTableSize(t *testing.T) {
	_, err := New(Config{NEnv: 12})
	require.Error(t, err)
	_, err = New(Config{NEnv: 8192})
	require.Error(t, err)
}
