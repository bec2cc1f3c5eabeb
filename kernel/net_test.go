package kernel

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"exokern/mem"
)

type fakeNIC struct {
	tx    [][]byte
	rx    [][]byte
	limit int
	ready chan struct{}
}

func (n *fakeNIC) Transmit(pkt []byte) bool {
	if len(n.tx) >= n.limit {
		return false
	}
	n.tx = append(n.tx, append([]byte(nil), pkt...))
	return true
}

func (n *fakeNIC) Receive(buf []byte) (int, bool) {
	if len(n.rx) == 0 {
		return 0, false
	}
	pkt := n.rx[0]
	n.rx = n.rx[1:]
	return copy(buf, pkt), true
}

func (n *fakeNIC) RxReady() <-chan struct{} { return n.ready }

func TestSendPacket(t *testing.T) {
	nic := &fakeNIC{limit: 1}
	k := newTestKernel(t, Config{NIC: nic})
	cur := running(t, k, 0)
	require.Zero(t, k.sys(cur, SysPageAlloc, 0, mem.UTEMP, permU))
	require.NoError(t, cur.as.CopyOut(mem.UTEMP, []byte("frame")))

	require.Zero(t, k.sys(cur, SysSendPacket, mem.UTEMP, 5))
	require.Equal(t, [][]byte{[]byte("frame")}, nic.tx)

	require.Equal(t, errno(ErrTxdFull), k.sys(cur, SysSendPacket, mem.UTEMP, 5))
	require.Equal(t, errno(ErrInval), k.sys(cur, SysSendPacket, mem.UTEMP, MaxPacket+1))
	// A bad buffer is an error, not fatal.
	require.Equal(t, errno(ErrInval), k.sys(cur, SysSendPacket, mem.UTEXT, 5))
	require.Equal(t, Running, cur.status)
}

func TestRecvPacket(t *testing.T) {
	nic := &fakeNIC{rx: [][]byte{[]byte("abc")}}
	k := newTestKernel(t, Config{NIC: nic})
	cur := running(t, k, 0)
	require.Zero(t, k.sys(cur, SysPageAlloc, 0, mem.UTEMP, permUW))
	require.Zero(t, k.sys(cur, SysPageAlloc, 0, mem.UTEMP+mem.PGSIZE, permUW))
	lenva := uint32(mem.UTEMP + mem.PGSIZE)

	require.Zero(t, k.sys(cur, SysRecvPacket, mem.UTEMP, lenva, 0))
	var lenb [2]byte
	require.NoError(t, cur.as.CopyIn(lenb[:], lenva))
	require.Equal(t, uint16(3), binary.LittleEndian.Uint16(lenb[:]))
	got := make([]byte, 3)
	require.NoError(t, cur.as.CopyIn(got, mem.UTEMP))
	require.Equal(t, "abc", string(got))

	require.Equal(t, errno(ErrRxdEmpty), k.sys(cur, SysRecvPacket, mem.UTEMP, lenva, 0))
	// The buffer must hold a full frame.
	require.Equal(t, errno(ErrInval), k.sys(cur, SysRecvPacket, mem.UTEMP+2*mem.PGSIZE-16, lenva, 0))
}

func TestRecvPacketBlocks(t *testing.T) {
	nic := &fakeNIC{}
	k := newTestKernel(t, Config{NIC: nic})
	cur := running(t, k, 0)
	require.Zero(t, k.sys(cur, SysPageAlloc, 0, mem.UTEMP, permUW))

	k.sys(cur, SysRecvPacket, mem.UTEMP, mem.UTEMP+mem.PGSIZE-2, 1)
	require.Equal(t, NotRunnable, cur.status)
	require.True(t, cur.netWaiting)
	require.Equal(t, errno(ErrRxdEmpty), int32(cur.tf.Regs.EAX))
	require.True(t, k.cpus[0].halted)

	k.netInterrupt()
	require.Equal(t, Runnable, cur.status)
	require.False(t, cur.netWaiting)
}
