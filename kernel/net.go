package kernel

import (
	"encoding/binary"

	"exokern/mem"
)

// MaxPacket is the largest frame send_packet and recv_packet move.
const MaxPacket = 1518

func (k *Kernel) sysSendPacket(cur *Env, va, n uint32) int32 {
	if k.nic == nil {
		return errno(ErrInval)
	}
	if n > MaxPacket {
		return errno(ErrInval)
	}
	if _, ok := k.userMemCheck(cur, va, n, mem.PteU); !ok {
		return errno(ErrInval)
	}
	pkt := make([]byte, n)
	if err := cur.as.CopyIn(pkt, va); err != nil {
		panic(err)
	}
	if !k.nic.Transmit(pkt) {
		return errno(ErrTxdFull)
	}
	return 0
}

// sysRecvPacket copies the next received frame to va and its length, as a
// little-endian uint16, to lenva. With an empty queue it fails with
// ErrRxdEmpty or, if block is set, parks cur until the receive interrupt;
// the parked call then completes with ErrRxdEmpty and user code retries.
func (k *Kernel) sysRecvPacket(c *CPU, cur *Env, va, lenva uint32, block bool) int32 {
	if k.nic == nil {
		return errno(ErrInval)
	}
	if _, ok := k.userMemCheck(cur, va, MaxPacket, mem.PteU|mem.PteW); !ok {
		return errno(ErrInval)
	}
	if _, ok := k.userMemCheck(cur, lenva, 2, mem.PteU|mem.PteW); !ok {
		return errno(ErrInval)
	}

	buf := make([]byte, MaxPacket)
	n, ok := k.nic.Receive(buf)
	if !ok {
		if !block {
			return errno(ErrRxdEmpty)
		}
		cur.netWaiting = true
		cur.status = NotRunnable
		cur.tf.Regs.EAX = uint32(errno(ErrRxdEmpty))
		k.yield(c)
		return errno(ErrRxdEmpty)
	}

	var lenb [2]byte
	binary.LittleEndian.PutUint16(lenb[:], uint16(n))
	if err := cur.as.CopyOut(lenva, lenb[:]); err != nil {
		panic(err)
	}
	if err := cur.as.CopyOut(va, buf[:n]); err != nil {
		panic(err)
	}
	return 0
}

// netInterrupt wakes every environment parked in recv_packet.
func (k *Kernel) netInterrupt() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.envs {
		e := &k.envs[i]
		if e.netWaiting && e.status == NotRunnable {
			e.netWaiting = false
			e.status = Runnable
		}
	}
}
