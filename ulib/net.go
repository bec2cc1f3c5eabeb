package ulib

import (
	"encoding/binary"
	"errors"

	"exokern/kernel"
)

// SendPacket transmits pkt, waiting while the transmit queue is full.
func SendPacket(p *kernel.Proc, pkt []byte) error {
	if len(pkt) > kernel.MaxPacket {
		return kernel.ErrInval
	}
	if err := ensure(p, PktVA); err != nil {
		return err
	}
	p.Store(PktVA, pkt)
	for {
		err := kernel.Errno(syscall(p, kernel.SysSendPacket, PktVA, uint32(len(pkt))))
		if !errors.Is(err, kernel.ErrTxdFull) {
			return err
		}
		Yield(p)
	}
}

// RecvPacket returns the next received packet. With block set it waits for
// one; otherwise it fails with kernel.ErrRxdEmpty when none is queued.
func RecvPacket(p *kernel.Proc, block bool) ([]byte, error) {
	if err := ensure(p, PktVA); err != nil {
		return nil, err
	}
	// Break copy-on-write sharing first: the kernel wants a writable buffer.
	p.Store(pktLenVA, []byte{0, 0})
	var b uint32
	if block {
		b = 1
	}
	for {
		err := kernel.Errno(syscall(p, kernel.SysRecvPacket, PktVA, pktLenVA, b))
		if errors.Is(err, kernel.ErrRxdEmpty) && block {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}
	var lenb [2]byte
	p.Load(pktLenVA, lenb[:])
	pkt := make([]byte, binary.LittleEndian.Uint16(lenb[:]))
	p.Load(PktVA, pkt)
	return pkt, nil
}
