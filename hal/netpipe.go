package hal

import (
	"errors"
	"runtime"
	"sync/atomic"
)

// MaxPacketBytes is the largest frame a network port carries.
const MaxPacketBytes = 1518

var (
	ErrTxFull     = errors.New("transmit queue full")
	ErrRxEmpty    = errors.New("receive queue empty")
	ErrPacketSize = errors.New("packet too large")
)

// RxNotifier is implemented by networks that raise a receive interrupt.
type RxNotifier interface {
	RxReady() <-chan struct{}
}

type frame struct {
	ready atomic.Bool
	n     uint16
	data  [MaxPacketBytes]byte
}

const ringSlots = 32

// ring is a fixed-size multi-producer, single-consumer frame queue.
// It does not allocate after construction.
type ring struct {
	_     [0]func() // prevent accidental copying.
	head  atomic.Uint32
	tail  atomic.Uint32
	slots [ringSlots]frame
}

// tryPut enqueues pkt, returning false if the ring is full.
func (r *ring) tryPut(pkt []byte) bool {
	for {
		head := r.head.Load()
		tail := r.tail.Load()
		if head-tail >= ringSlots {
			return false
		}
		// Reserve a slot, then publish it once the payload is written.
		if !r.head.CompareAndSwap(head, head+1) {
			runtime.Gosched()
			continue
		}
		f := &r.slots[head%ringSlots]
		f.n = uint16(copy(f.data[:], pkt))
		f.ready.Store(true)
		return true
	}
}

// tryGet dequeues one frame into buf, returning false if none is published.
func (r *ring) tryGet(buf []byte) (int, bool) {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return 0, false
	}
	f := &r.slots[tail%ringSlots]
	if !f.ready.Load() {
		return 0, false
	}
	n := copy(buf, f.data[:f.n])
	f.ready.Store(false)
	r.tail.Store(tail + 1)
	return n, true
}

// NetPort is one end of an in-memory point-to-point link.
type NetPort struct {
	tx     *ring
	rx     *ring
	notify chan struct{}
	peer   *NetPort
}

// NewNetPipe returns the two ends of a link: frames sent on one port arrive
// on the other.
func NewNetPipe() (a, b *NetPort) {
	ab, ba := new(ring), new(ring)
	a = &NetPort{tx: ab, rx: ba, notify: make(chan struct{}, 1)}
	b = &NetPort{tx: ba, rx: ab, notify: make(chan struct{}, 1)}
	a.peer, b.peer = b, a
	return a, b
}

// Send queues pkt for the peer.
func (p *NetPort) Send(pkt []byte) error {
	if len(pkt) > MaxPacketBytes {
		return ErrPacketSize
	}
	if !p.tx.tryPut(pkt) {
		return ErrTxFull
	}
	select {
	case p.peer.notify <- struct{}{}:
	default:
	}
	return nil
}

// Recv copies the next frame from the peer into pkt.
func (p *NetPort) Recv(pkt []byte) (int, error) {
	n, ok := p.rx.tryGet(pkt)
	if !ok {
		return 0, ErrRxEmpty
	}
	return n, nil
}

// RxReady fires after the peer sends a frame.
func (p *NetPort) RxReady() <-chan struct{} { return p.notify }
