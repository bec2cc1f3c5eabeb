package mem

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMem is returned when the physical allocator is exhausted.
	ErrNoMem = errors.New("out of physical memory")
	// ErrRefLimit is returned when a frame already has MaxRefs mappings.
	ErrRefLimit = errors.New("page reference limit reached")
)

// MaxRefs is the most page table entries that may map one frame.
const MaxRefs = 1 << 16

// PPN is a physical page number.
type PPN uint32

// Phys is the physical page allocator. Every frame carries a reference count
// equal to the number of page table entries that map it; a frame returns to
// the free list when its count drops to zero.
//
// Phys is not safe for concurrent use. The kernel serializes all calls under
// its big lock.
type Phys struct {
	frames  []byte
	refs    []uint32
	free    []PPN
	release func() error
}

// NewPhys reserves npages frames. Frame 0 is never handed out so that a zero
// PPN can stand for "no page".
func NewPhys(npages int) (*Phys, error) {
	if npages < 2 {
		return nil, fmt.Errorf("phys: need at least 2 pages, got %d", npages)
	}
	frames, release, err := allocFrames(npages)
	if err != nil {
		return nil, err
	}
	p := &Phys{
		frames:  frames,
		refs:    make([]uint32, npages),
		free:    make([]PPN, 0, npages-1),
		release: release,
	}
	// Hand out low frames first.
	for i := npages - 1; i >= 1; i-- {
		p.free = append(p.free, PPN(i))
	}
	return p, nil
}

// Close releases the backing store. No frame may be used afterwards.
func (p *Phys) Close() error {
	if p.release == nil {
		return nil
	}
	err := p.release()
	p.release = nil
	p.frames = nil
	return err
}

// Pages returns the total number of frames, including the reserved one.
func (p *Phys) Pages() int { return len(p.refs) }

// NumFree returns the number of frames on the free list.
func (p *Phys) NumFree() int { return len(p.free) }

// Alloc takes a frame off the free list. The frame starts with a zero
// reference count; mapping it with AddrSpace.Insert takes the first reference.
func (p *Phys) Alloc(zero bool) (PPN, error) {
	n := len(p.free)
	if n == 0 {
		return 0, ErrNoMem
	}
	pp := p.free[n-1]
	p.free = p.free[:n-1]
	if zero {
		clear(p.Frame(pp))
	}
	return pp, nil
}

// Free returns an unreferenced frame to the allocator.
func (p *Phys) Free(pp PPN) {
	if p.refs[pp] != 0 {
		panic(fmt.Sprintf("phys: free of page %d with %d refs", pp, p.refs[pp]))
	}
	p.free = append(p.free, pp)
}

// IncRef adds a reference to pp. It fails without changing anything once pp
// has MaxRefs references.
func (p *Phys) IncRef(pp PPN) error {
	if p.refs[pp] >= MaxRefs {
		return ErrRefLimit
	}
	p.refs[pp]++
	return nil
}

// DecRef drops a reference to pp and frees the frame on the last one.
func (p *Phys) DecRef(pp PPN) {
	if p.refs[pp] == 0 {
		panic(fmt.Sprintf("phys: decref of free page %d", pp))
	}
	p.refs[pp]--
	if p.refs[pp] == 0 {
		p.Free(pp)
	}
}

// Refs returns the reference count of pp.
func (p *Phys) Refs(pp PPN) int { return int(p.refs[pp]) }

// Frame returns the bytes of a frame.
func (p *Phys) Frame(pp PPN) []byte {
	off := int(pp) * PGSIZE
	return p.frames[off : off+PGSIZE : off+PGSIZE]
}
