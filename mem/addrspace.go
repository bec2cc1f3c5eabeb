package mem

import "fmt"

type pageTable [NPTENTRIES]PTE

// AddrSpace is a two-level page table. Directory slots at or above UTOP point
// at page tables shared with the kernel template and are never modified
// through an environment's address space.
type AddrSpace struct {
	phys *Phys
	dir  [NPDENTRIES]*pageTable
	kern int // first directory slot owned by the kernel template
}

// NewTemplate builds the kernel half of every address space: kpages
// supervisor-only frames mapped at KERNBASE.
func NewTemplate(phys *Phys, kpages int) (*AddrSpace, error) {
	as := &AddrSpace{phys: phys, kern: NPDENTRIES}
	for i := 0; i < kpages; i++ {
		pp, err := phys.Alloc(true)
		if err != nil {
			return nil, fmt.Errorf("kernel template page %d: %w", i, err)
		}
		if err := as.insert(pp, KERNBASE+uint32(i)*PGSIZE, PteW); err != nil {
			return nil, fmt.Errorf("kernel template page %d: %w", i, err)
		}
	}
	as.kern = PDX(UTOP)
	return as, nil
}

// NewAddrSpace returns an address space with an empty user region and a
// private copy of the template's kernel directory entries.
func NewAddrSpace(tmpl *AddrSpace) *AddrSpace {
	as := &AddrSpace{phys: tmpl.phys, kern: PDX(UTOP)}
	copy(as.dir[as.kern:], tmpl.dir[as.kern:])
	return as
}

func (as *AddrSpace) walk(va uint32, create bool) *PTE {
	pt := as.dir[PDX(va)]
	if pt == nil {
		if !create {
			return nil
		}
		pt = new(pageTable)
		as.dir[PDX(va)] = pt
	}
	return &pt[PTX(va)]
}

// Lookup returns the entry mapping va, if present.
func (as *AddrSpace) Lookup(va uint32) (PTE, bool) {
	pte := as.walk(va, false)
	if pte == nil || !pte.Present() {
		return 0, false
	}
	return *pte, true
}

// Insert maps pp at the page containing va with perm|PteP, replacing any
// existing mapping. The new reference is taken before the old one is dropped,
// so re-inserting the same page at the same address is safe. If pp cannot
// take another reference nothing changes and ErrRefLimit is returned.
func (as *AddrSpace) Insert(pp PPN, va uint32, perm PTE) error {
	if PDX(va) >= as.kern {
		panic(fmt.Sprintf("mem: insert into kernel region at %08x", va))
	}
	return as.insert(pp, va, perm)
}

func (as *AddrSpace) insert(pp PPN, va uint32, perm PTE) error {
	if err := as.phys.IncRef(pp); err != nil {
		return err
	}
	pte := as.walk(va, true)
	if pte.Present() {
		as.phys.DecRef(pte.PPN())
	}
	*pte = mkPTE(pp, perm|PteP)
	return nil
}

// Remove unmaps the page containing va and reports whether a mapping existed.
func (as *AddrSpace) Remove(va uint32) bool {
	if PDX(va) >= as.kern {
		panic(fmt.Sprintf("mem: remove from kernel region at %08x", va))
	}
	pte := as.walk(va, false)
	if pte == nil || !pte.Present() {
		return false
	}
	as.phys.DecRef(pte.PPN())
	*pte = 0
	return true
}

// Entries calls fn for every present entry below UTOP in address order until
// fn returns false.
func (as *AddrSpace) Entries(fn func(va uint32, pte PTE) bool) {
	for pdx := 0; pdx < as.kern; pdx++ {
		pt := as.dir[pdx]
		if pt == nil {
			continue
		}
		for ptx, pte := range pt {
			if !pte.Present() {
				continue
			}
			if !fn(PGADDR(pdx, ptx), pte) {
				return
			}
		}
	}
}

// Free removes every user mapping. The kernel half is left alone.
func (as *AddrSpace) Free() {
	for pdx := 0; pdx < as.kern; pdx++ {
		pt := as.dir[pdx]
		if pt == nil {
			continue
		}
		for ptx := range pt {
			if pt[ptx].Present() {
				as.phys.DecRef(pt[ptx].PPN())
				pt[ptx] = 0
			}
		}
		as.dir[pdx] = nil
	}
}

// Frame returns the frame bytes backing va starting at va's page offset.
func (as *AddrSpace) Frame(va uint32) ([]byte, bool) {
	pte, ok := as.Lookup(va)
	if !ok {
		return nil, false
	}
	return as.phys.Frame(pte.PPN())[va&(PGSIZE-1):], true
}

// CopyIn copies len(dst) bytes starting at va into dst, ignoring permissions.
// Callers check permissions first.
func (as *AddrSpace) CopyIn(dst []byte, va uint32) error {
	for len(dst) > 0 {
		src, ok := as.Frame(va)
		if !ok {
			return fmt.Errorf("mem: copy in: %08x not mapped", va)
		}
		n := copy(dst, src)
		dst = dst[n:]
		va += uint32(n)
	}
	return nil
}

// CopyOut copies src to va, ignoring permissions.
func (as *AddrSpace) CopyOut(va uint32, src []byte) error {
	for len(src) > 0 {
		dst, ok := as.Frame(va)
		if !ok {
			return fmt.Errorf("mem: copy out: %08x not mapped", va)
		}
		n := copy(dst, src)
		src = src[n:]
		va += uint32(n)
	}
	return nil
}
