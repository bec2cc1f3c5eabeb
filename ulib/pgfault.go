package ulib

import (
	"fmt"

	"exokern/kernel"
	"exokern/mem"
)

// PteCOW marks a copy-on-write page. It is one of the PTE bits reserved for
// software.
const PteCOW mem.PTE = 0x800

const (
	trampolineSym = "ulib._pgfault_upcall"
	pgfaultSym    = "ulib.pgfault"
)

// SetPgfaultHandler makes h, registered under name, the handler for page
// faults in the calling environment. The first call allocates the exception
// stack and installs the library trampoline as the page fault upcall.
func SetPgfaultHandler(p *kernel.Proc, name string, h kernel.Handler) error {
	addr := p.Image().Handler(name, h)
	if err := ensure(p, DataVA); err != nil {
		return fmt.Errorf("set_pgfault_handler: %w", err)
	}
	if p.LoadU32(handlerSlot) == 0 {
		if err := PageAlloc(p, 0, mem.UXSTACKTOP-mem.PGSIZE, mem.PteP|mem.PteU|mem.PteW); err != nil {
			return fmt.Errorf("set_pgfault_handler: exception stack: %w", err)
		}
		if err := EnvSetPgfaultUpcall(p, 0, trampoline(p)); err != nil {
			return fmt.Errorf("set_pgfault_handler: %w", err)
		}
	}
	p.StoreU32(handlerSlot, addr)
	return nil
}

// SetUpcall makes h, registered under name, the handler for exception kind
// trapno, allocating the exception stack if needed.
func SetUpcall(p *kernel.Proc, trapno uint32, name string, h kernel.Handler) error {
	if err := ensure(p, mem.UXSTACKTOP-mem.PGSIZE); err != nil {
		return err
	}
	return EnvSetUpcall(p, 0, trapno, p.Image().Handler(name, h))
}

func trampoline(p *kernel.Proc) uint32 {
	return p.Image().Handler(trampolineSym, pgfaultUpcall)
}

// pgfaultUpcall calls the handler whose address is stored in the library's
// data page.
func pgfaultUpcall(p *kernel.Proc, utf *kernel.UTrapframe) {
	h, err := p.Image().HandlerAt(p.LoadU32(handlerSlot))
	if err != nil {
		panic(fmt.Sprintf("pgfault upcall: %v", err))
	}
	h(p, utf)
}

// pgfault resolves a write to a copy-on-write page by giving the faulting
// environment its own copy of the page. Any other fault is fatal.
func pgfault(p *kernel.Proc, utf *kernel.UTrapframe) {
	va := utf.FaultVA
	pte := p.PTE(va)
	if utf.Err&kernel.FecWr == 0 || !pte.Present() || !pte.Has(PteCOW) {
		panic(fmt.Sprintf("pgfault: va %08x err %x pte %v: not a copy-on-write write", va, utf.Err, pte))
	}
	va = mem.RoundDown(va)

	perm := mem.PteP | mem.PteU | mem.PteW
	if err := PageAlloc(p, 0, mem.PFTEMP, perm); err != nil {
		panic(fmt.Sprintf("pgfault: page_alloc: %v", err))
	}
	buf := make([]byte, mem.PGSIZE)
	p.Load(va, buf)
	p.Store(mem.PFTEMP, buf)
	if err := PageMap(p, 0, mem.PFTEMP, 0, va, perm); err != nil {
		panic(fmt.Sprintf("pgfault: page_map: %v", err))
	}
	if err := PageUnmap(p, 0, mem.PFTEMP); err != nil {
		panic(fmt.Sprintf("pgfault: page_unmap: %v", err))
	}
}
