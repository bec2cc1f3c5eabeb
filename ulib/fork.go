package ulib

import (
	"fmt"

	"exokern/kernel"
	"exokern/mem"
)

// Fork creates a child sharing the caller's user pages copy-on-write. The
// child starts at the entry point child with 0 in its return register. Fork
// returns the child's id once the child is runnable. If the child cannot be
// set up it is destroyed.
func Fork(p *kernel.Proc, child uint32) (kernel.EnvID, error) {
	if err := SetPgfaultHandler(p, pgfaultSym, pgfault); err != nil {
		return 0, fmt.Errorf("fork: %w", err)
	}
	id, err := Exofork(p, child)
	if err != nil {
		return 0, fmt.Errorf("fork: exofork: %w", err)
	}
	if err := cowChild(p, id); err != nil {
		_ = EnvDestroy(p, id)
		return 0, fmt.Errorf("fork: %w", err)
	}
	return id, nil
}

func cowChild(p *kernel.Proc, id kernel.EnvID) error {
	for _, m := range p.Mappings(0, mem.USTACKTOP) {
		if !m.PTE.Has(mem.PteP | mem.PteU) {
			continue
		}
		if err := duppage(p, id, m); err != nil {
			return fmt.Errorf("duppage %08x: %w", m.VA, err)
		}
	}

	if err := PageAlloc(p, id, mem.UXSTACKTOP-mem.PGSIZE, mem.PteP|mem.PteU|mem.PteW); err != nil {
		return fmt.Errorf("exception stack: %w", err)
	}
	if err := EnvSetPgfaultUpcall(p, id, trampoline(p)); err != nil {
		return err
	}
	return EnvSetStatus(p, id, kernel.Runnable)
}

// duppage maps the page m into the child. Writable and copy-on-write pages
// become copy-on-write in both environments, the child first.
func duppage(p *kernel.Proc, child kernel.EnvID, m kernel.Mapping) error {
	perm := m.PTE.Perm() & mem.PteSyscall
	if !perm.Has(mem.PteW) && !perm.Has(PteCOW) {
		return PageMap(p, 0, m.VA, child, m.VA, perm)
	}
	perm = perm&^mem.PteW | PteCOW
	if err := PageMap(p, 0, m.VA, child, m.VA, perm); err != nil {
		return err
	}
	return PageMap(p, 0, m.VA, 0, m.VA, perm)
}

// DumbFork creates a child with an eager private copy of every user page,
// copied through UTEMP. The child starts at child. If the copy fails the
// child is destroyed.
func DumbFork(p *kernel.Proc, child uint32) (kernel.EnvID, error) {
	id, err := Exofork(p, child)
	if err != nil {
		return 0, fmt.Errorf("dumbfork: exofork: %w", err)
	}
	if err := copyChild(p, id); err != nil {
		_ = EnvDestroy(p, id)
		return 0, fmt.Errorf("dumbfork: %w", err)
	}
	return id, nil
}

func copyChild(p *kernel.Proc, id kernel.EnvID) error {
	perm := mem.PteP | mem.PteU | mem.PteW
	buf := make([]byte, mem.PGSIZE)
	for _, m := range p.Mappings(0, mem.USTACKTOP) {
		if m.VA == mem.UTEMP || !m.PTE.Has(mem.PteP|mem.PteU) {
			continue
		}
		if err := PageAlloc(p, id, m.VA, perm); err != nil {
			return err
		}
		if err := PageMap(p, id, m.VA, 0, mem.UTEMP, perm); err != nil {
			return err
		}
		p.Load(m.VA, buf)
		p.Store(mem.UTEMP, buf)
		if err := PageUnmap(p, 0, mem.UTEMP); err != nil {
			return err
		}
	}
	return EnvSetStatus(p, id, kernel.Runnable)
}
