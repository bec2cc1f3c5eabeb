package kernel

import (
	"fmt"

	"exokern/mem"
)

// userMemCheck reports whether e may access [va, va+n) with perm|PteP. On
// failure it returns the first offending address.
func (k *Kernel) userMemCheck(e *Env, va, n uint32, perm mem.PTE) (uint32, bool) {
	perm |= mem.PteP
	end := uint64(va) + uint64(n)
	for a := uint64(mem.RoundDown(va)); a < end; a += mem.PGSIZE {
		bad := uint32(a)
		if a < uint64(va) {
			bad = va
		}
		if a >= mem.ULIM {
			return bad, false
		}
		if pte, ok := e.as.Lookup(uint32(a)); !ok || !pte.Has(perm) {
			return bad, false
		}
	}
	return 0, true
}

// userMemAssert is userMemCheck for arguments the environment vouched for:
// on failure e is destroyed and false returned.
func (k *Kernel) userMemAssert(c *CPU, e *Env, va, n uint32, perm mem.PTE) bool {
	bad, ok := k.userMemCheck(e, va, n, perm|mem.PteU)
	if ok {
		return true
	}
	k.log.Warn().
		Stringer("env", e.id).
		Str("va", hex(bad)).
		Msg("user_mem_check assertion failure")
	k.destroy(c, e)
	return false
}

func hex(v uint32) string { return fmt.Sprintf("%08x", v) }
