package mem

import "strings"

// PTE is a page table entry: a physical page number in the high 20 bits and
// permission bits in the low 12.
type PTE uint32

const (
	PteP     PTE = 0x001 // present
	PteW     PTE = 0x002 // writeable
	PteU     PTE = 0x004 // user
	PtePWT   PTE = 0x008
	PtePCD   PTE = 0x010
	PteA     PTE = 0x020 // accessed
	PteD     PTE = 0x040 // dirty
	PtePS    PTE = 0x080
	PteG     PTE = 0x100
	PteAVAIL PTE = 0xE00 // available for software use

	// PteSyscall is the set of bits user code may pass to the page syscalls.
	PteSyscall = PteAVAIL | PteP | PteW | PteU

	PteFlags PTE = 0xFFF
)

// PPN returns the physical page number stored in the entry.
func (p PTE) PPN() PPN { return PPN(p >> PGSHIFT) }

// Perm returns the permission bits of the entry.
func (p PTE) Perm() PTE { return p & PteFlags }

func (p PTE) Present() bool { return p&PteP != 0 }

// Has reports whether every bit of perm is set in p.
func (p PTE) Has(perm PTE) bool { return p&perm == perm }

func mkPTE(ppn PPN, perm PTE) PTE { return PTE(ppn)<<PGSHIFT | perm&PteFlags }

func (p PTE) String() string {
	var b strings.Builder
	flag := func(bit PTE, c byte) {
		if p&bit != 0 {
			b.WriteByte(c)
		} else {
			b.WriteByte('-')
		}
	}
	flag(PteAVAIL&0x800, 'c')
	flag(PteU, 'u')
	flag(PteW, 'w')
	flag(PteP, 'p')
	return b.String()
}
