package mem

// Virtual memory layout of every environment. The user region is [0, UTOP);
// everything at or above ULIM belongs to the kernel and is never user-accessible.
const (
	PGSHIFT = 12
	PGSIZE  = 1 << PGSHIFT
	PTSHIFT = 22
	PTSIZE  = 1 << PTSHIFT

	NPDENTRIES = 1024
	NPTENTRIES = 1024

	KERNBASE = 0xf0000000
	ULIM     = 0xef800000
	UVPT     = 0xef400000
	UPAGES   = 0xef000000
	UENVS    = 0xeec00000

	UTOP       = UENVS
	UXSTACKTOP = UTOP
	USTACKTOP  = UTOP - 2*PGSIZE

	UTEXT  = 2 * PTSIZE
	UTEMP  = PTSIZE
	PFTEMP = UTEMP + PTSIZE - PGSIZE
)

// PDX returns the page directory index of va.
func PDX(va uint32) int { return int(va>>PTSHIFT) & 0x3FF }

// PTX returns the page table index of va.
func PTX(va uint32) int { return int(va>>PGSHIFT) & 0x3FF }

// PGNUM returns the virtual page number of va.
func PGNUM(va uint32) uint32 { return va >> PGSHIFT }

// PGADDR builds a virtual address from directory and table indexes.
func PGADDR(pdx, ptx int) uint32 { return uint32(pdx)<<PTSHIFT | uint32(ptx)<<PGSHIFT }

func RoundDown(va uint32) uint32 { return va &^ (PGSIZE - 1) }

func RoundUp(va uint32) uint32 { return (va + PGSIZE - 1) &^ (PGSIZE - 1) }

// Aligned reports whether va is on a page boundary.
func Aligned(va uint32) bool { return va&(PGSIZE-1) == 0 }
