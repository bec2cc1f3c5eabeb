// Package ulib is the library user programs link against: system call
// stubs, copy-on-write fork, IPC helpers and console output.
package ulib

import (
	"fmt"

	"exokern/kernel"
	"exokern/mem"
)

// Fixed user addresses owned by the library.
const (
	// DataVA holds library globals such as the page fault handler address.
	DataVA = mem.UTEMP - mem.PGSIZE
	// BufVA is scratch space for arguments passed to the kernel by pointer.
	BufVA = mem.UTEMP - 2*mem.PGSIZE
	// PktVA receives packets; the length word follows the frame buffer.
	PktVA    = mem.UTEMP - 3*mem.PGSIZE
	pktLenVA = PktVA + 2048

	handlerSlot = DataVA
)

func syscall(p *kernel.Proc, no uint32, args ...uint32) int32 {
	var a [5]uint32
	copy(a[:], args)
	return p.Syscall(no, a[0], a[1], a[2], a[3], a[4])
}

// ensure maps a zeroed writable page at va if nothing is mapped there.
func ensure(p *kernel.Proc, va uint32) error {
	if p.PTE(va).Present() {
		return nil
	}
	return PageAlloc(p, 0, va, mem.PteP|mem.PteU|mem.PteW)
}

// Cputs writes s to the console.
func Cputs(p *kernel.Proc, s string) {
	if err := ensure(p, BufVA); err != nil {
		panic(fmt.Sprintf("cputs: %v", err))
	}
	for len(s) > 0 {
		n := min(len(s), mem.PGSIZE)
		p.Store(BufVA, []byte(s[:n]))
		syscall(p, kernel.SysCputs, BufVA, uint32(n))
		s = s[n:]
	}
}

// Printf formats according to format and writes the result to the console.
func Printf(p *kernel.Proc, format string, args ...any) {
	Cputs(p, fmt.Sprintf(format, args...))
}

// Cgetc returns the next console input byte, or 0 if there is none.
func Cgetc(p *kernel.Proc) byte { return byte(syscall(p, kernel.SysCgetc)) }

func Getenvid(p *kernel.Proc) kernel.EnvID {
	return kernel.EnvID(syscall(p, kernel.SysGetenvid))
}

func EnvDestroy(p *kernel.Proc, id kernel.EnvID) error {
	return kernel.Errno(syscall(p, kernel.SysEnvDestroy, uint32(id)))
}

// Exit destroys the calling environment. It does not return.
func Exit(p *kernel.Proc) {
	syscall(p, kernel.SysEnvDestroy, 0)
	panic("exit returned")
}

func Yield(p *kernel.Proc) { syscall(p, kernel.SysYield) }

func PageAlloc(p *kernel.Proc, id kernel.EnvID, va uint32, perm mem.PTE) error {
	return kernel.Errno(syscall(p, kernel.SysPageAlloc, uint32(id), va, uint32(perm)))
}

func PageMap(p *kernel.Proc, srcid kernel.EnvID, srcva uint32, dstid kernel.EnvID, dstva uint32, perm mem.PTE) error {
	return kernel.Errno(syscall(p, kernel.SysPageMap, uint32(srcid), srcva, uint32(dstid), dstva, uint32(perm)))
}

func PageUnmap(p *kernel.Proc, id kernel.EnvID, va uint32) error {
	return kernel.Errno(syscall(p, kernel.SysPageUnmap, uint32(id), va))
}

// Exofork creates a child that starts executing at the entry point child
// with an empty address space. The child is not runnable yet.
func Exofork(p *kernel.Proc, child uint32) (kernel.EnvID, error) {
	pc := p.PC()
	p.SetPC(child)
	r := syscall(p, kernel.SysExofork)
	p.SetPC(pc)
	if err := kernel.Errno(r); err != nil {
		return 0, err
	}
	return kernel.EnvID(r), nil
}

func EnvSetStatus(p *kernel.Proc, id kernel.EnvID, status kernel.Status) error {
	return kernel.Errno(syscall(p, kernel.SysEnvSetStatus, uint32(id), uint32(status)))
}

// EnvSetTrapframe replaces the saved registers of id with tf.
func EnvSetTrapframe(p *kernel.Proc, id kernel.EnvID, tf kernel.Trapframe) error {
	if err := ensure(p, BufVA); err != nil {
		return err
	}
	p.Store(BufVA, kernel.Marshal(&tf))
	return kernel.Errno(syscall(p, kernel.SysEnvSetTrapframe, uint32(id), BufVA))
}

func EnvSetPgfaultUpcall(p *kernel.Proc, id kernel.EnvID, fn uint32) error {
	return kernel.Errno(syscall(p, kernel.SysEnvSetPgfaultUpcall, uint32(id), fn))
}

func EnvSetUpcall(p *kernel.Proc, id kernel.EnvID, trapno, fn uint32) error {
	return kernel.Errno(syscall(p, kernel.SysEnvSetUpcall, uint32(id), trapno, fn))
}

// TimeMsec returns the milliseconds since boot.
func TimeMsec(p *kernel.Proc) int { return int(syscall(p, kernel.SysTimeMsec)) }
