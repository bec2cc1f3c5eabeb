package user

import (
	"fmt"

	"exokern/kernel"
	"exokern/mem"
	"exokern/ulib"
)

// FaultDie installs a page fault handler that reports the fault and exits,
// then writes to an unmapped address.
func FaultDie() *kernel.Image {
	return kernel.NewImage("faultdie", func(p *kernel.Proc) {
		err := ulib.SetPgfaultHandler(p, "faultdie.handler", func(p *kernel.Proc, utf *kernel.UTrapframe) {
			ulib.Printf(p, "i faulted at va %x, err %x\n", utf.FaultVA, utf.Err&7)
			ulib.Exit(p)
		})
		if err != nil {
			panic(err)
		}
		p.StoreU32(0xDeadBeef, 0)
	})
}

// FaultAlloc demand-allocates pages from its fault handler, filling each
// with a message naming the faulting address. The second address straddles
// a page boundary, so its message faults again inside the handler.
func FaultAlloc() *kernel.Image {
	return kernel.NewImage("faultalloc", func(p *kernel.Proc) {
		err := ulib.SetPgfaultHandler(p, "faultalloc.handler", func(p *kernel.Proc, utf *kernel.UTrapframe) {
			va := utf.FaultVA
			ulib.Printf(p, "fault %x\n", va)
			if err := ulib.PageAlloc(p, 0, mem.RoundDown(va), mem.PteP|mem.PteU|mem.PteW); err != nil {
				panic(fmt.Sprintf("allocating at %x in page fault handler: %v", va, err))
			}
			p.Store(va, append([]byte(fmt.Sprintf("this string was faulting in at %x", va)), 0))
		})
		if err != nil {
			panic(err)
		}
		ulib.Printf(p, "%s\n", loadString(p, 0xDeadBeef, 100))
		ulib.Printf(p, "%s\n", loadString(p, 0xCafeBffe, 100))
	})
}

// DivZero divides by zero without an upcall installed.
func DivZero() *kernel.Image {
	return kernel.NewImage("divzero", func(p *kernel.Proc) {
		zero := p.LoadU32(mem.USTACKTOP - 4)
		ulib.Printf(p, "1/0 is %08x!\n", div(p, 1, zero))
	})
}

// div divides like the hardware does, raising a divide error for b == 0.
func div(p *kernel.Proc, a, b uint32) uint32 {
	if b == 0 {
		p.Trap(kernel.TDivide)
		return 0
	}
	return a / b
}

// DivTrap divides by zero with a divide error upcall installed; the handler
// reports the error and exits.
func DivTrap() *kernel.Image {
	return kernel.NewImage("divtrap", func(p *kernel.Proc) {
		ulib.Printf(p, "Let me div by zero.\n")
		err := ulib.SetUpcall(p, kernel.TDivide, "divtrap.handler", func(p *kernel.Proc, utf *kernel.UTrapframe) {
			ulib.Printf(p, "divide error caught, err %x\n", utf.Err&7)
			ulib.Exit(p)
		})
		if err != nil {
			panic(err)
		}
		zero := p.LoadU32(mem.USTACKTOP - 4)
		ulib.Printf(p, "1/0 is %08x!\n", div(p, 1, zero))
	})
}
