package user

import (
	"exokern/kernel"
	"exokern/ulib"
)

func Hello() *kernel.Image {
	return kernel.NewImage("hello", func(p *kernel.Proc) {
		ulib.Printf(p, "hello, world\n")
		ulib.Printf(p, "i am environment %08x\n", uint32(ulib.Getenvid(p)))
	})
}

// YieldLoop yields a few times, reporting each time it is scheduled again.
func YieldLoop() *kernel.Image {
	return kernel.NewImage("yield", func(p *kernel.Proc) {
		id := uint32(ulib.Getenvid(p))
		ulib.Printf(p, "Hello, I am environment %08x.\n", id)
		for i := 0; i < 5; i++ {
			ulib.Yield(p)
			ulib.Printf(p, "Back in environment %08x, iteration %d.\n", id, i)
		}
		ulib.Printf(p, "All done in environment %08x.\n", id)
	})
}
