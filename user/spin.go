package user

import (
	"exokern/kernel"
	"exokern/mem"
	"exokern/ulib"
)

// Spin forks a child that never yields, lets it run for a while and then
// destroys it. The child only gives up the CPU to the timer.
func Spin() *kernel.Image {
	img := kernel.NewImage("spin", func(p *kernel.Proc) {
		ulib.Printf(p, "I am the parent.  Forking the child...\n")
		id, err := ulib.Fork(p, addr(p, "child"))
		if err != nil {
			panic(err)
		}
		ulib.Printf(p, "I am the parent.  Running the child...\n")
		for i := 0; i < 8; i++ {
			ulib.Yield(p)
		}
		ulib.Printf(p, "I am the parent.  Killing the child...\n")
		if err := ulib.EnvDestroy(p, id); err != nil {
			panic(err)
		}
	})
	img.Entry("child", func(p *kernel.Proc) {
		ulib.Printf(p, "I am the child.  Spinning...\n")
		for {
			p.LoadU32(mem.USTACKTOP - 4)
		}
	})
	return img
}
