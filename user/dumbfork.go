package user

import (
	"exokern/kernel"
	"exokern/ulib"
)

// DumbFork copies itself eagerly and has parent and child take turns
// printing.
func DumbFork() *kernel.Image {
	img := kernel.NewImage("dumbfork", func(p *kernel.Proc) {
		if _, err := ulib.DumbFork(p, addr(p, "child")); err != nil {
			panic(err)
		}
		dumbforkLoop(p, "parent", 10)
	})
	img.Entry("child", func(p *kernel.Proc) { dumbforkLoop(p, "child", 20) })
	return img
}

func dumbforkLoop(p *kernel.Proc, who string, n int) {
	for i := 0; i < n; i++ {
		ulib.Printf(p, "%d: I am the %s!\n", i, who)
		ulib.Yield(p)
	}
}
