package user

import (
	"exokern/kernel"
	"exokern/mem"
	"exokern/ulib"
)

const forktreeDepth = 3

// branchVA holds the forking environment's branch name as a NUL-terminated
// string; a child finds its own name there.
const branchVA = mem.UTEMP

// ForkTree forks a binary tree of environments forktreeDepth levels deep,
// each naming itself by its path from the root.
func ForkTree() *kernel.Image {
	img := kernel.NewImage("forktree", func(p *kernel.Proc) {
		if err := ulib.PageAlloc(p, 0, branchVA, mem.PteP|mem.PteU|mem.PteW); err != nil {
			panic(err)
		}
		forktree(p, "")
	})
	img.Entry("branch", func(p *kernel.Proc) {
		forktree(p, loadString(p, branchVA, forktreeDepth+1))
	})
	return img
}

func forktree(p *kernel.Proc, cur string) {
	ulib.Printf(p, "%04x: I am '%s'\n", uint32(ulib.Getenvid(p)), cur)
	forkchild(p, cur, '0')
	forkchild(p, cur, '1')
}

func forkchild(p *kernel.Proc, cur string, branch byte) {
	if len(cur) >= forktreeDepth {
		return
	}
	p.Store(branchVA, append([]byte(cur), branch, 0))
	if _, err := ulib.Fork(p, addr(p, "branch")); err != nil {
		panic(err)
	}
}

// loadString reads a NUL-terminated string of at most max bytes at va.
func loadString(p *kernel.Proc, va uint32, max int) string {
	var s []byte
	var b [1]byte
	for i := 0; i < max; i++ {
		p.Load(va+uint32(i), b[:])
		if b[0] == 0 {
			break
		}
		s = append(s, b[0])
	}
	return string(s)
}
