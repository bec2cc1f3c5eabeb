package user

import (
	"exokern/kernel"
	"exokern/ulib"
)

const pingpongRounds = 10

// PingPong forks a child and bounces a counter between the two over IPC
// until it reaches pingpongRounds.
func PingPong() *kernel.Image {
	img := kernel.NewImage("pingpong", func(p *kernel.Proc) {
		id, err := ulib.Fork(p, addr(p, "child"))
		if err != nil {
			panic(err)
		}
		ulib.Printf(p, "send 0 from %08x to %08x\n", uint32(ulib.Getenvid(p)), uint32(id))
		if err := ulib.IPCSend(p, id, 0, ulib.NoPage, 0); err != nil {
			panic(err)
		}
		pingpong(p)
	})
	img.Entry("child", pingpong)
	return img
}

func pingpong(p *kernel.Proc) {
	self := uint32(ulib.Getenvid(p))
	for {
		v, from, _, err := ulib.IPCRecv(p, ulib.NoPage)
		if err != nil {
			panic(err)
		}
		ulib.Printf(p, "%08x got %d from %08x\n", self, v, uint32(from))
		if v == pingpongRounds {
			return
		}
		v++
		if err := ulib.IPCSend(p, from, v, ulib.NoPage, 0); err != nil {
			panic(err)
		}
		if v == pingpongRounds {
			return
		}
	}
}
