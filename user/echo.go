package user

import (
	"exokern/kernel"
	"exokern/ulib"
)

// Echo sends every packet it receives straight back. It runs as a system
// environment and never exits on its own.
func Echo() *kernel.Image {
	return kernel.NewImage("echo", func(p *kernel.Proc) {
		for {
			pkt, err := ulib.RecvPacket(p, true)
			if err != nil {
				panic(err)
			}
			if err := ulib.SendPacket(p, pkt); err != nil {
				panic(err)
			}
		}
	})
}
