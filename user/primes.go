package user

import (
	"exokern/kernel"
	"exokern/ulib"
)

// primesLimit is the last candidate the generator feeds into the pipeline.
const primesLimit = 100

// Primes runs a concurrent prime sieve: a chain of forked filters, each
// passing on the numbers its prime does not divide. The generator ends the
// run by sending 0 down the chain.
func Primes() *kernel.Image {
	img := kernel.NewImage("primes", func(p *kernel.Proc) {
		id, err := ulib.Fork(p, addr(p, "filter"))
		if err != nil {
			panic(err)
		}
		for i := uint32(2); i <= primesLimit; i++ {
			send(p, id, i)
		}
		send(p, id, 0)
	})
	img.Entry("filter", primeFilter)
	return img
}

func primeFilter(p *kernel.Proc) {
	prime := recv(p)
	if prime == 0 {
		return
	}
	ulib.Printf(p, "%d ", prime)

	var next kernel.EnvID
	for {
		i := recv(p)
		if i != 0 && i%prime == 0 {
			continue
		}
		if next == 0 {
			if i == 0 {
				ulib.Printf(p, "\n")
				return
			}
			id, err := ulib.Fork(p, addr(p, "filter"))
			if err != nil {
				panic(err)
			}
			next = id
		}
		send(p, next, i)
		if i == 0 {
			return
		}
	}
}

func send(p *kernel.Proc, to kernel.EnvID, v uint32) {
	if err := ulib.IPCSend(p, to, v, ulib.NoPage, 0); err != nil {
		panic(err)
	}
}

func recv(p *kernel.Proc) uint32 {
	v, _, _, err := ulib.IPCRecv(p, ulib.NoPage)
	if err != nil {
		panic(err)
	}
	return v
}
