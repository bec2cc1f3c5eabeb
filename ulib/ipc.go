package ulib

import (
	"errors"

	"exokern/kernel"
	"exokern/mem"
)

// NoPage passed as an address to IPCSend or IPCRecv means no page moves.
const NoPage = mem.UTOP

// IPCRecv waits for a message. A page sent along is mapped at dstva unless
// dstva is NoPage. It returns the value, the sender and the permissions of
// the transferred page (zero if none was transferred).
func IPCRecv(p *kernel.Proc, dstva uint32) (uint32, kernel.EnvID, mem.PTE, error) {
	if err := kernel.Errno(syscall(p, kernel.SysIPCRecv, dstva)); err != nil {
		return 0, 0, 0, err
	}
	r := p.IPCResult()
	return r.Value, r.From, r.Perm, nil
}

// IPCSend sends val, and the page at srcva with perm unless srcva is NoPage,
// to env to. It keeps trying, yielding between attempts, until to is
// receiving.
func IPCSend(p *kernel.Proc, to kernel.EnvID, val, srcva uint32, perm mem.PTE) error {
	for {
		err := kernel.Errno(syscall(p, kernel.SysIPCTrySend, uint32(to), val, srcva, uint32(perm)))
		if !errors.Is(err, kernel.ErrIPCNotRecv) {
			return err
		}
		Yield(p)
	}
}
