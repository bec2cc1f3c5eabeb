package kernel

import "exokern/mem"

// sysIPCTrySend delivers value, and the page at srcva when srcva is below
// UTOP, to a receiving environment. Any environment may send to any other.
// A page is only transferred if the receiver asked for one; it is checked
// either way.
func (k *Kernel) sysIPCTrySend(cur *Env, id EnvID, value, srcva uint32, perm mem.PTE) int32 {
	e, err := k.envid2env(cur, id, false)
	if err != 0 {
		return errno(err)
	}
	if !e.ipc.recving || e.status != NotRunnable {
		return errno(ErrIPCNotRecv)
	}

	var sent mem.PTE
	if srcva < mem.UTOP {
		if !checkPerm(perm) || !mem.Aligned(srcva) {
			return errno(ErrInval)
		}
		pte, ok := cur.as.Lookup(srcva)
		if !ok {
			return errno(ErrInval)
		}
		if perm&mem.PteW != 0 && pte&mem.PteW == 0 {
			return errno(ErrInval)
		}
		if e.ipc.dstva < mem.UTOP {
			if err := e.as.Insert(pte.PPN(), e.ipc.dstva, perm); err != nil {
				return errno(ErrNoMem)
			}
			sent = perm
		}
	}

	e.ipc = ipcState{value: value, from: cur.id, perm: sent}
	e.tf.Regs.EAX = 0
	e.status = Runnable
	return 0
}

// sysIPCRecv blocks cur until a message arrives. A page sent along is
// mapped at dstva if dstva is below UTOP.
func (k *Kernel) sysIPCRecv(c *CPU, cur *Env, dstva uint32) int32 {
	if dstva < mem.UTOP && !mem.Aligned(dstva) {
		return errno(ErrInval)
	}
	cur.ipc.recving = true
	cur.ipc.dstva = dstva
	cur.status = NotRunnable
	k.yield(c)
	return 0
}

// IPCResult is what the last completed receive delivered.
type IPCResult struct {
	Value uint32
	From  EnvID
	Perm  mem.PTE
}

// IPCResult returns the environment's last received message, the values
// user code reads from its Env structure.
func (p *Proc) IPCResult() IPCResult {
	var r IPCResult
	p.peek(func(e *Env) {
		r = IPCResult{Value: e.ipc.value, From: e.ipc.from, Perm: e.ipc.perm}
	})
	return r
}
