package kernel

import (
	"exokern/mem"
)

// System call numbers.
const (
	SysCputs uint32 = iota
	SysCgetc
	SysGetenvid
	SysEnvDestroy
	SysPageAlloc
	SysPageMap
	SysPageUnmap
	SysExofork
	SysEnvSetStatus
	SysEnvSetTrapframe
	SysEnvSetPgfaultUpcall
	SysYield
	SysIPCTrySend
	SysIPCRecv
	SysTimeMsec
	SysEnvSetUpcall
	SysSendPacket
	SysRecvPacket
	NSyscalls
)

// dispatch runs system call no for cur, the environment running on c, and
// returns its result: zero or a positive value on success, a negated Err on
// failure. Calls that destroy or block cur return with cur no longer running
// on c; their result is not delivered.
func (k *Kernel) dispatch(c *CPU, cur *Env, no, a1, a2, a3, a4, a5 uint32) int32 {
	switch no {
	case SysCputs:
		return k.sysCputs(c, cur, a1, a2)
	case SysCgetc:
		return int32(k.console.Getc())
	case SysGetenvid:
		return int32(cur.id)
	case SysEnvDestroy:
		return k.sysEnvDestroy(c, cur, EnvID(a1))
	case SysPageAlloc:
		return k.sysPageAlloc(cur, EnvID(a1), a2, mem.PTE(a3))
	case SysPageMap:
		return k.sysPageMap(cur, EnvID(a1), a2, EnvID(a3), a4, mem.PTE(a5))
	case SysPageUnmap:
		return k.sysPageUnmap(cur, EnvID(a1), a2)
	case SysExofork:
		return k.sysExofork(cur)
	case SysEnvSetStatus:
		return k.sysEnvSetStatus(cur, EnvID(a1), Status(a2))
	case SysEnvSetTrapframe:
		return k.sysEnvSetTrapframe(c, cur, EnvID(a1), a2)
	case SysEnvSetPgfaultUpcall:
		return k.sysEnvSetUpcall(cur, EnvID(a1), TPgflt, a2)
	case SysYield:
		k.yield(c)
		return 0
	case SysIPCTrySend:
		return k.sysIPCTrySend(cur, EnvID(a1), a2, a3, mem.PTE(a4))
	case SysIPCRecv:
		return k.sysIPCRecv(c, cur, a1)
	case SysTimeMsec:
		return int32(k.ticks * uint64(k.tick.Milliseconds()))
	case SysEnvSetUpcall:
		return k.sysEnvSetUpcall(cur, EnvID(a1), a2, a3)
	case SysSendPacket:
		return k.sysSendPacket(cur, a1, a2)
	case SysRecvPacket:
		return k.sysRecvPacket(c, cur, a1, a2, a3 != 0)
	default:
		return errno(ErrInval)
	}
}

func (k *Kernel) sysCputs(c *CPU, cur *Env, va, n uint32) int32 {
	if !k.userMemAssert(c, cur, va, n, mem.PteU) {
		return 0
	}
	buf := make([]byte, n)
	if err := cur.as.CopyIn(buf, va); err != nil {
		panic(err)
	}
	_, _ = k.console.Write(buf)
	return 0
}

func (k *Kernel) sysEnvDestroy(c *CPU, cur *Env, id EnvID) int32 {
	e, err := k.envid2env(cur, id, true)
	if err != 0 {
		return errno(err)
	}
	if e == cur {
		k.log.Info().Stringer("env", cur.id).Msg("exiting gracefully")
	} else {
		k.log.Info().Stringer("env", cur.id).Stringer("target", e.id).Msg("destroying")
	}
	k.destroy(c, e)
	return 0
}

// sysExofork creates a child with the caller's registers, except that the
// child sees 0 as the result of this call. The child starts NotRunnable with
// an empty user address space.
func (k *Kernel) sysExofork(cur *Env) int32 {
	e, err := k.alloc(cur.id)
	if err != 0 {
		return errno(err)
	}
	e.tf = cur.tf
	e.tf.Regs.EAX = 0
	e.image = cur.image
	e.typ = cur.typ
	return int32(e.id)
}

func (k *Kernel) sysEnvSetStatus(cur *Env, id EnvID, status Status) int32 {
	if status != Runnable && status != NotRunnable {
		return errno(ErrInval)
	}
	e, err := k.envid2env(cur, id, true)
	if err != 0 {
		return errno(err)
	}
	if e.status == Dying {
		return errno(ErrBadEnv)
	}
	if c := e.cpu; c != nil && c.cur == e && status == Runnable {
		// Still on its CPU: it keeps running.
		status = Running
	}
	if status != NotRunnable {
		// Released from ipc_recv or a blocking recv_packet.
		e.ipc.recving = false
		e.ipc.dstva = mem.UTOP
		e.netWaiting = false
	}
	e.status = status
	return 0
}

// sysEnvSetTrapframe replaces e's saved registers with the Trapframe at va
// in the caller's address space. The frame is forced to user privilege
// with interrupts enabled. It takes effect when e is next started.
func (k *Kernel) sysEnvSetTrapframe(c *CPU, cur *Env, id EnvID, va uint32) int32 {
	e, err := k.envid2env(cur, id, true)
	if err != 0 {
		return errno(err)
	}
	if !k.userMemAssert(c, cur, va, TrapframeSize, mem.PteU) {
		return 0
	}
	raw := make([]byte, TrapframeSize)
	if err := cur.as.CopyIn(raw, va); err != nil {
		panic(err)
	}
	var tf Trapframe
	if err := Unmarshal(raw, &tf); err != nil {
		panic(err)
	}
	tf.CS |= 3
	tf.DS |= 3
	tf.ES |= 3
	tf.SS |= 3
	tf.EFlags |= flIF
	tf.EFlags &^= flIOPL
	e.tf = tf
	return 0
}

// sysEnvSetUpcall records the user entry point for exception kind trapno.
// Kinds outside the upcall table are ignored.
func (k *Kernel) sysEnvSetUpcall(cur *Env, id EnvID, trapno, fn uint32) int32 {
	e, err := k.envid2env(cur, id, true)
	if err != 0 {
		return errno(err)
	}
	if trapno < NumUpcalls {
		e.upcalls[trapno] = fn
	}
	return 0
}

func checkPerm(perm mem.PTE) bool {
	return perm.Has(mem.PteU|mem.PteP) && perm&^mem.PteSyscall == 0
}

func checkVA(va uint32) bool {
	return va < mem.UTOP && mem.Aligned(va)
}

// sysPageAlloc maps a zeroed page at va in id's address space with perm,
// replacing any existing mapping.
func (k *Kernel) sysPageAlloc(cur *Env, id EnvID, va uint32, perm mem.PTE) int32 {
	e, err := k.envid2env(cur, id, true)
	if err != 0 {
		return errno(err)
	}
	if !checkVA(va) || !checkPerm(perm) {
		return errno(ErrInval)
	}
	pp, aerr := k.phys.Alloc(true)
	if aerr != nil {
		return errno(ErrNoMem)
	}
	if err := e.as.Insert(pp, va, perm); err != nil {
		k.phys.Free(pp)
		return errno(ErrNoMem)
	}
	return 0
}

// sysPageMap maps the page at srcva in srcid's address space at dstva in
// dstid's. Write access is only granted if the source mapping has it.
func (k *Kernel) sysPageMap(cur *Env, srcid EnvID, srcva uint32, dstid EnvID, dstva uint32, perm mem.PTE) int32 {
	src, err := k.envid2env(cur, srcid, true)
	if err != 0 {
		return errno(err)
	}
	dst, err := k.envid2env(cur, dstid, true)
	if err != 0 {
		return errno(err)
	}
	if !checkVA(srcva) || !checkVA(dstva) || !checkPerm(perm) {
		return errno(ErrInval)
	}
	pte, ok := src.as.Lookup(srcva)
	if !ok {
		return errno(ErrInval)
	}
	if perm&mem.PteW != 0 && pte&mem.PteW == 0 {
		return errno(ErrInval)
	}
	if err := dst.as.Insert(pte.PPN(), dstva, perm); err != nil {
		return errno(ErrNoMem)
	}
	return 0
}

func (k *Kernel) sysPageUnmap(cur *Env, id EnvID, va uint32) int32 {
	e, err := k.envid2env(cur, id, true)
	if err != 0 {
		return errno(err)
	}
	if !checkVA(va) {
		return errno(ErrInval)
	}
	e.as.Remove(va)
	return 0
}
