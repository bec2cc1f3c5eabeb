package kernel

import (
	"errors"

	"exokern/mem"
)

var errNoImage = errors.New("environment has no image")

// upcall is an exception being delivered to user code: the handler address
// and the fault record already pushed on the exception stack.
type upcall struct {
	handler uint32
	utfva   uint32
}

// userAccess performs a user-mode load or store of buf at va in e's address
// space. On a violation nothing is copied and the fault is raised instead.
func (k *Kernel) userAccess(c *CPU, e *Env, va uint32, buf []byte, write bool) *upcall {
	perm := mem.PteU | mem.PteP
	if write {
		perm |= mem.PteW
	}
	end := uint64(va) + uint64(len(buf))
	for a := uint64(mem.RoundDown(va)); a < end; a += mem.PGSIZE {
		fva := uint32(a)
		if a < uint64(va) {
			fva = va
		}
		if a >= 1<<32 {
			return k.raise(c, e, TPgflt, 0, FecU)
		}
		pte, ok := e.as.Lookup(uint32(a))
		if ok && pte.Has(perm) {
			continue
		}
		errc := uint32(FecU)
		if ok {
			errc |= FecPr
		}
		if write {
			errc |= FecWr
		}
		return k.raise(c, e, TPgflt, fva, errc)
	}
	if write {
		if err := e.as.CopyOut(va, buf); err != nil {
			panic(err)
		}
	} else if err := e.as.CopyIn(buf, va); err != nil {
		panic(err)
	}
	return nil
}

// raise delivers exception trapno to e's upcall for that kind. A fault
// record is pushed on the user exception stack, below the current one when
// the environment is already running on it. Without an upcall, or with an
// exception stack the environment cannot write, e is destroyed and nil
// returned.
func (k *Kernel) raise(c *CPU, e *Env, trapno, va, errc uint32) *upcall {
	e.faults++
	var fn uint32
	if trapno < NumUpcalls {
		fn = e.upcalls[trapno]
	}
	if fn == 0 {
		k.log.Warn().
			Stringer("env", e.id).
			Uint32("trap", trapno).
			Str("va", hex(va)).
			Str("ip", hex(e.tf.EIP)).
			Msg("user fault with no upcall")
		k.destroy(c, e)
		return nil
	}

	utfva := mem.UXSTACKTOP - UTrapframeSize
	if esp := e.tf.ESP; esp >= mem.UXSTACKTOP-mem.PGSIZE && esp < mem.UXSTACKTOP {
		utfva = esp - 4 - UTrapframeSize
	}
	if !k.userMemAssert(c, e, utfva, UTrapframeSize, mem.PteW|mem.PteU) {
		return nil
	}

	utf := UTrapframe{
		FaultVA: va,
		Err:     errc,
		Regs:    e.tf.Regs,
		EIP:     e.tf.EIP,
		EFlags:  e.tf.EFlags,
		ESP:     e.tf.ESP,
	}
	if err := e.as.CopyOut(utfva, Marshal(&utf)); err != nil {
		panic(err)
	}
	e.tf.Trapno = trapno
	e.tf.Err = errc
	e.tf.ESP = utfva
	e.tf.EIP = fn
	return &upcall{handler: fn, utfva: utfva}
}

// upcall runs the handler for up on the exception stack, then restores the
// trap-time stack pointer saved in the fault record.
func (p *Proc) upcall(up *upcall) {
	h, err := p.img.HandlerAt(up.handler)
	if err != nil {
		p.enter(func(c *CPU, e *Env) {
			p.k.log.Warn().Stringer("env", e.id).Err(err).Msg("bad upcall")
			p.k.destroy(c, e)
		})
		return
	}

	raw := make([]byte, UTrapframeSize)
	p.Load(up.utfva, raw)
	var utf UTrapframe
	if err := Unmarshal(raw, &utf); err != nil {
		panic(err)
	}

	saved := p.pc
	p.pc = up.handler
	h(p, &utf)
	p.pc = saved

	p.enter(func(_ *CPU, e *Env) {
		e.tf.ESP = utf.ESP
	})
}
