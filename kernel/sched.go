package kernel

// CPU is one simulated processor. All fields are guarded by the kernel lock.
type CPU struct {
	id      int
	cur     *Env // last environment run here; the scheduler cursor
	halted  bool
	preempt bool // timer fired while cur was running
}

func (c *CPU) ID() int { return c.id }

// yield picks the next runnable environment, scanning the table circularly
// from the slot after c's current one, and runs it on c. With nothing
// runnable the current environment keeps the CPU if it is still running;
// otherwise c halts.
func (k *Kernel) yield(c *CPU) {
	n := len(k.envs)
	start := 0
	if c.cur != nil {
		start = k.envx(c.cur.id) + 1
	}
	for i := 0; i < n; i++ {
		e := &k.envs[(start+i)%n]
		if e.status == Runnable {
			k.run(c, e)
			return
		}
	}
	if cur := c.cur; cur != nil && cur.runningOn(c) {
		k.run(c, cur)
		return
	}
	k.halt(c)
}

// run makes e the environment running on c and hands it the CPU.
func (k *Kernel) run(c *CPU, e *Env) {
	c.halted = false
	if e.runningOn(c) {
		return
	}
	if prev := c.cur; prev != nil && prev.runningOn(c) {
		prev.status = Runnable
	}
	c.cur = e
	c.preempt = false
	e.status = Running
	e.cpu = c
	e.runs++

	if e.th == nil {
		e.th = newThread()
	}
	if !e.th.started {
		e.th.started = true
		k.start(e)
		return
	}
	e.th.ring()
}

// halt parks c until its next interrupt. When no user environment is left
// in any live state the kernel is finished.
func (k *Kernel) halt(c *CPU) {
	alive := false
	for i := range k.envs {
		e := &k.envs[i]
		if e.typ != User {
			continue
		}
		switch e.status {
		case Runnable, Running, NotRunnable, Dying:
			alive = true
		}
		if alive {
			break
		}
	}
	if !alive {
		k.log.Info().Int("cpu", c.id).Msg("no runnable environments in the system")
		k.finish()
	}
	c.cur = nil
	c.halted = true
	c.preempt = false
}
