package kernel

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

var errFinished = errors.New("kernel finished")

// Run drives the CPUs from ticks until ctx is cancelled, ticks is closed or
// no user environment is left. Every CPU starts halted and is kicked once
// before the first tick.
//
// On return every remaining environment has been destroyed.
func (k *Kernel) Run(ctx context.Context, ticks <-chan uint64) error {
	g, ctx := errgroup.WithContext(ctx)

	irqs := make([]chan struct{}, len(k.cpus))
	for i, c := range k.cpus {
		irq := make(chan struct{}, 1)
		irq <- struct{}{}
		irqs[i] = irq
		c := c
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-k.done:
					return errFinished
				case <-irq:
					k.interrupt(c)
				}
			}
		})
	}

	raise := func() {
		for _, irq := range irqs {
			select {
			case irq <- struct{}{}:
			default:
			}
		}
	}

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-k.done:
				return errFinished
			case _, ok := <-ticks:
				if !ok {
					return nil
				}
				k.mu.Lock()
				k.ticks++
				k.mu.Unlock()
				raise()
			}
		}
	})

	if k.nic != nil {
		if rx := k.nic.RxReady(); rx != nil {
			g.Go(func() error {
				for {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-k.done:
						return errFinished
					case <-rx:
						k.netInterrupt()
						raise()
					}
				}
			})
		}
	}

	err := g.Wait()
	k.shutdown()
	if errors.Is(err, errFinished) {
		return nil
	}
	return err
}

// interrupt is c's timer or device interrupt: a halted CPU looks for work,
// a busy one asks its environment to give the CPU up at its next kernel entry.
func (k *Kernel) interrupt(c *CPU) {
	k.mu.Lock()
	defer k.mu.Unlock()
	switch {
	case c.halted:
		k.yield(c)
	case c.cur != nil:
		c.preempt = true
	}
}

// shutdown destroys every environment. Those still executing user code die
// at their next kernel entry.
func (k *Kernel) shutdown() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i := range k.envs {
		e := &k.envs[i]
		if e.status != Free {
			k.destroy(nil, e)
		}
	}
	k.finish()
}
