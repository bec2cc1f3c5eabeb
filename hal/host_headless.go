package hal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Tick  time.Duration
	Ticks uint64
	// Stdin feeds standard input to the console.
	Stdin bool
}

// RunHeadless runs the OS without opening a window, calling the app's step
// function once per tick. It returns nil once step returns ErrStopped or
// after cfg.Ticks ticks.
func RunHeadless(ctx context.Context, newApp func(HAL) func() error, cfg HeadlessConfig) error {
	if cfg.Tick <= 0 {
		return fmt.Errorf("invalid headless tick: %v", cfg.Tick)
	}

	h := newHost(cfg.Tick)
	if cfg.Stdin {
		go h.console.readFrom(os.Stdin)
	}
	step := newApp(h)

	t := time.NewTicker(cfg.Tick)
	defer t.Stop()

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			h.t.step(1)
			if step != nil {
				if err := step(); err != nil {
					if errors.Is(err, ErrStopped) {
						return nil
					}
					return err
				}
			}
			tick++
			if cfg.Ticks > 0 && tick >= cfg.Ticks {
				return nil
			}
		}
	}
}
