package display

import (
	"bytes"
	"sync"

	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"
)

// maxPending bounds console output buffered between flushes. Older output
// is dropped first.
const maxPending = 16 << 10

// Console draws console output on a VT100-style terminal. Write may be
// called from any goroutine; output reaches the screen on Flush.
type Console struct {
	mu      sync.Mutex
	pending []byte

	d    *region
	term *tinyterm.Terminal
}

func newConsole(d *region) *Console {
	c := &Console{d: d}
	c.reset()
	return c
}

func (c *Console) reset() {
	c.term = tinyterm.NewTerminal(c.d)
	c.term.Configure(&tinyterm.Config{
		Font:              &proggy.TinySZ8pt7b,
		FontHeight:        10,
		FontOffset:        6,
		UseSoftwareScroll: true,
	})
}

func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, p...)
	if over := len(c.pending) - maxPending; over > 0 {
		c.pending = append(c.pending[:0], c.pending[over:]...)
	}
	return len(p), nil
}

// Flush draws pending output and reports whether there was any.
func (c *Console) Flush() bool {
	c.mu.Lock()
	out := c.pending
	c.pending = nil
	c.mu.Unlock()
	if len(out) == 0 {
		return false
	}
	// The terminal has no backspace; move the cursor back instead.
	out = bytes.ReplaceAll(out, []byte{'\b'}, []byte("\x1b[D"))
	_, _ = c.term.Write(out)
	c.term.Display()
	return true
}
