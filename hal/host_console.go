package hal

import (
	"io"
	"sync"
)

const consoleInputBuf = 512

type hostConsole struct {
	mu sync.Mutex
	w  io.Writer

	inMu   sync.Mutex
	in     chan byte
	closed bool
}

func newHostConsole(w io.Writer) *hostConsole {
	return &hostConsole{w: w, in: make(chan byte, consoleInputBuf)}
}

func (c *hostConsole) Write(p []byte) (int, error) {
	if c.w == nil {
		return len(p), nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}

func (c *hostConsole) Getc() byte {
	select {
	case b := <-c.in:
		return b
	default:
		return 0
	}
}

func (c *hostConsole) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b, ok := <-c.in
	if !ok {
		return 0, io.EOF
	}
	p[0] = b
	n := 1
	for n < len(p) {
		select {
		case b, ok := <-c.in:
			if !ok {
				return n, nil
			}
			p[n] = b
			n++
		default:
			return n, nil
		}
	}
	return n, nil
}

// feed queues input, dropping bytes while the buffer is full.
func (c *hostConsole) feed(b byte) {
	c.inMu.Lock()
	defer c.inMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.in <- b:
	default:
	}
}

// readFrom feeds everything read from r as input and closes the input
// stream at EOF.
func (c *hostConsole) readFrom(r io.Reader) {
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			c.in <- b
		}
		if err != nil {
			c.inMu.Lock()
			c.closed = true
			close(c.in)
			c.inMu.Unlock()
			return
		}
	}
}
