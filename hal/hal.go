package hal

import (
	"errors"
	"io"
)

// ErrStopped is returned by an app step function to end a run cleanly.
var ErrStopped = errors.New("hal: stopped")

// Console is the machine's character device. Writes are output; input
// arrives a byte at a time.
type Console interface {
	io.Writer
	// Getc returns the next input byte, or 0 if none is waiting.
	Getc() byte
	// Read blocks until at least one input byte is available.
	Read(p []byte) (int, error)
}

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// Time provides a base tick stream.
//
// The tick duration is set when the HAL is created.
type Time interface {
	Ticks() <-chan uint64
}

// Network is a packet device. Send fails with ErrTxFull when the transmit
// queue is full and Recv with ErrRxEmpty when nothing has arrived; RxReady
// fires after a frame arrives.
type Network interface {
	Send(pkt []byte) error
	Recv(pkt []byte) (int, error)
	RxNotifier
}

// HAL provides the only contact point between the OS and the outside world.
type HAL interface {
	Console() Console
	Display() Display
	Time() Time
	Network() Network
	// Wire is the far end of the network device's link.
	Wire() Network
}
