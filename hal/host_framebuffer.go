package hal

import (
	"bytes"
	"sync"
)

// hostFramebuffer is double buffered. The screen draws into the back buffer
// from the machine's step; Present publishes the rows that changed to the
// front buffer, which the window reads on its own goroutine.
type hostFramebuffer struct {
	width  int
	height int
	stride int
	back   []byte

	mu    sync.Mutex
	front []byte
	gen   uint64 // bumped by every Present that changed a row
	rows  int    // rows the last Present published
}

func newHostFramebuffer(width, height int) *hostFramebuffer {
	stride := width * 2
	return &hostFramebuffer{
		width:  width,
		height: height,
		stride: stride,
		back:   make([]byte, stride*height),
		front:  make([]byte, stride*height),
	}
}

func (f *hostFramebuffer) Width() int          { return f.width }
func (f *hostFramebuffer) Height() int         { return f.height }
func (f *hostFramebuffer) Format() PixelFormat { return PixelFormatRGB565 }
func (f *hostFramebuffer) StrideBytes() int    { return f.stride }
func (f *hostFramebuffer) Buffer() []byte      { return f.back }

func (f *hostFramebuffer) ClearRGB(r, g, b uint8) {
	pixel := RGB565(r, g, b)
	lo, hi := byte(pixel), byte(pixel>>8)
	for i := 0; i < len(f.back); i += 2 {
		f.back[i] = lo
		f.back[i+1] = hi
	}
}

// Present copies every back buffer row that differs from the front buffer.
func (f *hostFramebuffer) Present() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for off := 0; off < len(f.back); off += f.stride {
		b, fr := f.back[off:off+f.stride], f.front[off:off+f.stride]
		if !bytes.Equal(b, fr) {
			copy(fr, b)
			n++
		}
	}
	f.rows = n
	if n > 0 {
		f.gen++
	}
	return nil
}

// frontRGB565 copies the presented frame into dst unless it is still the
// generation seen. It returns the generation dst now holds.
func (f *hostFramebuffer) frontRGB565(dst []byte, seen uint64) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen == seen {
		return seen, false
	}
	copy(dst, f.front)
	return f.gen, true
}
