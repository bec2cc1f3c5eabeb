package display

import (
	"image/color"

	"tinygo.org/x/drivers"

	"exokern/hal"
)

// region is a rectangle of the framebuffer presented as a display of its
// own. Coordinates are relative to the rectangle and drawing is clipped to
// it.
type region struct {
	fb         hal.Framebuffer
	x, y, w, h int
}

func newRegion(fb hal.Framebuffer, x, y, w, h int) *region {
	return &region{fb: fb, x: x, y: y, w: w, h: h}
}

func (d *region) Size() (x, y int16) { return int16(d.w), int16(d.h) }

func (d *region) SetPixel(x, y int16, c color.RGBA) {
	buf := d.buffer()
	if buf == nil {
		return
	}
	ix, iy := int(x), int(y)
	if ix < 0 || ix >= d.w || iy < 0 || iy >= d.h {
		return
	}
	pixel := hal.RGB565(c.R, c.G, c.B)
	off := (d.y+iy)*d.fb.StrideBytes() + (d.x+ix)*2
	if off < 0 || off+1 >= len(buf) {
		return
	}
	buf[off] = byte(pixel)
	buf[off+1] = byte(pixel >> 8)
}

// Display is a no-op; the screen presents the whole framebuffer at once.
func (d *region) Display() error { return nil }

func (d *region) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	buf := d.buffer()
	if buf == nil {
		return nil
	}
	x0 := clampInt(int(x), 0, d.w)
	y0 := clampInt(int(y), 0, d.h)
	x1 := clampInt(int(x)+int(width), 0, d.w)
	y1 := clampInt(int(y)+int(height), 0, d.h)
	if x0 >= x1 || y0 >= y1 {
		return nil
	}

	pixel := hal.RGB565(c.R, c.G, c.B)
	lo, hi := byte(pixel), byte(pixel>>8)
	stride := d.fb.StrideBytes()
	for py := y0; py < y1; py++ {
		row := (d.y+py)*stride + d.x*2
		for px := x0; px < x1; px++ {
			off := row + px*2
			if off < 0 || off+1 >= len(buf) {
				continue
			}
			buf[off] = lo
			buf[off+1] = hi
		}
	}
	return nil
}

// ScrollUp moves the region's content up by lines pixel rows and clears the
// rows exposed at the bottom.
func (d *region) ScrollUp(lines int16, bg color.RGBA) error {
	buf := d.buffer()
	if buf == nil || lines <= 0 {
		return nil
	}
	n := int(lines)
	if n >= d.h {
		return d.FillRectangle(0, 0, int16(d.w), int16(d.h), bg)
	}
	stride := d.fb.StrideBytes()
	rowBytes := d.w * 2
	for py := 0; py < d.h-n; py++ {
		dst := (d.y+py)*stride + d.x*2
		src := (d.y+py+n)*stride + d.x*2
		if src+rowBytes > len(buf) {
			break
		}
		copy(buf[dst:dst+rowBytes], buf[src:src+rowBytes])
	}
	return d.FillRectangle(0, int16(d.h-n), int16(d.w), int16(n), bg)
}

func (d *region) SetScroll(line int16) {
	_ = line
}

func (d *region) SetRotation(rotation drivers.Rotation) error {
	_ = rotation
	return nil
}

func (d *region) buffer() []byte {
	if d.fb == nil || d.fb.Format() != hal.PixelFormatRGB565 {
		return nil
	}
	return d.fb.Buffer()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
