// Package display renders the machine's screen: console output on the left
// and a live environment table on the right.
package display

import (
	"exokern/hal"
	"exokern/kernel"
)

// panelWidth is the width in pixels of the environment panel.
const panelWidth = 200

// panelEvery is how many steps pass between panel redraws.
const panelEvery = 6

// Screen owns the framebuffer.
type Screen struct {
	fb      hal.Framebuffer
	console *Console
	panel   *Panel
	steps   int
}

// New lays the screen out on fb.
func New(fb hal.Framebuffer) *Screen {
	w, h := fb.Width(), fb.Height()
	pw := panelWidth
	if pw > w/2 {
		pw = w / 2
	}
	fb.ClearRGB(0, 0, 0)
	return &Screen{
		fb:      fb,
		console: newConsole(newRegion(fb, 0, 0, w-pw, h)),
		panel:   newPanel(newRegion(fb, w-pw, 0, pw, h)),
	}
}

// Console is where console output should be written.
func (s *Screen) Console() *Console { return s.console }

// Snapshotter is the part of the kernel the panel reads.
type Snapshotter interface {
	Stats() kernel.Stats
	Envs() []kernel.EnvInfo
}

// Step draws pending console output, refreshes the panel every few steps
// and presents the framebuffer.
func (s *Screen) Step(k Snapshotter) error {
	dirty := s.console.Flush()
	if k != nil && s.steps%panelEvery == 0 {
		s.panel.Render(k.Stats(), k.Envs())
		dirty = true
	}
	s.steps++
	if !dirty {
		return nil
	}
	return s.fb.Present()
}
