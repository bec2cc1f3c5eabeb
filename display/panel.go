package display

import (
	"fmt"
	"image/color"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"exokern/kernel"
)

const (
	panelLineHeight = 10
	panelBaseline   = 8
)

var (
	panelBG     = color.RGBA{R: 0x10, G: 0x18, B: 0x28, A: 0xFF}
	panelFG     = color.RGBA{R: 0xC0, G: 0xC8, B: 0xD0, A: 0xFF}
	panelHeadFG = color.RGBA{R: 0xFF, G: 0xD0, B: 0x40, A: 0xFF}
	statusFG    = map[kernel.Status]color.RGBA{
		kernel.Running:     {R: 0x40, G: 0xFF, B: 0x60, A: 0xFF},
		kernel.Runnable:    {R: 0xC0, G: 0xC8, B: 0xD0, A: 0xFF},
		kernel.NotRunnable: {R: 0x80, G: 0x88, B: 0xA0, A: 0xFF},
		kernel.Dying:       {R: 0xFF, G: 0x50, B: 0x40, A: 0xFF},
	}
)

// Panel draws a live table of environments.
type Panel struct {
	d *region
}

func newPanel(d *region) *Panel { return &Panel{d: d} }

// Render redraws the panel from a snapshot of the kernel.
func (p *Panel) Render(stats kernel.Stats, envs []kernel.EnvInfo) {
	w, h := p.d.Size()
	_ = p.d.FillRectangle(0, 0, w, h, panelBG)

	y := int16(0)
	line := func(s string, c color.RGBA) bool {
		if y+panelLineHeight > h {
			return false
		}
		tinyfont.WriteLine(p.d, &proggy.TinySZ8pt7b, 2, y+panelBaseline, s, c)
		y += panelLineHeight
		return true
	}

	line(fmt.Sprintf("t=%dms cpus %d/%d", stats.Uptime.Milliseconds(), stats.CPUs-stats.HaltedCPUs, stats.CPUs), panelHeadFG)
	line(fmt.Sprintf("pages %d/%d envs %d", stats.PhysPages-stats.FreePages, stats.PhysPages, len(envs)), panelHeadFG)
	line("", panelFG)
	for _, e := range envs {
		if !line(envLine(e), statusFG[e.Status]) {
			line("...", panelFG)
			return
		}
	}
}

func envLine(e kernel.EnvInfo) string {
	where := statusAbbrev(e.Status)
	if e.CPU >= 0 {
		where = fmt.Sprintf("cpu%d", e.CPU)
	}
	return fmt.Sprintf("%08x %-4s %.10s", uint32(e.ID), where, e.Image)
}

func statusAbbrev(s kernel.Status) string {
	switch s {
	case kernel.Running:
		return "run"
	case kernel.Runnable:
		return "rdy"
	case kernel.NotRunnable:
		return "blk"
	case kernel.Dying:
		return "die"
	default:
		return "?"
	}
}
