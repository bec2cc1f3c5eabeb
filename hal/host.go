package hal

import (
	"os"
	"time"
)

// Framebuffer geometry of the host machine.
const (
	FramebufferWidth  = 640
	FramebufferHeight = 400
)

type hostHAL struct {
	console *hostConsole
	fb      *hostFramebuffer
	kbd     *hostKeyboard
	t       *hostTime
	net     *NetPort
	wire    *NetPort
}

// New returns a host HAL whose time source ticks every tick.
func New(tick time.Duration) HAL {
	return newHost(tick)
}

func newHost(tick time.Duration) *hostHAL {
	cons := newHostConsole(os.Stdout)
	nic, wire := NewNetPipe()
	return &hostHAL{
		console: cons,
		fb:      newHostFramebuffer(FramebufferWidth, FramebufferHeight),
		kbd:     newHostKeyboard(cons),
		t:       newHostTime(tick),
		net:     nic,
		wire:    wire,
	}
}

func (h *hostHAL) Console() Console { return h.console }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Time() Time       { return h.t }
func (h *hostHAL) Network() Network { return h.net }
func (h *hostHAL) Wire() Network    { return h.wire }

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }
