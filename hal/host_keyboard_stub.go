//go:build !cgo

package hal

type hostKeyboard struct{}

func newHostKeyboard(*hostConsole) *hostKeyboard { return &hostKeyboard{} }

func (k *hostKeyboard) poll() {
	// No keyboard support without the window backend.
}
