//go:build cgo

package hal

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// hostKeyboard turns window key presses into console input.
type hostKeyboard struct {
	cons *hostConsole
	buf  []rune
}

func newHostKeyboard(cons *hostConsole) *hostKeyboard {
	return &hostKeyboard{cons: cons}
}

var keyBytes = []struct {
	key ebiten.Key
	b   byte
}{
	{ebiten.KeyEnter, '\n'},
	{ebiten.KeyNumpadEnter, '\n'},
	{ebiten.KeyBackspace, '\b'},
	{ebiten.KeyTab, '\t'},
	{ebiten.KeyEscape, 0x1b},
}

func (k *hostKeyboard) poll() {
	ctrl := ebiten.IsKeyPressed(ebiten.KeyControlLeft) || ebiten.IsKeyPressed(ebiten.KeyControlRight)
	if ctrl {
		for _, key := range inpututil.AppendJustPressedKeys(nil) {
			if key >= ebiten.KeyA && key <= ebiten.KeyZ {
				k.cons.feed(byte(key-ebiten.KeyA) + 1)
			}
		}
		return
	}

	k.buf = ebiten.AppendInputChars(k.buf[:0])
	for _, r := range k.buf {
		if r < 0x80 {
			k.cons.feed(byte(r))
		}
	}
	for _, kb := range keyBytes {
		if inpututil.IsKeyJustPressed(kb.key) {
			k.cons.feed(kb.b)
		}
	}
}
