package kernel

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"exokern/mem"
)

func TestImageSymbols(t *testing.T) {
	img := NewImage("prog", func(*Proc) {})
	require.Equal(t, uint32(mem.UTEXT), img.Start())

	h := img.Handler("h", func(*Proc, *UTrapframe) {})
	require.Equal(t, uint32(mem.UTEXT+symAlign), h)
	require.Equal(t, h, img.Handler("h", nil), "re-registering moved the symbol")

	addr, ok := img.Addr("h")
	require.True(t, ok)
	require.Equal(t, h, addr)
	_, ok = img.Addr("missing")
	require.False(t, ok)

	_, err := img.HandlerAt(h)
	require.NoError(t, err)
	_, err = img.HandlerAt(img.Start())
	require.Error(t, err, "entry resolved as handler")
	_, err = img.entry(h)
	require.Error(t, err, "handler resolved as entry")
	_, err = img.HandlerAt(h + 4)
	require.Error(t, err)
	_, err = img.HandlerAt(mem.UTEXT + 100*symAlign)
	require.Error(t, err)
	_, err = img.entry(0)
	require.Error(t, err)
}

func TestImageTextPages(t *testing.T) {
	img := NewImage("prog", func(*Proc) {})
	require.Equal(t, 1, img.TextPages())
	for i := 1; i < mem.PGSIZE/symAlign; i++ {
		img.Entry(fmt.Sprintf("sym%d", i), func(*Proc) {})
	}
	require.Equal(t, 1, img.TextPages())
	img.Entry("overflow", func(*Proc) {})
	require.Equal(t, 2, img.TextPages())
}
