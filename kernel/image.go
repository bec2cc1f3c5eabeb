package kernel

import (
	"fmt"
	"sync"

	"exokern/mem"
)

// Entry is user code started at a text address.
type Entry func(p *Proc)

// Handler is user code invoked with a fault record, such as an exception upcall.
type Handler func(p *Proc, utf *UTrapframe)

// symAlign is the spacing of symbols in the text region.
const symAlign = 16

type symbol struct {
	name    string
	entry   Entry
	handler Handler
}

// Image is a program: a table of entry points and handlers, each addressed by
// its position in the text region starting at UTEXT. Environments only ever
// hold these addresses; code is resolved when a thread starts or an upcall is
// delivered.
//
// Symbols are registered by name and registering a name twice returns the
// existing address, so libraries can register their handlers lazily.
type Image struct {
	name  string
	mu    sync.Mutex
	syms  []symbol
	index map[string]int
	start uint32
}

// NewImage returns an image whose start address is the entry main.
func NewImage(name string, main Entry) *Image {
	img := &Image{name: name, index: make(map[string]int)}
	img.start = img.Entry("main", main)
	return img
}

func (img *Image) Name() string { return img.name }

// Start is the address execution begins at.
func (img *Image) Start() uint32 { return img.start }

// Entry registers fn under name and returns its text address.
func (img *Image) Entry(name string, fn Entry) uint32 {
	return img.add(symbol{name: name, entry: fn})
}

// Handler registers fn under name and returns its text address.
func (img *Image) Handler(name string, fn Handler) uint32 {
	return img.add(symbol{name: name, handler: fn})
}

func (img *Image) add(sym symbol) uint32 {
	img.mu.Lock()
	defer img.mu.Unlock()
	if i, ok := img.index[sym.name]; ok {
		return symAddr(i)
	}
	img.syms = append(img.syms, sym)
	img.index[sym.name] = len(img.syms) - 1
	return symAddr(len(img.syms) - 1)
}

// Addr returns the address registered under name.
func (img *Image) Addr(name string) (uint32, bool) {
	img.mu.Lock()
	defer img.mu.Unlock()
	i, ok := img.index[name]
	if !ok {
		return 0, false
	}
	return symAddr(i), true
}

// TextPages is the number of pages the text region occupies when loaded.
func (img *Image) TextPages() int {
	img.mu.Lock()
	n := len(img.syms)
	img.mu.Unlock()
	return int(mem.RoundUp(uint32(n*symAlign)) / mem.PGSIZE)
}

func (img *Image) lookup(addr uint32) (symbol, error) {
	if addr < mem.UTEXT || (addr-mem.UTEXT)%symAlign != 0 {
		return symbol{}, fmt.Errorf("%s: no symbol at %08x", img.name, addr)
	}
	i := int((addr - mem.UTEXT) / symAlign)
	img.mu.Lock()
	defer img.mu.Unlock()
	if i >= len(img.syms) {
		return symbol{}, fmt.Errorf("%s: no symbol at %08x", img.name, addr)
	}
	return img.syms[i], nil
}

func (img *Image) entry(addr uint32) (Entry, error) {
	sym, err := img.lookup(addr)
	if err != nil {
		return nil, err
	}
	if sym.entry == nil {
		return nil, fmt.Errorf("%s: %s at %08x is not an entry point", img.name, sym.name, addr)
	}
	return sym.entry, nil
}

// HandlerAt resolves a handler address, as a trampoline in user code does
// before calling through it.
func (img *Image) HandlerAt(addr uint32) (Handler, error) {
	sym, err := img.lookup(addr)
	if err != nil {
		return nil, err
	}
	if sym.handler == nil {
		return nil, fmt.Errorf("%s: %s at %08x is not a handler", img.name, sym.name, addr)
	}
	return sym.handler, nil
}

func symAddr(i int) uint32 { return mem.UTEXT + uint32(i)*symAlign }
