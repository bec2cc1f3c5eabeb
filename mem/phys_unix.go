//go:build unix

package mem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// allocFrames backs physical memory with an anonymous private mapping so the
// frames live outside the Go heap, like RAM outside the kernel image.
func allocFrames(npages int) ([]byte, func() error, error) {
	b, err := unix.Mmap(-1, 0, npages*PGSIZE, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("phys: mmap %d pages: %w", npages, err)
	}
	return b, func() error { return unix.Munmap(b) }, nil
}
