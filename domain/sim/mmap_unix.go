//go:build unix

package sim

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OpenFile maps the whole simulator file read/write and shared. The file must
// already exist; the simulator creates it.
func OpenFile(path string) (Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open shared memory file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat shared memory file: %w", err)
	}
	size := int(info.Size())
	if size < SegmentSize {
		return nil, fmt.Errorf("shared memory file %s is %d bytes, need %d", path, size, SegmentSize)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &bytesSegment{mem: mem, release: func() error { return unix.Munmap(mem) }}, nil
}
