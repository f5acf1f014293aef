package sim

import (
	"errors"
	"fmt"
	"sync"
)

// Segment is the byte-addressable region shared with the simulator.
type Segment interface {
	Load(off int) byte
	Store(off int, b byte)
	// ReadAt copies len(p) bytes starting at off.
	ReadAt(p []byte, off int64) (int, error)
	Len() int
	Zero()
	Close() error
}

var errOutOfRange = errors.New("segment read out of range")

// bytesSegment wraps a plain slice. The mmap backend and tests share it.
type bytesSegment struct {
	mem     []byte
	release func() error
}

func (s *bytesSegment) Load(off int) byte     { return s.mem[off] }
func (s *bytesSegment) Store(off int, b byte) { s.mem[off] = b }
func (s *bytesSegment) Len() int              { return len(s.mem) }

func (s *bytesSegment) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off)+len(p) > len(s.mem) {
		return 0, fmt.Errorf("%w: %d+%d > %d", errOutOfRange, off, len(p), len(s.mem))
	}
	return copy(p, s.mem[off:]), nil
}

func (s *bytesSegment) Zero() { clear(s.mem) }

func (s *bytesSegment) Close() error {
	if s.release == nil {
		return nil
	}
	err := s.release()
	s.release = nil
	return err
}

// MemSegment is an in-process segment guarded by a mutex, used to pair the
// client with a simulator goroutine.
type MemSegment struct {
	mu  sync.Mutex
	seg bytesSegment
}

// NewMemSegment allocates a zeroed segment of n bytes.
func NewMemSegment(n int) *MemSegment { return &MemSegment{seg: bytesSegment{mem: make([]byte, n)}} }

func (m *MemSegment) Load(off int) byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seg.Load(off)
}

func (m *MemSegment) Store(off int, b byte) {
	m.mu.Lock()
	m.seg.Store(off, b)
	m.mu.Unlock()
}

func (m *MemSegment) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seg.ReadAt(p, off)
}

// WriteAt copies p into the segment at off. Only the simulator side writes
// blocks.
func (m *MemSegment) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || int(off)+len(p) > len(m.seg.mem) {
		return 0, errOutOfRange
	}
	return copy(m.seg.mem[off:], p), nil
}

func (m *MemSegment) Len() int { return m.seg.Len() }

func (m *MemSegment) Zero() {
	m.mu.Lock()
	m.seg.Zero()
	m.mu.Unlock()
}

func (m *MemSegment) Close() error { return nil }

var (
	_ Segment = (*bytesSegment)(nil)
	_ Segment = (*MemSegment)(nil)
)
