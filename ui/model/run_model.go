package model

import (
	"sync/atomic"
)

// RunModel tracks whether the decision loop is running. The zero value is
// stopped and usable. The loop goroutine and UI ticks both touch it.
type RunModel struct{ running atomic.Bool }

// Running reports whether a run is in progress.
func (m *RunModel) Running() bool {
	if m == nil {
		return false
	}
	return m.running.Load()
}

// SetRunning stores the running flag and reports whether it changed.
func (m *RunModel) SetRunning(b bool) bool {
	if m == nil {
		return false
	}
	return m.running.Swap(b) != b
}
