package timeutil

import (
	"fmt"
	"time"
)

// Stopwatch measures elapsed time since its last Start. A stopped stopwatch
// reports zero elapsed time. The zero value uses the real clock.
type Stopwatch struct {
	clock   Clock
	started time.Time
	running bool
}

// NewStopwatch returns a stopped stopwatch driven by clock.
func NewStopwatch(clock Clock) *Stopwatch {
	return &Stopwatch{clock: clock}
}

func (s *Stopwatch) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

// Start (re)starts the stopwatch from now.
func (s *Stopwatch) Start() *Stopwatch {
	s.started = s.now()
	s.running = true
	return s
}

// Reset stops the stopwatch.
func (s *Stopwatch) Reset() {
	s.running = false
	s.started = time.Time{}
}

// Running reports whether Start was called since the last Reset.
func (s *Stopwatch) Running() bool { return s.running }

// Elapsed returns the time since Start, or zero when stopped.
func (s *Stopwatch) Elapsed() time.Duration {
	if !s.running {
		return 0
	}
	return s.now().Sub(s.started)
}

// Seconds formats the seconds part of the elapsed time, e.g. "7.25".
func (s *Stopwatch) Seconds() string {
	if !s.running {
		return "Not set"
	}
	sec := s.Elapsed().Seconds()
	whole := int(sec) / 60 * 60
	return fmt.Sprintf("%.2f", sec-float64(whole))
}

// Full formats the elapsed time as minutes and seconds, e.g. "4m 12s".
func (s *Stopwatch) Full() string {
	if !s.running {
		return "Not set"
	}
	return FormatMinSec(s.Elapsed())
}

// FormatMinSec renders d as "<m>m <s>s".
func FormatMinSec(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}
