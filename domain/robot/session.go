package robot

import (
	"github.com/soocke/can-bot-go/timeutil"
)

// Session owns the counters and timers of one run. They change only through
// the methods below.
type Session struct {
	held       int
	dumped     int
	inCritical bool

	search *timeutil.Stopwatch
	brush  *timeutil.Stopwatch
	clock  *timeutil.Stopwatch
}

// NewSession returns a session with every timer stopped.
func NewSession(clock timeutil.Clock) *Session {
	return &Session{
		search: timeutil.NewStopwatch(clock),
		brush:  timeutil.NewStopwatch(clock),
		clock:  timeutil.NewStopwatch(clock),
	}
}

func (s *Session) Held() int        { return s.held }
func (s *Session) Dumped() int      { return s.dumped }
func (s *Session) InCritical() bool { return s.inCritical }

// TrackCritical records whether the nearest can is in the pickup region. The
// held count grows when the can leaves the region, once per visit. It reports
// whether the count changed.
func (s *Session) TrackCritical(inside bool) bool {
	if inside {
		s.inCritical = true
		return false
	}
	if !s.inCritical {
		return false
	}
	s.inCritical = false
	s.held++
	return true
}

// Deposit moves the held cans into the dumped total and returns how many moved.
func (s *Session) Deposit() int {
	n := s.held
	s.dumped += n
	s.held = 0
	return n
}
