package model

import (
	"time"
)

// SessionModel tracks the current run duration against the session limit and
// the time accumulated over every run of this process. Presenters poll
// Values() and update views.
type SessionModel struct {
	limit       time.Duration
	active      bool
	runStart    time.Time
	lastRun     time.Duration
	accumulated time.Duration
}

// NewSessionModel returns a model for runs bounded by limit.
func NewSessionModel(limit time.Duration) *SessionModel { return &SessionModel{limit: limit} }

// SetLimit changes the session limit used for Remaining.
func (m *SessionModel) SetLimit(limit time.Duration) {
	if m != nil {
		m.limit = limit
	}
}

// OnTick updates the model using the current run state and timestamp.
func (m *SessionModel) OnTick(running bool, now time.Time) {
	if m == nil {
		return
	}
	if running {
		if !m.active { // stopped -> running
			m.active = true
			m.runStart = now
			m.lastRun = 0
		}
		m.lastRun = now.Sub(m.runStart)
	} else if m.active { // running -> stopped
		m.lastRun = now.Sub(m.runStart)
		m.accumulated += m.lastRun
		m.active = false
	}
}

// Values returns the current run duration and the total accumulated duration.
// The total includes the ongoing run.
func (m *SessionModel) Values() (run, total time.Duration) {
	if m == nil {
		return 0, 0
	}
	run = m.lastRun
	total = m.accumulated
	if m.active {
		total += run
	}
	return
}

// Remaining returns how much of the session limit is left, never negative.
func (m *SessionModel) Remaining() time.Duration {
	if m == nil {
		return 0
	}
	left := m.limit - m.lastRun
	if left < 0 {
		return 0
	}
	return left
}
