package presenter

import "time"

// Loop aggregates feature presenters and drives periodic updates.
//
// It calls Tick/ProcessFrame on the sub-presenters and invokes a
// scheduler callback. The zero value is usable (methods are nil-safe).
type Loop struct {
	Run      *RunPresenter
	Session  *SessionPresenter
	State    *StatePresenter
	Stats    *StatsPresenter
	Preview  *PreviewPresenter
	Schedule func()
}

func NewLoop(run *RunPresenter, sess *SessionPresenter, state *StatePresenter, stats *StatsPresenter, preview *PreviewPresenter, schedule func()) *Loop {
	return &Loop{Run: run, Session: sess, State: state, Stats: stats, Preview: preview, Schedule: schedule}
}

func (l *Loop) Tick() {
	if l == nil {
		return
	}
	now := time.Now()
	// Run first so a finished session resets the view before the others draw.
	if l.Run != nil {
		l.Run.Tick()
	}
	if l.State != nil {
		l.State.Tick(now)
	}
	if l.Session != nil {
		l.Session.Tick(now)
	}
	if l.Stats != nil {
		l.Stats.Tick()
	}
	if l.Preview != nil {
		l.Preview.ProcessFrame()
	}
	if l.Schedule != nil {
		l.Schedule()
	}
}
