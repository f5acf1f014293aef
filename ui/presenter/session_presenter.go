package presenter

import (
	"time"

	"github.com/soocke/can-bot-go/ui/model"
)

// RunningModel reports whether a run is in progress.
type RunningModel interface{ Running() bool }

// SessionView displays the run duration, the accumulated total and the time
// left in the session.
type SessionView interface {
	SetSession(run, total, remaining time.Duration)
}

// SessionPresenter formats durations from the model to the view.
type SessionPresenter struct {
	sess *model.SessionModel
	run  RunningModel
	view SessionView
}

// NewSessionPresenter returns a new SessionPresenter.
func NewSessionPresenter(sess *model.SessionModel, run RunningModel, view SessionView) *SessionPresenter {
	return &SessionPresenter{sess: sess, run: run, view: view}
}

// Tick advances the session model and pushes values to the view.
func (p *SessionPresenter) Tick(now time.Time) {
	if p == nil || p.sess == nil || p.run == nil || p.view == nil {
		return
	}
	p.sess.OnTick(p.run.Running(), now)
	r, t := p.sess.Values()
	p.view.SetSession(r, t, p.sess.Remaining())
}
