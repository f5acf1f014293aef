package presenter

import (
	"sync"
	"time"

	"github.com/soocke/can-bot-go/domain/robot"
)

// StateView sets the state label in the view.
type StateView interface{ SetStateLabel(string) }

// StatePresenter receives robot state transitions and updates the view.
// OnState is called from the decision loop goroutine, Tick from the UI thread.
type StatePresenter struct {
	view StateView

	mu      sync.Mutex
	latest  robot.State
	shown   bool
	pending []robot.State
}

func NewStatePresenter(view StateView) *StatePresenter {
	return &StatePresenter{view: view}
}

// OnState matches robot.StateListener. The latest queued state is reflected
// on the next Tick.
func (p *StatePresenter) OnState(_, next robot.State) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.pending = append(p.pending, next)
	p.mu.Unlock()
}

// Tick updates the view with the most recent queued state and clears the queue.
func (p *StatePresenter) Tick(now time.Time) {
	if p == nil || p.view == nil {
		return
	}
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	last := p.pending[len(p.pending)-1]
	p.pending = p.pending[:0]
	p.mu.Unlock()

	if p.shown && last == p.latest {
		return
	}
	p.latest, p.shown = last, true
	p.view.SetStateLabel("State: " + last.String())
}

// Reset shows text and forgets the last reflected state.
func (p *StatePresenter) Reset(text string) {
	if p == nil || p.view == nil {
		return
	}
	p.mu.Lock()
	p.pending = p.pending[:0]
	p.shown = false
	p.mu.Unlock()
	p.view.SetStateLabel(text)
}
