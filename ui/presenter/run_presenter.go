package presenter

import "log/slog"

// RunModel provides running state access.
type RunModel interface {
	Running() bool
	SetRunning(bool) bool
}

// Runner starts and stops the decision loop. Active turns false once the
// loop returns, whether it was stopped or its session ran out.
type Runner interface {
	Start() error
	Stop()
	Active() bool
}

// RunView updates UI elements affected by starting or stopping a run.
// State label updates are owned by StatePresenter.
type RunView interface {
	PreviewReset()
	ConfigEditable(bool)
}

// RunPresenter owns presentation logic for starting and stopping runs.
type RunPresenter struct {
	model  RunModel
	runner Runner
	view   RunView
	logger *slog.Logger
	onEnd  func()
}

func NewRunPresenter(model RunModel, runner Runner, view RunView, logger *slog.Logger) *RunPresenter {
	return &RunPresenter{model: model, runner: runner, view: view, logger: logger}
}

// OnEnd registers fn to be called on the UI thread after a run ends.
func (c *RunPresenter) OnEnd(fn func()) {
	if c != nil {
		c.onEnd = fn
	}
}

// Start launches a run and locks the config panel. Idempotent.
func (c *RunPresenter) Start() {
	if c == nil || c.model == nil || c.runner == nil || c.view == nil {
		return
	}
	if c.model.Running() {
		return
	}
	if err := c.runner.Start(); err != nil {
		if c.logger != nil {
			c.logger.Error("run start failed", "error", err)
		}
		return
	}
	c.model.SetRunning(true)
	c.view.ConfigEditable(false)
}

// Stop cancels the run and resets the preview. Idempotent.
func (c *RunPresenter) Stop() {
	if c == nil || c.model == nil || c.runner == nil || c.view == nil {
		return
	}
	if !c.model.Running() {
		return
	}
	c.runner.Stop()
	c.finish()
}

// Toggle flips running state delegating to Start/Stop.
func (c *RunPresenter) Toggle() {
	if c == nil || c.model == nil {
		return
	}
	if c.model.Running() {
		c.Stop()
		return
	}
	c.Start()
}

// Tick notices runs that ended on their own.
func (c *RunPresenter) Tick() {
	if c == nil || c.model == nil || c.runner == nil || c.view == nil {
		return
	}
	if c.model.Running() && !c.runner.Active() {
		c.finish()
	}
}

func (c *RunPresenter) finish() {
	c.model.SetRunning(false)
	c.view.PreviewReset()
	c.view.ConfigEditable(true)
	if c.onEnd != nil {
		c.onEnd()
	}
}
