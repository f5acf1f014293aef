package app

import (
	"context"
	"fmt"
	"image"
	"time"

	tk "modernc.org/tk9.0"

	"github.com/soocke/can-bot-go/config"
	"github.com/soocke/can-bot-go/debug"
	"github.com/soocke/can-bot-go/domain/robot"
	"github.com/soocke/can-bot-go/ui/model"
	"github.com/soocke/can-bot-go/ui/presenter"
	"github.com/soocke/can-bot-go/ui/theme"
	"github.com/soocke/can-bot-go/ui/view"
)

const (
	tick          = 100 * time.Millisecond
	debugInterval = 5 * time.Second
	regionZoom    = 160
)

// Run executes one session headless, or opens the viewer and starts a run
// in it. It returns when the run (headless) or the window (viewer) is done.
func Run(ctx context.Context, c *AppContainer, headless bool) (robot.Report, error) {
	if c.Config.Debug {
		debug.StartGoroutineLogger(ctx, debugInterval, c.Logger)
		debug.StartMemLogger(ctx, debugInterval, c.Logger)
	}
	runner := NewRunner(ctx, c, nil)
	if headless {
		if err := runner.Start(); err != nil {
			return robot.Report{}, err
		}
		return runner.Wait()
	}
	NewViewer("Can Bot", 820, 900, c, runner).Start(ctx)
	runner.Stop()
	return runner.Wait()
}

// Viewer is the window showing the robot POV, state, counters and session clock.
type Viewer struct {
	c       *AppContainer
	runner  *Runner
	width   int
	height  int
	afterID string
	ctx     context.Context

	root    *view.RootView
	state   *presenter.StatePresenter
	run     *presenter.RunPresenter
	loop    *presenter.Loop
	session *model.SessionModel
}

func NewViewer(title string, width, height int, c *AppContainer, runner *Runner) *Viewer {
	a := &Viewer{c: c, runner: runner, width: width, height: height}
	tk.App.WmTitle(title)
	tk.WmProtocol(tk.App, "WM_DELETE_WINDOW", a.exitHandler)
	tk.WmGeometry(tk.App, fmt.Sprintf("%dx%d+100+100", width, height))
	return a
}

// Start builds the window, starts the first run and blocks in the Tk event
// loop. Cancelling ctx closes the window.
func (a *Viewer) Start(ctx context.Context) {
	a.ctx = ctx
	theme.InitStyles()
	cfg := a.c.Config

	a.root = view.NewRootView(cfg, a.c.CfgPath, a.c.Logger)
	a.root.Build(a.toggleRun, a.exitHandler)

	runModel := &model.RunModel{}
	a.session = model.NewSessionModel(cfg.Loop.Session())
	a.state = presenter.NewStatePresenter(a.root)
	a.runner.AddListener(a.state.OnState)
	a.run = presenter.NewRunPresenter(runModel, a.runner, a.root, a.c.Logger)
	a.run.OnEnd(func() { a.state.Reset("State: stopped") })
	a.loop = presenter.NewLoop(
		a.run,
		presenter.NewSessionPresenter(a.session, runModel, a.root),
		a.state,
		presenter.NewStatsPresenter(a.runner, a.root),
		presenter.NewPreviewPresenter(a.c.Feed, a.root, regionRect(cfg.Vision), regionZoom, a.c.Logger),
		a.scheduleUpdate,
	)

	a.toggleRun()
	a.scheduleUpdate()
	tk.App.Wait()
}

func (a *Viewer) toggleRun() {
	wasRunning := a.runner.Active()
	a.session.SetLimit(a.c.Config.Loop.Session())
	a.run.Toggle()
	if !wasRunning && a.runner.Active() {
		a.state.Reset("State: " + robot.LookingForCans.String())
	}
}

func (a *Viewer) update() {
	if a.ctx != nil && a.ctx.Err() != nil {
		a.exitHandler()
		return
	}
	a.loop.Tick()
}

func (a *Viewer) scheduleUpdate() {
	// TclAfter keeps updates on Tk's event loop thread.
	a.afterID = tk.TclAfter(tick, func() { a.update() })
}

func (a *Viewer) exitHandler() {
	if a.afterID != "" {
		tk.TclAfterCancel(a.afterID)
		a.afterID = ""
	}
	a.runner.Stop()
	tk.Destroy(tk.App)
}

// regionRect converts the fractional pickup region to frame pixels.
func regionRect(v config.VisionConfig) image.Rectangle {
	w, h := float64(v.Width), float64(v.Height)
	r := v.CanRegion
	return image.Rect(int(r.MinX*w), int(r.MinY*h), int(r.MaxX*w), int(r.MaxY*h))
}
