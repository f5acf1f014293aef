package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/soocke/can-bot-go/domain/robot"
	"github.com/soocke/can-bot-go/domain/vision"
	"github.com/soocke/can-bot-go/telemetry"
	"github.com/soocke/can-bot-go/timeutil"
)

// ErrRunActive is returned by Start while a run is in progress.
var ErrRunActive = errors.New("run already active")

// Runner builds a fresh pipeline and brain from the current config for every
// run and drives it on its own goroutine.
type Runner struct {
	c      *AppContainer
	parent context.Context
	clock  timeutil.Clock
	logger *slog.Logger

	listeners []robot.StateListener

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	brain  atomic.Pointer[robot.Brain]
	active atomic.Bool
	report robot.Report
	err    error
}

// NewRunner returns a runner whose runs end when parent is done.
func NewRunner(parent context.Context, c *AppContainer, clock timeutil.Clock) *Runner {
	return &Runner{c: c, parent: parent, clock: clock, logger: c.Logger}
}

// AddListener registers l on every future run's brain.
func (r *Runner) AddListener(l robot.StateListener) { r.listeners = append(r.listeners, l) }

func (r *Runner) Active() bool { return r.active.Load() }

// Latest returns the last snapshot of the current or previous run.
func (r *Runner) Latest() robot.Snapshot {
	if b := r.brain.Load(); b != nil {
		return b.Latest()
	}
	return robot.Snapshot{}
}

// Start launches a run.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active.Load() {
		return ErrRunActive
	}
	cfg := *r.c.Config
	if err := cfg.Validate(); err != nil {
		return err
	}

	var sink vision.ImageSink
	if r.c.Images != nil {
		sink = r.c.Images
	}
	pipeline, err := vision.NewPipeline(cfg.Vision, cfg.Algorithm, r.logger.With("component", "vision"), sink)
	if err != nil {
		return err
	}
	rec, err := telemetry.NewRecorder(r.c.Store, r.c.Publishers, cfg.Mode, cfg.Algorithm, r.logger.With("component", "telemetry"))
	if err != nil {
		_ = pipeline.Close()
		return err
	}

	brain := robot.NewBrain(r.c.Device, pipeline, cfg.Loop, robot.Options{
		NoMove:              cfg.NoMove,
		NoBackdoorExtension: cfg.NoBackdoorExtension,
	}, r.clock, r.logger.With("component", "robot", "run_id", rec.RunID()))
	brain.AddListener(rec.StateChanged)
	for _, l := range r.listeners {
		brain.AddListener(l)
	}
	brain.AddObserver(rec)
	if r.c.Images != nil {
		r.c.Images.OnSaved(rec.ImageSaved)
		brain.AddObserver(r.c.Images)
	}
	if r.c.Feed != nil {
		brain.SetFramePublisher(r.c.Feed)
		r.c.Feed.Start()
	}

	ctx, cancel := context.WithCancel(r.parent)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	r.brain.Store(brain)
	r.active.Store(true)

	go func() {
		defer close(done)
		defer cancel()
		rep, runErr := brain.Run(ctx)
		if err := rec.Finish(rep); err != nil {
			r.logger.Warn("telemetry finish", "error", err)
		}
		if r.c.Feed != nil {
			r.c.Feed.Stop()
		}
		if err := pipeline.Close(); err != nil {
			r.logger.Warn("vision close", "error", err)
		}
		logReport(r.logger, rec.RunID(), rep, runErr)

		r.mu.Lock()
		r.report, r.err = rep, runErr
		r.mu.Unlock()
		r.active.Store(false)
	}()
	return nil
}

// Stop cancels the run and waits for the stop path to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the current run returns and yields its report.
func (r *Runner) Wait() (robot.Report, error) {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report, r.err
}

func logReport(logger *slog.Logger, runID string, rep robot.Report, err error) {
	attrs := []any{
		"run_id", runID,
		"runtime", rep.Runtime,
		"dumped", rep.Dumped,
		"held", rep.Held,
		"cycles", rep.Cycles.Cycles,
		"cycle_mean", rep.Cycles.Mean,
		"cycle_stddev", rep.Cycles.StdDev,
		"cycle_p50", rep.Cycles.P50,
		"cycle_p95", rep.Cycles.P95,
		"cycle_max", rep.Cycles.Max,
	}
	if err != nil {
		logger.Error("run finished with error", append(attrs, "error", err)...)
		return
	}
	logger.Info("run finished", attrs...)
}
