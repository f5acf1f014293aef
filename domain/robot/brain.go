package robot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync/atomic"
	"time"

	"github.com/soocke/can-bot-go/config"
	"github.com/soocke/can-bot-go/domain/align"
	"github.com/soocke/can-bot-go/domain/device"
	"github.com/soocke/can-bot-go/domain/vision"
	"github.com/soocke/can-bot-go/timeutil"
)

// Body is the device surface the loop drives.
type Body interface {
	device.FrameSource
	device.ActuatorSink
}

// Options toggles run-wide behavior.
type Options struct {
	// NoMove scans and annotates but never acts.
	NoMove              bool
	NoBackdoorExtension bool
}

// Brain runs the decision loop. It is not safe for concurrent use, except
// for Current and Latest which may be polled from other goroutines.
type Brain struct {
	body    Body
	vis     Perception
	aligner *align.Controller
	cfg     config.LoopConfig
	opts    Options
	clock   timeutil.Clock
	logger  *slog.Logger

	session *Session
	state   State
	current atomic.Int32
	latest  atomic.Pointer[Snapshot]
	cycles  int
	latency latencyRecorder

	listeners []StateListener
	observers []CycleObserver
	frames    FramePublisher

	// first frame error seen inside an alignment resample
	resampleErr error
}

// NewBrain constructs a loop over body. clock defaults to the real clock.
func NewBrain(body Body, vis Perception, cfg config.LoopConfig, opts Options, clock timeutil.Clock, logger *slog.Logger) *Brain {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Brain{
		body:    body,
		vis:     vis,
		aligner: align.NewController(body, clock, logger),
		cfg:     cfg,
		opts:    opts,
		clock:   clock,
		logger:  logger,
		session: NewSession(clock),
		state:   LookingForCans,
	}
}

func (b *Brain) AddListener(l StateListener)        { b.listeners = append(b.listeners, l) }
func (b *Brain) AddObserver(o CycleObserver)        { b.observers = append(b.observers, o) }
func (b *Brain) SetFramePublisher(p FramePublisher) { b.frames = p }
func (b *Brain) Current() State                     { return State(b.current.Load()) }
func (b *Brain) Session() *Session                  { return b.session }

// Latest returns the snapshot of the last completed cycle.
func (b *Brain) Latest() Snapshot {
	if s := b.latest.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}

// Run loops until the session time is over, ctx is cancelled or a device
// fails. Every exit path, panics included, sends StopAll and returns the run
// report. Cancellation is a clean shutdown and not an error.
func (b *Brain) Run(ctx context.Context) (rep Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("robot loop panic", "error", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("robot loop panic: %v", r)
		}
		rep = b.stop()
	}()

	b.session.clock.Start()
	b.logger.Info("run started", "session", b.cfg.Session(), "no_move", b.opts.NoMove)
	if !b.opts.NoBackdoorExtension {
		if err := b.send(device.ExtendBackdoor); err != nil {
			return rep, err
		}
	}
	for b.session.clock.Elapsed() < b.cfg.Session() {
		if ctx.Err() != nil {
			b.logger.Info("run cancelled")
			return rep, nil
		}
		if err := b.cycle(); err != nil {
			return rep, err
		}
	}
	b.logger.Info("session time over")
	return rep, nil
}

func (b *Brain) stop() Report {
	if err := b.body.SendInstruction(device.StopAll); err != nil {
		b.logger.Warn("stop all failed", "error", err)
	}
	rep := Report{
		Runtime: b.session.clock.Full(),
		Dumped:  b.session.Dumped(),
		Held:    b.session.Held(),
		Cycles:  b.latency.summary(),
	}
	b.logger.Info("run finished",
		"runtime", rep.Runtime,
		"dumped", rep.Dumped,
		"held", rep.Held,
		"cycles", rep.Cycles.Cycles,
		"cycle_mean", rep.Cycles.Mean,
		"cycle_p95", rep.Cycles.P95,
	)
	return rep
}

func (b *Brain) send(in device.Instruction) error {
	if err := b.body.SendInstruction(in); err != nil {
		return fmt.Errorf("send %s: %w", in, err)
	}
	return nil
}

func (b *Brain) scan() (*ScanResult, error) {
	frame, err := b.body.FrontFrame()
	if err != nil {
		return nil, fmt.Errorf("front frame: %w", err)
	}
	s := &ScanResult{Frame: frame}
	s.Blurred = b.vis.Blur(frame)
	s.Detections = b.vis.FindCans(s.Blurred)
	if s.Proximity, err = b.body.ProximityVector(); err != nil {
		s.Close()
		return nil, fmt.Errorf("proximity: %w", err)
	}
	s.Dump = b.vis.DetectDumpingZone(s.Blurred, false)
	return s, nil
}

func (b *Brain) setState(next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.current.Store(int32(next))
	b.logger.Info("robot state transition", "from", prev.String(), "to", next.String())
	for _, l := range b.listeners {
		l(prev, next)
	}
}

func (b *Brain) cycle() error {
	start := b.clock.Now()
	scan, err := b.scan()
	if err != nil {
		return err
	}
	defer scan.Close()

	b.setState(NextState(scan.Detections, scan.Dump, b.session.Held()))

	if b.session.brush.Running() && b.session.brush.Elapsed() >= b.cfg.BrushOn() {
		b.session.brush.Reset()
		b.logger.Info("brush timed out, turning off")
		if err := b.send(device.BrushOff); err != nil {
			return err
		}
	}

	label := b.state.String()
	if b.state == LookingForCans && b.session.search.Running() {
		label += ": " + b.session.search.Seconds()
	}
	b.vis.Annotate(&scan.Frame, vision.Overlay{
		Detections: scan.Detections,
		Dump:       scan.Dump,
		State:      label,
		Held:       b.session.Held(),
		InCritical: b.session.InCritical(),
		Clock:      b.session.clock.Full(),
	})
	if b.frames != nil {
		b.frames.PublishFrame(scan.Frame)
	}

	if !b.opts.NoMove {
		if err := b.act(scan); err != nil {
			return err
		}
	}
	b.finishCycle(scan, start)
	return nil
}

func (b *Brain) act(scan *ScanResult) error {
	if nearContact(scan.Proximity) {
		return b.evade()
	}
	if b.session.TrackCritical(b.vis.CanInCriticalRegion(scan.Detections)) {
		b.logger.Info("can collected", "held", b.session.Held())
	}

	var err error
	switch b.state {
	case GrabbingCan:
		err = b.grab(scan)
		b.session.search.Reset()
		if err == nil && !b.session.brush.Running() && !b.dumpTooClose(scan.Dump) {
			err = b.send(device.BrushOn)
		}
		b.session.brush.Start()
	case DumpingCans:
		err = b.dump(scan)
		b.session.search.Reset()
	case LookingForCans:
		if !b.session.search.Running() {
			b.session.search.Start()
		}
		err = b.search(scan)
	}
	if err != nil {
		return err
	}

	if b.dumpTooClose(scan.Dump) {
		b.logger.Info("deposit zone too close, brush off")
		return b.send(device.BrushOff)
	}
	return nil
}

func (b *Brain) finishCycle(scan *ScanResult, start time.Time) {
	lat := b.clock.Since(start)
	b.latency.add(lat)
	b.cycles++
	snap := Snapshot{
		Cycle:      b.cycles,
		State:      b.state,
		Detections: len(scan.Detections),
		DumpSeen:   scan.Dump != nil,
		Held:       b.session.Held(),
		Dumped:     b.session.Dumped(),
		InCritical: b.session.InCritical(),
		Elapsed:    b.session.clock.Elapsed(),
		Latency:    lat,
	}
	b.latest.Store(&snap)
	for _, o := range b.observers {
		o.CycleDone(snap)
	}
}

// nearContact reports whether any forward contact sensor fired.
func nearContact(prox []int) bool {
	if len(prox) < 3 {
		return false
	}
	return slices.Contains(prox[2:min(5, len(prox))], 1)
}

func (b *Brain) dumpTooClose(d *vision.Detection) bool {
	return d != nil && b.vis.DistFromAnchor(d.Center()) < b.cfg.BrushOffDistance
}
