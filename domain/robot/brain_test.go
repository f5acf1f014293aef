package robot

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/soocke/can-bot-go/config"
	"github.com/soocke/can-bot-go/domain/device"
	"github.com/soocke/can-bot-go/domain/vision"
	"github.com/soocke/can-bot-go/timeutil"
)

// fakeBody records instructions; each one costs step of mocked time.
type fakeBody struct {
	clock *timeutil.MockClock
	step  time.Duration
	sent  []device.Instruction
	dumps []int
	prox  [][]int
}

func (f *fakeBody) SendInstruction(in device.Instruction) error {
	f.sent = append(f.sent, in)
	f.clock.Advance(f.step)
	return nil
}

func (f *fakeBody) DumpCans(n int) error {
	f.dumps = append(f.dumps, n)
	f.clock.Advance(f.step)
	return nil
}

func (f *fakeBody) FrontFrame() (gocv.Mat, error) { return gocv.NewMat(), nil }
func (f *fakeBody) RearFrame() (gocv.Mat, error)  { return gocv.NewMat(), nil }

func (f *fakeBody) ProximityVector() ([]int, error) {
	if len(f.prox) == 0 {
		return []int{255, 255, 0, 0, 0, 0, 0}, nil
	}
	v := f.prox[0]
	if len(f.prox) > 1 {
		f.prox = f.prox[1:]
	}
	return v, nil
}

func (f *fakeBody) count(in device.Instruction) int {
	n := 0
	for _, s := range f.sent {
		if s == in {
			n++
		}
	}
	return n
}

// fakeVision scripts perception results. Function fields may be nil.
type fakeVision struct {
	cans      func(call int) []vision.Detection
	dump      func(rear bool) *vision.Detection
	pathClear func() bool
	blurPanic bool

	findCalls int
	annotated int
}

var (
	canBand     = vision.Threshold{NearMin: 154, NearMax: 358, FarMin: 154, FarMax: 358, Height: 512}
	depositBand = vision.Threshold{NearMin: 236, NearMax: 276, FarMin: 236, FarMax: 276, Height: 512}
	pickup      = vision.Rect{Min: vision.Point{X: 102, Y: 424}, Max: vision.Point{X: 409, Y: 512}}
	deposit     = vision.Rect{Min: vision.Point{X: 117, Y: 307}, Max: vision.Point{X: 394, Y: 512}}
)

func (v *fakeVision) Blur(gocv.Mat) gocv.Mat {
	if v.blurPanic {
		panic("blur exploded")
	}
	return gocv.NewMat()
}

func (v *fakeVision) FindCans(gocv.Mat) []vision.Detection {
	v.findCalls++
	if v.cans == nil {
		return nil
	}
	return v.cans(v.findCalls)
}

func (v *fakeVision) DetectDumpingZone(_ gocv.Mat, rear bool) *vision.Detection {
	if v.dump == nil {
		return nil
	}
	return v.dump(rear)
}

func (v *fakeVision) PathClear(gocv.Mat) bool {
	return v.pathClear == nil || v.pathClear()
}

func (v *fakeVision) CanInCriticalRegion(dets []vision.Detection) bool {
	return len(dets) > 0 && pickup.Contains(dets[0].Center())
}

func (v *fakeVision) InDepositRegion(p vision.Point) bool { return deposit.Contains(p) }

func (v *fakeVision) DistFromAnchor(p vision.Point) float64 {
	return math.Hypot(float64(p.X-256), float64(p.Y-512))
}

func (v *fakeVision) CanThreshold() vision.Threshold     { return canBand }
func (v *fakeVision) DepositThreshold() vision.Threshold { return depositBand }
func (v *fakeVision) LostTarget() vision.Point           { return vision.Point{X: 256, Y: 0} }
func (v *fakeVision) Annotate(*gocv.Mat, vision.Overlay) { v.annotated++ }

func det(x, y int) vision.Detection { return vision.DetectionFromPoint(vision.Point{X: x, Y: y}) }

func dets(ds ...vision.Detection) func(int) []vision.Detection {
	return func(int) []vision.Detection { return ds }
}

type recorder struct{ snaps []Snapshot }

func (r *recorder) CycleDone(s Snapshot) { r.snaps = append(r.snaps, s) }

type frameCounter struct{ n int }

func (f *frameCounter) PublishFrame(gocv.Mat) { f.n++ }

func newTestBrain(t *testing.T, v *fakeVision, opts Options) (*Brain, *fakeBody, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	body := &fakeBody{clock: clock, step: 100 * time.Millisecond}
	b := NewBrain(body, v, config.DefaultConfig().Loop, opts, clock, nil)
	b.session.clock.Start()
	return b, body, clock
}

func TestNextState(t *testing.T) {
	d := det(256, 300)
	tests := []struct {
		name string
		dets []vision.Detection
		dump *vision.Detection
		held int
		want State
	}{
		{"can visible", []vision.Detection{d}, nil, 0, GrabbingCan},
		{"can beats dump", []vision.Detection{d}, &d, 3, GrabbingCan},
		{"dump but empty", nil, &d, 0, LookingForCans},
		{"dump with cans", nil, &d, 3, DumpingCans},
		{"nothing", nil, nil, 5, LookingForCans},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextState(tt.dets, tt.dump, tt.held))
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "grabbing_can", GrabbingCan.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestSession_TrackCritical(t *testing.T) {
	s := NewSession(timeutil.NewMockClock(time.Unix(0, 0)))
	for i := 0; i < 5; i++ {
		assert.False(t, s.TrackCritical(true))
	}
	assert.Equal(t, 0, s.Held())
	assert.True(t, s.TrackCritical(false))
	assert.False(t, s.TrackCritical(false))
	assert.Equal(t, 1, s.Held())

	assert.Equal(t, 1, s.Deposit())
	assert.Equal(t, 0, s.Held())
	assert.Equal(t, 1, s.Dumped())
}

func TestBrain_HeldCountIncrementsOncePerVisit(t *testing.T) {
	v := &fakeVision{}
	b, body, _ := newTestBrain(t, v, Options{})

	v.cans = dets(det(256, 480))
	for i := 0; i < 4; i++ {
		require.NoError(t, b.cycle())
		assert.Equal(t, 0, b.session.Held(), "cycle %d", i)
		assert.Equal(t, GrabbingCan, b.Current())
	}
	v.cans = nil
	require.NoError(t, b.cycle())
	assert.Equal(t, 1, b.session.Held())
	require.NoError(t, b.cycle())
	assert.Equal(t, 1, b.session.Held())

	// four grab steps plus two roaming steps
	assert.Equal(t, 6, body.count(device.MoveForward))
	assert.Equal(t, 1, body.count(device.BrushOn))
}

func TestBrain_GrabAlignsBeforeStepping(t *testing.T) {
	v := &fakeVision{}
	b, body, _ := newTestBrain(t, v, Options{})
	// first scan sees the can far right, resamples walk it into the band
	positions := []int{450, 420, 380, 300}
	v.cans = func(call int) []vision.Detection {
		i := min(call-1, len(positions)-1)
		return []vision.Detection{det(positions[i], 200)}
	}
	require.NoError(t, b.cycle())
	assert.Equal(t, []device.Instruction{
		device.MoveRight, device.MoveRight, device.MoveRight,
		device.MoveForward, device.BrushOn,
	}, body.sent)
}

func TestBrain_EvadeSkipsDispatch(t *testing.T) {
	v := &fakeVision{cans: dets(det(256, 480))}
	clearSteps := 3
	v.pathClear = func() bool {
		clearSteps--
		return clearSteps >= 0
	}
	b, body, _ := newTestBrain(t, v, Options{})
	body.prox = [][]int{{255, 255, 0, 1, 0, 0, 0}}

	require.NoError(t, b.cycle())
	assert.Equal(t, []device.Instruction{
		device.MoveBack, device.MoveBack, device.MoveBack, device.MoveLongRight,
	}, body.sent)
	assert.False(t, b.session.InCritical())
}

func TestBrain_EvadeBoundedSteps(t *testing.T) {
	v := &fakeVision{}
	b, body, _ := newTestBrain(t, v, Options{})
	body.prox = [][]int{{255, 255, 1, 1, 1, 0, 0}}
	require.NoError(t, b.cycle())
	assert.Equal(t, b.cfg.EvadeSteps, body.count(device.MoveBack))
	assert.Equal(t, device.MoveLongRight, body.sent[len(body.sent)-1])
}

func TestBrain_SearchForwardOrTurn(t *testing.T) {
	open := true
	v := &fakeVision{pathClear: func() bool { return open }}
	b, body, _ := newTestBrain(t, v, Options{})

	require.NoError(t, b.cycle())
	open = false
	require.NoError(t, b.cycle())
	assert.Equal(t, []device.Instruction{device.MoveForward, device.MoveRight}, body.sent)
	assert.True(t, b.session.search.Running())
	assert.Equal(t, LookingForCans, b.Current())
}

func TestBrain_SearchSweepFallsBackToLongTurn(t *testing.T) {
	v := &fakeVision{pathClear: func() bool { return false }}
	b, body, clock := newTestBrain(t, v, Options{})

	require.NoError(t, b.cycle())
	clock.Advance(11 * time.Second)
	body.sent = nil
	require.NoError(t, b.cycle())

	want := make([]device.Instruction, 0, b.cfg.SweepSteps+1)
	for i := 0; i < b.cfg.SweepSteps; i++ {
		want = append(want, device.MoveRight)
	}
	want = append(want, device.MoveLongRight)
	assert.Equal(t, want, body.sent)
	assert.False(t, b.session.search.Running())
}

func TestBrain_SearchSweepStopsOnCan(t *testing.T) {
	v := &fakeVision{pathClear: func() bool { return false }}
	b, body, clock := newTestBrain(t, v, Options{})
	require.NoError(t, b.cycle())
	clock.Advance(11 * time.Second)
	body.sent = nil

	// call 2 is the scan of the sweeping cycle, calls 3.. are sweep looks
	v.cans = func(call int) []vision.Detection {
		if call >= 5 {
			return []vision.Detection{det(256, 200)}
		}
		return nil
	}
	require.NoError(t, b.cycle())
	assert.Equal(t, []device.Instruction{device.MoveRight, device.MoveRight, device.MoveRight}, body.sent)
	assert.False(t, b.session.search.Running())
}

func TestBrain_BrushTimesOut(t *testing.T) {
	v := &fakeVision{cans: dets(det(256, 200))}
	b, body, clock := newTestBrain(t, v, Options{})

	require.NoError(t, b.cycle())
	require.NoError(t, b.cycle())
	assert.Equal(t, 1, body.count(device.BrushOn))

	clock.Advance(8 * time.Second)
	v.cans = nil
	require.NoError(t, b.cycle())
	assert.Equal(t, 1, body.count(device.BrushOff))
	assert.False(t, b.session.brush.Running())
}

func TestBrain_BrushSuppressedNearDeposit(t *testing.T) {
	zone := det(256, 450)
	v := &fakeVision{cans: dets(det(256, 200)), dump: func(bool) *vision.Detection { return &zone }}
	b, body, _ := newTestBrain(t, v, Options{})
	require.NoError(t, b.cycle())
	assert.Zero(t, body.count(device.BrushOn))
	assert.Equal(t, device.BrushOff, body.sent[len(body.sent)-1])
	assert.True(t, b.session.brush.Running())
}

func TestBrain_DumpFullSequence(t *testing.T) {
	front := det(256, 450)
	rear := det(256, 300)
	v := &fakeVision{dump: func(isRear bool) *vision.Detection {
		if isRear {
			return &rear
		}
		return &front
	}}
	b, body, _ := newTestBrain(t, v, Options{})
	b.session.held = 2
	body.prox = [][]int{{5, 5, 0, 0, 0, 0, 0}}

	require.NoError(t, b.cycle())
	assert.Equal(t, DumpingCans, b.Current())
	assert.Equal(t, []device.Instruction{
		device.BrushOff,
		device.MoveForward,
		device.StopAll,
		device.MoveBack,
		device.StopAll,
		device.StopAll,
		device.MoveBack,
		device.StopAll,
		device.MoveForward,
		device.BrushOff,
	}, body.sent)
	assert.Equal(t, []int{2}, body.dumps)
	assert.Equal(t, 0, b.session.Held())
	assert.Equal(t, 2, b.session.Dumped())
}

func TestBrain_DumpRearSearchTimeoutKeepsCount(t *testing.T) {
	front := det(256, 450)
	v := &fakeVision{dump: func(isRear bool) *vision.Detection {
		if isRear {
			return nil
		}
		return &front
	}}
	b, body, _ := newTestBrain(t, v, Options{})
	body.step = time.Second
	b.session.held = 3

	require.NoError(t, b.cycle())
	assert.Empty(t, body.dumps)
	assert.Equal(t, 3, b.session.Held())
	assert.Zero(t, b.session.Dumped())
	assert.GreaterOrEqual(t, body.count(device.MoveRight), 5)
}

func TestBrain_DumpAbortsWhenZoneLost(t *testing.T) {
	zone := det(256, 250)
	seen := 0
	v := &fakeVision{dump: func(bool) *vision.Detection {
		seen++
		// scan and the alignment resample see it, the post-step check does not
		if seen <= 2 {
			return &zone
		}
		return nil
	}}
	b, body, _ := newTestBrain(t, v, Options{})
	b.session.held = 1
	require.NoError(t, b.cycle())
	assert.Equal(t, []device.Instruction{device.BrushOff, device.MoveForward}, body.sent)
	assert.Equal(t, 1, b.session.Held())
}

func TestBrain_ProximityApproachSteers(t *testing.T) {
	b, body, _ := newTestBrain(t, &fakeVision{}, Options{})
	body.prox = [][]int{
		{40, 10, 0, 0, 0, 0, 0},
		{10, 40, 0, 0, 0, 0, 0},
		{30, 25, 0, 0, 0, 0, 0},
		{30, 30, 0, 0, 0, 1, 1},
	}
	require.NoError(t, b.approachProximity())
	assert.Equal(t, []device.Instruction{
		device.MoveRight, device.StopAll,
		device.MoveLeft, device.StopAll,
		device.MoveBack, device.StopAll,
	}, body.sent)
}

func TestBrain_ProximityApproachTimesOut(t *testing.T) {
	b, body, _ := newTestBrain(t, &fakeVision{}, Options{})
	body.prox = [][]int{{100, 100}}
	err := b.approachProximity()
	require.ErrorIs(t, err, errAborted)
	assert.Positive(t, body.count(device.MoveBack))
}

func TestBrain_NoMoveOnlyObserves(t *testing.T) {
	v := &fakeVision{cans: dets(det(256, 480))}
	b, body, _ := newTestBrain(t, v, Options{NoMove: true})
	rec, frames := &recorder{}, &frameCounter{}
	b.AddObserver(rec)
	b.SetFramePublisher(frames)

	require.NoError(t, b.cycle())
	assert.Empty(t, body.sent)
	require.Len(t, rec.snaps, 1)
	assert.Equal(t, GrabbingCan, rec.snaps[0].State)
	assert.Equal(t, 1, rec.snaps[0].Detections)
	assert.Equal(t, 1, frames.n)
	assert.Equal(t, 1, v.annotated)
	assert.Equal(t, rec.snaps[0], b.Latest())
}

func TestBrain_ListenersSeeTransitions(t *testing.T) {
	v := &fakeVision{}
	b, _, _ := newTestBrain(t, v, Options{NoMove: true})
	var got [][2]State
	b.AddListener(func(prev, next State) { got = append(got, [2]State{prev, next}) })

	require.NoError(t, b.cycle())
	v.cans = dets(det(256, 200))
	require.NoError(t, b.cycle())
	require.NoError(t, b.cycle())
	v.cans = nil
	require.NoError(t, b.cycle())
	assert.Equal(t, [][2]State{{LookingForCans, GrabbingCan}, {GrabbingCan, LookingForCans}}, got)
}

func TestBrain_RunCancelledStopsAll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, body, _ := newTestBrain(t, &fakeVision{}, Options{})
	rep, err := b.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []device.Instruction{device.ExtendBackdoor, device.StopAll}, body.sent)
	assert.Equal(t, "0m 0s", rep.Runtime)

	b, body, _ = newTestBrain(t, &fakeVision{}, Options{NoBackdoorExtension: true})
	_, err = b.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []device.Instruction{device.StopAll}, body.sent)
}

func TestBrain_RunEndsWithSession(t *testing.T) {
	b, body, _ := newTestBrain(t, &fakeVision{}, Options{})
	b.cfg.SessionSecs = 5
	body.step = time.Second

	rep, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, device.StopAll, body.sent[len(body.sent)-1])
	assert.Equal(t, 4, rep.Cycles.Cycles)
	assert.Equal(t, time.Second, rep.Cycles.Mean)
	assert.Equal(t, "0m 6s", rep.Runtime)
}

func TestBrain_RunRecoversPanic(t *testing.T) {
	b, body, _ := newTestBrain(t, &fakeVision{blurPanic: true}, Options{NoBackdoorExtension: true})
	_, err := b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blur exploded")
	assert.Equal(t, []device.Instruction{device.StopAll}, body.sent)
}

func TestLatencySummary(t *testing.T) {
	var r latencyRecorder
	assert.Equal(t, LatencySummary{}, r.summary())
	for _, ms := range []int{10, 20, 30, 40, 100} {
		r.add(time.Duration(ms) * time.Millisecond)
	}
	s := r.summary()
	assert.Equal(t, 5, s.Cycles)
	assert.Equal(t, 40*time.Millisecond, s.Mean)
	assert.Equal(t, 30*time.Millisecond, s.P50)
	assert.Equal(t, 100*time.Millisecond, s.Max)
	assert.Positive(t, s.StdDev)
}
