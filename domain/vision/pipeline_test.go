package vision

import (
	"image"
	"image/color"
	"io"
	"log/slog"
	"testing"

	"gocv.io/x/gocv"

	"github.com/soocke/can-bot-go/config"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recordingSink struct{ categories []string }

func (s *recordingSink) SaveImage(category string, _ gocv.Mat) {
	s.categories = append(s.categories, category)
}

func newTestPipeline(t *testing.T, algorithm string, sink ImageSink) *Pipeline {
	t.Helper()
	p, err := NewPipeline(config.DefaultConfig().Vision, algorithm, discardLogger(), sink)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// synthFrame returns a 512x512 BGR frame filled with bg.
func synthFrame(t *testing.T, bg color.RGBA) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(bg.B), float64(bg.G), float64(bg.R), 0), 512, 512, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func fill(m *gocv.Mat, r image.Rectangle, c color.RGBA) { gocv.Rectangle(m, r, c, -1) }

func toHSV(t *testing.T, frame gocv.Mat) gocv.Mat {
	t.Helper()
	hsv := gocv.NewMat()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)
	t.Cleanup(func() { _ = hsv.Close() })
	return hsv
}

var (
	bgBlack  = color.RGBA{}
	floor    = color.RGBA{R: 200, G: 200, B: 200}
	pureBlue = color.RGBA{B: 255}
	pureRed  = color.RGBA{R: 255}
)

func TestNewPipeline_UnsupportedAlgorithm(t *testing.T) {
	if _, err := NewPipeline(config.DefaultConfig().Vision, "haar", discardLogger(), nil); err == nil {
		t.Fatalf("expected error for unsupported algorithm")
	}
}

func TestReachable_NoHazardAlwaysReachable(t *testing.T) {
	p := newTestPipeline(t, config.AlgorithmMinRect, nil)
	hsv := toHSV(t, synthFrame(t, bgBlack))
	for _, target := range []Point{{0, 0}, {511, 0}, {256, 256}, {10, 500}, {500, 300}} {
		tgt := target
		if !p.Reachable(hsv, ReachOptions{Target: tgt, Secondary: &tgt}) {
			t.Fatalf("target %v should be reachable on a hazard-free frame", tgt)
		}
	}
}

func TestReachable_AllWaterUnreachable(t *testing.T) {
	p := newTestPipeline(t, config.AlgorithmMinRect, nil)
	hsv := toHSV(t, synthFrame(t, pureBlue))
	for _, target := range []Point{{256, 0}, {256, 400}, {0, 511}} {
		if p.Reachable(hsv, ReachOptions{Target: target}) {
			t.Fatalf("target %v should be unreachable across water", target)
		}
	}
}

func TestReachable_SecondaryMaskOnlyWhenRequested(t *testing.T) {
	p := newTestPipeline(t, config.AlgorithmMinRect, nil)
	hsv := toHSV(t, synthFrame(t, pureRed))
	target := Point{X: 256, Y: 300}
	if !p.Reachable(hsv, ReachOptions{Target: target}) {
		t.Fatalf("deposit color must not block the water-only check")
	}
	if p.Reachable(hsv, ReachOptions{Target: target, Secondary: &target}) {
		t.Fatalf("deposit color must block when the secondary corridor is requested")
	}
}

func TestReachable_WaterOffCorridorIgnored(t *testing.T) {
	p := newTestPipeline(t, config.AlgorithmMinRect, nil)
	frame := synthFrame(t, bgBlack)
	// water in the top-left corner, away from the straight-ahead corridor
	fill(&frame, image.Rect(0, 0, 60, 60), pureBlue)
	hsv := toHSV(t, frame)
	if !p.Reachable(hsv, ReachOptions{Target: p.WaterDot()}) {
		t.Fatalf("water outside the corridor should not matter")
	}
	if p.Reachable(hsv, ReachOptions{Target: Point{X: 20, Y: 20}}) {
		t.Fatalf("corridor into the water should be blocked")
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestFindCans_DarkCanOnLightFloor(t *testing.T) {
	for _, algo := range []string{config.AlgorithmMinRect, config.AlgorithmBlob} {
		t.Run(algo, func(t *testing.T) {
			p := newTestPipeline(t, algo, nil)
			frame := synthFrame(t, floor)
			fill(&frame, image.Rect(210, 290, 250, 320), bgBlack)
			dets := p.FindCans(frame)
			if len(dets) != 1 {
				t.Fatalf("expected exactly one detection, got %d", len(dets))
			}
			c := dets[0].Center()
			// filled pixels span x 210..250 and y 290..320 inclusive
			if abs(c.X-230) > 2 || abs(c.Y-305) > 2 {
				t.Fatalf("center %v too far from (230,305)", c)
			}
		})
	}
}

func TestFindCans_EmptyFloor(t *testing.T) {
	for _, algo := range []string{config.AlgorithmMinRect, config.AlgorithmBlob} {
		t.Run(algo, func(t *testing.T) {
			p := newTestPipeline(t, algo, nil)
			if dets := p.FindCans(synthFrame(t, floor)); len(dets) != 0 {
				t.Fatalf("bare floor produced %d detections", len(dets))
			}
		})
	}
}

func TestFindCans_CanTouchingFrameEdge(t *testing.T) {
	p := newTestPipeline(t, config.AlgorithmMinRect, nil)
	frame := synthFrame(t, floor)
	fill(&frame, image.Rect(0, 280, 40, 310), bgBlack)
	dets := p.FindCans(frame)
	if len(dets) != 1 {
		t.Fatalf("expected the edge can, got %d detections", len(dets))
	}
	if c := dets[0].Center(); c.X < 0 || abs(c.Y-295) > 2 {
		t.Fatalf("edge can center %v out of place", c)
	}
}

func TestFindCans_BelowMinimumArea(t *testing.T) {
	p := newTestPipeline(t, config.AlgorithmMinRect, nil)
	frame := synthFrame(t, floor)
	fill(&frame, image.Rect(250, 300, 256, 306), bgBlack)
	if dets := p.FindCans(frame); len(dets) != 0 {
		t.Fatalf("expected no detections below the area minimum, got %d", len(dets))
	}
}

func TestFindCans_SortedNearestFirst(t *testing.T) {
	p := newTestPipeline(t, config.AlgorithmMinRect, nil)
	frame := synthFrame(t, floor)
	fill(&frame, image.Rect(230, 100, 270, 130), bgBlack) // far
	fill(&frame, image.Rect(230, 400, 270, 430), bgBlack) // near
	dets := p.FindCans(frame)
	if len(dets) != 2 {
		t.Fatalf("expected two detections, got %d", len(dets))
	}
	if p.DistFromAnchor(dets[0].Center()) > p.DistFromAnchor(dets[1].Center()) {
		t.Fatalf("detections not sorted by distance: %v then %v", dets[0].Center(), dets[1].Center())
	}
	if dets[0].Center().Y < 400 {
		t.Fatalf("nearest should be the lower rectangle, got %v", dets[0].Center())
	}
}

func TestFindCans_WaterInBottomBandHidesEverything(t *testing.T) {
	p := newTestPipeline(t, config.AlgorithmMinRect, nil)
	frame := synthFrame(t, floor)
	fill(&frame, image.Rect(210, 290, 250, 320), bgBlack)
	fill(&frame, image.Rect(0, 495, 512, 512), pureBlue)
	if dets := p.FindCans(frame); len(dets) != 0 {
		t.Fatalf("water under the robot should make every can unreachable, got %d", len(dets))
	}
}

func TestDetectDumpingZone(t *testing.T) {
	p := newTestPipeline(t, config.AlgorithmMinRect, nil)
	frame := synthFrame(t, bgBlack)
	fill(&frame, image.Rect(100, 100, 160, 140), pureRed)
	fill(&frame, image.Rect(230, 380, 290, 420), pureRed)
	fill(&frame, image.Rect(400, 450, 405, 455), pureRed) // too small
	dump := p.DetectDumpingZone(frame, false)
	if dump == nil {
		t.Fatalf("expected a dumping zone")
	}
	if c := dump.Center(); abs(c.X-260) > 2 || abs(c.Y-400) > 2 {
		t.Fatalf("expected nearest zone around (260,400), got %v", c)
	}
}

func TestDetectDumpingZone_NoneOrTooSmall(t *testing.T) {
	p := newTestPipeline(t, config.AlgorithmMinRect, nil)
	frame := synthFrame(t, bgBlack)
	if p.DetectDumpingZone(frame, true) != nil {
		t.Fatalf("empty frame must not yield a zone")
	}
	fill(&frame, image.Rect(250, 300, 260, 310), pureRed)
	if p.DetectDumpingZone(frame, true) != nil {
		t.Fatalf("zone below the minimum area must be ignored")
	}
}

func TestCanInCriticalRegion(t *testing.T) {
	p := newTestPipeline(t, config.AlgorithmMinRect, nil)
	if p.CanInCriticalRegion(nil) {
		t.Fatalf("no detections cannot be in the region")
	}
	inside := DetectionFromPoint(Point{X: 256, Y: 480})
	outside := DetectionFromPoint(Point{X: 256, Y: 200})
	if !p.CanInCriticalRegion([]Detection{inside, outside}) {
		t.Fatalf("nearest detection inside the region should count")
	}
	if p.CanInCriticalRegion([]Detection{outside, inside}) {
		t.Fatalf("only the first (nearest) detection is considered")
	}
}

func TestThreshold_Bounds(t *testing.T) {
	th := Threshold{NearMin: 100, NearMax: 400, FarMin: 200, FarMax: 300, Height: 512}
	lo, hi := th.Bounds(0)
	if lo != 200 || hi != 300 {
		t.Fatalf("far bounds = (%v,%v)", lo, hi)
	}
	lo, hi = th.Bounds(512)
	if lo != 100 || hi != 400 {
		t.Fatalf("near bounds = (%v,%v)", lo, hi)
	}
	lo, hi = th.Bounds(256)
	if lo != 150 || hi != 350 || th.Midpoint(256) != 250 {
		t.Fatalf("mid bounds = (%v,%v)", lo, hi)
	}
}

func TestRect_ContainsInclusive(t *testing.T) {
	r := Rect{Min: Point{X: 10, Y: 10}, Max: Point{X: 20, Y: 20}}
	for _, p := range []Point{{10, 10}, {20, 20}, {15, 12}} {
		if !r.Contains(p) {
			t.Fatalf("%v should be inside", p)
		}
	}
	if r.Contains(Point{X: 21, Y: 15}) {
		t.Fatalf("point past the max edge should be outside")
	}
}

func TestDetection_ImmutableContour(t *testing.T) {
	d := DetectionFromPoint(Point{X: 50, Y: 50})
	c := d.Contour()
	c[0] = Point{}
	if d.Contour()[0] == (Point{}) {
		t.Fatalf("contour accessor must return a copy")
	}
}

func TestAnnotate_SavesMarkings(t *testing.T) {
	sink := &recordingSink{}
	p := newTestPipeline(t, config.AlgorithmMinRect, sink)
	frame := synthFrame(t, bgBlack)
	dump := DetectionFromPoint(Point{X: 300, Y: 300})
	p.Annotate(&frame, Overlay{
		Detections: []Detection{DetectionFromPoint(Point{X: 256, Y: 450})},
		Dump:       &dump,
		State:      "grabbing",
		Held:       2,
		InCritical: true,
		Clock:      "0m 3s",
	})
	if len(sink.categories) == 0 || sink.categories[len(sink.categories)-1] != "markings" {
		t.Fatalf("expected a markings image, got %v", sink.categories)
	}
	if gocv.CountNonZero(toGray(t, frame)) == 0 {
		t.Fatalf("annotation drew nothing")
	}
}

func toGray(t *testing.T, frame gocv.Mat) gocv.Mat {
	t.Helper()
	g := gocv.NewMat()
	gocv.CvtColor(frame, &g, gocv.ColorBGRToGray)
	t.Cleanup(func() { _ = g.Close() })
	return g
}
