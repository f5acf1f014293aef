package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	black  = color.RGBA{}
	blue   = color.RGBA{B: 255}
	green  = color.RGBA{G: 255}
	red    = color.RGBA{R: 255}
	orange = color.RGBA{R: 252, G: 102, B: 3}
)

// Overlay is the per-cycle state drawn on top of the front frame.
type Overlay struct {
	Detections []Detection
	Dump       *Detection
	State      string
	Held       int
	InCritical bool
	Clock      string
}

// Annotate draws the decision aids onto frame in place: counters, state,
// reachability corridors, critical regions, thresholds and detections.
func (p *Pipeline) Annotate(frame *gocv.Mat, o Overlay) {
	if frame == nil || frame.Empty() {
		return
	}
	w, h := p.cfg.Width, p.cfg.Height

	held := fmt.Sprintf("Cans: %d", o.Held)
	if o.InCritical {
		held += " (In critical region)"
	}
	p.text(frame, held, image.Pt(10, 35))
	p.text(frame, o.State, image.Pt(10, 55))

	p.corridorOutline(frame, p.waterDot, blue)
	p.corridorOutline(frame, p.dumpDot, red)

	gocv.Rectangle(frame, image.Rectangle{Min: p.canRegion.Min, Max: p.canRegion.Max}, black, 1)
	gocv.Rectangle(frame, image.Rectangle{Min: p.depositRegion.Min, Max: p.depositRegion.Max}, orange, 1)
	gocv.Line(frame, image.Pt(0, p.bottomLineY), image.Pt(w, p.bottomLineY), white, 1)

	lo, hi := p.canThreshold.Bounds(h)
	flo, fhi := p.canThreshold.Bounds(0)
	gocv.Line(frame, image.Pt(int(flo), 0), image.Pt(int(lo), h), white, 1)
	gocv.Line(frame, image.Pt(int(fhi), 0), image.Pt(int(hi), h), white, 1)

	for _, d := range o.Detections {
		gocv.Circle(frame, d.Center(), 10, white, 10)
		p.polygon(frame, d.Contour(), green)
		box := d.Box()
		p.polygon(frame, box[:], red)
	}
	if len(o.Detections) > 0 {
		gocv.Circle(frame, o.Detections[0].Center(), 10, blue, 10)
	}
	if o.Dump != nil {
		gocv.Circle(frame, o.Dump.Center(), 10, orange, 10)
		box := o.Dump.Box()
		p.polygon(frame, box[:], red)
	}

	p.text(frame, "Time: "+o.Clock, image.Pt(10, 75))
	p.save("markings", *frame)
}

func (p *Pipeline) text(frame *gocv.Mat, s string, at image.Point) {
	gocv.PutText(frame, s, at, gocv.FontHersheySimplex, 0.55, white, 1)
}

// corridorOutline draws the two edges of the reachability corridor and the
// half circle capping it at dot.
func (p *Pipeline) corridorOutline(frame *gocv.Mat, dot Point, c color.RGBA) {
	t := p.corridor / 2
	left, right := p.anchor.X-t, p.anchor.X+t
	gocv.Line(frame, image.Pt(left, p.anchor.Y), image.Pt(left, dot.Y), c, 1)
	gocv.Line(frame, image.Pt(right, p.anchor.Y), image.Pt(right, dot.Y), c, 1)
	gocv.Ellipse(frame, dot, image.Pt(t, t), 0, 180, 360, c, 1)
}

func (p *Pipeline) polygon(frame *gocv.Mat, pts []Point, c color.RGBA) {
	if len(pts) == 0 {
		return
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()
	gocv.DrawContours(frame, pv, -1, c, 1)
}
