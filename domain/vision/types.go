package vision

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Point is an image-space coordinate.
type Point = image.Point

// Rect is an axis-aligned region with inclusive bounds.
type Rect struct {
	Min Point // top-left
	Max Point // bottom-right
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return r.Min.X <= p.X && p.X <= r.Max.X && r.Min.Y <= p.Y && p.Y <= r.Max.Y
}

// Detection is a candidate object found in a frame. It is immutable: the
// accessors return copies.
type Detection struct {
	box     [4]Point
	center  Point
	contour []Point
}

// NewDetection builds a detection from a rotated rectangle and the contour it
// was fitted to. The center is the integer mean of the box corners.
func NewDetection(rect gocv.RotatedRect, contour []Point) Detection {
	var d Detection
	var sx, sy int
	for i := 0; i < 4 && i < len(rect.Points); i++ {
		d.box[i] = rect.Points[i]
		sx += rect.Points[i].X
		sy += rect.Points[i].Y
	}
	d.center = Point{X: floorDiv(sx, 4), Y: floorDiv(sy, 4)}
	d.contour = append([]Point(nil), contour...)
	return d
}

// DetectionFromPoint builds a 10x10 square detection centered on p. Used by
// detectors that only yield keypoints.
func DetectionFromPoint(p Point) Detection {
	box := [4]Point{
		{X: p.X + 5, Y: p.Y + 5},
		{X: p.X - 5, Y: p.Y + 5},
		{X: p.X - 5, Y: p.Y - 5},
		{X: p.X + 5, Y: p.Y - 5},
	}
	return Detection{box: box, center: p, contour: box[:]}
}

func (d Detection) Center() Point { return d.center }
func (d Detection) Box() [4]Point { return d.box }

// Contour returns a copy of the originating contour.
func (d Detection) Contour() []Point { return append([]Point(nil), d.contour...) }

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Threshold is a perspective trapezoid of horizontal bounds. Near bounds apply
// at the bottom row of the frame and far bounds at the top row; rows in
// between are linearly interpolated.
type Threshold struct {
	NearMin, NearMax int
	FarMin, FarMax   int
	Height           int
}

// Bounds returns the (min, max) band for a target at row y.
func (t Threshold) Bounds(y int) (float64, float64) {
	h := float64(t.Height)
	if h <= 0 {
		h = 1
	}
	fy := float64(y)
	tmin := float64(t.FarMin) - float64(t.FarMin-t.NearMin)*fy/h
	tmax := float64(t.FarMax) - float64(t.FarMax-t.NearMax)*fy/h
	return tmin, tmax
}

// Midpoint returns the x coordinate centered in the band at row y.
func (t Threshold) Midpoint(y int) float64 {
	lo, hi := t.Bounds(y)
	return (lo + hi) / 2
}

func distance(a, b Point) float64 {
	return math.Hypot(float64(b.X-a.X), float64(b.Y-a.Y))
}
