package vision

import (
	"image"

	"gocv.io/x/gocv"
)

// ReachOptions selects the corridors checked by Reachable. The water corridor
// always runs from the anchor to Target. When Secondary is set, a corridor to
// Secondary is also checked against the deposit color; both must be clear.
type ReachOptions struct {
	Target    Point
	Secondary *Point
}

// Reachable reports whether the straight path from the anchor to the target is
// free of hazard pixels. hsv must be an HSV frame of the calibrated size.
func (p *Pipeline) Reachable(hsv gocv.Mat, opts ReachOptions) bool {
	if hsv.Empty() {
		return false
	}
	water := p.corridorHits(hsv, p.water, opts.Target, "blue")
	if water >= p.cfg.MinWaterPixels {
		return false
	}
	if opts.Secondary == nil {
		return true
	}
	return p.corridorHits(hsv, p.dump, *opts.Secondary, "red") < p.cfg.MinDumpPixels
}

// PathClear converts a BGR frame to HSV and checks the forward corridors used
// for roaming: water up to the water dot and deposit color up to the dump dot.
func (p *Pipeline) PathClear(frame gocv.Mat) bool {
	if frame.Empty() {
		return false
	}
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)
	dot := p.dumpDot
	return p.Reachable(hsv, ReachOptions{Target: p.waterDot, Secondary: &dot})
}

// corridorHits counts band pixels under a thick line from the anchor to target
// joined with the bottom strip of the frame.
func (p *Pipeline) corridorHits(hsv gocv.Mat, band hsvBand, target Point, tag string) int {
	rows, cols := hsv.Rows(), hsv.Cols()

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, band.lo, band.hi, &mask)

	path := gocv.Zeros(rows, cols, gocv.MatTypeCV8U)
	defer path.Close()
	gocv.Line(&path, p.anchor, target, white, p.corridor)
	gocv.Rectangle(&path, image.Rect(0, p.bottomLineY, cols, rows), white, -1)

	cross := gocv.NewMat()
	defer cross.Close()
	gocv.BitwiseAnd(mask, path, &cross)

	p.save("mask_"+tag, mask)
	p.save("reachable_"+tag, cross)
	return gocv.CountNonZero(cross)
}
