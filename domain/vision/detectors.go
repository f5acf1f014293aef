package vision

import (
	"image"

	"gocv.io/x/gocv"
)

// CanDetector yields raw can candidates from a BGR frame. The pipeline applies
// reachability and ordering on top.
type CanDetector interface {
	Candidates(frame gocv.Mat) []Detection
	Close() error
}

// paddedCanMask pads frame with a 1px white border and returns its can mask,
// offset by the padding. The can band selects the floor, so the band mask is
// inverted: cans are 255 and the floor, border included, is 0.
func (p *Pipeline) paddedCanMask(frame gocv.Mat) gocv.Mat {
	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(frame, &padded, 1, 1, 1, 1, gocv.BorderConstant, white)

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(padded, &hsv, gocv.ColorBGRToHSV)

	floor := gocv.NewMat()
	defer floor.Close()
	gocv.InRangeWithScalar(hsv, p.can.lo, p.can.hi, &floor)

	mask := gocv.NewMat()
	gocv.BitwiseNot(floor, &mask)
	p.save("cans", mask)
	return mask
}

// minRectDetector fits minimum-area rectangles to can-colored contours.
type minRectDetector struct{ p *Pipeline }

func newMinRectDetector(p *Pipeline) *minRectDetector { return &minRectDetector{p: p} }

func (d *minRectDetector) Candidates(frame gocv.Mat) []Detection {
	p := d.p
	mask := p.paddedCanMask(frame)
	defer mask.Close()

	maxW := float64(frame.Cols() - p.cfg.FullFrameMargin)
	maxH := float64(frame.Rows() - p.cfg.FullFrameMargin)
	return p.contourDetections(mask, 1, func(w, h float64) bool {
		if w >= maxW || h >= maxH {
			return false
		}
		if w*h <= p.cfg.MinCanArea {
			return false
		}
		// discard long, thin rectangles
		return h > 0 && w/h >= p.cfg.MinAspectRatio
	})
}

func (d *minRectDetector) Close() error { return nil }

// blobDetector runs OpenCV's simple blob detector over the can mask, looking
// for the bright can blobs.
type blobDetector struct {
	p        *Pipeline
	detector gocv.SimpleBlobDetector
}

func newBlobDetector(p *Pipeline) *blobDetector {
	params := gocv.NewSimpleBlobDetectorParams()
	params.SetFilterByColor(true)
	params.SetBlobColor(255)
	params.SetFilterByArea(true)
	params.SetMinArea(p.cfg.MinCanArea)
	params.SetMaxArea(p.cfg.BlobMaxArea)
	params.SetFilterByCircularity(false)
	params.SetFilterByConvexity(false)
	params.SetFilterByInertia(true)
	params.SetMinInertiaRatio(p.cfg.BlobMinInertia)
	params.SetMaxInertiaRatio(p.cfg.BlobMaxInertia)
	return &blobDetector{p: p, detector: gocv.NewSimpleBlobDetectorWithParams(params)}
}

func (d *blobDetector) Candidates(frame gocv.Mat) []Detection {
	mask := d.p.paddedCanMask(frame)
	defer mask.Close()

	kps := d.detector.Detect(mask)
	dets := make([]Detection, 0, len(kps))
	for _, kp := range kps {
		pt := image.Pt(int(kp.X)-1, int(kp.Y)-1)
		dets = append(dets, DetectionFromPoint(pt))
	}
	return dets
}

func (d *blobDetector) Close() error { return d.detector.Close() }

var (
	_ CanDetector = (*minRectDetector)(nil)
	_ CanDetector = (*blobDetector)(nil)
)
