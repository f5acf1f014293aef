// Package vision segments camera frames into cans, water and the deposit
// zone, and estimates whether a straight path to a point is traversable.
// Frames are BGR gocv matrices; nothing in this package performs device I/O.
package vision

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sort"

	"gocv.io/x/gocv"

	"github.com/soocke/can-bot-go/config"
)

// ImageSink receives categorized intermediate images (masks, blurred and
// annotated frames). Implementations must not retain img after returning.
type ImageSink interface {
	SaveImage(category string, img gocv.Mat)
}

var white = color.RGBA{R: 255, G: 255, B: 255, A: 0}

// Pipeline holds the calibration derived from config.VisionConfig.
type Pipeline struct {
	cfg      config.VisionConfig
	logger   *slog.Logger
	images   ImageSink
	detector CanDetector

	anchor      Point
	waterDot    Point
	dumpDot     Point
	bottomLineY int
	corridor    int

	canRegion        Rect
	depositRegion    Rect
	canThreshold     Threshold
	depositThreshold Threshold

	water, dump, can hsvBand
}

type hsvBand struct{ lo, hi gocv.Scalar }

func newBand(r config.HSVRange) hsvBand {
	return hsvBand{
		lo: gocv.NewScalar(float64(r.Lower[0]), float64(r.Lower[1]), float64(r.Lower[2]), 0),
		hi: gocv.NewScalar(float64(r.Upper[0]), float64(r.Upper[1]), float64(r.Upper[2]), 0),
	}
}

// NewPipeline builds a pipeline using the named can detection algorithm.
// images may be nil.
func NewPipeline(cfg config.VisionConfig, algorithm string, logger *slog.Logger, images ImageSink) (*Pipeline, error) {
	w, h := cfg.Width, cfg.Height
	p := &Pipeline{
		cfg:         cfg,
		logger:      logger,
		images:      images,
		anchor:      Point{X: w / 2, Y: h},
		waterDot:    Point{X: w / 2, Y: h/2 + cfg.WaterDotOffset},
		dumpDot:     Point{X: w / 2, Y: h/2 + cfg.DumpDotOffset},
		bottomLineY: int(float64(h) * cfg.BottomBandFrac),
		corridor:    int(float64(w) * cfg.CorridorFrac),

		canRegion:        region(cfg.CanRegion, w, h),
		depositRegion:    region(cfg.DepositRegion, w, h),
		canThreshold:     threshold(cfg.CanThreshold, h),
		depositThreshold: threshold(cfg.DepositThreshold, h),

		water: newBand(cfg.Water),
		dump:  newBand(cfg.Dump),
		can:   newBand(cfg.Can),
	}
	switch algorithm {
	case config.AlgorithmMinRect:
		p.detector = newMinRectDetector(p)
	case config.AlgorithmBlob:
		p.detector = newBlobDetector(p)
	default:
		return nil, fmt.Errorf("%w %q", config.ErrUnsupportedAlgorithm, algorithm)
	}
	return p, nil
}

func region(r config.RegionConfig, w, h int) Rect {
	return Rect{
		Min: Point{X: int(float64(w) * r.MinX), Y: int(float64(h) * r.MinY)},
		Max: Point{X: int(float64(w) * r.MaxX), Y: int(float64(h) * r.MaxY)},
	}
}

func threshold(t config.ThresholdConfig, h int) Threshold {
	return Threshold{NearMin: t.NearMin, NearMax: t.NearMax, FarMin: t.FarMin, FarMax: t.FarMax, Height: h}
}

// Close releases native detector resources.
func (p *Pipeline) Close() error {
	if p == nil || p.detector == nil {
		return nil
	}
	return p.detector.Close()
}

func (p *Pipeline) WaterDot() Point               { return p.waterDot }
func (p *Pipeline) CanThreshold() Threshold       { return p.canThreshold }
func (p *Pipeline) DepositThreshold() Threshold   { return p.depositThreshold }
func (p *Pipeline) InDepositRegion(pt Point) bool { return p.depositRegion.Contains(pt) }

// LostTarget is the point reported when a resample finds nothing: horizontally
// centered at the far edge, which every threshold treats as aligned.
func (p *Pipeline) LostTarget() Point { return Point{X: p.cfg.Width / 2, Y: 0} }

// DistFromAnchor returns the euclidean distance from the bottom-center anchor.
func (p *Pipeline) DistFromAnchor(pt Point) float64 { return distance(p.anchor, pt) }

func (p *Pipeline) save(category string, img gocv.Mat) {
	if p.images != nil {
		p.images.SaveImage(category, img)
	}
}

// Blur applies the fixed large-kernel Gaussian smoothing. The caller owns the result.
func (p *Pipeline) Blur(frame gocv.Mat) gocv.Mat {
	blurred := gocv.NewMat()
	k := p.cfg.BlurKernel
	gocv.GaussianBlur(frame, &blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)
	p.save("blurred", blurred)
	return blurred
}

// FindCans returns reachable can detections sorted nearest first.
func (p *Pipeline) FindCans(frame gocv.Mat) []Detection {
	if frame.Empty() {
		return nil
	}
	candidates := p.detector.Candidates(frame)
	if len(candidates) == 0 {
		return nil
	}
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	dets := make([]Detection, 0, len(candidates))
	for _, d := range candidates {
		c := d.Center()
		if p.Reachable(hsv, ReachOptions{Target: c, Secondary: &c}) {
			dets = append(dets, d)
		}
	}
	p.sortByDistance(dets)
	return dets
}

// DetectDumpingZone returns the nearest deposit-colored region large enough to
// count, provided the water corridor to it is clear. rear only tags logs and
// saved images.
func (p *Pipeline) DetectDumpingZone(frame gocv.Mat, rear bool) *Detection {
	if frame.Empty() {
		return nil
	}
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, p.dump.lo, p.dump.hi, &mask)
	if rear {
		p.save("dump_rear", mask)
	} else {
		p.save("dump_front", mask)
	}

	dets := p.contourDetections(mask, 0, func(w, h float64) bool {
		return w*h >= p.cfg.MinDumpArea
	})
	if len(dets) == 0 {
		return nil
	}
	p.sortByDistance(dets)
	nearest := dets[0]
	if !p.Reachable(hsv, ReachOptions{Target: nearest.Center()}) {
		if p.logger != nil {
			p.logger.Debug("vision.dump unreachable", "rear", rear, "x", nearest.Center().X, "y", nearest.Center().Y)
		}
		return nil
	}
	return &nearest
}

// contourDetections fits rotated rectangles to every contour in mask and keeps
// those accepted by keep. offset is subtracted from every coordinate.
func (p *Pipeline) contourDetections(mask gocv.Mat, offset int, keep func(w, h float64) bool) []Detection {
	contours := gocv.FindContours(mask, gocv.RetrievalTree, gocv.ChainApproxNone)
	defer contours.Close()

	var dets []Detection
	for i := 0; i < contours.Size(); i++ {
		pv := contours.At(i)
		rect := gocv.MinAreaRect(pv)
		if !keep(float64(rect.Width), float64(rect.Height)) {
			continue
		}
		pts := pv.ToPoints()
		if offset != 0 {
			shift := image.Pt(offset, offset)
			for j := range pts {
				pts[j] = pts[j].Sub(shift)
			}
			moved := make([]image.Point, len(rect.Points))
			for j, bp := range rect.Points {
				moved[j] = bp.Sub(shift)
			}
			rect.Points = moved
			rect.Center = rect.Center.Sub(shift)
		}
		dets = append(dets, NewDetection(rect, pts))
	}
	return dets
}

func (p *Pipeline) sortByDistance(dets []Detection) {
	sort.SliceStable(dets, func(i, j int) bool {
		return p.DistFromAnchor(dets[i].Center()) < p.DistFromAnchor(dets[j].Center())
	})
}

// CanInCriticalRegion reports whether the nearest detection is inside the
// pickup region.
func (p *Pipeline) CanInCriticalRegion(dets []Detection) bool {
	if len(dets) == 0 {
		return false
	}
	return p.canRegion.Contains(dets[0].Center())
}
