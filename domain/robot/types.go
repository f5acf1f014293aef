// Package robot runs the perception-decision-action loop: every cycle it
// scans, picks a state from the scan and the held-can count, and dispatches
// to the search, grab, evade or dump routine.
package robot

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/soocke/can-bot-go/domain/vision"
)

// State enumerates what the robot is doing this cycle.
type State int

const (
	LookingForCans State = iota
	GrabbingCan
	DumpingCans
)

func (s State) String() string {
	switch s {
	case LookingForCans:
		return "looking_for_cans"
	case GrabbingCan:
		return "grabbing_can"
	case DumpingCans:
		return "dumping_cans"
	default:
		return "unknown"
	}
}

// NextState picks the state for a cycle. Cans always win; the deposit zone
// only matters while cans are held.
func NextState(dets []vision.Detection, dump *vision.Detection, held int) State {
	switch {
	case len(dets) > 0:
		return GrabbingCan
	case dump != nil && held > 0:
		return DumpingCans
	default:
		return LookingForCans
	}
}

// StateListener is called on every state change.
type StateListener func(prev, next State)

// Perception is the vision surface used by the loop. *vision.Pipeline
// implements it.
type Perception interface {
	Blur(frame gocv.Mat) gocv.Mat
	FindCans(frame gocv.Mat) []vision.Detection
	DetectDumpingZone(frame gocv.Mat, rear bool) *vision.Detection
	PathClear(frame gocv.Mat) bool
	CanInCriticalRegion(dets []vision.Detection) bool
	InDepositRegion(p vision.Point) bool
	DistFromAnchor(p vision.Point) float64
	CanThreshold() vision.Threshold
	DepositThreshold() vision.Threshold
	LostTarget() vision.Point
	Annotate(frame *gocv.Mat, o vision.Overlay)
}

var _ Perception = (*vision.Pipeline)(nil)

// ScanResult is one cycle's snapshot. Close releases both frames.
type ScanResult struct {
	Frame      gocv.Mat
	Blurred    gocv.Mat
	Detections []vision.Detection
	Proximity  []int
	Dump       *vision.Detection
}

func (s *ScanResult) Close() {
	_ = s.Frame.Close()
	_ = s.Blurred.Close()
}

// Snapshot is the externally visible session state after a cycle.
type Snapshot struct {
	Cycle      int
	State      State
	Detections int
	DumpSeen   bool
	Held       int
	Dumped     int
	InCritical bool
	Elapsed    time.Duration
	Latency    time.Duration
}

// CycleObserver is notified at the end of every cycle, in the loop goroutine.
type CycleObserver interface {
	CycleDone(Snapshot)
}

// FramePublisher receives the annotated front frame of each cycle. The frame
// is only valid during the call.
type FramePublisher interface {
	PublishFrame(frame gocv.Mat)
}

// Report summarizes a finished run.
type Report struct {
	Runtime string
	Dumped  int
	Held    int
	Cycles  LatencySummary
}
