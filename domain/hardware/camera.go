package hardware

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ErrCameraUnavailable is returned when a capture device cannot be opened or
// stops producing frames.
var ErrCameraUnavailable = errors.New("camera unavailable")

// Camera reads frames into a caller-owned matrix.
type Camera interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// OpenCamera opens the capture device id and checks that it yields a frame.
func OpenCamera(id int) (Camera, error) {
	vc, err := gocv.VideoCaptureDevice(id)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrCameraUnavailable, id, err)
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1)
	probe := gocv.NewMat()
	defer probe.Close()
	if !vc.IsOpened() || !vc.Read(&probe) || probe.Empty() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: device %d returned no frame", ErrCameraUnavailable, id)
	}
	return vc, nil
}

// grab reads one frame from cam and resizes it to w x h.
func grab(cam Camera, w, h int) (gocv.Mat, error) {
	if cam == nil {
		return gocv.NewMat(), ErrCameraUnavailable
	}
	raw := gocv.NewMat()
	defer raw.Close()
	if !cam.Read(&raw) || raw.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: read failed", ErrCameraUnavailable)
	}
	out := gocv.NewMat()
	gocv.Resize(raw, &out, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
	return out, nil
}
