package images

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

// CropRegion copies r out of frame, clamped to the frame bounds. A region
// that misses the frame entirely is an error.
func CropRegion(frame image.Image, r image.Rectangle) (*image.NRGBA, image.Rectangle, error) {
	if frame == nil {
		return nil, image.Rectangle{}, errors.New("nil frame")
	}
	clamped := r.Canon().Intersect(frame.Bounds())
	if clamped.Empty() {
		return nil, image.Rectangle{}, errors.New("region outside frame")
	}
	return imaging.Crop(frame, clamped), clamped, nil
}

// Zoom crops r and enlarges it so its longer side is size pixels.
func Zoom(frame image.Image, r image.Rectangle, size int) (*image.NRGBA, error) {
	crop, _, err := CropRegion(frame, r)
	if err != nil {
		return nil, err
	}
	if size < 1 {
		return crop, nil
	}
	b := crop.Bounds()
	if b.Dx() >= b.Dy() {
		return imaging.Resize(crop, size, 0, imaging.NearestNeighbor), nil
	}
	return imaging.Resize(crop, 0, size, imaging.NearestNeighbor), nil
}
