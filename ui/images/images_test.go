package images

import (
	"image"
	"testing"
)

func TestCropRegion_ClampsToFrame(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))
	crop, rect, err := CropRegion(frame, image.Rect(80, 90, 140, 120))
	if err != nil || crop == nil {
		t.Fatalf("expected crop, got err=%v", err)
	}
	if rect != image.Rect(80, 90, 100, 100) {
		t.Fatalf("unexpected clamp %v", rect)
	}
	if crop.Bounds().Dx() != 20 || crop.Bounds().Dy() != 10 {
		t.Fatalf("expected 20x10, got %v", crop.Bounds())
	}
}

func TestCropRegion_OutsideFrame(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 10, 10))
	if _, _, err := CropRegion(frame, image.Rect(20, 20, 30, 30)); err == nil {
		t.Fatalf("expected error for region outside frame")
	}
	if _, _, err := CropRegion(nil, image.Rect(0, 0, 1, 1)); err == nil {
		t.Fatalf("expected error for nil frame")
	}
}

func TestZoom_LongerSide(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 512, 512))
	z, err := Zoom(frame, image.Rect(100, 400, 400, 512), 150)
	if err != nil {
		t.Fatalf("zoom: %v", err)
	}
	if z.Bounds().Dx() != 150 {
		t.Fatalf("expected width 150, got %v", z.Bounds())
	}
}

func TestScaleToFit(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 512, 256))
	if got := ScaleToFit(src, 600, 600); got != image.Image(src) {
		t.Fatalf("image within bounds should be returned as is")
	}
	b := ScaleToFit(src, 256, 256).Bounds()
	if b.Dx() != 256 || b.Dy() != 128 {
		t.Fatalf("expected 256x128, got %v", b)
	}
	if ScaleToFit(nil, 10, 10) != nil {
		t.Fatalf("nil in, nil out")
	}
}

func TestEncodePNG(t *testing.T) {
	if EncodePNG(nil) != nil {
		t.Fatalf("nil image should encode to nil")
	}
	if len(EncodePNG(image.NewRGBA(image.Rect(0, 0, 4, 4)))) == 0 {
		t.Fatalf("expected png bytes")
	}
}
