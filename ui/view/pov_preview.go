package view

import (
	"image"

	"github.com/soocke/can-bot-go/assets"
	"github.com/soocke/can-bot-go/ui/images"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// PovPreview shows the annotated front camera frame and a zoomed crop of the
// pickup region. It owns two LabelWidgets and provides methods to update or
// reset them.
type PovPreview interface {
	UpdatePreview(img image.Image)
	UpdateRegion(img image.Image)
	Reset()
}

type povPreview struct {
	frameLabel  *LabelWidget
	regionLabel *LabelWidget
	prevFrame   *Img // last Tk photo, deleted before replacement
	prevRegion  *Img
}

const (
	maxPreviewW = 384
	maxPreviewH = 384
)

func placeholderPNG() []byte {
	if len(assets.NoSignalPNG) > 0 {
		return assets.NoSignalPNG
	}
	return images.EncodePNG(image.NewRGBA(image.Rect(0, 0, 200, 120)))
}

// NewPovPreview creates the preview labels in the given row. The frame spans
// columns 0-3; the region crop sits at column 4.
func NewPovPreview(row int) PovPreview {
	png := placeholderPNG()
	framePhoto := NewPhoto(Data(png))
	regionPhoto := NewPhoto(Data(png))
	frame := Label(Image(framePhoto), Borderwidth(1), Relief("sunken"))
	region := Label(Image(regionPhoto), Borderwidth(1), Relief("sunken"))
	Grid(frame, Row(row), Column(0), Columnspan(4), Sticky("we"), Padx("0.4m"), Pady("0.4m"))
	Grid(region, Row(row), Column(4), Sticky("n"), Padx("0.4m"), Pady("0.4m"))
	return &povPreview{frameLabel: frame, regionLabel: region, prevFrame: framePhoto, prevRegion: regionPhoto}
}

func (v *povPreview) UpdatePreview(img image.Image) {
	if v.frameLabel == nil || img == nil {
		return
	}
	v.prevFrame = replacePhoto(v.frameLabel, v.prevFrame, images.EncodePNG(images.ScaleToFit(img, maxPreviewW, maxPreviewH)))
}

func (v *povPreview) UpdateRegion(img image.Image) {
	if v.regionLabel == nil || img == nil {
		return
	}
	v.prevRegion = replacePhoto(v.regionLabel, v.prevRegion, images.EncodePNG(img))
}

func (v *povPreview) Reset() {
	png := placeholderPNG()
	if v.frameLabel != nil {
		v.prevFrame = replacePhoto(v.frameLabel, v.prevFrame, png)
	}
	if v.regionLabel != nil {
		v.prevRegion = replacePhoto(v.regionLabel, v.prevRegion, png)
	}
}

// replacePhoto swaps the label image and frees the old photo.
func replacePhoto(label *LabelWidget, old *Img, png []byte) *Img {
	if old != nil {
		old.Delete()
	}
	photo := NewPhoto(Data(png))
	label.Configure(Image(photo))
	return photo
}
