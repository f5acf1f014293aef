package presenter

import (
	"image"
	"log/slog"

	"github.com/soocke/can-bot-go/domain/capture"
	"github.com/soocke/can-bot-go/ui/images"
)

// PreviewView describes the UI surface updated by the presenter.
type PreviewView interface {
	UpdatePreview(img image.Image)
	UpdateRegion(img image.Image)
}

// PreviewPresenter pushes new feed frames to the view together with a zoomed
// crop of the pickup region.
type PreviewPresenter struct {
	src     capture.FrameSource
	view    PreviewView
	region  image.Rectangle
	zoom    int
	logger  *slog.Logger
	lastSeq uint64
}

// NewPreviewPresenter constructs a preview presenter. region is in frame
// coordinates; zoom is the longer side of the region preview.
func NewPreviewPresenter(src capture.FrameSource, view PreviewView, region image.Rectangle, zoom int, logger *slog.Logger) *PreviewPresenter {
	return &PreviewPresenter{src: src, view: view, region: region, zoom: zoom, logger: logger}
}

// ProcessFrame pulls the latest frame and updates the view when it changed.
func (p *PreviewPresenter) ProcessFrame() {
	if p == nil || p.src == nil || p.view == nil || !p.src.Running() {
		return
	}
	snap := p.src.LatestFrame()
	if snap.Image == nil || snap.Sequence == p.lastSeq {
		return
	}
	p.lastSeq = snap.Sequence
	p.view.UpdatePreview(snap.Image)
	if p.region.Empty() {
		return
	}
	crop, err := images.Zoom(snap.Image, p.region, p.zoom)
	if err != nil {
		if p.logger != nil {
			p.logger.Debug("region preview", "error", err)
		}
		return
	}
	p.view.UpdateRegion(crop)
}
