package capture

import (
	"image"
	"time"
)

// FrameSnapshot carries the latest published frame and metadata.
type FrameSnapshot struct {
	Image      *image.RGBA
	CapturedAt time.Time
	Sequence   uint64
}

// FeedStats summarises feed behaviour for instrumentation.
type FeedStats struct {
	Published        uint64
	Skipped          uint64
	AvgConvert       time.Duration
	AvgConvertMicros float64
	LastPublish      time.Time
	LatestFrameAge   time.Duration
	Sequence         uint64
}
