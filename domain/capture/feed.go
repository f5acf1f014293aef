package capture

import (
	"image"
	"image/draw"
	"log/slog"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/soocke/can-bot-go/domain/robot"
)

const feedStatsLogInterval = 5 * time.Second

// Feed converts the frames handed over by the decision loop into RGBA
// snapshots. Frames arriving faster than the minimum interval are skipped.
// Use NewFeed to construct an instance.
type Feed struct {
	running      atomic.Bool
	latest       atomic.Pointer[FrameSnapshot]
	minInterval  time.Duration
	logger       *slog.Logger
	published    atomic.Uint64
	skipped      atomic.Uint64
	convertNanos atomic.Uint64
	sequence     atomic.Uint64
	lastLog      atomic.Int64
}

// NewFeed returns a stopped feed.
func NewFeed(logger *slog.Logger, minInterval time.Duration) *Feed {
	return &Feed{logger: logger, minInterval: minInterval}
}

func (f *Feed) LatestFrame() FrameSnapshot {
	snap := f.latest.Load()
	if snap == nil {
		return FrameSnapshot{}
	}
	return *snap
}

func (f *Feed) Running() bool { return f.running.Load() }

func (f *Feed) Start() {
	if f.running.Swap(true) {
		return
	}
	f.lastLog.Store(time.Now().UnixNano())
}

// Stop ignores further frames and drops the latest snapshot.
func (f *Feed) Stop() {
	if !f.running.Swap(false) {
		return
	}
	f.latest.Store(nil)
	f.logStats()
}

func (f *Feed) Stats() FeedStats {
	published := f.published.Load()
	total := f.convertNanos.Load()
	var avg time.Duration
	avgMicros := 0.0
	if published > 0 && total > 0 {
		avg = time.Duration(total / published)
		avgMicros = float64(avg) / float64(time.Microsecond)
	}
	snapshot := f.LatestFrame()
	age := time.Duration(0)
	if !snapshot.CapturedAt.IsZero() {
		age = time.Since(snapshot.CapturedAt)
	}
	return FeedStats{
		Published:        published,
		Skipped:          f.skipped.Load(),
		AvgConvert:       avg,
		AvgConvertMicros: avgMicros,
		LastPublish:      snapshot.CapturedAt,
		LatestFrameAge:   age,
		Sequence:         snapshot.Sequence,
	}
}

// PublishFrame implements robot.FramePublisher. The Mat is copied; the caller
// keeps ownership.
func (f *Feed) PublishFrame(frame gocv.Mat) {
	if !f.running.Load() || frame.Empty() {
		return
	}
	start := time.Now()
	if prev := f.latest.Load(); prev != nil && f.minInterval > 0 && start.Sub(prev.CapturedAt) < f.minInterval {
		f.skipped.Add(1)
		return
	}
	img, err := frame.ToImage()
	if err != nil {
		f.skipped.Add(1)
		if f.logger != nil {
			f.logger.Error("feed convert", "error", err)
		}
		return
	}
	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(img.Bounds())
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	}

	now := time.Now()
	f.convertNanos.Add(uint64(now.Sub(start).Nanoseconds()))
	f.published.Add(1)
	seq := f.sequence.Add(1)
	f.latest.Store(&FrameSnapshot{Image: rgba, CapturedAt: now, Sequence: seq})

	if last := f.lastLog.Load(); now.UnixNano()-last >= int64(feedStatsLogInterval) && f.lastLog.CompareAndSwap(last, now.UnixNano()) {
		f.logStats()
	}
}

func (f *Feed) logStats() {
	if f.logger == nil {
		return
	}
	stats := f.Stats()
	f.logger.Debug("feed.stats",
		"published", stats.Published,
		"skipped", stats.Skipped,
		"avg_convert", stats.AvgConvert,
		"age", stats.LatestFrameAge,
	)
}

var (
	_ Service              = (*Feed)(nil)
	_ robot.FramePublisher = (*Feed)(nil)
)
