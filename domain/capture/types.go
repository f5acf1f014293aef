// Package capture keeps the latest annotated robot view for consumers that
// run outside the decision loop, such as the desktop viewer.
package capture

// FrameSource provides read-only access to published frames.
// LatestFrame returns the freshest snapshot while Running reports activity.
type FrameSource interface {
	LatestFrame() FrameSnapshot
	Running() bool
}

// Service is the lifecycle the app drives around a run.
type Service interface {
	FrameSource
	Start()
	Stop()
	Stats() FeedStats
}
