package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soocke/can-bot-go/domain/robot"
)

const publishTimeout = 2 * time.Second

// Message kinds.
const (
	KindState    = "state"
	KindCycle    = "cycle"
	KindCounters = "counters"
	KindImage    = "image"
	KindReport   = "report"
)

// Recorder fans robot notifications out to the store and publishers. Sink
// failures are logged and never stop the robot.
type Recorder struct {
	store  *Store
	pubs   []Publisher
	runID  string
	logger *slog.Logger

	mu         sync.Mutex
	lastHeld   int
	lastDumped int
}

// NewRecorder starts a run. store may be nil; the run id is then generated
// locally.
func NewRecorder(store *Store, pubs []Publisher, mode, algorithm string, logger *slog.Logger) (*Recorder, error) {
	r := &Recorder{store: store, pubs: pubs, logger: logger}
	if store != nil {
		id, err := store.StartRun(mode, algorithm)
		if err != nil {
			return nil, err
		}
		r.runID = id
	} else {
		r.runID = uuid.NewString()
	}
	logger.Info("telemetry run started", "run_id", r.runID, "publishers", len(pubs), "store", store != nil)
	return r, nil
}

func (r *Recorder) RunID() string { return r.runID }

type stateMessage struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type cycleMessage struct {
	Cycle      int     `json:"cycle"`
	State      string  `json:"state"`
	Detections int     `json:"detections"`
	DumpSeen   bool    `json:"dump_seen"`
	Held       int     `json:"held"`
	Dumped     int     `json:"dumped"`
	InCritical bool    `json:"in_critical"`
	ElapsedS   float64 `json:"elapsed_s"`
	LatencyMS  float64 `json:"latency_ms"`
}

type imageMessage struct {
	Category   string `json:"category"`
	Path       string `json:"path"`
	Generation int    `json:"generation"`
}

// StateChanged matches robot.StateListener.
func (r *Recorder) StateChanged(prev, next robot.State) {
	if r.store != nil {
		if _, err := r.store.InsertEvent(Event{RunID: r.runID, Kind: KindState, Detail: prev.String() + "->" + next.String()}); err != nil {
			r.logger.Warn("telemetry store state", "error", err)
		}
	}
	r.publish(KindState, stateMessage{From: prev.String(), To: next.String()})
}

// CycleDone implements robot.CycleObserver.
func (r *Recorder) CycleDone(s robot.Snapshot) {
	r.publish(KindCycle, cycleMessage{
		Cycle:      s.Cycle,
		State:      s.State.String(),
		Detections: s.Detections,
		DumpSeen:   s.DumpSeen,
		Held:       s.Held,
		Dumped:     s.Dumped,
		InCritical: s.InCritical,
		ElapsedS:   s.Elapsed.Seconds(),
		LatencyMS:  float64(s.Latency) / float64(time.Millisecond),
	})

	r.mu.Lock()
	changed := s.Held != r.lastHeld || s.Dumped != r.lastDumped
	r.lastHeld, r.lastDumped = s.Held, s.Dumped
	r.mu.Unlock()
	if !changed {
		return
	}
	if r.store != nil {
		e := Event{RunID: r.runID, Kind: KindCounters, Detail: fmt.Sprintf("cycle %d", s.Cycle), Held: s.Held, Dumped: s.Dumped}
		if _, err := r.store.InsertEvent(e); err != nil {
			r.logger.Warn("telemetry store counters", "error", err)
		}
	}
}

// ImageSaved matches ImageSavedFunc.
func (r *Recorder) ImageSaved(category, path string, generation int) {
	if r.store != nil {
		if err := r.store.InsertImage(r.runID, Image{Category: category, Path: path, Generation: generation}); err != nil {
			r.logger.Warn("telemetry store image", "error", err)
		}
	}
	r.publish(KindImage, imageMessage{Category: category, Path: path, Generation: generation})
}

// Finish stores and publishes the final report.
func (r *Recorder) Finish(rep robot.Report) error {
	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
	run := Run{
		ID:          r.runID,
		Runtime:     rep.Runtime,
		Dumped:      rep.Dumped,
		Held:        rep.Held,
		Cycles:      rep.Cycles.Cycles,
		CycleMeanMS: ms(rep.Cycles.Mean),
		CycleP95MS:  ms(rep.Cycles.P95),
	}
	r.publish(KindReport, run)
	if r.store == nil {
		return nil
	}
	return r.store.FinishRun(run)
}

func (r *Recorder) publish(kind string, v any) {
	if len(r.pubs) == 0 {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn("telemetry encode", "kind", kind, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	for _, p := range r.pubs {
		if err := p.Publish(ctx, r.runID, kind, payload); err != nil {
			r.logger.Debug("telemetry publish", "kind", kind, "error", err)
		}
	}
}

// Close releases publishers and the store.
func (r *Recorder) Close() error {
	var errs []error
	for _, p := range r.pubs {
		errs = append(errs, p.Close())
	}
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	return errors.Join(errs...)
}

var _ robot.CycleObserver = (*Recorder)(nil)
