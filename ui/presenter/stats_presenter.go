package presenter

import (
	"fmt"
	"time"

	"github.com/soocke/can-bot-go/domain/robot"
)

// SnapshotSource exposes the last finished cycle.
type SnapshotSource interface{ Latest() robot.Snapshot }

// StatsView shows robot counters and cycle information.
type StatsView interface {
	SetCounters(text string)
	SetCycle(text string)
}

// StatsPresenter formats the latest cycle snapshot for the view.
type StatsPresenter struct {
	src       SnapshotSource
	view      StatsView
	lastCycle int
}

func NewStatsPresenter(src SnapshotSource, view StatsView) *StatsPresenter {
	return &StatsPresenter{src: src, view: view, lastCycle: -1}
}

// SetSource swaps the snapshot source, e.g. when a new run starts.
func (p *StatsPresenter) SetSource(src SnapshotSource) {
	if p == nil {
		return
	}
	p.src = src
	p.lastCycle = -1
}

// Tick pushes the latest snapshot when a new cycle finished.
func (p *StatsPresenter) Tick() {
	if p == nil || p.src == nil || p.view == nil {
		return
	}
	s := p.src.Latest()
	if s.Cycle == p.lastCycle {
		return
	}
	p.lastCycle = s.Cycle
	p.view.SetCounters(FormatCounters(s))
	p.view.SetCycle(FormatCycle(s))
}

// FormatCounters renders held and dumped cans.
func FormatCounters(s robot.Snapshot) string {
	crit := ""
	if s.InCritical {
		crit = " (pickup)"
	}
	return fmt.Sprintf("Held: %d%s  Dumped: %d", s.Held, crit, s.Dumped)
}

// FormatCycle renders cycle number, detections and latency.
func FormatCycle(s robot.Snapshot) string {
	dump := "no"
	if s.DumpSeen {
		dump = "yes"
	}
	return fmt.Sprintf("Cycle %d  cans %d  zone %s  %dms", s.Cycle, s.Detections, dump, s.Latency.Round(time.Millisecond).Milliseconds())
}
