package view

import (
	"fmt"
	"time"

	//lint:ignore ST1001 Dot import for concise Tk widget DSL.
	. "modernc.org/tk9.0"
)

// SessionStats shows run timing and the robot counters.
type SessionStats interface {
	SetSession(run, total, remaining time.Duration)
	SetCounters(text string)
	SetCycle(text string)
}

type sessionStats struct {
	runLbl      *LabelWidget
	leftLbl     *LabelWidget
	totalLbl    *LabelWidget
	countersLbl *LabelWidget
	cycleLbl    *LabelWidget
}

// NewSessionStats lays out the timing labels at (row, startCol..startCol+2)
// and the counters one row below.
func NewSessionStats(row, startCol int) SessionStats {
	s := &sessionStats{
		runLbl:      Label(Width(14)),
		leftLbl:     Label(Width(14)),
		totalLbl:    Label(Width(14)),
		countersLbl: Label(Anchor("w")),
		cycleLbl:    Label(Anchor("w")),
	}
	Grid(s.runLbl, Row(row), Column(startCol), Sticky("w"), Padx("0.2m"))
	Grid(s.leftLbl, Row(row), Column(startCol+1), Sticky("w"), Padx("0.2m"))
	Grid(s.totalLbl, Row(row), Column(startCol+2), Sticky("w"), Padx("0.2m"))
	Grid(s.countersLbl, Row(row+1), Column(startCol), Columnspan(2), Sticky("w"), Padx("0.2m"))
	Grid(s.cycleLbl, Row(row+1), Column(startCol+2), Columnspan(2), Sticky("w"), Padx("0.2m"))
	s.SetSession(0, 0, 0)
	s.SetCounters("Held: 0  Dumped: 0")
	s.SetCycle("Cycle -")
	return s
}

func mmss(d time.Duration) string {
	seconds := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func (s *sessionStats) SetSession(run, total, remaining time.Duration) {
	if s == nil || s.runLbl == nil {
		return
	}
	s.runLbl.Configure(Txt("Run: " + mmss(run)))
	s.leftLbl.Configure(Txt("Left: " + mmss(remaining)))
	s.totalLbl.Configure(Txt("Total: " + mmss(total)))
}

func (s *sessionStats) SetCounters(text string) {
	if s != nil && s.countersLbl != nil {
		s.countersLbl.Configure(Txt(text))
	}
}

func (s *sessionStats) SetCycle(text string) {
	if s != nil && s.cycleLbl != nil {
		s.cycleLbl.Configure(Txt(text))
	}
}
