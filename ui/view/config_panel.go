package view

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/soocke/can-bot-go/config"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// ConfigPanel encapsulates the loop tuning form. It writes back into
// *config.Config on ApplyChanges; the next run picks the values up.
type ConfigPanel interface {
	Build(startRow int) (endRow int) // constructs widgets starting at startRow, returns next free row
	SetEditable(enabled bool)
	ApplyChanges() // parses widget text into underlying config and persists
}

type configPanel struct {
	cfg      *config.Config
	cfgPath  string
	logger   *slog.Logger
	applyBtn *ButtonWidget
	widgets  map[string]*TextWidget // keyed by internal field id
}

// NewConfigPanel creates the view bound to cfg.
func NewConfigPanel(cfg *config.Config, cfgPath string, logger *slog.Logger) ConfigPanel {
	return &configPanel{cfg: cfg, cfgPath: cfgPath, logger: logger, widgets: make(map[string]*TextWidget)}
}

func (v *configPanel) Build(startRow int) (row int) {
	c := v.cfg
	l := c.Loop
	row = startRow
	makeRow := func(id, label, value string) {
		lbl := Label(Txt(label), Anchor("w"))
		Grid(lbl, Row(row), Column(0), Sticky("w"), Padx("0.4m"), Pady("0.15m"))
		w := Text(Height(1), Width(16))
		Grid(w, Row(row), Column(1), Sticky("we"), Padx("0.4m"), Pady("0.15m"))
		w.Delete("1.0", END)
		w.Insert("1.0", value)
		v.widgets[id] = w
		row++
	}
	makeRow("algorithm", "Algorithm (min-rect/blob-detector)", c.Algorithm)
	makeRow("noMove", "No Move (true/false)", fmt.Sprintf("%t", c.NoMove))
	makeRow("sessionSecs", "Session Seconds", fmt.Sprintf("%.0f", l.SessionSecs))
	makeRow("brushOnSecs", "Brush On Seconds", fmt.Sprintf("%.1f", l.BrushOnSecs))
	makeRow("maxSearchSecs", "Max Search Seconds", fmt.Sprintf("%.1f", l.MaxSearchSecs))
	makeRow("sweepSteps", "Sweep Steps", fmt.Sprintf("%d", l.SweepSteps))
	makeRow("evadeSteps", "Evade Steps", fmt.Sprintf("%d", l.EvadeSteps))
	makeRow("alignTimeoutSecs", "Align Timeout Seconds", fmt.Sprintf("%.1f", l.AlignTimeoutSecs))
	makeRow("dumpPhaseSecs", "Dump Phase Seconds", fmt.Sprintf("%.1f", l.DumpPhaseSecs))
	makeRow("proximityStop", "Proximity Stop", fmt.Sprintf("%d", l.ProximityStop))
	makeRow("proximityTolerance", "Proximity Tolerance", fmt.Sprintf("%d", l.ProximityTolerance))
	v.applyBtn = Button(Txt("Apply Changes"), Command(func() { v.ApplyChanges() }))
	Grid(v.applyBtn, Row(row), Column(0), Columnspan(2), Sticky("we"), Padx("0.4m"), Pady("0.3m"))
	row++
	return row
}

func (v *configPanel) SetEditable(enabled bool) {
	state := "disabled"
	if enabled {
		state = "normal"
	}
	for _, w := range v.widgets {
		if w != nil {
			w.Configure(State(state))
		}
	}
	if v.applyBtn != nil {
		v.applyBtn.Configure(State(state))
	}
}

func (v *configPanel) text(id string) (string, bool) {
	w := v.widgets[id]
	if w == nil {
		return "", false
	}
	return strings.TrimSpace(strings.Join(w.Get("1.0", END), "")), true
}

func (v *configPanel) ApplyChanges() {
	if v.cfg == nil {
		return
	}
	cfg := *v.cfg // copy
	assignFloat := func(id string, dst *float64) {
		if s, ok := v.text(id); ok {
			if f, ok := parseFloatField(s); ok {
				*dst = f
			}
		}
	}
	assignInt := func(id string, dst *int) {
		if s, ok := v.text(id); ok {
			if i, ok := parseIntField(s); ok {
				*dst = i
			}
		}
	}
	if s, ok := v.text("algorithm"); ok && s != "" {
		cfg.Algorithm = s
	}
	if s, ok := v.text("noMove"); ok {
		if b, ok := parseBoolLoose(s); ok {
			cfg.NoMove = b
		}
	}
	assignFloat("sessionSecs", &cfg.Loop.SessionSecs)
	assignFloat("brushOnSecs", &cfg.Loop.BrushOnSecs)
	assignFloat("maxSearchSecs", &cfg.Loop.MaxSearchSecs)
	assignInt("sweepSteps", &cfg.Loop.SweepSteps)
	assignInt("evadeSteps", &cfg.Loop.EvadeSteps)
	assignFloat("alignTimeoutSecs", &cfg.Loop.AlignTimeoutSecs)
	assignFloat("dumpPhaseSecs", &cfg.Loop.DumpPhaseSecs)
	assignInt("proximityStop", &cfg.Loop.ProximityStop)
	assignInt("proximityTolerance", &cfg.Loop.ProximityTolerance)
	if err := cfg.Validate(); err != nil {
		if v.logger != nil {
			v.logger.Warn("config rejected", "error", err)
		}
		return
	}
	*v.cfg = cfg
	if v.cfgPath == "" {
		return
	}
	if err := v.cfg.Save(v.cfgPath); err != nil {
		if v.logger != nil {
			v.logger.Error("config save failed", "error", err)
		}
	} else if v.logger != nil {
		v.logger.Info("config saved", "path", v.cfgPath)
	}
}

// parsing helpers (unexported)
func parseFloatField(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
func parseIntField(s string) (int, bool) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return i, true
}
func parseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on", "t":
		return true, true
	case "false", "0", "no", "n", "off", "f":
		return false, true
	default:
		return false, false
	}
}
