package view

import (
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/soocke/can-bot-go/config"
	"github.com/soocke/can-bot-go/ui/theme"

	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// RootView composes the top-level application layout and wires UI callbacks.
// It owns high-level subviews but exposes minimal exported fields for presenters.
type RootView struct {
	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger

	// Subviews
	Session     SessionStats
	ConfigPanel ConfigPanel
	Preview     PovPreview

	// Widgets
	StateLabel *TLabelWidget
	runBtn     *TButtonWidget
	previewRow int
}

// UI abstracts the subset of view operations needed by presenters, enabling decoupling
// from the concrete RootView implementation.
type UI interface {
	SetStateLabel(text string)
	SetConfigEditable(enabled bool)
	UpdatePreview(img image.Image)
	UpdateRegion(img image.Image)
	SetSession(run, total, remaining time.Duration)
	SetCounters(text string)
	SetCycle(text string)
	PreviewReset()
	ConfigEditable(bool)
}

var _ UI = (*RootView)(nil)

func NewRootView(cfg *config.Config, cfgPath string, logger *slog.Logger) *RootView {
	return &RootView{cfg: cfg, cfgPath: cfgPath, logger: logger}
}

// Build constructs the layout. Handlers are invoked on user actions; Escape
// triggers onExit.
func (rv *RootView) Build(onToggleRun func(), onExit func()) {
	if rv == nil {
		return
	}
	// Rows 0-1: timing, counters, state label, buttons frame
	rv.Session = NewSessionStats(0, 0)
	rv.StateLabel = TLabel(Txt("State: stopped"), Style(theme.StyleMutedLabel))
	Grid(rv.StateLabel, Row(0), Column(3), Sticky("we"), Padx("0.4m"), Pady("0.3m"))

	btnFrame := Frame()
	Grid(btnFrame, Row(0), Column(4), Rowspan(2), Sticky("ne"), Padx("0.3m"), Pady("0.3m"))
	rv.runBtn = TButton(Txt("Start Run"), Style(theme.StylePrimaryButton), Command(onToggleRun))
	Grid(rv.runBtn, In(btnFrame), Row(0), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	exitBtn := TButton(Txt("Exit [Esc]"), Style(theme.StyleDangerButton), Command(onExit))
	Grid(exitBtn, In(btnFrame), Row(1), Column(0), Sticky("we"), Padx("0.2m"), Pady("0.2m"))
	Bind(App, "<Escape>", Command(onExit))

	// Config panel rows
	rv.ConfigPanel = NewConfigPanel(rv.cfg, rv.cfgPath, rv.logger)
	rv.previewRow = rv.ConfigPanel.Build(2)

	rv.Preview = NewPovPreview(rv.previewRow)
}

// SetStateLabel updates the state label text and colors it by state.
func (rv *RootView) SetStateLabel(text string) {
	if rv == nil || rv.StateLabel == nil {
		return
	}
	state := strings.TrimPrefix(text, "State: ")
	rv.StateLabel.Configure(Txt(text), Style(theme.StateStyle(state)))
}

// SetConfigEditable toggles config panel editability and the run button caption.
func (rv *RootView) SetConfigEditable(enabled bool) {
	if rv == nil {
		return
	}
	if rv.ConfigPanel != nil {
		rv.ConfigPanel.SetEditable(enabled)
	}
	if rv.runBtn != nil {
		caption := "Stop Run"
		if enabled {
			caption = "Start Run"
		}
		rv.runBtn.Configure(Txt(caption))
	}
}

func (rv *RootView) UpdatePreview(img image.Image) {
	if rv != nil && rv.Preview != nil {
		rv.Preview.UpdatePreview(img)
	}
}

func (rv *RootView) UpdateRegion(img image.Image) {
	if rv != nil && rv.Preview != nil {
		rv.Preview.UpdateRegion(img)
	}
}

func (rv *RootView) SetSession(run, total, remaining time.Duration) {
	if rv != nil && rv.Session != nil {
		rv.Session.SetSession(run, total, remaining)
	}
}

func (rv *RootView) SetCounters(text string) {
	if rv != nil && rv.Session != nil {
		rv.Session.SetCounters(text)
	}
}

func (rv *RootView) SetCycle(text string) {
	if rv != nil && rv.Session != nil {
		rv.Session.SetCycle(text)
	}
}

// --- RunPresenter view contract methods ---
// PreviewReset clears the preview.
func (rv *RootView) PreviewReset() {
	if rv != nil && rv.Preview != nil {
		rv.Preview.Reset()
	}
}

// ConfigEditable redirects to SetConfigEditable to satisfy RunView.
func (rv *RootView) ConfigEditable(b bool) { rv.SetConfigEditable(b) }
