package theme

// Palette and ttk styles for the robot viewer. The state label switches style
// with the robot state so the current activity is readable from a distance.

import (
	//lint:ignore ST1001 Dot import is intentional for concise Tk widget DSL builders.
	. "modernc.org/tk9.0"
)

// Palette defines core semantic colors used across widgets.
const (
	ColorBg        = "#f7f9fb"
	ColorSurface   = "#ffffff"
	ColorBorder    = "#d0d7de"
	ColorPrimary   = "#2563eb" // looking for cans
	ColorAccent    = "#10b981" // grabbing
	ColorWarn      = "#d97706" // dumping
	ColorDanger    = "#dc2626"
	ColorText      = "#1e293b"
	ColorTextMuted = "#64748b"
)

// PaletteSnapshot represents resolved colors for the active mode.
type PaletteSnapshot struct {
	AppBg     string
	Surface   string
	Border    string
	Primary   string
	Accent    string
	Warn      string
	Danger    string
	Text      string
	TextMuted string
}

// CurrentPalette returns colors for the current dark/light mode.
func CurrentPalette() PaletteSnapshot {
	if darkMode {
		return PaletteSnapshot{
			AppBg:     "#0f172a",
			Surface:   "#1e293b",
			Border:    "#334155",
			Primary:   "#3b82f6",
			Accent:    "#10b981",
			Warn:      "#f59e0b",
			Danger:    "#ef4444",
			Text:      "#f1f5f9",
			TextMuted: "#94a3b8",
		}
	}
	return PaletteSnapshot{
		AppBg:     ColorBg,
		Surface:   ColorSurface,
		Border:    ColorBorder,
		Primary:   ColorPrimary,
		Accent:    ColorAccent,
		Warn:      ColorWarn,
		Danger:    ColorDanger,
		Text:      ColorText,
		TextMuted: ColorTextMuted,
	}
}

// Style names used with Style("primary.TButton") etc.
const (
	StylePrimaryButton = "primary.TButton"
	StyleDangerButton  = "danger.TButton"
	StyleMutedLabel    = "muted.TLabel"
	StyleLookingLabel  = "looking.TLabel"
	StyleGrabbingLabel = "grabbing.TLabel"
	StyleDumpingLabel  = "dumping.TLabel"
)

// StateStyle maps a robot state name to its label style. Unknown names get
// the muted style.
func StateStyle(state string) string {
	switch state {
	case "looking_for_cans":
		return StyleLookingLabel
	case "grabbing_can":
		return StyleGrabbingLabel
	case "dumping_cans":
		return StyleDumpingLabel
	default:
		return StyleMutedLabel
	}
}

var darkMode bool

// InitStyles (re)applies styles for the current mode.
func InitStyles() { applyStyles(CurrentPalette()) }

// SetDark switches mode and reapplies styles. Returns the new mode.
func SetDark(dark bool) bool {
	darkMode = dark
	applyStyles(CurrentPalette())
	return darkMode
}

// IsDark reports current mode.
func IsDark() bool { return darkMode }

func applyStyles(p PaletteSnapshot) {
	_ = ActivateTheme("azure light")
	App.Configure(Background(p.AppBg))

	button := func(name, bg string) {
		StyleConfigure(name, Background(bg), Foreground("white"), Padding("4p 3p"), Borderwidth(1), Relief("ridge"))
	}
	button(StylePrimaryButton, p.Primary)
	button(StyleDangerButton, p.Danger)

	StyleConfigure(StyleMutedLabel, Foreground(p.TextMuted), Background(p.Surface), Padding("2p 1p"))
	state := func(name, bg string) {
		StyleConfigure(name, Foreground("white"), Background(bg), Padding("4p 2p"), Borderwidth(1), Relief("groove"))
	}
	state(StyleLookingLabel, p.Primary)
	state(StyleGrabbingLabel, p.Accent)
	state(StyleDumpingLabel, p.Warn)
}
