package theme

import (
	"image/color"

	"charm.land/lipgloss/v2"
)

// Color palette: muted and calm, high enough contrast to read comfortably.
var (
	Primary   = lipgloss.Color("#7C9CBF") // Soft Blue
	Secondary = lipgloss.Color("#6FB3A8") // Sage Teal
	Accent    = lipgloss.Color("#D9A86C") // Warm Sand
	Success   = lipgloss.Color("#7FB77E") // Moss
	Error     = lipgloss.Color("#D9777F") // Muted Rose
	Text      = lipgloss.Color("#E8ECF1") // Off White
	TextDim   = lipgloss.Color("#8A96A8") // Slate
	BgDark    = lipgloss.Color("#141A23") // Night
	BgCard    = lipgloss.Color("#1F2733") // Dusk
	Border    = lipgloss.Color("#364152") // Slate Border
)

// Risk tier colors.
var (
	RiskLow    = Success
	RiskMedium = Accent
	RiskHigh   = Error
)

// RiskColor returns the color for a risk tier name.
func RiskColor(level string) color.Color {
	switch level {
	case "low":
		return RiskLow
	case "medium":
		return RiskMedium
	case "high":
		return RiskHigh
	}
	return TextDim
}

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		Align(lipgloss.Center)

	Subtitle = lipgloss.NewStyle().
			Foreground(TextDim).
			Align(lipgloss.Center)

	Body = lipgloss.NewStyle().
		Foreground(Text)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)
)

// Layout
var (
	Card = lipgloss.NewStyle().
		Background(BgCard).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(1, 2)
)

// States
var (
	Selected = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	Unselected = lipgloss.NewStyle().
			Foreground(Text)

	Chosen = lipgloss.NewStyle().
		Foreground(Secondary).
		Bold(true)

	Warning = lipgloss.NewStyle().
		Foreground(Accent)

	Failure = lipgloss.NewStyle().
		Foreground(Error).
		Bold(true)
)

// Components
var (
	ProgressFilled = lipgloss.NewStyle().
			Background(Secondary)

	ProgressEmpty = lipgloss.NewStyle().
			Background(Border)

	ProgressPulse = lipgloss.NewStyle().
			Background(Primary)
)
