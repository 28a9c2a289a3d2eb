package components

import (
	"fmt"
	"math"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/mindbridge/mindbridge/internal/assessment"
	"github.com/mindbridge/mindbridge/internal/ui/theme"
)

// pulseWidth is the width of the moving block in indeterminate mode.
const pulseWidth = 6

// ProgressBar displays a horizontal progress bar. When Indeterminate is set
// a block sweeps across the track instead, advanced by Frame.
type ProgressBar struct {
	Label         string
	Percent       float64
	ShowPercent   bool
	Indeterminate bool
	Frame         int
	Width         int
}

// NewProgressBar creates a new progress bar. percent is in [0, 1].
func NewProgressBar(label string, percent float64, showPercent bool, width int) ProgressBar {
	return ProgressBar{
		Label:       label,
		Percent:     percent,
		ShowPercent: showPercent,
		Width:       width,
	}
}

// FromProgress builds a bar from an assessment progress projection.
func FromProgress(p assessment.Progress, frame, width int) ProgressBar {
	return ProgressBar{
		Label:         p.Label,
		Percent:       float64(p.Percent) / 100,
		ShowPercent:   !p.Indeterminate,
		Indeterminate: p.Indeterminate,
		Frame:         frame,
		Width:         width,
	}
}

// View renders the progress bar.
func (p ProgressBar) View() string {
	var result string

	if p.Label != "" {
		result += lipgloss.NewStyle().Foreground(theme.Text).Render(p.Label) + "  "
	}

	labelWidth := lipgloss.Width(result)
	percentWidth := 0
	if p.ShowPercent {
		percentWidth = 6 // " 100%"
	}

	barWidth := max(p.Width-labelWidth-percentWidth, 4)

	if p.Indeterminate {
		return result + p.pulse(barWidth)
	}

	filled := min(max(int(float64(barWidth)*p.Percent), 0), barWidth)
	empty := barWidth - filled

	result += theme.ProgressFilled.Render(strings.Repeat(" ", filled)) +
		theme.ProgressEmpty.Render(strings.Repeat(" ", empty))

	if p.ShowPercent {
		result += lipgloss.NewStyle().
			Foreground(theme.TextDim).
			Render(fmt.Sprintf("  %d%%", int(math.Round(p.Percent*100))))
	}

	return result
}

func (p ProgressBar) pulse(barWidth int) string {
	block := min(pulseWidth, barWidth)
	span := barWidth - block + 1
	start := 0
	if span > 0 {
		start = ((p.Frame % span) + span) % span
	}
	return theme.ProgressEmpty.Render(strings.Repeat(" ", start)) +
		theme.ProgressPulse.Render(strings.Repeat(" ", block)) +
		theme.ProgressEmpty.Render(strings.Repeat(" ", barWidth-start-block))
}
