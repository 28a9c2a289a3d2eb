package components

import (
	"image/color"

	"charm.land/lipgloss/v2"

	"github.com/mindbridge/mindbridge/internal/ui/theme"
)

// ContentWidth returns the inner width shared by every panel on a screen so
// stacked boxes line up.
func ContentWidth(frameWidth int) int {
	// frame border (2) + inner padding (4)
	return max(min(frameWidth-6, 72), 20)
}

// Panel wraps content in a rounded card at content width cw.
func Panel(content string, cw int) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border).
		Width(cw-2).
		Padding(1, 2).
		Render(content)
}

// AccentPanel is a Panel with a colored border, used for results and
// warnings.
func AccentPanel(content string, cw int, accent color.Color) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Width(cw-2).
		Padding(1, 2).
		Render(content)
}

// Center places block in the middle of a width x height area.
func Center(block string, width, height int) string {
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, block)
}
