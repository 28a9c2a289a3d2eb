package home

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/mindbridge/mindbridge/internal/risk"
	"github.com/mindbridge/mindbridge/internal/store"
	"github.com/mindbridge/mindbridge/internal/ui/components"
	"github.com/mindbridge/mindbridge/internal/ui/theme"
)

const titleFull = ` ┌┬┐┬┌┐┌┌┬┐┌┐ ┬─┐┬┌┬┐┌─┐┌─┐
 │││││││ ││├┴┐├┬┘│ │││ ┬├┤
 ┴ ┴┴┘└┘─┴┘└─┘┴└─┴─┴┘└─┘└─┘`

const titleCompact = "m i n d b r i d g e"

// renderTitle returns the styled title block or compact fallback.
func renderTitle(cw int, compact bool) string {
	style := lipgloss.NewStyle().
		Foreground(theme.Primary).
		Bold(true)

	title := titleFull
	if compact {
		title = titleCompact
	}
	return lipgloss.NewStyle().
		Width(cw).
		Align(lipgloss.Center).
		Render(style.Render(title))
}

// renderLatest summarizes the most recent local result.
func renderLatest(rec *store.OutcomeRecord, loadErr error, cw int) string {
	dim := lipgloss.NewStyle().Foreground(theme.TextDim)

	var body string
	switch {
	case loadErr != nil:
		body = dim.Render("Past results could not be loaded.")
	case rec == nil:
		body = dim.Render("No check-ins yet. Take a few minutes whenever you are ready.")
	default:
		level := risk.Level(rec.RiskLevel)
		levelStr := lipgloss.NewStyle().
			Foreground(theme.RiskColor(rec.RiskLevel)).
			Bold(true).
			Render(level.Label() + " risk")
		body = fmt.Sprintf("%s  %s  %s",
			dim.Render("Last check-in "+rec.CompletedAt.Local().Format("Jan 02, 2006")),
			levelStr,
			dim.Render("score "+risk.FormatScore(rec.Score)))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border).
		Width(cw).
		Align(lipgloss.Center).
		Padding(0, 1).
		Render(body)
}

// renderMenu renders the menu in a box matching the content width.
func renderMenu(menu components.Menu, cw int) string {
	view := strings.TrimRight(menu.View(), "\n")
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border).
		Width(cw).
		Padding(1, 2).
		Render(view)
}

func renderFootnote(cw int) string {
	return lipgloss.NewStyle().
		Width(cw).
		Align(lipgloss.Center).
		Foreground(theme.TextDim).
		Italic(true).
		Render("A screening aid, not a diagnosis.")
}
