package summary

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/mindbridge/mindbridge/internal/assessment"
	"github.com/mindbridge/mindbridge/internal/risk"
	"github.com/mindbridge/mindbridge/internal/router"
	"github.com/mindbridge/mindbridge/internal/screen"
	"github.com/mindbridge/mindbridge/internal/ui/components"
	"github.com/mindbridge/mindbridge/internal/ui/layout"
	"github.com/mindbridge/mindbridge/internal/ui/theme"
)

// crisisLine is shown under every high-tier result.
const crisisLine = "If you are in immediate danger, call your local emergency number now."

// SummaryScreen displays a completed assessment's outcome.
type SummaryScreen struct {
	outcome assessment.Outcome
	saveErr error
}

var _ screen.Screen = (*SummaryScreen)(nil)
var _ screen.KeyHintProvider = (*SummaryScreen)(nil)

// New creates a new SummaryScreen. saveErr is the error, if any, from
// keeping the outcome on this device.
func New(outcome assessment.Outcome, saveErr error) *SummaryScreen {
	return &SummaryScreen{outcome: outcome, saveErr: saveErr}
}

func (s *SummaryScreen) Init() tea.Cmd {
	return nil
}

func (s *SummaryScreen) Title() string {
	return "Your Results"
}

func (s *SummaryScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "Enter", Description: "Done"},
		{Key: "Esc", Description: "Home"},
	}
}

func (s *SummaryScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	if kmsg, ok := msg.(tea.KeyMsg); ok {
		switch kmsg.String() {
		case "enter", "esc":
			return s, func() tea.Msg { return router.PopToRootMsg{} }
		}
	}
	return s, nil
}

func (s *SummaryScreen) View(width, height int) string {
	out := s.outcome
	level := out.Risk.Level
	levelStyle := lipgloss.NewStyle().Foreground(theme.RiskColor(string(level))).Bold(true)

	var b strings.Builder

	b.WriteString(layout.Centered(width, theme.Title, "Assessment complete"))
	b.WriteString("\n\n")

	b.WriteString(layout.Centered(width, levelStyle,
		fmt.Sprintf("%s risk", level.Label())))
	b.WriteString("\n")

	scoreLine := fmt.Sprintf("Score %s", risk.FormatScore(out.Score))
	if out.ScoreSource == assessment.ScoreDerived {
		scoreLine += " (calculated from your answers)"
	}
	b.WriteString(layout.Centered(width, theme.Subtitle, scoreLine))
	b.WriteString("\n")
	b.WriteString(layout.Centered(width, theme.Subtitle,
		fmt.Sprintf("%d questions answered, %d follow-ups", out.StaticAnswered, out.DynamicAnswered)))
	b.WriteString("\n\n")

	cw := components.ContentWidth(width)
	body := theme.Body.Width(cw - 6).Render(out.Risk.Guidance)
	if out.Summary != "" {
		body += "\n\n" + theme.Hint.Width(cw-6).Render(out.Summary)
	}
	if level == risk.LevelHigh {
		body += "\n\n" + theme.Failure.Width(cw-6).Render(crisisLine)
	}
	b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center,
		components.AccentPanel(body, cw, theme.RiskColor(string(level)))))
	b.WriteString("\n\n")

	if out.ServerLevel != "" && out.ServerLevel != level {
		b.WriteString(layout.Paragraph(width, theme.Warning,
			fmt.Sprintf("The service reported a %s tier for this session.", strings.ToLower(out.ServerLevel.Label()))))
		b.WriteString("\n")
	}
	if out.FailSafe != nil {
		b.WriteString(layout.Paragraph(width, theme.Hint,
			"Follow-up questions ended early because the service did not respond."))
		b.WriteString("\n")
	}
	if s.saveErr != nil {
		b.WriteString(layout.Paragraph(width, theme.Warning,
			"This result could not be saved on this device: "+s.saveErr.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(layout.Centered(width, theme.Hint,
		"This is a screening aid, not a diagnosis."))

	return b.String()
}
