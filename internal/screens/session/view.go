package session

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/mindbridge/mindbridge/internal/assessment"
	"github.com/mindbridge/mindbridge/internal/ui/components"
	"github.com/mindbridge/mindbridge/internal/ui/layout"
	"github.com/mindbridge/mindbridge/internal/ui/theme"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func (s *SessionScreen) View(width, height int) string {
	if s.errMsg != "" {
		return renderError(width, s.errMsg)
	}
	if s.confirmQuit {
		return renderQuitConfirm(width)
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(s.renderProgress(width))
	b.WriteString("\n\n")

	switch {
	case s.busy != "":
		b.WriteString(s.renderBusy(width))
	case s.machine.State() == assessment.StateSubmittingStatic:
		b.WriteString(s.renderReview(width))
	case s.questionID != "":
		b.WriteString(s.renderQuestion(width))
	}

	if s.notice != "" {
		b.WriteString("\n\n")
		b.WriteString(layout.Paragraph(width, theme.Warning, s.notice))
	}

	return b.String()
}

func (s *SessionScreen) renderProgress(width int) string {
	cw := components.ContentWidth(width)
	bar := components.FromProgress(s.machine.Progress(), s.frame, cw).View()
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, bar)
}

func (s *SessionScreen) renderBusy(width int) string {
	frame := spinnerFrames[s.frame%len(spinnerFrames)]
	return layout.Centered(width, lipgloss.NewStyle().Foreground(theme.TextDim),
		fmt.Sprintf("%s  %s...", frame, s.busy))
}

func (s *SessionScreen) renderQuestion(width int) string {
	cw := components.ContentWidth(width)

	var body string
	if s.textMode {
		q, _ := s.question()
		body = lipgloss.NewStyle().Foreground(theme.Text).Bold(true).Width(cw-6).Render(q) +
			"\n\n" + s.input.View()
	} else {
		mc := s.choice
		mc.Question = lipgloss.NewStyle().Width(cw - 6).Render(mc.Question)
		body = strings.TrimRight(mc.View(), "\n")
	}

	return lipgloss.PlaceHorizontal(width, lipgloss.Center, components.Panel(body, cw))
}

// question returns the text of the question on screen.
func (s *SessionScreen) question() (string, bool) {
	if q, ok := s.machine.Current(); ok && q.ID == s.questionID {
		return q.Text, true
	}
	if q, ok := s.machine.CurrentDynamic(); ok && q.ID == s.questionID {
		return q.Text, true
	}
	return "", false
}

func (s *SessionScreen) renderReview(width int) string {
	var b strings.Builder
	b.WriteString(layout.Centered(width, theme.Title, "All questions answered"))
	b.WriteString("\n\n")
	b.WriteString(layout.Paragraph(width, theme.Body,
		"Press Enter to send your answers. You can still go back and change them before sending."))
	b.WriteString("\n\n")
	b.WriteString(layout.Paragraph(width, theme.Hint,
		"A few follow-up questions may come next, based on what you shared."))
	return b.String()
}

// renderQuitConfirm renders the quit confirmation dialog.
func renderQuitConfirm(width int) string {
	var b strings.Builder
	b.WriteString("\n\n\n")
	b.WriteString(layout.Centered(width, lipgloss.NewStyle().Foreground(theme.Text).Bold(true),
		"Leave this assessment?"))
	b.WriteString("\n")
	b.WriteString(layout.Centered(width, theme.Subtitle,
		"Your answers so far will not be kept."))
	b.WriteString("\n\n")
	b.WriteString(layout.Centered(width, lipgloss.NewStyle().Foreground(theme.Accent),
		"[Y] Yes, leave"))
	b.WriteString("\n")
	b.WriteString(layout.Centered(width, lipgloss.NewStyle().Foreground(theme.Primary),
		"[N] No, keep going"))
	return b.String()
}

// renderError renders an error message.
func renderError(width int, errMsg string) string {
	var b strings.Builder
	b.WriteString("\n\n\n")
	b.WriteString(layout.Paragraph(width, theme.Failure, errMsg))
	b.WriteString("\n\n")
	b.WriteString(layout.Centered(width, theme.Hint, "Press any key to go back."))
	return b.String()
}
