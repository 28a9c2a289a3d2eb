package history

import (
	"context"
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"

	"charm.land/lipgloss/v2"

	"github.com/mindbridge/mindbridge/internal/risk"
	"github.com/mindbridge/mindbridge/internal/router"
	"github.com/mindbridge/mindbridge/internal/screen"
	"github.com/mindbridge/mindbridge/internal/store"
	"github.com/mindbridge/mindbridge/internal/ui/layout"
	"github.com/mindbridge/mindbridge/internal/ui/theme"
)

const historyLimit = 50

type historyLoadedMsg struct {
	Outcomes []store.OutcomeRecord
	Err      error
}

type eventsLoadedMsg struct {
	SessionID string
	Events    []store.SessionEvent
	Err       error
}

// HistoryScreen lists outcomes kept on this device. Enter expands an entry
// with its recorded state transitions.
type HistoryScreen struct {
	results  store.ResultRepo
	events   store.EventRepo
	outcomes []store.OutcomeRecord
	timeline map[string][]store.SessionEvent
	selected int
	expanded map[int]bool
	loaded   bool
	errMsg   string
}

var _ screen.Screen = (*HistoryScreen)(nil)
var _ screen.KeyHintProvider = (*HistoryScreen)(nil)

// New creates a new HistoryScreen. events may be nil.
func New(results store.ResultRepo, events store.EventRepo) *HistoryScreen {
	return &HistoryScreen{
		results:  results,
		events:   events,
		timeline: make(map[string][]store.SessionEvent),
		expanded: make(map[int]bool),
	}
}

func (s *HistoryScreen) Init() tea.Cmd {
	results := s.results
	return func() tea.Msg {
		outcomes, err := results.List(context.Background(), store.QueryOpts{Limit: historyLimit})
		return historyLoadedMsg{Outcomes: outcomes, Err: err}
	}
}

func (s *HistoryScreen) Title() string {
	return "Past Results"
}

func (s *HistoryScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "Enter", Description: "Details"},
		{Key: "↑↓", Description: "Navigate"},
		{Key: "Esc", Description: "Back"},
	}
}

func (s *HistoryScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case historyLoadedMsg:
		if msg.Err != nil {
			s.errMsg = msg.Err.Error()
		} else {
			s.outcomes = msg.Outcomes
		}
		s.loaded = true
		return s, nil

	case eventsLoadedMsg:
		if msg.Err == nil {
			s.timeline[msg.SessionID] = msg.Events
		}
		return s, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return s, func() tea.Msg { return router.PopScreenMsg{} }
		case "up", "k":
			if s.selected > 0 {
				s.selected--
			}
			return s, nil
		case "down", "j":
			if s.selected < len(s.outcomes)-1 {
				s.selected++
			}
			return s, nil
		case "enter":
			if s.selected >= len(s.outcomes) {
				return s, nil
			}
			s.expanded[s.selected] = !s.expanded[s.selected]
			if s.expanded[s.selected] {
				return s, s.loadEvents(s.outcomes[s.selected].SessionID)
			}
			return s, nil
		}
	}
	return s, nil
}

func (s *HistoryScreen) loadEvents(sessionID string) tea.Cmd {
	if s.events == nil {
		return nil
	}
	if _, ok := s.timeline[sessionID]; ok {
		return nil
	}
	events := s.events
	return func() tea.Msg {
		evs, err := events.SessionEvents(context.Background(), sessionID, store.QueryOpts{})
		return eventsLoadedMsg{SessionID: sessionID, Events: evs, Err: err}
	}
}

func (s *HistoryScreen) View(width, height int) string {
	if s.errMsg != "" {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.Error).
			Render(fmt.Sprintf("\n\nError: %s", s.errMsg))
	}
	if !s.loaded {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).
			Render("\n\n  Loading results...")
	}
	if len(s.outcomes) == 0 {
		return lipgloss.NewStyle().
			Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).Italic(true).
			Render("\n\n  No check-ins yet.")
	}

	var b strings.Builder
	b.WriteString("\n")

	for i, rec := range s.outcomes {
		prefix := "  "
		if i == s.selected {
			prefix = "▸ "
		}

		level := risk.Level(rec.RiskLevel)
		line := fmt.Sprintf("%s%s  %-6s  score %-4s  %d + %d answers",
			prefix,
			rec.CompletedAt.Local().Format("Jan 02, 2006 15:04"),
			level.Label(),
			risk.FormatScore(rec.Score),
			rec.StaticAnswered, rec.DynamicAnswered)

		style := lipgloss.NewStyle().Foreground(theme.RiskColor(rec.RiskLevel))
		if i == s.selected {
			style = style.Bold(true)
		}
		b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, style.Render(line)))
		b.WriteString("\n")

		if s.expanded[i] {
			b.WriteString(s.renderDetail(rec, width))
		}
	}

	return b.String()
}

func (s *HistoryScreen) renderDetail(rec store.OutcomeRecord, width int) string {
	dim := lipgloss.NewStyle().Foreground(theme.TextDim)
	var lines []string

	lines = append(lines, "Session "+rec.SessionID)
	if rec.Summary != "" {
		lines = append(lines, rec.Summary)
	}
	if rec.ServerLevel != "" && rec.ServerLevel != rec.RiskLevel {
		lines = append(lines, "Service reported: "+risk.Level(rec.ServerLevel).Label())
	}
	if rec.FailSafe != "" {
		lines = append(lines, "Follow-ups ended early: "+rec.FailSafe)
	}
	for _, ev := range s.timeline[rec.SessionID] {
		line := fmt.Sprintf("%s  %s → %s", ev.Timestamp.Local().Format("15:04:05"), ev.From, ev.To)
		if ev.Reason != "" {
			line += "  (" + ev.Reason + ")"
		}
		lines = append(lines, line)
	}

	block := dim.Width(layout.TextWidth(width)).Render(strings.Join(lines, "\n"))
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, block) + "\n"
}
