package home

import (
	"context"
	"log/slog"
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/mindbridge/mindbridge/internal/assessment"
	"github.com/mindbridge/mindbridge/internal/router"
	"github.com/mindbridge/mindbridge/internal/screen"
	"github.com/mindbridge/mindbridge/internal/screens/history"
	"github.com/mindbridge/mindbridge/internal/screens/placeholder"
	sessionscreen "github.com/mindbridge/mindbridge/internal/screens/session"
	"github.com/mindbridge/mindbridge/internal/store"
	"github.com/mindbridge/mindbridge/internal/ui/components"
)

// Deps are the services the home screen hands to the screens it opens.
type Deps struct {
	// NewMachine builds a fresh state machine for each assessment. Nil
	// when no backend is configured.
	NewMachine func() *assessment.Machine

	Results store.ResultRepo
	Events  store.EventRepo
	Logger  *slog.Logger
}

type latestLoadedMsg struct {
	Record *store.OutcomeRecord
	Err    error
}

// HomeScreen is the main home screen of the application.
type HomeScreen struct {
	deps    Deps
	menu    components.Menu
	latest  *store.OutcomeRecord
	loadErr error
}

var _ screen.Screen = (*HomeScreen)(nil)
var _ screen.Resumer = (*HomeScreen)(nil)

// New creates a new HomeScreen.
func New(deps Deps) *HomeScreen {
	h := &HomeScreen{deps: deps}

	items := []components.MenuItem{
		{Label: "Start a check-in", Action: h.startAssessment},
		{Label: "Past results", Action: h.openHistory},
		{Label: "Quit", Action: func() tea.Cmd { return tea.Quit }},
	}
	h.menu = components.NewMenu(items)
	return h
}

func (h *HomeScreen) startAssessment() tea.Cmd {
	if h.deps.NewMachine == nil {
		return func() tea.Msg {
			return router.PushScreenMsg{Screen: placeholder.New("Check-in",
				"No assessment service is configured.\n\nSet MINDBRIDGE_API_URL and MINDBRIDGE_TOKEN, or run\n`mindbridge devserver` for a local demo.")}
		}
	}
	s := sessionscreen.New(h.deps.NewMachine(), h.deps.Results, h.deps.Logger)
	return func() tea.Msg {
		return router.PushScreenMsg{Screen: s}
	}
}

func (h *HomeScreen) openHistory() tea.Cmd {
	if h.deps.Results == nil {
		return func() tea.Msg {
			return router.PushScreenMsg{Screen: placeholder.New("Past results",
				"Results are not being kept on this device.")}
		}
	}
	s := history.New(h.deps.Results, h.deps.Events)
	return func() tea.Msg {
		return router.PushScreenMsg{Screen: s}
	}
}

func (h *HomeScreen) Init() tea.Cmd {
	return h.loadLatest()
}

// loadLatest fetches the most recent local outcome for the status card.
func (h *HomeScreen) loadLatest() tea.Cmd {
	results := h.deps.Results
	if results == nil {
		return nil
	}
	return func() tea.Msg {
		recs, err := results.List(context.Background(), store.QueryOpts{Limit: 1})
		if err != nil {
			return latestLoadedMsg{Err: err}
		}
		if len(recs) == 0 {
			return latestLoadedMsg{}
		}
		return latestLoadedMsg{Record: &recs[0]}
	}
}

// Resume reloads the status card when the home screen is shown again.
func (h *HomeScreen) Resume() tea.Cmd {
	return h.loadLatest()
}

func (h *HomeScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case latestLoadedMsg:
		h.latest, h.loadErr = msg.Record, msg.Err
		return h, nil
	}

	var cmd tea.Cmd
	h.menu, cmd = h.menu.Update(msg)
	return h, cmd
}

func (h *HomeScreen) View(width, height int) string {
	compact := height < 22 || width < 70
	cw := components.ContentWidth(width)

	var sections []string
	sections = append(sections, renderTitle(cw, compact))
	sections = append(sections, renderLatest(h.latest, h.loadErr, cw))
	sections = append(sections, renderMenu(h.menu, cw))
	if !compact {
		sections = append(sections, renderFootnote(cw))
	}

	return components.Center(strings.Join(sections, "\n\n"), width, height)
}

func (h *HomeScreen) Title() string {
	return "Home"
}
