package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/mindbridge/mindbridge/internal/router"
	"github.com/mindbridge/mindbridge/internal/store"
)

type mockResultRepo struct {
	records []store.OutcomeRecord
	err     error
	opts    store.QueryOpts
}

func (m *mockResultRepo) Save(context.Context, *store.OutcomeRecord) error { return nil }
func (m *mockResultRepo) Get(context.Context, string) (*store.OutcomeRecord, error) {
	return nil, store.ErrNotFound
}
func (m *mockResultRepo) List(_ context.Context, opts store.QueryOpts) ([]store.OutcomeRecord, error) {
	m.opts = opts
	return m.records, m.err
}

type mockEventRepo struct {
	events  map[string][]store.SessionEvent
	queries int
}

func (m *mockEventRepo) AppendSessionEvent(context.Context, store.SessionEventData) error {
	return nil
}
func (m *mockEventRepo) SessionEvents(_ context.Context, sessionID string, _ store.QueryOpts) ([]store.SessionEvent, error) {
	m.queries++
	return m.events[sessionID], nil
}

func testRecords() []store.OutcomeRecord {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return []store.OutcomeRecord{
		{SessionID: "sess-2", Score: 24, RiskLevel: "high", StaticAnswered: 7, DynamicAnswered: 1,
			FailSafe: "timeout", CompletedAt: at.Add(time.Hour)},
		{SessionID: "sess-1", Score: 5, RiskLevel: "low", StaticAnswered: 7, DynamicAnswered: 3, CompletedAt: at},
	}
}

func loaded(t *testing.T, s *HistoryScreen) {
	t.Helper()
	msg := s.Init()()
	s.Update(msg)
}

func TestHistoryScreen_Loading(t *testing.T) {
	s := New(&mockResultRepo{}, nil)
	if !strings.Contains(s.View(80, 24), "Loading") {
		t.Error("expected loading view before results arrive")
	}
}

func TestHistoryScreen_Empty(t *testing.T) {
	s := New(&mockResultRepo{}, nil)
	loaded(t, s)
	if !strings.Contains(s.View(80, 24), "No check-ins yet") {
		t.Error("expected empty state")
	}
}

func TestHistoryScreen_ListsOutcomes(t *testing.T) {
	repo := &mockResultRepo{records: testRecords()}
	s := New(repo, nil)
	loaded(t, s)

	if repo.opts.Limit != historyLimit {
		t.Errorf("Limit = %d, want %d", repo.opts.Limit, historyLimit)
	}
	view := s.View(100, 24)
	if !strings.Contains(view, "High") || !strings.Contains(view, "Low") {
		t.Error("expected both tiers in view")
	}
	if !strings.Contains(view, "score 24") {
		t.Error("expected score in view")
	}
}

func TestHistoryScreen_Error(t *testing.T) {
	s := New(&mockResultRepo{err: errors.New("database is locked")}, nil)
	loaded(t, s)
	if !strings.Contains(s.View(80, 24), "database is locked") {
		t.Error("expected error in view")
	}
}

func TestHistoryScreen_ExpandLoadsEvents(t *testing.T) {
	events := &mockEventRepo{events: map[string][]store.SessionEvent{
		"sess-2": {
			{Sequence: 1, SessionEventData: store.SessionEventData{SessionID: "sess-2", From: "idle", To: "starting"}},
			{Sequence: 2, SessionEventData: store.SessionEventData{SessionID: "sess-2", From: "starting", To: "collecting_static"}},
		},
	}}
	s := New(&mockResultRepo{records: testRecords()}, events)
	loaded(t, s)

	_, cmd := s.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected command to load events")
	}
	s.Update(cmd())

	view := s.View(100, 30)
	if !strings.Contains(view, "collecting_static") {
		t.Error("expected transitions in expanded view")
	}
	if !strings.Contains(view, "ended early") {
		t.Error("expected fail-safe note in expanded view")
	}

	// Collapse and expand again: events are cached.
	s.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	_, cmd = s.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	if cmd != nil {
		t.Error("expected cached events on second expand")
	}
	if events.queries != 1 {
		t.Errorf("queries = %d, want 1", events.queries)
	}
}

func TestHistoryScreen_Navigation(t *testing.T) {
	s := New(&mockResultRepo{records: testRecords()}, nil)
	loaded(t, s)

	s.Update(tea.KeyPressMsg{Code: tea.KeyDown})
	s.Update(tea.KeyPressMsg{Code: tea.KeyDown})
	if s.selected != 1 {
		t.Errorf("selected = %d, want 1", s.selected)
	}
	s.Update(tea.KeyPressMsg{Code: tea.KeyUp})
	if s.selected != 0 {
		t.Errorf("selected = %d, want 0", s.selected)
	}

	_, cmd := s.Update(tea.KeyPressMsg{Code: tea.KeyEscape})
	if cmd == nil {
		t.Fatal("expected command on Esc")
	}
	if _, ok := cmd().(router.PopScreenMsg); !ok {
		t.Error("expected PopScreenMsg on Esc")
	}
}
