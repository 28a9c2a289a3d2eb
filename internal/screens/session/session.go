package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/mindbridge/mindbridge/internal/assessment"
	"github.com/mindbridge/mindbridge/internal/router"
	"github.com/mindbridge/mindbridge/internal/screen"
	"github.com/mindbridge/mindbridge/internal/screens/summary"
	"github.com/mindbridge/mindbridge/internal/sessionclient"
	"github.com/mindbridge/mindbridge/internal/store"
	"github.com/mindbridge/mindbridge/internal/ui/components"
	"github.com/mindbridge/mindbridge/internal/ui/layout"
)

const (
	spinnerInterval = 120 * time.Millisecond
	textAnswerLimit = 500
)

// SessionScreen runs one assessment session on top of an
// assessment.Machine. Network calls run as commands; their results come
// back as messages and are ignored once the session is discarded.
type SessionScreen struct {
	machine *assessment.Machine
	results store.ResultRepo
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// widget state for the question on screen
	questionID string
	textMode   bool
	choice     components.MultiChoice
	input      components.TextInput

	busy        string
	frame       int
	notice      string
	errMsg      string
	confirmQuit bool
}

var _ screen.Screen = (*SessionScreen)(nil)
var _ screen.KeyHintProvider = (*SessionScreen)(nil)
var _ screen.EscapeHandler = (*SessionScreen)(nil)

// New creates a SessionScreen. results may be nil, in which case outcomes
// are not kept on this device.
func New(machine *assessment.Machine, results store.ResultRepo, logger *slog.Logger) *SessionScreen {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionScreen{
		machine: machine,
		results: results,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *SessionScreen) Init() tea.Cmd {
	s.busy = "Starting your assessment"
	return tea.Batch(s.start(), tickCmd())
}

func (s *SessionScreen) Title() string {
	return "Assessment"
}

func (s *SessionScreen) HandlesEscape() bool {
	return true
}

func (s *SessionScreen) KeyHints() []layout.KeyHint {
	switch {
	case s.errMsg != "":
		return []layout.KeyHint{{Key: "any key", Description: "Back"}}
	case s.confirmQuit:
		return []layout.KeyHint{
			{Key: "Y", Description: "Leave"},
			{Key: "N", Description: "Keep going"},
		}
	case s.busy != "":
		return []layout.KeyHint{{Key: "Esc", Description: "Leave"}}
	}

	switch s.machine.State() {
	case assessment.StateSubmittingStatic:
		return []layout.KeyHint{
			{Key: "Enter", Description: "Submit answers"},
			{Key: "Shift+Tab", Description: "Review"},
			{Key: "Esc", Description: "Leave"},
		}
	case assessment.StateAwaitingQuestion:
		return []layout.KeyHint{
			{Key: "Enter", Description: "Retry"},
			{Key: "Esc", Description: "Leave"},
		}
	case assessment.StateCollectingStatic:
		hints := s.answerHints()
		return append(hints,
			layout.KeyHint{Key: "Shift+Tab", Description: "Previous"},
			layout.KeyHint{Key: "Esc", Description: "Leave"})
	}
	return append(s.answerHints(), layout.KeyHint{Key: "Esc", Description: "Leave"})
}

func (s *SessionScreen) answerHints() []layout.KeyHint {
	if s.textMode {
		return []layout.KeyHint{{Key: "Enter", Description: "Answer"}}
	}
	return []layout.KeyHint{
		{Key: "1-9 ↑↓", Description: "Choose"},
		{Key: "Enter", Description: "Answer"},
	}
}

func (s *SessionScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case startedMsg:
		return s.handleStarted(msg)

	case staticSubmittedMsg:
		return s.handleStaticSubmitted(msg)

	case questionFetchedMsg:
		return s.handleQuestionFetched(msg)

	case dynamicSubmittedMsg:
		return s.handleDynamicSubmitted(msg)

	case completedMsg:
		return s.handleCompleted(msg)

	case spinnerTickMsg:
		if s.errMsg != "" || s.machine.State().Terminal() {
			return s, nil
		}
		s.frame++
		return s, tickCmd()

	case tea.KeyMsg:
		return s.handleKey(msg)
	}

	if s.textMode && s.busy == "" {
		var cmd tea.Cmd
		s.input, cmd = s.input.Update(msg)
		return s, cmd
	}
	return s, nil
}

func (s *SessionScreen) handleStarted(msg startedMsg) (screen.Screen, tea.Cmd) {
	if ignore(msg.Err) {
		return s, nil
	}
	s.busy = ""
	if msg.Err != nil {
		return s.fatal("We could not start the assessment", msg.Err)
	}
	return s.showStatic()
}

// showStatic loads the widget for the static question under the cursor,
// or starts submission when the battery is empty.
func (s *SessionScreen) showStatic() (screen.Screen, tea.Cmd) {
	q, ok := s.machine.Current()
	if !ok {
		s.questionID = ""
		if s.machine.State() == assessment.StateCollectingStatic {
			if err := s.machine.Next(); err != nil {
				s.notice = answerNotice(err)
			}
		}
		return s, nil
	}
	current, _ := s.machine.Selected(q.ID)
	return s, s.load(q, current)
}

func (s *SessionScreen) handleStaticSubmitted(msg staticSubmittedMsg) (screen.Screen, tea.Cmd) {
	if ignore(msg.Err) {
		return s, nil
	}
	s.busy = ""
	if msg.Err != nil {
		s.notice = "Your answers could not be sent: " + userMessage(msg.Err) + ". Press Enter to try again."
		return s, nil
	}
	s.notice = ""
	return s, s.fetchNext()
}

func (s *SessionScreen) handleQuestionFetched(msg questionFetchedMsg) (screen.Screen, tea.Cmd) {
	if ignore(msg.Err) {
		return s, nil
	}
	s.busy = ""
	if msg.Err != nil {
		s.notice = "The next question could not be loaded: " + userMessage(msg.Err) + ". Press Enter to try again."
		return s, nil
	}
	if msg.Question == nil {
		return s, s.complete()
	}
	s.notice = ""
	return s, s.load(*msg.Question, "")
}

func (s *SessionScreen) handleDynamicSubmitted(msg dynamicSubmittedMsg) (screen.Screen, tea.Cmd) {
	if ignore(msg.Err) {
		return s, nil
	}
	s.busy = ""
	if msg.Err != nil {
		s.notice = answerNotice(msg.Err)
		s.choice.Reset()
		return s, nil
	}
	s.notice = ""
	s.questionID = ""
	return s, s.fetchNext()
}

func (s *SessionScreen) handleCompleted(msg completedMsg) (screen.Screen, tea.Cmd) {
	if ignore(msg.Err) {
		return s, nil
	}
	s.busy = ""
	if msg.Err != nil {
		return s.fatal("We could not finish the assessment", msg.Err)
	}
	result := summary.New(msg.Outcome, msg.SaveErr)
	return s, func() tea.Msg { return router.ReplaceScreenMsg{Screen: result} }
}

func (s *SessionScreen) handleKey(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	key := msg.String()

	// Error state: any key goes back.
	if s.errMsg != "" {
		return s, func() tea.Msg { return router.PopScreenMsg{} }
	}

	if s.confirmQuit {
		switch key {
		case "y", "Y":
			return s.leave()
		case "n", "N", "esc":
			s.confirmQuit = false
		}
		return s, nil
	}

	if key == "esc" {
		s.confirmQuit = true
		return s, nil
	}

	if s.busy != "" {
		return s, nil
	}

	switch s.machine.State() {
	case assessment.StateCollectingStatic:
		return s.handleStaticKey(msg)
	case assessment.StateSubmittingStatic:
		switch key {
		case "enter":
			return s, s.submitStatic()
		case "shift+tab", "left":
			if err := s.machine.Previous(); err != nil {
				s.notice = err.Error()
				return s, nil
			}
			s.notice = ""
			return s.showStatic()
		}
	case assessment.StateAwaitingQuestion:
		if key == "enter" {
			return s, s.fetchNext()
		}
	case assessment.StateAwaitingAnswer:
		return s.handleDynamicKey(msg)
	}
	return s, nil
}

func (s *SessionScreen) handleStaticKey(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	key := msg.String()
	if key == "shift+tab" || (!s.textMode && key == "left") {
		if err := s.machine.Previous(); err != nil {
			if !errors.Is(err, assessment.ErrAtFirstQuestion) {
				s.notice = err.Error()
			}
			return s, nil
		}
		s.notice = ""
		return s.showStatic()
	}

	value, submitted, cmd := s.updateWidget(msg)
	if !submitted {
		return s, cmd
	}

	if err := s.machine.Answer(value); err != nil {
		s.notice = answerNotice(err)
		s.choice.Reset()
		return s, cmd
	}
	if err := s.machine.Next(); err != nil {
		s.notice = answerNotice(err)
		s.choice.Reset()
		return s, cmd
	}
	s.notice = ""
	if s.machine.State() == assessment.StateSubmittingStatic {
		s.questionID = ""
		return s, cmd
	}
	_, next := s.showStatic()
	return s, tea.Batch(cmd, next)
}

func (s *SessionScreen) handleDynamicKey(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	value, submitted, cmd := s.updateWidget(msg)
	if !submitted {
		return s, cmd
	}
	return s, tea.Batch(cmd, s.submitDynamic(value))
}

// updateWidget forwards a key to the active answer widget and reports
// whether the user confirmed an answer.
func (s *SessionScreen) updateWidget(msg tea.KeyMsg) (string, bool, tea.Cmd) {
	if s.textMode {
		if msg.String() == "enter" {
			return s.input.Value(), true, nil
		}
		var cmd tea.Cmd
		s.input, cmd = s.input.Update(msg)
		return "", false, cmd
	}

	s.choice, _ = s.choice.Update(msg)
	if !s.choice.Submitted {
		return "", false, nil
	}
	return s.choice.Value(), true, nil
}

// load sets up the answer widget for q, preselecting current.
func (s *SessionScreen) load(q sessionclient.Question, current string) tea.Cmd {
	s.questionID = q.ID
	if q.ResponseType == sessionclient.ResponseText || len(q.Options) == 0 {
		s.textMode = true
		s.input = components.NewTextInput("Type your answer...", current, textAnswerLimit, layout.ReadableWidth-10)
		return s.input.Init()
	}
	s.textMode = false
	choices := make([]components.Choice, 0, len(q.Options))
	for _, o := range q.Options {
		choices = append(choices, components.Choice{Label: o.Label, Value: string(o.Value)})
	}
	s.choice = components.NewMultiChoice(q.Text, choices, current)
	return nil
}

func (s *SessionScreen) start() tea.Cmd {
	m, ctx := s.machine, s.ctx
	return func() tea.Msg {
		return startedMsg{Err: m.Start(ctx)}
	}
}

func (s *SessionScreen) submitStatic() tea.Cmd {
	s.busy = "Sending your answers"
	m, ctx := s.machine, s.ctx
	return func() tea.Msg {
		return staticSubmittedMsg{Err: m.SubmitStatic(ctx)}
	}
}

func (s *SessionScreen) fetchNext() tea.Cmd {
	s.busy = "Preparing a follow-up question"
	m, ctx := s.machine, s.ctx
	return func() tea.Msg {
		q, err := m.FetchNext(ctx)
		return questionFetchedMsg{Question: q, Err: err}
	}
}

func (s *SessionScreen) submitDynamic(value string) tea.Cmd {
	s.busy = "Saving your answer"
	m, ctx := s.machine, s.ctx
	return func() tea.Msg {
		return dynamicSubmittedMsg{Err: m.SubmitDynamic(ctx, value)}
	}
}

// complete finalizes the session and keeps its outcome locally.
func (s *SessionScreen) complete() tea.Cmd {
	s.busy = "Finishing up"
	m, ctx, results, logger := s.machine, s.ctx, s.results, s.logger
	return func() tea.Msg {
		out, err := m.Complete(ctx)
		if err != nil {
			return completedMsg{Err: err}
		}
		var saveErr error
		if results != nil {
			if saveErr = results.Save(ctx, outcomeRecord(out)); saveErr != nil {
				logger.Error("save outcome", "session_id", out.SessionID, "error", saveErr)
			}
		}
		return completedMsg{Outcome: out, SaveErr: saveErr}
	}
}

// leave abandons the session and closes the screen.
func (s *SessionScreen) leave() (screen.Screen, tea.Cmd) {
	s.confirmQuit = false
	s.machine.Discard()
	s.cancel()
	return s, func() tea.Msg { return router.PopScreenMsg{} }
}

func (s *SessionScreen) fatal(prefix string, err error) (screen.Screen, tea.Cmd) {
	s.logger.Error("assessment stopped", "state", s.machine.State().String(), "error", err)
	s.errMsg = fmt.Sprintf("%s: %s", prefix, userMessage(err))
	s.cancel()
	return s, nil
}

// outcomeRecord maps a completed outcome to the row kept on this device.
func outcomeRecord(out assessment.Outcome) *store.OutcomeRecord {
	rec := &store.OutcomeRecord{
		SessionID:       out.SessionID,
		Score:           out.Score,
		ScoreSource:     string(out.ScoreSource),
		RiskLevel:       string(out.Risk.Level),
		ServerLevel:     string(out.ServerLevel),
		Summary:         out.Summary,
		StaticAnswered:  out.StaticAnswered,
		DynamicAnswered: out.DynamicAnswered,
		CompletedAt:     time.Now(),
	}
	if out.CompletedAt != nil {
		rec.CompletedAt = *out.CompletedAt
	}
	if out.FailSafe != nil {
		rec.FailSafe = out.FailSafe.Error()
	}
	return rec
}

// ignore reports whether a result belongs to a discarded session.
func ignore(err error) bool {
	return errors.Is(err, assessment.ErrDiscarded) || errors.Is(err, context.Canceled)
}

func answerNotice(err error) string {
	var incomplete *assessment.IncompleteError
	switch {
	case errors.Is(err, assessment.ErrEmptyAnswer):
		return "Please enter an answer."
	case errors.Is(err, assessment.ErrUnanswered):
		return "Please choose an answer to continue."
	case errors.Is(err, assessment.ErrInvalidOption):
		return "Please pick one of the listed options."
	case errors.As(err, &incomplete):
		return fmt.Sprintf("%d question(s) still need an answer.", len(incomplete.Missing))
	}
	return "Your answer could not be saved: " + userMessage(err)
}

func userMessage(err error) string {
	var unavailable *sessionclient.ServiceUnavailableError
	var invalid *sessionclient.ValidationError
	switch {
	case errors.As(err, &invalid):
		if invalid.Message != "" {
			return strings.TrimSpace(invalid.Message)
		}
		return "the service rejected the request"
	case errors.As(err, &unavailable):
		return "the service is not available right now"
	}
	return err.Error()
}

// tickCmd returns a spinner tick command.
func tickCmd() tea.Cmd {
	return tea.Tick(spinnerInterval, func(t time.Time) tea.Msg {
		return spinnerTickMsg(t)
	})
}
