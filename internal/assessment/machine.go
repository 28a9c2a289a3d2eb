package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mindbridge/mindbridge/internal/risk"
	"github.com/mindbridge/mindbridge/internal/sessionclient"
)

// Service is the subset of the session client the machine drives.
type Service interface {
	StartSession(ctx context.Context) (string, error)
	FetchStaticQuestions(ctx context.Context) ([]sessionclient.Question, error)
	SubmitStaticAnswers(ctx context.Context, sessionID string, answers []sessionclient.Answer) error
	FetchNextDynamicQuestion(ctx context.Context, sessionID string) (sessionclient.NextQuestion, error)
	SubmitDynamicAnswer(ctx context.Context, sessionID, questionText, answer string) error
	CompleteSession(ctx context.Context, sessionID string) (*sessionclient.Result, error)
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithTransitionHook registers fn to be called after every state change.
// fn runs outside the machine's lock and may call read-only accessors.
func WithTransitionHook(fn func(Transition)) Option {
	return func(m *Machine) { m.hooks = append(m.hooks, fn) }
}

// WithStrict makes protocol violations panic instead of returning an error.
func WithStrict(strict bool) Option {
	return func(m *Machine) { m.strict = strict }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// Machine sequences one assessment session: static battery, static
// submission, the dynamic question loop and completion. It is safe for
// concurrent use, but at most one network operation runs at a time; a
// second one started while another is in flight is a protocol violation.
type Machine struct {
	svc    Service
	logger *slog.Logger
	hooks  []func(Transition)
	strict bool
	now    func() time.Time

	mu      sync.Mutex
	state   State
	failure error
	session *Session

	static []sessionclient.Question
	index  int
	buffer *Buffer

	current   *sessionclient.Question
	responses []Response
	fetched   int

	inFlight          string
	completeAttempted bool
	discarded         bool
	failSafe          error
	result            *sessionclient.Result

	pending []Transition

	// violated is raised by unlock once mu is released. Strict mode only.
	violated *ProtocolViolationError
}

// NewMachine creates an idle machine bound to svc.
func NewMachine(svc Service, opts ...Option) *Machine {
	m := &Machine{
		svc:    svc,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
		buffer: NewBuffer(),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a session and loads the static battery. Any error moves the
// machine to StateFailed.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if err := m.begin("start", StateIdle); err != nil {
		m.unlock()
		return err
	}
	m.transition(StateStarting, nil)
	m.unlock()

	id, err := m.svc.StartSession(ctx)
	var questions []sessionclient.Question
	if err == nil {
		questions, err = m.svc.FetchStaticQuestions(ctx)
	}

	m.mu.Lock()
	defer m.unlock()
	m.inFlight = ""
	if m.discarded {
		return ErrDiscarded
	}
	if id != "" {
		m.session = &Session{ID: id, Phase: PhaseCreated, CreatedAt: m.now()}
	}
	if err != nil {
		m.fail(err)
		return err
	}

	m.static = questions
	m.index = 0
	m.logger.Info("assessment session started", "session_id", id, "static_questions", len(questions))
	m.transition(StateCollectingStatic, nil)
	return nil
}

// Current returns the static question under the cursor.
func (m *Machine) Current() (sessionclient.Question, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateCollectingStatic || m.index >= len(m.static) {
		return sessionclient.Question{}, false
	}
	return m.static[m.index], true
}

// CurrentDynamic returns the outstanding follow-up question.
func (m *Machine) CurrentDynamic() (sessionclient.Question, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return sessionclient.Question{}, false
	}
	return *m.current, true
}

// Answer records value for the current static question, replacing any
// earlier answer to it.
func (m *Machine) Answer(value string) error {
	m.mu.Lock()
	defer m.unlock()
	if err := m.check("answer", StateCollectingStatic); err != nil {
		return err
	}
	if m.index >= len(m.static) {
		return m.violation("answer")
	}
	q := m.static[m.index]
	v, err := validateAnswer(q, value)
	if err != nil {
		return err
	}
	m.buffer.Set(q.ID, v)
	return nil
}

// Selected returns the buffered answer for a static question.
func (m *Machine) Selected(questionID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffer.Get(questionID)
}

// Next advances the cursor. On the last question it moves to
// StateSubmittingStatic, but only when every static question has an
// answer; otherwise it returns *IncompleteError and stays put.
func (m *Machine) Next() error {
	m.mu.Lock()
	defer m.unlock()
	if err := m.check("next", StateCollectingStatic); err != nil {
		return err
	}
	if m.index < len(m.static) {
		if _, ok := m.buffer.Get(m.static[m.index].ID); !ok {
			return ErrUnanswered
		}
	}
	if m.index < len(m.static)-1 {
		m.index++
		return nil
	}
	if missing := m.buffer.Missing(m.staticIDs()); len(missing) > 0 {
		return &IncompleteError{Missing: missing}
	}
	m.transition(StateSubmittingStatic, nil)
	return nil
}

// Previous moves the cursor back one question. From StateSubmittingStatic
// it returns to the last static question so answers can be reviewed.
func (m *Machine) Previous() error {
	m.mu.Lock()
	defer m.unlock()
	if err := m.check("previous", StateCollectingStatic, StateSubmittingStatic); err != nil {
		return err
	}
	if m.state == StateSubmittingStatic {
		m.index = max(len(m.static)-1, 0)
		m.transition(StateCollectingStatic, nil)
		return nil
	}
	if m.index == 0 {
		return ErrAtFirstQuestion
	}
	m.index--
	return nil
}

// SubmitStatic sends the buffered answers. On success the buffer is cleared
// and the dynamic loop begins; on error the state is unchanged so the
// caller may retry.
func (m *Machine) SubmitStatic(ctx context.Context) error {
	m.mu.Lock()
	if err := m.begin("submit static", StateSubmittingStatic); err != nil {
		m.unlock()
		return err
	}
	ids := m.staticIDs()
	answers := m.buffer.Answers(ids)
	sid := m.session.ID
	m.unlock()

	err := m.svc.SubmitStaticAnswers(ctx, sid, answers)

	m.mu.Lock()
	defer m.unlock()
	m.inFlight = ""
	if m.discarded {
		return ErrDiscarded
	}
	if err != nil {
		m.logger.Warn("static submission failed", "session_id", sid, "error", err)
		return err
	}

	for i, a := range answers {
		m.responses = append(m.responses, Response{
			QuestionID:   a.QuestionID,
			QuestionText: m.static[i].Text,
			Value:        a.Value,
			Origin:       sessionclient.OriginStatic,
			ResponseType: m.static[i].ResponseType,
		})
	}
	m.buffer.Clear()
	m.transition(StateAwaitingQuestion, nil)
	return nil
}

// FetchNext asks for the next follow-up question. It returns the question,
// or nil when the loop is over and the machine has moved to
// StateCompleting. An error is returned only when ctx is done; the state
// is then unchanged.
func (m *Machine) FetchNext(ctx context.Context) (*sessionclient.Question, error) {
	m.mu.Lock()
	if err := m.begin("fetch next", StateAwaitingQuestion); err != nil {
		m.unlock()
		return nil, err
	}
	sid := m.session.ID
	m.unlock()

	next, err := m.svc.FetchNextDynamicQuestion(ctx, sid)

	m.mu.Lock()
	defer m.unlock()
	m.inFlight = ""
	if m.discarded {
		return nil, ErrDiscarded
	}
	if err != nil {
		return nil, err
	}
	m.fetched++

	if next.Final() {
		if next.FailSafe != nil {
			m.failSafe = next.FailSafe
			m.logger.Warn("dynamic loop ended by fail-safe", "session_id", sid, "cause", next.FailSafe)
		}
		m.transition(StateCompleting, nil)
		return nil, nil
	}

	q := *next.Question
	m.current = &q
	m.transition(StateAwaitingAnswer, nil)
	return &q, nil
}

// SubmitDynamic answers the outstanding follow-up question. A submitted
// answer cannot be revised. On error the question stays outstanding.
func (m *Machine) SubmitDynamic(ctx context.Context, value string) error {
	m.mu.Lock()
	if err := m.check("submit dynamic", StateAwaitingAnswer); err != nil {
		m.unlock()
		return err
	}
	q := *m.current
	v, err := validateAnswer(q, value)
	if err != nil {
		m.unlock()
		return err
	}
	m.inFlight = "submit dynamic"
	sid := m.session.ID
	m.unlock()

	err = m.svc.SubmitDynamicAnswer(ctx, sid, q.Text, v)

	m.mu.Lock()
	defer m.unlock()
	m.inFlight = ""
	if m.discarded {
		return ErrDiscarded
	}
	if err != nil {
		m.logger.Warn("dynamic answer rejected", "session_id", sid, "error", err)
		return err
	}

	m.responses = append(m.responses, Response{
		QuestionID:   q.ID,
		QuestionText: q.Text,
		Value:        v,
		Origin:       sessionclient.OriginDynamic,
		ResponseType: q.ResponseType,
	})
	m.current = nil
	m.transition(StateAwaitingQuestion, nil)
	return nil
}

// Complete finalizes the session. It may be attempted once; any further
// call is a protocol violation and never reaches the network. A failed
// completion moves the machine to StateFailed.
func (m *Machine) Complete(ctx context.Context) (Outcome, error) {
	m.mu.Lock()
	if m.completeAttempted {
		err := m.violation("complete")
		m.unlock()
		return Outcome{}, err
	}
	if err := m.begin("complete", StateCompleting); err != nil {
		m.unlock()
		return Outcome{}, err
	}
	m.completeAttempted = true
	sid := m.session.ID
	m.unlock()

	res, err := m.svc.CompleteSession(ctx, sid)

	m.mu.Lock()
	defer m.unlock()
	m.inFlight = ""
	if m.discarded {
		return Outcome{}, ErrDiscarded
	}
	if err != nil {
		m.fail(err)
		return Outcome{}, err
	}
	if res == nil {
		res = &sessionclient.Result{SessionID: sid}
	}
	m.result = res
	m.transition(StateCompleted, nil)

	out := m.outcome()
	m.logger.Info("assessment session completed",
		"session_id", sid,
		"score", out.Score,
		"score_source", out.ScoreSource,
		"risk_level", out.Risk.Level)
	return out, nil
}

// Outcome returns the completed session's result.
func (m *Machine) Outcome() (Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateCompleted {
		return Outcome{}, false
	}
	return m.outcome(), true
}

// Discard abandons the session. Buffered answers are dropped, results of
// operations still in flight are ignored, and every later operation
// returns ErrDiscarded.
func (m *Machine) Discard() {
	m.mu.Lock()
	defer m.unlock()
	if m.discarded {
		return
	}
	m.discarded = true
	m.buffer.Clear()
	if !m.state.Terminal() {
		m.fail(ErrDiscarded)
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Failure returns the error that moved the machine to StateFailed.
func (m *Machine) Failure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure
}

// FailSafe returns the cause when the dynamic loop was ended by the
// client rather than the server.
func (m *Machine) FailSafe() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failSafe
}

// Session returns a copy of the current session, if one was opened.
func (m *Machine) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Responses returns every answer the server has accepted, in order.
func (m *Machine) Responses() []Response {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.responses)
}

// Busy reports whether a network operation is in flight.
func (m *Machine) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight != ""
}

// Snapshot returns a read-only view for display.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	dyn := 0
	for _, r := range m.responses {
		if r.Origin == sessionclient.OriginDynamic {
			dyn++
		}
	}
	return Snapshot{
		State:           m.state,
		Index:           m.index,
		Total:           len(m.static),
		DynamicAnswered: dyn,
		Failure:         m.failure,
	}
}

// Progress projects the current snapshot.
func (m *Machine) Progress() Progress {
	return Project(m.Snapshot())
}

// check verifies the machine is usable and in one of allowed.
// Caller holds mu.
func (m *Machine) check(op string, allowed ...State) error {
	if m.discarded {
		return ErrDiscarded
	}
	if m.inFlight != "" || !slices.Contains(allowed, m.state) {
		return m.violation(op)
	}
	return nil
}

// begin is check plus marking op as in flight. Caller holds mu.
func (m *Machine) begin(op string, allowed ...State) error {
	if err := m.check(op, allowed...); err != nil {
		return err
	}
	m.inFlight = op
	return nil
}

func (m *Machine) violation(op string) error {
	err := &ProtocolViolationError{Op: op, State: m.state}
	if m.inFlight != "" {
		err.Op = fmt.Sprintf("%s (while %s in flight)", op, m.inFlight)
	}
	if m.strict {
		m.violated = err
		return err
	}
	m.logger.Error("assessment protocol violation", "op", op, "state", m.state.String(), "in_flight", m.inFlight)
	return err
}

func (m *Machine) fail(err error) {
	m.failure = err
	m.current = nil
	m.transition(StateFailed, err)
	if !errors.Is(err, ErrDiscarded) {
		m.logger.Error("assessment session failed", "session_id", m.sessionID(), "error", err)
	}
}

// transition changes state and queues the hook call. Caller holds mu.
func (m *Machine) transition(to State, reason error) {
	t := Transition{
		SessionID: m.sessionID(),
		From:      m.state,
		To:        to,
		Reason:    reason,
		At:        m.now(),
	}
	m.state = to
	if m.session != nil {
		if p, ok := m.phaseOf(to); ok && p > m.session.Phase {
			m.session.Phase = p
		}
	}
	m.logger.Debug("assessment state change", "session_id", t.SessionID, "from", t.From.String(), "to", t.To.String())
	if len(m.hooks) > 0 {
		m.pending = append(m.pending, t)
	}
}

// unlock releases mu and then delivers queued transitions.
func (m *Machine) unlock() {
	pending, violated := m.pending, m.violated
	m.pending, m.violated = nil, nil
	m.mu.Unlock()
	for _, t := range pending {
		for _, fn := range m.hooks {
			fn(t)
		}
	}
	if violated != nil {
		panic(violated)
	}
}

func (m *Machine) phaseOf(s State) (Phase, bool) {
	switch s {
	case StateStarting:
		return PhaseCreated, true
	case StateCollectingStatic, StateSubmittingStatic:
		return PhaseStaticCollection, true
	case StateAwaitingQuestion:
		if m.fetched == 0 {
			return PhaseStaticSubmitted, true
		}
		return PhaseDynamicLoop, true
	case StateAwaitingAnswer, StateCompleting:
		return PhaseDynamicLoop, true
	case StateCompleted:
		return PhaseCompleted, true
	}
	return 0, false
}

func (m *Machine) sessionID() string {
	if m.session == nil {
		return ""
	}
	return m.session.ID
}

func (m *Machine) staticIDs() []string {
	ids := make([]string, len(m.static))
	for i, q := range m.static {
		ids[i] = q.ID
	}
	return ids
}

func (m *Machine) outcome() Outcome {
	out := Outcome{
		SessionID: m.sessionID(),
		FailSafe:  m.failSafe,
	}
	for _, r := range m.responses {
		if r.Origin == sessionclient.OriginDynamic {
			out.DynamicAnswered++
		} else {
			out.StaticAnswered++
		}
	}

	res := m.result
	if res != nil {
		out.Summary = res.Summary
		out.CompletedAt = res.CompletedAt
		if lvl, err := risk.ParseLevel(res.RiskLevel); err == nil {
			out.ServerLevel = lvl
		}
	}
	if res != nil && res.Score != nil {
		out.Score = *res.Score
		out.ScoreSource = ScoreFromServer
	} else {
		out.Score = DeriveScore(m.responses)
		out.ScoreSource = ScoreDerived
	}
	out.Risk = risk.Assess(out.Score)
	return out
}

func validateAnswer(q sessionclient.Question, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", ErrEmptyAnswer
	}
	if q.ResponseType == sessionclient.ResponseSingleChoice && !q.HasOption(v) {
		return "", fmt.Errorf("%w: %q", ErrInvalidOption, v)
	}
	return v, nil
}
