package assessment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mindbridge/mindbridge/internal/risk"
	"github.com/mindbridge/mindbridge/internal/sessionclient"
)

// fakeService is a scripted Service. Dynamic questions are served from
// dynamic in order; once exhausted, Final is returned.
type fakeService struct {
	mu sync.Mutex

	sessionID   string
	startErr    error
	questions   []sessionclient.Question
	questionErr error

	submitErrs []error
	submitted  [][]sessionclient.Answer

	dynamic  []sessionclient.NextQuestion
	fetchErr error

	dynErr     error
	dynAnswers []string

	result      *sessionclient.Result
	completeErr error

	// release, when set, blocks SubmitStaticAnswers until closed.
	release chan struct{}
	entered chan struct{}

	calls map[string]int
}

func newFakeService(nStatic int) *fakeService {
	return &fakeService{
		sessionID: "sess-1",
		questions: scaleQuestions(nStatic),
		calls:     make(map[string]int),
	}
}

func scaleQuestions(n int) []sessionclient.Question {
	qs := make([]sessionclient.Question, n)
	for i := range qs {
		qs[i] = scaleQuestion(fmt.Sprintf("q%d", i+1), fmt.Sprintf("Static question %d", i+1))
		qs[i].Origin = sessionclient.OriginStatic
	}
	return qs
}

func scaleQuestion(id, text string) sessionclient.Question {
	return sessionclient.Question{
		ID:           id,
		Text:         text,
		ResponseType: sessionclient.ResponseSingleChoice,
		Options: []sessionclient.Option{
			{Value: "0", Label: "Not at all"},
			{Value: "1", Label: "Several days"},
			{Value: "2", Label: "More than half the days"},
			{Value: "3", Label: "Nearly every day"},
		},
	}
}

func dynamicRounds(k int) []sessionclient.NextQuestion {
	rounds := make([]sessionclient.NextQuestion, k)
	for i := range rounds {
		q := scaleQuestion(fmt.Sprintf("d%d", i+1), fmt.Sprintf("Follow-up %d", i+1))
		q.Origin = sessionclient.OriginDynamic
		rounds[i] = sessionclient.NextQuestion{Question: &q}
	}
	return rounds
}

func (f *fakeService) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeService) StartSession(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["start"]++
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.sessionID, nil
}

func (f *fakeService) FetchStaticQuestions(ctx context.Context) ([]sessionclient.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["static"]++
	return f.questions, f.questionErr
}

func (f *fakeService) SubmitStaticAnswers(ctx context.Context, sessionID string, answers []sessionclient.Answer) error {
	f.mu.Lock()
	f.calls["submit_static"]++
	release, entered := f.release, f.entered
	var err error
	if len(f.submitErrs) > 0 {
		err, f.submitErrs = f.submitErrs[0], f.submitErrs[1:]
	}
	if err == nil {
		f.submitted = append(f.submitted, answers)
	}
	f.mu.Unlock()

	if release != nil {
		close(entered)
		<-release
	}
	return err
}

func (f *fakeService) FetchNextDynamicQuestion(ctx context.Context, sessionID string) (sessionclient.NextQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["fetch_next"]++
	if f.fetchErr != nil {
		return sessionclient.NextQuestion{}, f.fetchErr
	}
	if len(f.dynamic) == 0 {
		return sessionclient.NextQuestion{}, nil
	}
	next := f.dynamic[0]
	f.dynamic = f.dynamic[1:]
	return next, nil
}

func (f *fakeService) SubmitDynamicAnswer(ctx context.Context, sessionID, questionText, answer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["submit_dynamic"]++
	if f.dynErr != nil {
		return f.dynErr
	}
	f.dynAnswers = append(f.dynAnswers, answer)
	return nil
}

func (f *fakeService) CompleteSession(ctx context.Context, sessionID string) (*sessionclient.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["complete"]++
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &sessionclient.Result{SessionID: sessionID}, nil
}

// answerAll answers every static question with value and advances to
// StateSubmittingStatic.
func answerAll(t *testing.T, m *Machine, value string) {
	t.Helper()
	for {
		if _, ok := m.Current(); !ok {
			break
		}
		if err := m.Answer(value); err != nil {
			t.Fatalf("Answer(%q): %v", value, err)
		}
		if err := m.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
		if m.State() == StateSubmittingStatic {
			return
		}
	}
	if err := m.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
}

// runDynamic answers follow-ups with value until Final.
func runDynamic(t *testing.T, m *Machine, value string) int {
	t.Helper()
	ctx := context.Background()
	rounds := 0
	for {
		q, err := m.FetchNext(ctx)
		if err != nil {
			t.Fatalf("FetchNext: %v", err)
		}
		if q == nil {
			return rounds
		}
		if err := m.SubmitDynamic(ctx, value); err != nil {
			t.Fatalf("SubmitDynamic: %v", err)
		}
		rounds++
	}
}

func startedMachine(t *testing.T, svc *fakeService, opts ...Option) *Machine {
	t.Helper()
	m := NewMachine(svc, opts...)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return m
}

func TestMachine_FullSession(t *testing.T) {
	svc := newFakeService(7)
	svc.dynamic = dynamicRounds(3)

	var transitions []Transition
	m := startedMachine(t, svc, WithTransitionHook(func(tr Transition) {
		transitions = append(transitions, tr)
	}))
	ctx := context.Background()

	if m.State() != StateCollectingStatic {
		t.Fatalf("State = %s, want collecting_static", m.State())
	}

	answerAll(t, m, "2")
	if err := m.SubmitStatic(ctx); err != nil {
		t.Fatalf("SubmitStatic: %v", err)
	}
	if len(svc.submitted) != 1 || len(svc.submitted[0]) != 7 {
		t.Fatalf("submitted = %v, want one submission of 7 answers", svc.submitted)
	}

	rounds := runDynamic(t, m, "1")
	if rounds != 3 {
		t.Errorf("dynamic rounds = %d, want 3", rounds)
	}
	if svc.count("fetch_next") != 4 {
		t.Errorf("fetch_next calls = %d, want 4", svc.count("fetch_next"))
	}
	if m.State() != StateCompleting {
		t.Fatalf("State = %s, want completing", m.State())
	}

	out, err := m.Complete(ctx)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Score != 17 {
		t.Errorf("Score = %v, want 17 (7x2 + 3x1)", out.Score)
	}
	if out.ScoreSource != ScoreDerived {
		t.Errorf("ScoreSource = %q, want derived", out.ScoreSource)
	}
	if out.Risk.Level != risk.LevelMedium {
		t.Errorf("Risk = %q, want medium", out.Risk.Level)
	}
	if out.StaticAnswered != 7 || out.DynamicAnswered != 3 {
		t.Errorf("answered = %d static, %d dynamic", out.StaticAnswered, out.DynamicAnswered)
	}

	s, _ := m.Session()
	if s.Phase != PhaseCompleted {
		t.Errorf("Phase = %s, want completed", s.Phase)
	}
	if last := transitions[len(transitions)-1]; last.To != StateCompleted || last.SessionID != "sess-1" {
		t.Errorf("last transition = %+v", last)
	}
}

func TestMachine_DynamicRounds(t *testing.T) {
	for _, k := range []int{0, 1, 5} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			svc := newFakeService(2)
			svc.dynamic = dynamicRounds(k)
			m := startedMachine(t, svc)
			answerAll(t, m, "1")
			if err := m.SubmitStatic(context.Background()); err != nil {
				t.Fatalf("SubmitStatic: %v", err)
			}

			if got := runDynamic(t, m, "3"); got != k {
				t.Errorf("rounds = %d, want %d", got, k)
			}
			if svc.count("submit_dynamic") != k {
				t.Errorf("submit_dynamic calls = %d, want %d", svc.count("submit_dynamic"), k)
			}
			if _, err := m.Complete(context.Background()); err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if svc.count("complete") != 1 {
				t.Errorf("complete calls = %d, want 1", svc.count("complete"))
			}
		})
	}
}

func TestMachine_ServerScoreWins(t *testing.T) {
	score := 23.0
	svc := newFakeService(1)
	svc.result = &sessionclient.Result{SessionID: "sess-1", Score: &score, RiskLevel: "HIGH", Summary: "see a clinician"}
	m := startedMachine(t, svc)
	answerAll(t, m, "0")
	_ = m.SubmitStatic(context.Background())
	runDynamic(t, m, "0")

	out, err := m.Complete(context.Background())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Score != 23 || out.ScoreSource != ScoreFromServer {
		t.Errorf("Score = %v (%s), want 23 from server", out.Score, out.ScoreSource)
	}
	if out.Risk.Level != risk.LevelHigh || out.ServerLevel != risk.LevelHigh {
		t.Errorf("levels = %q / %q", out.Risk.Level, out.ServerLevel)
	}
	if out.Summary != "see a clinician" {
		t.Errorf("Summary = %q", out.Summary)
	}
}

func TestMachine_TextFollowUpsDoNotChangeScore(t *testing.T) {
	for _, answer := range []string{"-inf", "-infinity", "NaN", "inf", "5"} {
		t.Run(answer, func(t *testing.T) {
			svc := newFakeService(7)
			q := sessionclient.Question{
				ID:           "d1",
				Text:         "Tell us more about your sleep",
				ResponseType: sessionclient.ResponseText,
				Origin:       sessionclient.OriginDynamic,
			}
			svc.dynamic = []sessionclient.NextQuestion{{Question: &q}}
			m := startedMachine(t, svc)
			answerAll(t, m, "3")
			if err := m.SubmitStatic(context.Background()); err != nil {
				t.Fatalf("SubmitStatic: %v", err)
			}
			if rounds := runDynamic(t, m, answer); rounds != 1 {
				t.Fatalf("rounds = %d, want 1", rounds)
			}

			out, err := m.Complete(context.Background())
			if err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if out.Score != 21 {
				t.Errorf("Score = %v, want 21 (static answers only)", out.Score)
			}
			if out.Risk.Level != risk.LevelHigh {
				t.Errorf("Risk = %q, want high", out.Risk.Level)
			}
			if out.DynamicAnswered != 1 {
				t.Errorf("DynamicAnswered = %d, want 1", out.DynamicAnswered)
			}
		})
	}
}

func TestMachine_IncompleteStaticNeverSubmitted(t *testing.T) {
	svc := newFakeService(3)
	m := startedMachine(t, svc)

	if err := m.Next(); !errors.Is(err, ErrUnanswered) {
		t.Fatalf("Next on unanswered = %v, want ErrUnanswered", err)
	}

	_ = m.Answer("1")
	_ = m.Next()
	_ = m.Answer("1")
	_ = m.Next()
	// Third question unanswered: cannot reach submission.
	if err := m.Next(); !errors.Is(err, ErrUnanswered) {
		t.Fatalf("Next = %v, want ErrUnanswered", err)
	}
	if m.State() != StateCollectingStatic {
		t.Fatalf("State = %s, want collecting_static", m.State())
	}

	var pv *ProtocolViolationError
	if err := m.SubmitStatic(context.Background()); !errors.As(err, &pv) {
		t.Fatalf("SubmitStatic = %v, want ProtocolViolationError", err)
	}
	if svc.count("submit_static") != 0 {
		t.Errorf("submit_static calls = %d, want 0", svc.count("submit_static"))
	}
}

func TestMachine_ReanswerKeepsOneAnswer(t *testing.T) {
	svc := newFakeService(2)
	m := startedMachine(t, svc)

	_ = m.Answer("0")
	_ = m.Answer("3")
	_ = m.Next()
	_ = m.Answer("1")
	if err := m.Previous(); err != nil {
		t.Fatalf("Previous: %v", err)
	}
	if v, _ := m.Selected("q1"); v != "3" {
		t.Errorf("q1 = %q, want 3", v)
	}
	_ = m.Answer("2")
	_ = m.Next()
	_ = m.Next()
	if err := m.SubmitStatic(context.Background()); err != nil {
		t.Fatalf("SubmitStatic: %v", err)
	}

	got := svc.submitted[0]
	if len(got) != 2 {
		t.Fatalf("submitted %d answers, want 2", len(got))
	}
	if got[0] != (sessionclient.Answer{QuestionID: "q1", Value: "2"}) {
		t.Errorf("answer[0] = %+v", got[0])
	}
	if got[1] != (sessionclient.Answer{QuestionID: "q2", Value: "1"}) {
		t.Errorf("answer[1] = %+v", got[1])
	}
}

func TestMachine_AnswerValidation(t *testing.T) {
	svc := newFakeService(1)
	svc.questions = append(svc.questions, sessionclient.Question{
		ID: "free", Text: "Anything else?", ResponseType: sessionclient.ResponseText,
	})
	m := startedMachine(t, svc)

	if err := m.Answer("7"); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("Answer(7) = %v, want ErrInvalidOption", err)
	}
	if err := m.Answer("   "); !errors.Is(err, ErrEmptyAnswer) {
		t.Errorf("Answer(blank) = %v, want ErrEmptyAnswer", err)
	}
	if err := m.Answer(" 2 "); err != nil {
		t.Errorf("Answer(2) = %v", err)
	}
	_ = m.Next()
	if err := m.Answer("I sleep badly"); err != nil {
		t.Errorf("free text answer = %v", err)
	}
}

func TestMachine_PreviousAtFirst(t *testing.T) {
	m := startedMachine(t, newFakeService(2))
	if err := m.Previous(); !errors.Is(err, ErrAtFirstQuestion) {
		t.Errorf("Previous = %v, want ErrAtFirstQuestion", err)
	}
}

func TestMachine_PreviousFromSubmitting(t *testing.T) {
	m := startedMachine(t, newFakeService(3))
	answerAll(t, m, "1")

	if err := m.Previous(); err != nil {
		t.Fatalf("Previous: %v", err)
	}
	if m.State() != StateCollectingStatic {
		t.Fatalf("State = %s, want collecting_static", m.State())
	}
	q, ok := m.Current()
	if !ok || q.ID != "q3" {
		t.Errorf("Current = %q, want q3", q.ID)
	}
	if v, _ := m.Selected("q3"); v != "1" {
		t.Errorf("answer to q3 lost: %q", v)
	}
}

func TestMachine_ZeroStaticQuestions(t *testing.T) {
	svc := newFakeService(0)
	m := startedMachine(t, svc)

	if _, ok := m.Current(); ok {
		t.Fatal("Current reported a question in an empty battery")
	}
	if err := m.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if m.State() != StateSubmittingStatic {
		t.Fatalf("State = %s, want submitting_static", m.State())
	}
}

func TestMachine_SubmitStaticErrorKeepsState(t *testing.T) {
	svc := newFakeService(2)
	rejected := &sessionclient.ValidationError{Op: "submit static answers", StatusCode: 422, Message: "missing answers"}
	svc.submitErrs = []error{rejected}
	m := startedMachine(t, svc)
	answerAll(t, m, "2")

	err := m.SubmitStatic(context.Background())
	var ve *sessionclient.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("SubmitStatic = %v, want ValidationError", err)
	}
	if m.State() != StateSubmittingStatic {
		t.Fatalf("State = %s, want submitting_static", m.State())
	}

	// Answers are still buffered, so a retry succeeds.
	if err := m.SubmitStatic(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(svc.submitted) != 1 || len(svc.submitted[0]) != 2 {
		t.Errorf("submitted = %v", svc.submitted)
	}
}

func TestMachine_FailSafeGoesToCompleting(t *testing.T) {
	svc := newFakeService(1)
	cause := &sessionclient.ServiceUnavailableError{Op: "fetch next question", StatusCode: 503}
	svc.dynamic = []sessionclient.NextQuestion{{FailSafe: cause}}
	m := startedMachine(t, svc)
	answerAll(t, m, "1")
	_ = m.SubmitStatic(context.Background())

	q, err := m.FetchNext(context.Background())
	if err != nil || q != nil {
		t.Fatalf("FetchNext = %v, %v; want Final", q, err)
	}
	if m.State() != StateCompleting {
		t.Fatalf("State = %s, want completing", m.State())
	}
	if !errors.Is(m.FailSafe(), cause) {
		t.Errorf("FailSafe = %v", m.FailSafe())
	}
	out, err := m.Complete(context.Background())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.FailSafe == nil {
		t.Error("Outcome.FailSafe not set")
	}
}

func TestMachine_FetchNextCancelled(t *testing.T) {
	svc := newFakeService(1)
	svc.fetchErr = context.Canceled
	m := startedMachine(t, svc)
	answerAll(t, m, "1")
	_ = m.SubmitStatic(context.Background())

	if _, err := m.FetchNext(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("FetchNext = %v, want context.Canceled", err)
	}
	if m.State() != StateAwaitingQuestion {
		t.Errorf("State = %s, want awaiting_question", m.State())
	}
}

func TestMachine_SubmitDynamicErrorKeepsQuestion(t *testing.T) {
	svc := newFakeService(1)
	svc.dynamic = dynamicRounds(1)
	svc.dynErr = errors.New("boom")
	m := startedMachine(t, svc)
	answerAll(t, m, "1")
	_ = m.SubmitStatic(context.Background())
	_, _ = m.FetchNext(context.Background())

	if err := m.SubmitDynamic(context.Background(), "2"); err == nil {
		t.Fatal("expected error")
	}
	if m.State() != StateAwaitingAnswer {
		t.Fatalf("State = %s, want awaiting_answer", m.State())
	}
	if q, ok := m.CurrentDynamic(); !ok || q.ID != "d1" {
		t.Errorf("CurrentDynamic = %+v, %v", q, ok)
	}
}

func TestMachine_DynamicAnswersAreImmutable(t *testing.T) {
	svc := newFakeService(1)
	svc.dynamic = dynamicRounds(2)
	m := startedMachine(t, svc)
	answerAll(t, m, "1")
	_ = m.SubmitStatic(context.Background())
	_, _ = m.FetchNext(context.Background())
	_ = m.SubmitDynamic(context.Background(), "2")

	var pv *ProtocolViolationError
	if err := m.SubmitDynamic(context.Background(), "3"); !errors.As(err, &pv) {
		t.Fatalf("second SubmitDynamic = %v, want ProtocolViolationError", err)
	}
	if len(svc.dynAnswers) != 1 || svc.dynAnswers[0] != "2" {
		t.Errorf("dynAnswers = %v", svc.dynAnswers)
	}
}

func TestMachine_CompleteOnlyOnce(t *testing.T) {
	svc := newFakeService(1)
	m := startedMachine(t, svc)
	answerAll(t, m, "1")
	_ = m.SubmitStatic(context.Background())
	_, _ = m.FetchNext(context.Background())

	if _, err := m.Complete(context.Background()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	_, err := m.Complete(context.Background())
	var pv *ProtocolViolationError
	if !errors.As(err, &pv) {
		t.Fatalf("second Complete = %v, want ProtocolViolationError", err)
	}
	if svc.count("complete") != 1 {
		t.Errorf("complete calls = %d, want 1", svc.count("complete"))
	}
}

func TestMachine_CompleteFailureIsTerminal(t *testing.T) {
	svc := newFakeService(1)
	svc.completeErr = &sessionclient.ServiceUnavailableError{Op: "complete session", StatusCode: 502}
	m := startedMachine(t, svc)
	answerAll(t, m, "1")
	_ = m.SubmitStatic(context.Background())
	_, _ = m.FetchNext(context.Background())

	if _, err := m.Complete(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if m.State() != StateFailed {
		t.Fatalf("State = %s, want failed", m.State())
	}
	var pv *ProtocolViolationError
	if _, err := m.Complete(context.Background()); !errors.As(err, &pv) {
		t.Errorf("retry Complete = %v, want ProtocolViolationError", err)
	}
	if svc.count("complete") != 1 {
		t.Errorf("complete calls = %d, want 1", svc.count("complete"))
	}
	if _, ok := m.Outcome(); ok {
		t.Error("Outcome available after failed completion")
	}
}

func TestMachine_StartFailure(t *testing.T) {
	svc := newFakeService(1)
	svc.startErr = &sessionclient.ServiceUnavailableError{Op: "start session"}
	m := NewMachine(svc)

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if m.State() != StateFailed {
		t.Fatalf("State = %s, want failed", m.State())
	}
	if svc.count("static") != 0 {
		t.Error("static questions fetched after failed start")
	}
	if m.Failure() == nil {
		t.Error("Failure not recorded")
	}
}

func TestMachine_OperationsOutOfOrder(t *testing.T) {
	svc := newFakeService(1)
	m := NewMachine(svc)
	ctx := context.Background()
	var pv *ProtocolViolationError

	if err := m.SubmitStatic(ctx); !errors.As(err, &pv) {
		t.Errorf("SubmitStatic before start = %v", err)
	}
	if _, err := m.FetchNext(ctx); !errors.As(err, &pv) {
		t.Errorf("FetchNext before start = %v", err)
	}
	if _, err := m.Complete(ctx); !errors.As(err, &pv) {
		t.Errorf("Complete before start = %v", err)
	}
	if err := m.Answer("1"); !errors.As(err, &pv) {
		t.Errorf("Answer before start = %v", err)
	}
	if pv.State != StateIdle {
		t.Errorf("violation state = %s, want idle", pv.State)
	}

	_ = m.Start(ctx)
	if err := m.Start(ctx); !errors.As(err, &pv) {
		t.Errorf("second Start = %v", err)
	}
	if svc.count("start") != 1 {
		t.Errorf("start calls = %d, want 1", svc.count("start"))
	}
}

func TestMachine_InFlightGuard(t *testing.T) {
	svc := newFakeService(1)
	m := startedMachine(t, svc)
	answerAll(t, m, "1")

	svc.release = make(chan struct{})
	svc.entered = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- m.SubmitStatic(context.Background()) }()
	<-svc.entered

	if !m.Busy() {
		t.Error("Busy = false during submission")
	}
	var pv *ProtocolViolationError
	if err := m.SubmitStatic(context.Background()); !errors.As(err, &pv) {
		t.Errorf("concurrent SubmitStatic = %v, want ProtocolViolationError", err)
	}
	if err := m.Previous(); !errors.As(err, &pv) {
		t.Errorf("Previous during submission = %v, want ProtocolViolationError", err)
	}

	close(svc.release)
	if err := <-done; err != nil {
		t.Fatalf("SubmitStatic: %v", err)
	}
	if svc.count("submit_static") != 1 {
		t.Errorf("submit_static calls = %d, want 1", svc.count("submit_static"))
	}
}

func TestMachine_DiscardDropsInFlightResult(t *testing.T) {
	svc := newFakeService(1)
	m := startedMachine(t, svc)
	answerAll(t, m, "1")

	svc.release = make(chan struct{})
	svc.entered = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- m.SubmitStatic(context.Background()) }()
	<-svc.entered

	m.Discard()
	close(svc.release)

	if err := <-done; !errors.Is(err, ErrDiscarded) {
		t.Fatalf("SubmitStatic after discard = %v, want ErrDiscarded", err)
	}
	if m.State() != StateFailed {
		t.Errorf("State = %s, want failed", m.State())
	}
	if _, err := m.FetchNext(context.Background()); !errors.Is(err, ErrDiscarded) {
		t.Errorf("FetchNext after discard = %v, want ErrDiscarded", err)
	}
	if svc.count("fetch_next") != 0 {
		t.Error("network call made after discard")
	}
}

func TestMachine_StrictPanics(t *testing.T) {
	m := NewMachine(newFakeService(1), WithStrict(true))
	defer func() {
		r := recover()
		if _, ok := r.(*ProtocolViolationError); !ok {
			t.Errorf("recover() = %v, want *ProtocolViolationError", r)
		}
	}()
	_, _ = m.Complete(context.Background())
}

func TestMachine_StrictPanicReleasesLock(t *testing.T) {
	m := NewMachine(newFakeService(1), WithStrict(true))

	for name, call := range map[string]func(){
		"complete": func() { _, _ = m.Complete(context.Background()) },
		"answer":   func() { _ = m.Answer("1") },
		"fetch":    func() { _, _ = m.FetchNext(context.Background()) },
	} {
		func() {
			defer func() {
				if _, ok := recover().(*ProtocolViolationError); !ok {
					t.Errorf("%s: expected a protocol violation panic", name)
				}
			}()
			call()
		}()

		done := make(chan State, 1)
		go func() { done <- m.State() }()
		select {
		case st := <-done:
			if st != StateIdle {
				t.Errorf("%s: State = %s, want idle", name, st)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: machine still locked after recovered panic", name)
		}
	}
}

func TestMachine_PhasesMoveForward(t *testing.T) {
	svc := newFakeService(1)
	svc.dynamic = dynamicRounds(1)
	var phases []Phase
	var m *Machine
	m = NewMachine(svc, WithClock(func() time.Time { return time.Unix(0, 0) }), WithTransitionHook(func(Transition) {
		if s, ok := m.Session(); ok {
			phases = append(phases, s.Phase)
		}
	}))
	ctx := context.Background()
	_ = m.Start(ctx)
	answerAll(t, m, "1")
	_ = m.SubmitStatic(ctx)
	runDynamic(t, m, "1")
	_, _ = m.Complete(ctx)

	for i := 1; i < len(phases); i++ {
		if phases[i] < phases[i-1] {
			t.Fatalf("phase went backwards: %v", phases)
		}
	}
	want := []Phase{PhaseStaticCollection, PhaseStaticCollection, PhaseStaticSubmitted, PhaseDynamicLoop, PhaseDynamicLoop, PhaseDynamicLoop, PhaseCompleted}
	if fmt.Sprint(phases) != fmt.Sprint(want) {
		t.Errorf("phases = %v, want %v", phases, want)
	}
}
