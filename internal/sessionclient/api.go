package sessionclient

import "context"

// API is the typed boundary to the remote assessment service.
// Client implements it; WithRetry, WithCache and WithMetrics decorate it.
type API interface {
	// StartSession opens a new assessment session. Every call creates a new
	// session on the server, so callers must invoke it at most once per
	// user-initiated assessment. It is never retried.
	StartSession(ctx context.Context) (string, error)

	// FetchStaticQuestions returns the fixed, ordered battery of questions.
	FetchStaticQuestions(ctx context.Context) ([]Question, error)

	// SubmitStaticAnswers sends one answer per static question.
	SubmitStaticAnswers(ctx context.Context, sessionID string, answers []Answer) error

	// FetchNextDynamicQuestion returns the next follow-up question or the
	// Final sentinel. Backend failures are reported as a fail-safe Final,
	// not as an error; an error is returned only when ctx itself is done.
	FetchNextDynamicQuestion(ctx context.Context, sessionID string) (NextQuestion, error)

	// SubmitDynamicAnswer answers the outstanding follow-up question.
	SubmitDynamicAnswer(ctx context.Context, sessionID, questionText, answer string) error

	// CompleteSession finalizes the session. The server's behavior on a
	// second call is undefined.
	CompleteSession(ctx context.Context, sessionID string) (*Result, error)

	// FetchHistory lists the caller's past sessions.
	FetchHistory(ctx context.Context) ([]SessionSummary, error)

	// FetchSessionDetail returns one past session with its responses.
	FetchSessionDetail(ctx context.Context, sessionID string) (*SessionDetail, error)
}
