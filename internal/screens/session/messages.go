package session

import (
	"time"

	"github.com/mindbridge/mindbridge/internal/assessment"
	"github.com/mindbridge/mindbridge/internal/sessionclient"
)

// startedMsg is sent when the session has been opened and the static
// battery loaded.
type startedMsg struct {
	Err error
}

// staticSubmittedMsg is sent when the static answers have been accepted.
type staticSubmittedMsg struct {
	Err error
}

// questionFetchedMsg carries the next follow-up question, or nil when the
// dynamic loop is over.
type questionFetchedMsg struct {
	Question *sessionclient.Question
	Err      error
}

// dynamicSubmittedMsg is sent when a follow-up answer has been recorded.
type dynamicSubmittedMsg struct {
	Err error
}

// completedMsg is sent when the session has been finalized and, if a store
// is configured, its outcome saved.
type completedMsg struct {
	Outcome assessment.Outcome
	Err     error
	SaveErr error
}

// spinnerTickMsg is sent at short intervals to animate the busy indicator.
type spinnerTickMsg time.Time
