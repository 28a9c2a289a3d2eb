package assessment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDiscarded is returned for operations on, or results arriving at,
	// a machine whose session was abandoned.
	ErrDiscarded = errors.New("assessment session was discarded")

	ErrUnanswered      = errors.New("current question has no answer")
	ErrEmptyAnswer     = errors.New("answer is empty")
	ErrInvalidOption   = errors.New("answer is not one of the question's options")
	ErrAtFirstQuestion = errors.New("already at the first question")
)

// ProtocolViolationError means the caller invoked an operation that is not
// valid in the current state. It is a programming error, not a user-facing
// one.
type ProtocolViolationError struct {
	Op    string
	State State
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation: %s not permitted in state %s", e.Op, e.State)
}

// IncompleteError refuses the move to static submission while questions
// are still unanswered. The state does not change.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%d static question(s) unanswered: %s", len(e.Missing), strings.Join(e.Missing, ", "))
}
