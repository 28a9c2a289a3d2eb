package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// QueryOpts configures listing queries with filtering and pagination.
type QueryOpts struct {
	Limit int       // max results (0 = unlimited)
	After int64     // sequence > After (events only)
	From  time.Time // timestamp >= From
	To    time.Time // timestamp <= To
}

// OutcomeRecord is a completed assessment as kept on this device. Individual
// answers are not stored.
type OutcomeRecord struct {
	ID              string
	SessionID       string
	Score           float64
	ScoreSource     string
	RiskLevel       string
	ServerLevel     string
	Summary         string
	StaticAnswered  int
	DynamicAnswered int
	FailSafe        string
	CompletedAt     time.Time
}

// ResultRepo manages completed outcomes.
type ResultRepo interface {
	// Save stores rec. An empty ID is filled in. Saving a session twice
	// replaces the earlier record.
	Save(ctx context.Context, rec *OutcomeRecord) error

	// Get returns the outcome for a session, or ErrNotFound.
	Get(ctx context.Context, sessionID string) (*OutcomeRecord, error)

	// List returns outcomes, newest first.
	List(ctx context.Context, opts QueryOpts) ([]OutcomeRecord, error)
}

// SessionEventData captures one state machine transition.
type SessionEventData struct {
	SessionID string
	From      string
	To        string
	Reason    string
	Timestamp time.Time
}

// SessionEvent is a stored transition with its global sequence number.
type SessionEvent struct {
	Sequence int64
	SessionEventData
}

// EventRepo provides append and query access to session events.
type EventRepo interface {
	// AppendSessionEvent records a state transition.
	AppendSessionEvent(ctx context.Context, data SessionEventData) error

	// SessionEvents returns a session's events in sequence order.
	SessionEvents(ctx context.Context, sessionID string, opts QueryOpts) ([]SessionEvent, error)
}
