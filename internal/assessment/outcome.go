package assessment

import (
	"time"

	"github.com/mindbridge/mindbridge/internal/risk"
	"github.com/mindbridge/mindbridge/internal/sessionclient"
)

// ScoreSource tells where an outcome's score came from.
type ScoreSource string

const (
	ScoreFromServer ScoreSource = "server"
	ScoreDerived    ScoreSource = "derived"
)

// Outcome is the finalized result of a completed session.
type Outcome struct {
	SessionID   string
	Score       float64
	ScoreSource ScoreSource
	Risk        risk.Assessment

	// ServerLevel is the tier the backend reported, if any. The displayed
	// tier is always Risk.Level, classified locally from Score.
	ServerLevel risk.Level

	Summary         string
	CompletedAt     *time.Time
	StaticAnswered  int
	DynamicAnswered int

	// FailSafe is the cause when the client ended the dynamic loop itself.
	FailSafe error
}

// DeriveScore sums the option values of single-choice answers. Free-text
// answers never contribute, even when they parse as numbers.
func DeriveScore(responses []Response) float64 {
	var total float64
	for _, r := range responses {
		if r.ResponseType != sessionclient.ResponseSingleChoice {
			continue
		}
		if f, ok := sessionclient.Value(r.Value).Numeric(); ok {
			total += f
		}
	}
	return total
}
