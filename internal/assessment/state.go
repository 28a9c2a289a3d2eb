package assessment

import (
	"time"

	"github.com/mindbridge/mindbridge/internal/sessionclient"
)

// State is the state machine's current state.
type State int

const (
	StateIdle             State = iota // Nothing started yet
	StateStarting                      // Opening the session and loading static questions
	StateCollectingStatic              // Answering the static battery
	StateSubmittingStatic              // All static answers present, ready to submit
	StateAwaitingQuestion              // Dynamic loop: next question must be fetched
	StateAwaitingAnswer                // Dynamic loop: a question is outstanding
	StateCompleting                    // Server signaled Final; session must be completed
	StateCompleted                     // Terminal
	StateFailed                        // Terminal; see Machine.Failure
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateStarting:         "starting",
	StateCollectingStatic: "collecting_static",
	StateSubmittingStatic: "submitting_static",
	StateAwaitingQuestion: "awaiting_question",
	StateAwaitingAnswer:   "awaiting_answer",
	StateCompleting:       "completing",
	StateCompleted:        "completed",
	StateFailed:           "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further session operations are permitted.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Phase is the session's coarse lifecycle position. It only moves forward.
type Phase int

const (
	PhaseCreated          Phase = iota // Session opened
	PhaseStaticCollection              // Static battery in progress
	PhaseStaticSubmitted               // Static answers accepted by the server
	PhaseDynamicLoop                   // Follow-up questions in progress
	PhaseCompleted                     // Session finalized
)

var phaseNames = [...]string{
	PhaseCreated:          "created",
	PhaseStaticCollection: "static_collection",
	PhaseStaticSubmitted:  "static_submitted",
	PhaseDynamicLoop:      "dynamic_loop",
	PhaseCompleted:        "completed",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Session is one end-to-end assessment attempt.
type Session struct {
	ID        string
	Phase     Phase
	CreatedAt time.Time
}

// Response is an answer accepted by the server, static or dynamic.
// Responses are immutable.
type Response struct {
	QuestionID   string
	QuestionText string
	Value        string
	Origin       sessionclient.Origin
	ResponseType sessionclient.ResponseType
}

// Transition records one state change, reported to the transition hook.
type Transition struct {
	SessionID string
	From      State
	To        State
	Reason    error // set when To is StateFailed
	At        time.Time
}

// Snapshot is a read-only view of the machine used for display.
type Snapshot struct {
	State           State
	Index           int // current static question, 0-based
	Total           int // static questions
	DynamicAnswered int
	Failure         error
}
