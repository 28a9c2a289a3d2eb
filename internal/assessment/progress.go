package assessment

import (
	"fmt"
	"math"
)

// Progress is what the progress bar shows.
type Progress struct {
	Percent       int // 0-100; meaningless when Indeterminate
	Label         string
	Indeterminate bool
}

// Project maps a snapshot to display progress. The static phase has a
// known length; the dynamic loop does not, so it is reported as
// indeterminate with a running count instead of a percentage.
func Project(s Snapshot) Progress {
	switch s.State {
	case StateIdle:
		return Progress{Label: "Not started"}
	case StateStarting:
		return Progress{Label: "Starting…", Indeterminate: true}
	case StateCollectingStatic:
		if s.Total == 0 {
			return Progress{Percent: 100, Label: "No questions"}
		}
		n := min(s.Index+1, s.Total)
		return Progress{
			Percent: int(math.Round(100 * float64(n) / float64(s.Total))),
			Label:   fmt.Sprintf("Question %d of %d", n, s.Total),
		}
	case StateSubmittingStatic:
		return Progress{Percent: 100, Label: "Submitting answers"}
	case StateAwaitingQuestion:
		return Progress{Label: "Preparing follow-up question", Indeterminate: true}
	case StateAwaitingAnswer:
		return Progress{
			Label:         fmt.Sprintf("Follow-up question %d", s.DynamicAnswered+1),
			Indeterminate: true,
		}
	case StateCompleting:
		return Progress{Percent: 100, Label: "Finishing up"}
	case StateCompleted:
		return Progress{Percent: 100, Label: "Complete"}
	case StateFailed:
		return Progress{Label: "Stopped"}
	}
	return Progress{}
}
