package sessionclient

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse marks a 2xx response whose body failed to decode
// or did not match the expected payload schema.
var ErrMalformedResponse = errors.New("malformed response")

// ServiceUnavailableError indicates a transport failure or a non-2xx
// response from the assessment service.
type ServiceUnavailableError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *ServiceUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: assessment service unavailable (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: assessment service unavailable: %v", e.Op, e.Err)
	}
	return e.Op + ": assessment service unavailable"
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

// Transient reports whether retrying the same idempotent request may help.
func (e *ServiceUnavailableError) Transient() bool {
	if errors.Is(e.Err, ErrMalformedResponse) {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// ValidationError indicates the server rejected the payload shape or
// content, e.g. an incomplete set of static answers.
type ValidationError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: rejected by server (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: rejected by server (status %d)", e.Op, e.StatusCode)
}
