package sessionclient

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// ResponseType describes how a question is answered.
type ResponseType string

const (
	ResponseSingleChoice ResponseType = "singleChoice"
	ResponseText         ResponseType = "text"
)

// Origin tells whether a question came from the fixed battery or was
// generated by the backend during the session.
type Origin string

const (
	OriginStatic  Origin = "static"
	OriginDynamic Origin = "dynamic"
)

// Value is an option or answer value. The backend sends option values as
// JSON numbers or strings; both are carried as their literal text.
type Value string

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*v = ""
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return fmt.Errorf("value must be a string or number, got %s", b)
	}
	*v = Value(b)
	return nil
}

// Numeric returns the value as a finite number, if it is one. NaN and
// infinities are not numbers here.
func (v Value) Numeric() (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Option is one selectable answer of a single-choice question.
type Option struct {
	Value Value  `json:"value"`
	Label string `json:"label"`
}

// Question is immutable once issued to the client.
type Question struct {
	ID           string       `json:"id"`
	Text         string       `json:"text"`
	ResponseType ResponseType `json:"responseType,omitempty"`
	Options      []Option     `json:"options,omitempty"`
	Origin       Origin       `json:"origin,omitempty"`
}

// HasOption reports whether value is one of the question's option values.
func (q Question) HasOption(value string) bool {
	for _, o := range q.Options {
		if string(o.Value) == value {
			return true
		}
	}
	return false
}

// normalize fills in the response type and origin the backend may omit.
func (q *Question) normalize(origin Origin) {
	if q.ResponseType == "" {
		if len(q.Options) > 0 {
			q.ResponseType = ResponseSingleChoice
		} else {
			q.ResponseType = ResponseText
		}
	}
	q.Origin = origin
}

// Answer is keyed by question identity.
type Answer struct {
	QuestionID string `json:"questionId"`
	Value      string `json:"answer"`
}

// NextQuestion is the tagged result of FetchNextDynamicQuestion: either a
// Question, or Final when Question is nil.
type NextQuestion struct {
	Question *Question

	// FailSafe is set when Final was forced by a failed, malformed or
	// timed-out response instead of being signaled by the server.
	FailSafe error
}

// Final reports whether the dynamic loop is over.
func (n NextQuestion) Final() bool { return n.Question == nil }

// Result is the completion payload.
type Result struct {
	SessionID   string     `json:"sessionId"`
	Score       *float64   `json:"score,omitempty"`
	RiskLevel   string     `json:"riskLevel,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// SessionSummary is one entry of the history listing.
type SessionSummary struct {
	SessionID   string     `json:"sessionId"`
	Status      string     `json:"status,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	RiskLevel   string     `json:"riskLevel,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ResponseRecord is one recorded answer inside a SessionDetail.
type ResponseRecord struct {
	QuestionID   string `json:"questionId,omitempty"`
	QuestionText string `json:"questionText"`
	Answer       Value  `json:"answer"`
	Origin       Origin `json:"origin,omitempty"`
}

// SessionDetail is a past session with its responses.
type SessionDetail struct {
	SessionSummary
	Summary   string           `json:"summary,omitempty"`
	Responses []ResponseRecord `json:"responses"`
}

// Wire payloads.

type startSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type staticSubmission struct {
	SessionID string   `json:"sessionId"`
	Responses []Answer `json:"responses"`
}

type sessionRef struct {
	SessionID string `json:"sessionId"`
}

type dynamicAnswer struct {
	SessionID    string `json:"sessionId"`
	QuestionText string `json:"questionText"`
	Answer       string `json:"answer"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
