// Package risk maps a finalized assessment score to a risk tier.
//
// The partition is fixed and the functions are pure: the same score always
// yields the same tier, and every float64 (including NaN and infinities)
// maps to exactly one tier.
package risk

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Level is a risk tier derived from a score. It is never stored apart
// from the score it came from.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Partition boundaries. Scores below MediumThreshold are low; scores at or
// above HighThreshold are high.
const (
	MediumThreshold = 10.0
	HighThreshold   = 20.0
)

// guidance is the stable description shown for each tier.
var guidance = map[Level]string{
	LevelLow: "Your responses suggest low current distress. " +
		"Keep up the routines that help you, and check in again if things change.",
	LevelMedium: "Your responses suggest moderate distress. " +
		"Consider booking an appointment with a counselor to talk things through.",
	LevelHigh: "Your responses suggest high distress. " +
		"Please reach out to a clinician soon. If you are in crisis or thinking about " +
		"harming yourself, contact your local emergency number or a crisis line now.",
}

// Classify maps score to a tier. NaN is treated as high so an unreadable
// score never understates risk.
func Classify(score float64) Level {
	switch {
	case math.IsNaN(score):
		return LevelHigh
	case score < MediumThreshold:
		return LevelLow
	case score < HighThreshold:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// Describe returns the guidance text for a tier.
func Describe(l Level) string {
	if g, ok := guidance[l]; ok {
		return g
	}
	return ""
}

// Assessment is a classified score with its guidance.
type Assessment struct {
	Score    float64
	Level    Level
	Guidance string
}

// Assess classifies score and attaches the tier's guidance.
func Assess(score float64) Assessment {
	l := Classify(score)
	return Assessment{Score: score, Level: l, Guidance: Describe(l)}
}

// ParseLevel parses a tier name as sent by the backend.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelLow, LevelMedium, LevelHigh:
		return l, nil
	}
	return "", fmt.Errorf("unknown risk level %q", s)
}

// Label returns a display label for a tier.
func (l Level) Label() string {
	switch l {
	case LevelLow:
		return "Low"
	case LevelMedium:
		return "Medium"
	case LevelHigh:
		return "High"
	}
	return "Unknown"
}

// FormatScore renders a score without a trailing ".0" for whole numbers.
func FormatScore(score float64) string {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return "n/a"
	}
	if score == math.Trunc(score) {
		return strconv.FormatFloat(score, 'f', 0, 64)
	}
	return strconv.FormatFloat(score, 'f', 1, 64)
}
