package domain

import (
	"encoding/json"
	"fmt"
)

// Section is one titled block of generated prose.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// PersonalReport is the payload of a personal-report job.
type PersonalReport struct {
	Title    string            `json:"title"`
	Summary  string            `json:"summary"`
	Facts    map[string]string `json:"facts,omitempty"`
	Sections []Section         `json:"sections"`
}

// CompatibilityReport is the payload of a compatibility-report job.
type CompatibilityReport struct {
	Title    string    `json:"title"`
	Score    int       `json:"score"`
	Summary  string    `json:"summary"`
	Sections []Section `json:"sections"`
}

// ForecastDay is the forecast for a single calendar date.
type ForecastDay struct {
	Date     string `json:"date"`
	Headline string `json:"headline"`
	Body     string `json:"body"`
}

// Forecast is the payload of every forecast kind.
type Forecast struct {
	Title string        `json:"title"`
	Days  []ForecastDay `json:"days"`
}

// Question pairs a personalised prompt with its generated answer.
type Question struct {
	Prompt string `json:"prompt"`
	Answer string `json:"answer"`
}

// QuestionSet is the payload of every question-set kind.
type QuestionSet struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// FailureKind classifies why a job failed.
type FailureKind string

const (
	FailureGeneration FailureKind = "generation"
	FailureTimeout    FailureKind = "timeout"
	FailureShutdown   FailureKind = "shutdown"
)

// Failure is the error descriptor stored on failed jobs. It never carries a
// partial payload.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// DecodePayload decodes a completed payload into the shape owned by kind.
func DecodePayload(kind JobKind, raw []byte) (any, error) {
	var target any
	switch kind {
	case KindPersonalReport:
		target = &PersonalReport{}
	case KindCompatibilityReport:
		target = &CompatibilityReport{}
	case KindForecastToday, KindForecastTomorrow, KindForecast14Day:
		target = &Forecast{}
	case KindQuestionSetMe, KindQuestionSetDaily:
		target = &QuestionSet{}
	default:
		return nil, fmt.Errorf("decode payload: unknown kind %q", kind)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return target, nil
}
