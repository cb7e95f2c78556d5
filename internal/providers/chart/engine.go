package chart

import (
	"context"
	"strconv"

	"astroreports/internal/domain"
)

// Engine turns structural birth data into the chart facts report generation
// works from. Implementations may be slow and may fail; callers treat errors
// as generation failures.
type Engine interface {
	Natal(ctx context.Context, birth domain.BirthData) (*Chart, error)
	Synastry(ctx context.Context, a, b domain.BirthData) (*Synastry, error)
	Transits(ctx context.Context, birth domain.BirthData, date string) (*Transit, error)
}

// Chart is the natal summary of one person. Rising is empty when the birth
// time is unknown.
type Chart struct {
	SunSign  string `json:"sunSign"`
	MoonSign string `json:"moonSign"`
	Rising   string `json:"rising,omitempty"`
	Element  string `json:"element"`
	Modality string `json:"modality"`
	LifePath int    `json:"lifePath"`
}

// Facts flattens the chart into labelled values for prompts and payloads.
func (c *Chart) Facts() map[string]string {
	if c == nil {
		return nil
	}
	facts := map[string]string{
		"sun":       c.SunSign,
		"moon":      c.MoonSign,
		"element":   c.Element,
		"modality":  c.Modality,
		"life_path": strconv.Itoa(c.LifePath),
	}
	if c.Rising != "" {
		facts["rising"] = c.Rising
	}
	return facts
}

// Synastry compares two natal charts.
type Synastry struct {
	First   Chart    `json:"first"`
	Second  Chart    `json:"second"`
	Score   int      `json:"score"`
	Aspects []string `json:"aspects"`
}

// Transit describes the sky over one calendar date relative to a natal chart.
type Transit struct {
	Date      string `json:"date"`
	MoonSign  string `json:"moonSign"`
	Theme     string `json:"theme"`
	Intensity int    `json:"intensity"`
}
