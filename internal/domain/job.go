package domain

import (
	"encoding/json"
	"time"
)

// JobKind enumerates the report categories served by the generation engine.
type JobKind string

const (
	KindPersonalReport      JobKind = "personal-report"
	KindCompatibilityReport JobKind = "compatibility-report"
	KindForecastToday       JobKind = "forecast-today"
	KindForecastTomorrow    JobKind = "forecast-tomorrow"
	KindForecast14Day       JobKind = "forecast-14day"
	KindQuestionSetMe       JobKind = "question-set-me"
	KindQuestionSetDaily    JobKind = "question-set-daily"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []JobKind{
	KindPersonalReport,
	KindCompatibilityReport,
	KindForecastToday,
	KindForecastTomorrow,
	KindForecast14Day,
	KindQuestionSetMe,
	KindQuestionSetDaily,
}

// Valid reports whether k is one of the known kinds.
func (k JobKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// TwoParty reports whether fingerprints of this kind describe a pair of people
// whose order does not matter.
func (k JobKind) TwoParty() bool {
	return k == KindCompatibilityReport
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is expected for the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Active reports whether a generation run is queued or executing.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusInProgress
}

// Job is a single tracked unit of asynchronous report generation.
// RefreshStartedAt is set while a refresh runs; RefreshRequestedAt while an
// expired job waits for a poller to claim its refresh.
type Job struct {
	ID                 string
	Code               string
	Kind               JobKind
	Status             JobStatus
	Fingerprint        Fingerprint
	FingerprintHash    string
	MatchKey           string
	SubjectKey         string
	Payload            json.RawMessage
	Failure            *Failure
	ExpiresAt          *time.Time
	OwnerID            string
	RefreshStartedAt   *time.Time
	RefreshRequestedAt *time.Time
	StartedAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Expired reports whether a completed job has passed its expiry instant.
func (j *Job) Expired(now time.Time) bool {
	if j == nil || j.Status != JobStatusCompleted || j.ExpiresAt == nil {
		return false
	}
	return !now.Before(*j.ExpiresAt)
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.Payload != nil {
		cp.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	if j.Failure != nil {
		f := *j.Failure
		cp.Failure = &f
	}
	cp.ExpiresAt = cloneTime(j.ExpiresAt)
	cp.RefreshStartedAt = cloneTime(j.RefreshStartedAt)
	cp.RefreshRequestedAt = cloneTime(j.RefreshRequestedAt)
	cp.StartedAt = cloneTime(j.StartedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// NewJob prepares a pending job for the given fingerprint. Identity fields
// (ID, Code, timestamps) are assigned by the caller and the store.
func NewJob(fp Fingerprint, ownerID string) (*Job, error) {
	keys, err := KeysFor(fp)
	if err != nil {
		return nil, err
	}
	return &Job{
		Kind:            fp.Kind(),
		Status:          JobStatusPending,
		Fingerprint:     fp,
		FingerprintHash: keys.Hash,
		MatchKey:        keys.MatchKey,
		SubjectKey:      keys.SubjectKey,
		OwnerID:         ownerID,
	}, nil
}
