package reports

import (
	"context"
	"fmt"
	"time"

	"astroreports/internal/domain"
)

// TTLPolicy maps a kind to how long its completed content stays fresh. Kinds
// without an entry, or with a non-positive duration, never expire.
type TTLPolicy map[domain.JobKind]time.Duration

// DefaultTTLs returns the freshness windows used when configuration does not
// override them.
func DefaultTTLs() TTLPolicy {
	const day = 24 * time.Hour
	return TTLPolicy{
		domain.KindPersonalReport:   90 * day,
		domain.KindForecastToday:    day,
		domain.KindForecastTomorrow: day,
		domain.KindForecast14Day:    7 * day,
		domain.KindQuestionSetMe:    30 * day,
		domain.KindQuestionSetDaily: day,
	}
}

// ExpiresAt returns the expiry of content of kind completed at completedAt.
func (p TTLPolicy) ExpiresAt(kind domain.JobKind, completedAt time.Time) *time.Time {
	ttl := p[kind]
	if ttl <= 0 {
		return nil
	}
	at := completedAt.Add(ttl)
	return &at
}

type staleStore interface {
	BeginRefresh(ctx context.Context, id string, staleBefore time.Time) (bool, error)
	FindPlaceholder(ctx context.Context, kind domain.JobKind, subjectKey, excludeHash string) (*domain.Job, error)
}

// StalePolicy decides what a caller sees while fresher content is produced:
// expired jobs keep serving their last payload during a refresh, and new jobs
// may borrow the payload of an older job about the same subject.
type StalePolicy struct {
	store          staleStore
	refreshTimeout time.Duration
}

// NewStalePolicy returns a policy that treats refresh claims older than
// refreshTimeout as abandoned.
func NewStalePolicy(store staleStore, refreshTimeout time.Duration) *StalePolicy {
	return &StalePolicy{store: store, refreshTimeout: refreshTimeout}
}

func (p *StalePolicy) IsExpired(job *domain.Job, now time.Time) bool {
	return job.Expired(now)
}

// RefreshLive reports whether job carries a refresh claim younger than the
// refresh timeout.
func (p *StalePolicy) RefreshLive(job *domain.Job, now time.Time) bool {
	return job.RefreshStartedAt != nil && now.Sub(*job.RefreshStartedAt) < p.refreshTimeout
}

// ClaimRefresh marks job as refreshing. Only one caller wins while a claim is
// younger than the refresh timeout.
func (p *StalePolicy) ClaimRefresh(ctx context.Context, job *domain.Job, now time.Time) (bool, error) {
	ok, err := p.store.BeginRefresh(ctx, job.ID, now.Add(-p.refreshTimeout))
	if err != nil {
		return false, fmt.Errorf("begin refresh %s: %w", job.ID, err)
	}
	if ok {
		job.RefreshStartedAt = &now
	}
	return ok, nil
}

// Placeholder returns the newest completed job about the same subject as keys
// but for a different fingerprint, or nil.
func (p *StalePolicy) Placeholder(ctx context.Context, kind domain.JobKind, keys domain.FingerprintKeys) (*domain.Job, error) {
	job, err := p.store.FindPlaceholder(ctx, kind, keys.SubjectKey, keys.Hash)
	if err != nil {
		return nil, fmt.Errorf("find placeholder %s: %w", kind, err)
	}
	if job == nil || job.Status != domain.JobStatusCompleted || len(job.Payload) == 0 {
		return nil, nil
	}
	return job, nil
}

// present converts a stored job into what the caller sees. A completed job
// with a refresh in flight or waiting for a poller reads as pending while
// still carrying its payload.
func present(job *domain.Job) *Result {
	res := &Result{Job: job, Status: job.Status}
	if job.Status == domain.JobStatusCompleted && (job.RefreshStartedAt != nil || job.RefreshRequestedAt != nil) {
		res.Status = domain.JobStatusPending
		res.Refreshing = true
	}
	return res
}
