package reports

import (
	"context"
	"fmt"

	"astroreports/internal/domain"
)

type matchFinder interface {
	FindMatching(ctx context.Context, kind domain.JobKind, hash string, statuses ...domain.JobStatus) (*domain.Job, error)
}

// Matcher finds the most recent job recorded for a fingerprint. For two-party
// kinds the parties may appear in either order; the forward order is always
// tried first.
type Matcher struct {
	store matchFinder
}

func NewMatcher(store matchFinder) *Matcher {
	return &Matcher{store: store}
}

// Match returns the newest job equivalent to fp, restricted to statuses when
// any are given, or nil when there is none.
func (m *Matcher) Match(ctx context.Context, fp domain.Fingerprint, statuses ...domain.JobStatus) (*domain.Job, error) {
	job, err := m.lookup(ctx, fp, statuses)
	if err != nil || job != nil {
		return job, err
	}
	tp, ok := fp.(domain.TwoPartyFingerprint)
	if !ok {
		return nil, nil
	}
	reversed := tp.Swapped()
	if domain.EqualFingerprints(reversed, fp) {
		return nil, nil
	}
	return m.lookup(ctx, reversed, statuses)
}

// usableStatuses are the statuses a request may attach to.
var usableStatuses = []domain.JobStatus{
	domain.JobStatusPending,
	domain.JobStatusInProgress,
	domain.JobStatusCompleted,
}

// MatchUsable prefers a job that has not failed in either party order. Only
// when none exists does it fall back to the newest job, failed or not, so a
// failure in one order never hides a good job recorded in the other.
func (m *Matcher) MatchUsable(ctx context.Context, fp domain.Fingerprint) (*domain.Job, error) {
	job, err := m.Match(ctx, fp, usableStatuses...)
	if err != nil || job != nil {
		return job, err
	}
	return m.Match(ctx, fp)
}

func (m *Matcher) lookup(ctx context.Context, fp domain.Fingerprint, statuses []domain.JobStatus) (*domain.Job, error) {
	hash, err := domain.HashFingerprint(fp)
	if err != nil {
		return nil, err
	}
	job, err := m.store.FindMatching(ctx, fp.Kind(), hash, statuses...)
	if err != nil {
		return nil, fmt.Errorf("find matching %s: %w", fp.Kind(), err)
	}
	// Hash equality is only a lookup key; the stored fingerprint decides.
	if job == nil || !domain.EqualFingerprints(job.Fingerprint, fp) {
		return nil, nil
	}
	return job, nil
}
