package domain

import (
	"context"
	"encoding/json"
	"time"
)

// JobRepository defines persistence for generation jobs. Every mutation is a
// single-record conditional update; a missed precondition is reported as
// ErrInvalidTransition.
type JobRepository interface {
	// Create inserts a pending job. It returns ErrDuplicateOperation when an
	// active job with the same kind and match key already exists.
	Create(ctx context.Context, job *Job) error
	CodeExists(ctx context.Context, code string) (bool, error)
	GetByID(ctx context.Context, id string) (*Job, error)
	GetByCode(ctx context.Context, code string) (*Job, error)
	// FindMatching returns the most recent job with the given fingerprint hash,
	// optionally restricted to statuses. It returns (nil, nil) when none match.
	FindMatching(ctx context.Context, kind JobKind, hash string, statuses ...JobStatus) (*Job, error)
	// FindPlaceholder returns the most recent completed job for subjectKey whose
	// fingerprint hash differs from excludeHash.
	FindPlaceholder(ctx context.Context, kind JobKind, subjectKey, excludeHash string) (*Job, error)

	MarkInProgress(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, payload json.RawMessage, expiresAt *time.Time) error
	Fail(ctx context.Context, id string, failure Failure) error

	// BeginRefresh marks a completed job as refreshing unless another refresh
	// started after staleBefore. It reports whether the caller won the claim.
	BeginRefresh(ctx context.Context, id string, staleBefore time.Time) (bool, error)
	CompleteRefresh(ctx context.Context, id string, payload json.RawMessage, expiresAt *time.Time) error
	AbandonRefresh(ctx context.Context, id string) error
	// DeferRefresh releases a refresh claim and leaves a request for
	// ClaimRefresh, for callers that cannot run the refresh themselves.
	DeferRefresh(ctx context.Context, id string) error
	// ClaimRefresh claims the oldest deferred refresh and returns its job, or
	// (nil, nil) when none waits.
	ClaimRefresh(ctx context.Context) (*Job, error)

	// ClaimPending moves the oldest pending job created before olderThan to
	// in_progress and returns it, or (nil, nil) when there is none.
	ClaimPending(ctx context.Context, olderThan time.Time) (*Job, error)
	// FailStuck fails in_progress jobs started before startedBefore and clears
	// refresh markers set before the same instant.
	FailStuck(ctx context.Context, startedBefore time.Time, failure Failure) (int64, error)
}

// ProfileRepository stores the birth profiles of registered users.
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
	Upsert(ctx context.Context, profile *Profile) error
	Exists(ctx context.Context, userID string) (bool, error)
}
