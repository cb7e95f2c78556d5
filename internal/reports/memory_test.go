package reports

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"astroreports/internal/domain"
)

// memoryRepo is an in-memory domain.JobRepository with the same conditional
// transitions as the SQL stores. It records every status a job passes through.
type memoryRepo struct {
	mu      sync.Mutex
	jobs    map[string]*domain.Job
	history map[string][]domain.JobStatus
	now     func() time.Time

	// beforeCreate runs under no lock right before Create checks constraints.
	beforeCreate func(job *domain.Job)
	codeChecks   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		jobs:    map[string]*domain.Job{},
		history: map[string][]domain.JobStatus{},
		now:     time.Now,
	}
}

func (r *memoryRepo) Create(_ context.Context, job *domain.Job) error {
	if hook := r.beforeCreate; hook != nil {
		r.beforeCreate = nil
		hook(job)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.jobs {
		if existing.Code == job.Code {
			return errors.New("duplicate code")
		}
		if existing.Kind == job.Kind && existing.MatchKey == job.MatchKey && existing.Status.Active() {
			return domain.ErrDuplicateOperation
		}
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.now()
	}
	job.UpdatedAt = job.CreatedAt
	r.jobs[job.ID] = job.Clone()
	r.history[job.ID] = append(r.history[job.ID], job.Status)
	return nil
}

func (r *memoryRepo) CodeExists(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codeChecks++
	for _, j := range r.jobs {
		if j.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (r *memoryRepo) GetByCode(_ context.Context, code string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.Code == code {
			return j.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memoryRepo) newest(match func(*domain.Job) bool) *domain.Job {
	var candidates []*domain.Job
	for _, j := range r.jobs {
		if match(j) {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(a, b int) bool {
		return candidates[a].CreatedAt.After(candidates[b].CreatedAt)
	})
	return candidates[0].Clone()
}

func (r *memoryRepo) FindMatching(_ context.Context, kind domain.JobKind, hash string, statuses ...domain.JobStatus) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newest(func(j *domain.Job) bool {
		if j.Kind != kind || j.FingerprintHash != hash {
			return false
		}
		if len(statuses) == 0 {
			return true
		}
		for _, s := range statuses {
			if j.Status == s {
				return true
			}
		}
		return false
	}), nil
}

func (r *memoryRepo) FindPlaceholder(_ context.Context, kind domain.JobKind, subjectKey, excludeHash string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newest(func(j *domain.Job) bool {
		return j.Kind == kind && j.SubjectKey == subjectKey && j.FingerprintHash != excludeHash && j.Status == domain.JobStatusCompleted
	}), nil
}

func (r *memoryRepo) transition(id string, from []domain.JobStatus, apply func(j *domain.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	allowed := false
	for _, s := range from {
		if j.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return domain.ErrInvalidTransition
	}
	before := j.Status
	apply(j)
	j.UpdatedAt = r.now()
	if j.Status != before {
		r.history[id] = append(r.history[id], j.Status)
	}
	return nil
}

func (r *memoryRepo) MarkInProgress(_ context.Context, id string) error {
	return r.transition(id, []domain.JobStatus{domain.JobStatusPending}, func(j *domain.Job) {
		now := r.now()
		j.Status = domain.JobStatusInProgress
		j.StartedAt = &now
	})
}

func (r *memoryRepo) Complete(_ context.Context, id string, payload json.RawMessage, expiresAt *time.Time) error {
	return r.transition(id, []domain.JobStatus{domain.JobStatusInProgress}, func(j *domain.Job) {
		j.Status = domain.JobStatusCompleted
		j.Payload = append(json.RawMessage(nil), payload...)
		j.ExpiresAt = expiresAt
		j.Failure = nil
	})
}

func (r *memoryRepo) Fail(_ context.Context, id string, failure domain.Failure) error {
	return r.transition(id, []domain.JobStatus{domain.JobStatusPending, domain.JobStatusInProgress}, func(j *domain.Job) {
		j.Status = domain.JobStatusFailed
		j.Failure = &failure
		j.Payload = nil
	})
}

func (r *memoryRepo) BeginRefresh(_ context.Context, id string, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if j.Status != domain.JobStatusCompleted {
		return false, nil
	}
	if j.RefreshStartedAt != nil && !j.RefreshStartedAt.Before(staleBefore) {
		return false, nil
	}
	now := r.now()
	j.RefreshStartedAt = &now
	j.RefreshRequestedAt = nil
	return true, nil
}

func (r *memoryRepo) CompleteRefresh(_ context.Context, id string, payload json.RawMessage, expiresAt *time.Time) error {
	return r.transition(id, []domain.JobStatus{domain.JobStatusCompleted}, func(j *domain.Job) {
		j.Payload = append(json.RawMessage(nil), payload...)
		j.ExpiresAt = expiresAt
		j.RefreshStartedAt = nil
		j.RefreshRequestedAt = nil
	})
}

func (r *memoryRepo) AbandonRefresh(_ context.Context, id string) error {
	return r.transition(id, []domain.JobStatus{domain.JobStatusCompleted}, func(j *domain.Job) {
		j.RefreshStartedAt = nil
		j.RefreshRequestedAt = nil
	})
}

func (r *memoryRepo) DeferRefresh(_ context.Context, id string) error {
	now := r.now()
	return r.transition(id, []domain.JobStatus{domain.JobStatusCompleted}, func(j *domain.Job) {
		j.RefreshStartedAt = nil
		if j.RefreshRequestedAt == nil {
			j.RefreshRequestedAt = &now
		}
	})
}

func (r *memoryRepo) ClaimRefresh(_ context.Context) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *domain.Job
	for _, j := range r.jobs {
		if j.Status != domain.JobStatusCompleted || j.RefreshRequestedAt == nil || j.RefreshStartedAt != nil {
			continue
		}
		if oldest == nil || j.RefreshRequestedAt.Before(*oldest.RefreshRequestedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}
	now := r.now()
	oldest.RefreshStartedAt = &now
	oldest.RefreshRequestedAt = nil
	return oldest.Clone(), nil
}

func (r *memoryRepo) ClaimPending(_ context.Context, olderThan time.Time) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *domain.Job
	for _, j := range r.jobs {
		if j.Status != domain.JobStatusPending || j.CreatedAt.After(olderThan) {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}
	now := r.now()
	oldest.Status = domain.JobStatusInProgress
	oldest.StartedAt = &now
	r.history[oldest.ID] = append(r.history[oldest.ID], oldest.Status)
	return oldest.Clone(), nil
}

func (r *memoryRepo) FailStuck(_ context.Context, startedBefore time.Time, failure domain.Failure) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, j := range r.jobs {
		if j.Status == domain.JobStatusInProgress && j.StartedAt != nil && j.StartedAt.Before(startedBefore) {
			f := failure
			j.Status = domain.JobStatusFailed
			j.Failure = &f
			r.history[id] = append(r.history[id], j.Status)
			n++
		}
		if j.RefreshStartedAt != nil && j.RefreshStartedAt.Before(startedBefore) {
			j.RefreshStartedAt = nil
		}
	}
	return n, nil
}

// put stores job as-is, bypassing constraints.
func (r *memoryRepo) put(job *domain.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job.Clone()
	r.history[job.ID] = append(r.history[job.ID], job.Status)
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func (r *memoryRepo) statuses(id string) []domain.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.JobStatus(nil), r.history[id]...)
}

var _ domain.JobRepository = (*memoryRepo)(nil)
