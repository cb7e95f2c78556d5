package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"astroreports/internal/domain"
)

// Request identifies one report request. Kind must agree with the
// fingerprint's own kind when set.
type Request struct {
	Kind        domain.JobKind
	Fingerprint domain.Fingerprint
	OwnerID     string
}

// Result is what callers see for a request. Job is nil when nothing was ever
// requested for the fingerprint. Status is the status the caller should act
// on: a completed job that is being refreshed reads as pending. Placeholder,
// when set, is older content about the same subject and never describes Job.
type Result struct {
	Job         *domain.Job
	Status      domain.JobStatus
	Refreshing  bool
	Created     bool
	Placeholder *domain.Job
}

// Submitter hands work to the background executor without blocking.
type Submitter interface {
	Submit(task Task) bool
}

type ownerChecker interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

type ServiceOptions struct {
	// Owners verifies OwnerID on requests; nil skips the check.
	Owners ownerChecker
	// Executor receives new and refresh work; nil leaves pending jobs and
	// deferred refreshes to a separate worker process.
	Executor Submitter
	// RefreshTimeout is how long a refresh claim blocks other refreshes.
	RefreshTimeout time.Duration
	Codes          *CodeGenerator
	Logger         zerolog.Logger
	Now            func() time.Time
}

// Service is the get-or-create entry point shared by every report kind.
type Service struct {
	store    domain.JobRepository
	owners   ownerChecker
	executor Submitter
	matcher  *Matcher
	codes    *CodeGenerator
	stale    *StalePolicy
	flight   singleflight.Group
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(store domain.JobRepository, opts ServiceOptions) *Service {
	if opts.Codes == nil {
		opts.Codes = NewCodeGenerator(store, nil)
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    store,
		owners:   opts.Owners,
		executor: opts.Executor,
		matcher:  NewMatcher(store),
		codes:    opts.Codes,
		stale:    NewStalePolicy(store, opts.RefreshTimeout),
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Get reports the state of the newest job for the request without starting
// any work. A fingerprint nobody asked for yet is a pending result without a
// job, not an error.
func (s *Service) Get(ctx context.Context, req Request) (*Result, error) {
	keys, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	job, err := s.matcher.MatchUsable(ctx, req.Fingerprint)
	if err != nil {
		return nil, err
	}
	if job != nil {
		return present(job), nil
	}
	return &Result{
		Status:      domain.JobStatusPending,
		Placeholder: s.placeholder(ctx, req.Fingerprint.Kind(), keys),
	}, nil
}

// GetOrCreate returns the existing job for the request or starts a new one.
// Concurrent identical requests share one outcome, including Created.
func (s *Service) GetOrCreate(ctx context.Context, req Request) (*Result, error) {
	keys, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	flightKey := string(req.Fingerprint.Kind()) + ":" + keys.MatchKey
	v, err, _ := s.flight.Do(flightKey, func() (any, error) {
		return s.getOrCreate(context.WithoutCancel(ctx), req, keys)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (s *Service) getOrCreate(ctx context.Context, req Request, keys domain.FingerprintKeys) (*Result, error) {
	existing, err := s.matcher.Match(ctx, req.Fingerprint, usableStatuses...)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if s.stale.IsExpired(existing, s.now()) {
			return s.refresh(ctx, existing)
		}
		return present(existing), nil
	}
	return s.create(ctx, req, keys)
}

func (s *Service) refresh(ctx context.Context, job *domain.Job) (*Result, error) {
	now := s.now()
	if s.stale.RefreshLive(job, now) || job.RefreshRequestedAt != nil {
		return present(job), nil
	}
	claimed, err := s.stale.ClaimRefresh(ctx, job, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Someone else holds a live claim; serve what is stored.
		current, err := s.store.GetByID(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("reload %s: %w", job.ID, err)
		}
		return present(current), nil
	}
	if !s.submit(Task{Job: job.Clone(), Refresh: true}) {
		// No room here; leave the refresh for whichever executor polls next.
		if err := s.store.DeferRefresh(ctx, job.ID); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("reports: defer refresh failed")
			job.RefreshStartedAt = nil
			return present(job), nil
		}
		s.logger.Debug().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("reports: refresh deferred to poller")
		job.RefreshStartedAt = nil
		job.RefreshRequestedAt = &now
		return present(job), nil
	}
	s.logger.Debug().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("reports: refresh started")
	return present(job), nil
}

func (s *Service) create(ctx context.Context, req Request, keys domain.FingerprintKeys) (*Result, error) {
	job, err := domain.NewJob(req.Fingerprint, req.OwnerID)
	if err != nil {
		return nil, err
	}
	job.ID = uuid.NewString()
	job.CreatedAt = s.now()
	job.UpdatedAt = job.CreatedAt
	job.Code, err = s.codes.Next(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, job); err != nil {
		if !errors.Is(err, domain.ErrDuplicateOperation) {
			return nil, fmt.Errorf("create %s job: %w", job.Kind, err)
		}
		// Another process created the active job first.
		winner, matchErr := s.matcher.Match(ctx, req.Fingerprint, domain.JobStatusPending, domain.JobStatusInProgress)
		if matchErr != nil {
			return nil, matchErr
		}
		if winner == nil {
			return nil, fmt.Errorf("create %s job: %w", job.Kind, err)
		}
		return present(winner), nil
	}

	s.logger.Info().Str("job_id", job.ID).Str("code", job.Code).Str("kind", string(job.Kind)).Msg("reports: job created")
	s.submit(Task{Job: job.Clone()})

	return &Result{
		Job:         job,
		Status:      domain.JobStatusPending,
		Created:     true,
		Placeholder: s.placeholder(ctx, job.Kind, keys),
	}, nil
}

// GetByCode is the public lookup path.
func (s *Service) GetByCode(ctx context.Context, code string) (*Result, error) {
	job, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return present(job), nil
}

// GetByID returns a job for polling.
func (s *Service) GetByID(ctx context.Context, id string) (*Result, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return present(job), nil
}

func (s *Service) prepare(ctx context.Context, req Request) (domain.FingerprintKeys, error) {
	if req.Fingerprint == nil {
		return domain.FingerprintKeys{}, fmt.Errorf("%w: fingerprint is required", domain.ErrInvalidFingerprint)
	}
	if req.Kind != "" && req.Kind != req.Fingerprint.Kind() {
		return domain.FingerprintKeys{}, fmt.Errorf("%w: fingerprint belongs to %q, not %q", domain.ErrInvalidFingerprint, req.Fingerprint.Kind(), req.Kind)
	}
	if err := req.Fingerprint.Validate(); err != nil {
		return domain.FingerprintKeys{}, err
	}
	if req.OwnerID != "" && s.owners != nil {
		ok, err := s.owners.Exists(ctx, req.OwnerID)
		if err != nil {
			return domain.FingerprintKeys{}, fmt.Errorf("check owner: %w", err)
		}
		if !ok {
			return domain.FingerprintKeys{}, fmt.Errorf("owner %s: %w", req.OwnerID, domain.ErrNotFound)
		}
	}
	return domain.KeysFor(req.Fingerprint)
}

func (s *Service) placeholder(ctx context.Context, kind domain.JobKind, keys domain.FingerprintKeys) *domain.Job {
	job, err := s.stale.Placeholder(ctx, kind, keys)
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("reports: placeholder lookup failed")
		return nil
	}
	return job
}

func (s *Service) submit(task Task) bool {
	if s.executor == nil {
		return false
	}
	return s.executor.Submit(task)
}
