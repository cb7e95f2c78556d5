package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"astroreports/internal/domain"
)

const storeWriteTimeout = 10 * time.Second

// Task is one unit of background work: a fresh generation for a pending job,
// or a refresh of a completed one.
type Task struct {
	Job     *domain.Job
	Refresh bool
	// claimed is set when the store already moved the job to in_progress.
	claimed bool
}

type payloadGenerator interface {
	Generate(ctx context.Context, job *domain.Job) (json.RawMessage, error)
}

type ExecutorOptions struct {
	Workers   int
	QueueSize int
	// JobTimeout bounds a single generation run.
	JobTimeout time.Duration
	// PollInterval drives the claim loop for pending jobs nobody submitted
	// and for deferred refreshes; zero disables it.
	PollInterval time.Duration
	// PendingGrace is how old a pending job must be before the claim loop
	// takes it, leaving fresh jobs to the in-process queue.
	PendingGrace time.Duration
	// ReapInterval drives the stuck-job sweep; zero disables it.
	ReapInterval time.Duration
	// StuckGrace is added to JobTimeout before an in_progress job is
	// considered abandoned.
	StuckGrace time.Duration
	TTL        TTLPolicy
	Logger     zerolog.Logger
	Now        func() time.Time
}

func (o *ExecutorOptions) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 2 * time.Minute
	}
	if o.StuckGrace <= 0 {
		o.StuckGrace = 30 * time.Second
	}
	if o.TTL == nil {
		o.TTL = DefaultTTLs()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Executor runs generation outside the request path with a fixed number of
// workers fed by a bounded queue. It writes every outcome back to the store.
type Executor struct {
	store     domain.JobRepository
	generator payloadGenerator
	opts      ExecutorOptions
	queue     chan Task
	logger    zerolog.Logger
}

func NewExecutor(store domain.JobRepository, generator payloadGenerator, opts ExecutorOptions) *Executor {
	opts.applyDefaults()
	return &Executor{
		store:     store,
		generator: generator,
		opts:      opts,
		queue:     make(chan Task, opts.QueueSize),
		logger:    opts.Logger,
	}
}

// JobTimeout returns the per-run deadline.
func (e *Executor) JobTimeout() time.Duration {
	return e.opts.JobTimeout
}

// Queued returns the number of tasks waiting for a worker.
func (e *Executor) Queued() int {
	return len(e.queue)
}

// Submit enqueues task without blocking. It reports false when the queue is
// full; a pending job left behind is picked up by the claim loop.
func (e *Executor) Submit(task Task) bool {
	if task.Job == nil {
		return false
	}
	select {
	case e.queue <- task:
		return true
	default:
		e.logger.Warn().
			Str("job_id", task.Job.ID).
			Str("kind", string(task.Job.Kind)).
			Int("queue_size", cap(e.queue)).
			Msg("executor: queue full")
		return false
	}
}

// Run starts the workers, the claim loop and the stuck-job sweep, and blocks
// until ctx is cancelled and they have all returned.
func (e *Executor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.opts.Workers; i++ {
		id := i
		g.Go(func() error {
			e.work(ctx, id)
			return nil
		})
	}
	g.Go(func() error {
		e.poll(ctx)
		return nil
	})
	g.Go(func() error {
		e.reap(ctx)
		return nil
	})
	e.logger.Info().Int("workers", e.opts.Workers).Int("queue_size", cap(e.queue)).Dur("job_timeout", e.opts.JobTimeout).Msg("executor: started")
	err := g.Wait()
	e.logger.Info().Msg("executor: stopped")
	return err
}

func (e *Executor) work(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-e.queue:
			e.process(ctx, task, id)
		}
	}
}

func (e *Executor) process(ctx context.Context, task Task, worker int) {
	job := task.Job
	log := e.logger.With().
		Int("worker", worker).
		Str("job_id", job.ID).
		Str("code", job.Code).
		Str("kind", string(job.Kind)).
		Bool("refresh", task.Refresh).
		Logger()

	if !task.Refresh && !task.claimed {
		if err := e.store.MarkInProgress(ctx, job.ID); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				log.Debug().Msg("executor: job already claimed")
				return
			}
			log.Error().Err(err).Msg("executor: mark in progress failed")
			return
		}
	}

	started := e.opts.Now()
	payload, err := e.run(ctx, job)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancel()

	if err != nil {
		e.fail(writeCtx, task, e.failureFor(ctx, err), log)
		return
	}

	expiresAt := e.opts.TTL.ExpiresAt(job.Kind, e.opts.Now())
	if task.Refresh {
		err = e.store.CompleteRefresh(writeCtx, job.ID, payload, expiresAt)
	} else {
		err = e.store.Complete(writeCtx, job.ID, payload, expiresAt)
	}
	if err != nil {
		log.Error().Err(err).Msg("executor: store result failed")
		return
	}
	log.Info().Dur("took", e.opts.Now().Sub(started)).Msg("executor: job completed")
}

// run executes the kind generator under the job deadline. A generator that
// ignores its context is abandoned once the deadline passes.
func (e *Executor) run(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.opts.JobTimeout)
	defer cancel()

	type result struct {
		payload json.RawMessage
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().
					Str("job_id", job.ID).
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("executor: generator panicked")
				done <- result{err: fmt.Errorf("panic in %s generator: %v", job.Kind, r)}
			}
		}()
		payload, err := e.generator.Generate(runCtx, job)
		done <- result{payload: payload, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", domain.ErrTimeout, res.err)
		}
		if res.err == nil && len(res.payload) == 0 {
			return nil, fmt.Errorf("%w: empty %s payload", domain.ErrProviderFailure, job.Kind)
		}
		return res.payload, res.err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", domain.ErrTimeout, e.opts.JobTimeout)
	}
}

func (e *Executor) failureFor(ctx context.Context, err error) domain.Failure {
	switch {
	case ctx.Err() != nil:
		return domain.Failure{Kind: domain.FailureShutdown, Message: "generation interrupted by shutdown"}
	case errors.Is(err, domain.ErrTimeout):
		return domain.Failure{Kind: domain.FailureTimeout, Message: err.Error()}
	default:
		msg := strings.TrimSpace(err.Error())
		if msg == "" {
			msg = "generation failed"
		}
		return domain.Failure{Kind: domain.FailureGeneration, Message: msg}
	}
}

func (e *Executor) fail(ctx context.Context, task Task, failure domain.Failure, log zerolog.Logger) {
	if task.Refresh {
		if err := e.store.AbandonRefresh(ctx, task.Job.ID); err != nil {
			log.Error().Err(err).Msg("executor: abandon refresh failed")
		}
		log.Warn().Str("failure", string(failure.Kind)).Str("reason", failure.Message).Msg("executor: refresh failed, keeping last payload")
		return
	}
	if err := e.store.Fail(ctx, task.Job.ID, failure); err != nil {
		log.Error().Err(err).Msg("executor: store failure failed")
		return
	}
	log.Warn().Str("failure", string(failure.Kind)).Str("reason", failure.Message).Msg("executor: job failed")
}

func (e *Executor) poll(ctx context.Context) {
	if e.opts.PollInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		e.claimPending(ctx)
		e.claimRefreshes(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// claimPending moves leftover pending jobs into the queue while it has room.
func (e *Executor) claimPending(ctx context.Context) {
	for len(e.queue) < cap(e.queue) {
		if ctx.Err() != nil {
			return
		}
		job, err := e.store.ClaimPending(ctx, e.opts.Now().Add(-e.opts.PendingGrace))
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Error().Err(err).Msg("executor: claim pending failed")
			}
			return
		}
		if job == nil {
			return
		}
		e.logger.Debug().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("executor: claimed pending job")
		task := Task{Job: job, claimed: true}
		select {
		case e.queue <- task:
		case <-ctx.Done():
			writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
			e.fail(writeCtx, task, domain.Failure{Kind: domain.FailureShutdown, Message: "generation interrupted by shutdown"}, e.logger)
			cancel()
			return
		}
	}
}

// claimRefreshes picks up refreshes that a service without queue room
// deferred to the pollers.
func (e *Executor) claimRefreshes(ctx context.Context) {
	for len(e.queue) < cap(e.queue) {
		if ctx.Err() != nil {
			return
		}
		job, err := e.store.ClaimRefresh(ctx)
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Error().Err(err).Msg("executor: claim refresh failed")
			}
			return
		}
		if job == nil {
			return
		}
		e.logger.Debug().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("executor: claimed deferred refresh")
		select {
		case e.queue <- Task{Job: job, Refresh: true}:
		case <-ctx.Done():
			writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
			if err := e.store.DeferRefresh(writeCtx, job.ID); err != nil {
				e.logger.Error().Err(err).Str("job_id", job.ID).Msg("executor: return refresh failed")
			}
			cancel()
			return
		}
	}
}

func (e *Executor) reap(ctx context.Context) {
	if e.opts.ReapInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.opts.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.ReapStuck(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error().Err(err).Msg("executor: reap stuck jobs failed")
			}
		}
	}
}

// ReapStuck fails in_progress jobs that outlived the job deadline, including
// those whose worker died, and clears abandoned refresh claims.
func (e *Executor) ReapStuck(ctx context.Context) (int64, error) {
	cutoff := e.opts.Now().Add(-(e.opts.JobTimeout + e.opts.StuckGrace))
	failure := domain.Failure{
		Kind:    domain.FailureTimeout,
		Message: fmt.Sprintf("%s: no result within %s", domain.ErrTimeout, e.opts.JobTimeout),
	}
	n, err := e.store.FailStuck(ctx, cutoff, failure)
	if err != nil {
		return 0, fmt.Errorf("fail stuck jobs: %w", err)
	}
	if n > 0 {
		e.logger.Warn().Int64("count", n).Msg("executor: reaped stuck jobs")
	}
	return n, nil
}
