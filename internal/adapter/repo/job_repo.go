package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"astroreports/internal/domain"
	"astroreports/internal/infra"
	"astroreports/internal/sqlinline"
)

const (
	activeMatchConstraint = "report_jobs_active_match_idx"
	codeConstraint        = "report_jobs_code_key"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL. Every
// transition is one conditional UPDATE; the partial unique index on
// (kind, match_key) keeps at most one active job per fingerprint.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a pending job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	fp, err := domain.EncodeFingerprint(job.Fingerprint)
	if err != nil {
		return err
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertReportJob,
		job.ID,
		job.Code,
		string(job.Kind),
		string(job.Status),
		fp,
		job.FingerprintHash,
		job.MatchKey,
		job.SubjectKey,
		job.OwnerID,
	)
	if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		switch {
		case infra.IsUniqueViolation(err, activeMatchConstraint):
			return domain.ErrDuplicateOperation
		case infra.IsUniqueViolation(err, codeConstraint):
			return fmt.Errorf("create job: code %s already taken: %w", job.Code, err)
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (r *JobRepositoryPG) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.sql.QueryRow(ctx, sqlinline.QReportCodeExists, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return exists, nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectReportJobByID, id))
}

// GetByCode fetches a job by its public share code.
func (r *JobRepositoryPG) GetByCode(ctx context.Context, code string) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectReportJobByCode, code))
}

func (r *JobRepositoryPG) FindMatching(ctx context.Context, kind domain.JobKind, hash string, statuses ...domain.JobStatus) (*domain.Job, error) {
	filter := make([]string, 0, len(statuses))
	for _, s := range statuses {
		filter = append(filter, string(s))
	}
	return optional(scanJob(r.sql.QueryRow(ctx, sqlinline.QFindMatchingReportJob, string(kind), hash, filter)))
}

func (r *JobRepositoryPG) FindPlaceholder(ctx context.Context, kind domain.JobKind, subjectKey, excludeHash string) (*domain.Job, error) {
	return optional(scanJob(r.sql.QueryRow(ctx, sqlinline.QFindPlaceholderReportJob, string(kind), subjectKey, excludeHash)))
}

func (r *JobRepositoryPG) MarkInProgress(ctx context.Context, id string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QMarkReportJobInProgress, id)
	return r.transitioned(ctx, id, tag, err)
}

func (r *JobRepositoryPG) Complete(ctx context.Context, id string, payload json.RawMessage, expiresAt *time.Time) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QCompleteReportJob, id, []byte(payload), expiresAt)
	return r.transitioned(ctx, id, tag, err)
}

func (r *JobRepositoryPG) Fail(ctx context.Context, id string, failure domain.Failure) error {
	raw, err := json.Marshal(failure)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QFailReportJob, id, raw)
	return r.transitioned(ctx, id, tag, err)
}

func (r *JobRepositoryPG) BeginRefresh(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QBeginReportRefresh, id, staleBefore)
	if err != nil {
		return false, fmt.Errorf("begin refresh: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.status(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *JobRepositoryPG) CompleteRefresh(ctx context.Context, id string, payload json.RawMessage, expiresAt *time.Time) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QCompleteReportRefresh, id, []byte(payload), expiresAt)
	return r.transitioned(ctx, id, tag, err)
}

func (r *JobRepositoryPG) AbandonRefresh(ctx context.Context, id string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QAbandonReportRefresh, id)
	return r.transitioned(ctx, id, tag, err)
}

func (r *JobRepositoryPG) DeferRefresh(ctx context.Context, id string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeferReportRefresh, id)
	return r.transitioned(ctx, id, tag, err)
}

// ClaimRefresh hands one deferred refresh to the calling poller.
func (r *JobRepositoryPG) ClaimRefresh(ctx context.Context) (*domain.Job, error) {
	return optional(scanJob(r.sql.QueryRow(ctx, sqlinline.QClaimReportRefresh)))
}

// ClaimPending uses FOR UPDATE SKIP LOCKED so several workers can poll at once.
func (r *JobRepositoryPG) ClaimPending(ctx context.Context, olderThan time.Time) (*domain.Job, error) {
	return optional(scanJob(r.sql.QueryRow(ctx, sqlinline.QClaimPendingReportJob, olderThan)))
}

func (r *JobRepositoryPG) FailStuck(ctx context.Context, startedBefore time.Time, failure domain.Failure) (int64, error) {
	raw, err := json.Marshal(failure)
	if err != nil {
		return 0, err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QFailStuckReportJobs, startedBefore, raw)
	if err != nil {
		return 0, fmt.Errorf("fail stuck jobs: %w", err)
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QClearStaleReportRefreshes, startedBefore); err != nil {
		return tag.RowsAffected(), fmt.Errorf("clear stale refreshes: %w", err)
	}
	return tag.RowsAffected(), nil
}

// transitioned maps a conditional update that touched no row to ErrNotFound or
// ErrInvalidTransition.
func (r *JobRepositoryPG) transitioned(ctx context.Context, id string, tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := r.status(ctx, id); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

func (r *JobRepositoryPG) status(ctx context.Context, id string) (domain.JobStatus, error) {
	var status string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectReportJobStatus, id).Scan(&status); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return domain.JobStatus(status), nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job                 domain.Job
		kind, status        string
		fp, payload, failed []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.Code,
		&kind,
		&status,
		&fp,
		&job.FingerprintHash,
		&job.MatchKey,
		&job.SubjectKey,
		&payload,
		&failed,
		&job.ExpiresAt,
		&job.OwnerID,
		&job.RefreshStartedAt,
		&job.RefreshRequestedAt,
		&job.StartedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	if err := decodeJobColumns(&job, fp, payload, failed); err != nil {
		return nil, err
	}
	return &job, nil
}

func decodeJobColumns(job *domain.Job, fp, payload, failure []byte) error {
	decoded, err := domain.DecodeFingerprint(job.Kind, fp)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	job.Fingerprint = decoded
	if len(payload) > 0 {
		job.Payload = json.RawMessage(payload)
	}
	if len(failure) > 0 {
		var f domain.Failure
		if err := json.Unmarshal(failure, &f); err != nil {
			return fmt.Errorf("job %s: decode failure: %w", job.ID, err)
		}
		job.Failure = &f
	}
	return nil
}

func optional(job *domain.Job, err error) (*domain.Job, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return job, err
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
