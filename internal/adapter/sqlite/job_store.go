package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"astroreports/internal/domain"
)

const jobColumns = `id, code, kind, status, fingerprint, fingerprint_hash, match_key, subject_key,
	payload, failure, expires_at, owner_id, refresh_started_at, refresh_requested_at, started_at, created_at, updated_at`

// JobStore implements domain.JobRepository on SQLite.
type JobStore struct {
	db *DB
}

func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) Create(ctx context.Context, job *domain.Job) error {
	fp, err := domain.EncodeFingerprint(job.Fingerprint)
	if err != nil {
		return err
	}
	now := s.db.stamp()
	const query = `INSERT INTO report_jobs (id, code, kind, status, fingerprint, fingerprint_hash,
		match_key, subject_key, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		job.ID, job.Code, string(job.Kind), string(job.Status), string(fp),
		job.FingerprintHash, job.MatchKey, job.SubjectKey, job.OwnerID, now, now,
	)
	switch {
	case err == nil:
	case isUniqueViolation(err, "report_jobs.code"):
		return fmt.Errorf("create job: code %s already taken: %w", job.Code, err)
	case isUniqueViolation(err, "report_jobs.id"):
		return fmt.Errorf("create job: id %s already exists: %w", job.ID, err)
	case isUniqueViolation(err, ""):
		return domain.ErrDuplicateOperation
	default:
		return fmt.Errorf("create job: %w", err)
	}

	job.CreatedAt = time.Unix(0, now).UTC()
	job.UpdatedAt = job.CreatedAt
	return nil
}

func (s *JobStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM report_jobs WHERE code = ?)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return exists, nil
}

func (s *JobStore) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	return scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM report_jobs WHERE id = ?`, id))
}

func (s *JobStore) GetByCode(ctx context.Context, code string) (*domain.Job, error) {
	return scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM report_jobs WHERE code = ?`, code))
}

func (s *JobStore) FindMatching(ctx context.Context, kind domain.JobKind, hash string, statuses ...domain.JobStatus) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM report_jobs WHERE kind = ? AND fingerprint_hash = ?`
	args := []any{string(kind), hash}
	if len(statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(`, ?`, len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at DESC LIMIT 1`
	return optional(scanJob(s.db.QueryRowContext(ctx, query, args...)))
}

func (s *JobStore) FindPlaceholder(ctx context.Context, kind domain.JobKind, subjectKey, excludeHash string) (*domain.Job, error) {
	const query = `SELECT ` + jobColumns + ` FROM report_jobs
		WHERE kind = ? AND subject_key = ? AND fingerprint_hash <> ? AND status = 'completed'
		ORDER BY created_at DESC LIMIT 1`
	return optional(scanJob(s.db.QueryRowContext(ctx, query, string(kind), subjectKey, excludeHash)))
}

func (s *JobStore) MarkInProgress(ctx context.Context, id string) error {
	now := s.db.stamp()
	res, err := s.db.ExecContext(ctx,
		`UPDATE report_jobs SET status = 'in_progress', started_at = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
		now, now, id)
	return s.transitioned(ctx, id, res, err)
}

func (s *JobStore) Complete(ctx context.Context, id string, payload json.RawMessage, expiresAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE report_jobs SET status = 'completed', payload = ?, expires_at = ?, failure = NULL, updated_at = ?
		WHERE id = ? AND status = 'in_progress'`,
		string(payload), toNanos(expiresAt), s.db.stamp(), id)
	return s.transitioned(ctx, id, res, err)
}

func (s *JobStore) Fail(ctx context.Context, id string, failure domain.Failure) error {
	raw, err := json.Marshal(failure)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE report_jobs SET status = 'failed', failure = ?, payload = NULL, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'in_progress')`,
		string(raw), s.db.stamp(), id)
	return s.transitioned(ctx, id, res, err)
}

func (s *JobStore) BeginRefresh(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE report_jobs SET refresh_started_at = ?, refresh_requested_at = NULL
		WHERE id = ? AND status = 'completed' AND (refresh_started_at IS NULL OR refresh_started_at < ?)`,
		s.db.stamp(), id, staleBefore.UTC().UnixNano())
	if err != nil {
		return false, fmt.Errorf("begin refresh: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	if _, err := s.status(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *JobStore) CompleteRefresh(ctx context.Context, id string, payload json.RawMessage, expiresAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE report_jobs SET payload = ?, expires_at = ?, refresh_started_at = NULL, refresh_requested_at = NULL,
		updated_at = ? WHERE id = ? AND status = 'completed'`,
		string(payload), toNanos(expiresAt), s.db.stamp(), id)
	return s.transitioned(ctx, id, res, err)
}

func (s *JobStore) AbandonRefresh(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE report_jobs SET refresh_started_at = NULL, refresh_requested_at = NULL
		WHERE id = ? AND status = 'completed'`, id)
	return s.transitioned(ctx, id, res, err)
}

func (s *JobStore) DeferRefresh(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE report_jobs SET refresh_started_at = NULL, refresh_requested_at = COALESCE(refresh_requested_at, ?)
		WHERE id = ? AND status = 'completed'`, s.db.stamp(), id)
	return s.transitioned(ctx, id, res, err)
}

func (s *JobStore) ClaimRefresh(ctx context.Context) (*domain.Job, error) {
	query := `UPDATE report_jobs SET refresh_started_at = ?, refresh_requested_at = NULL
		WHERE id = (
			SELECT id FROM report_jobs
			WHERE status = 'completed' AND refresh_requested_at IS NOT NULL AND refresh_started_at IS NULL
			ORDER BY refresh_requested_at ASC LIMIT 1
		) AND refresh_started_at IS NULL
		RETURNING ` + jobColumns
	return optional(scanJob(s.db.QueryRowContext(ctx, query, s.db.stamp())))
}

func (s *JobStore) ClaimPending(ctx context.Context, olderThan time.Time) (*domain.Job, error) {
	now := s.db.stamp()
	query := `UPDATE report_jobs SET status = 'in_progress', started_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM report_jobs
			WHERE status = 'pending' AND created_at <= ?
			ORDER BY created_at ASC LIMIT 1
		) AND status = 'pending'
		RETURNING ` + jobColumns
	return optional(scanJob(s.db.QueryRowContext(ctx, query, now, now, olderThan.UTC().UnixNano())))
}

func (s *JobStore) FailStuck(ctx context.Context, startedBefore time.Time, failure domain.Failure) (int64, error) {
	raw, err := json.Marshal(failure)
	if err != nil {
		return 0, err
	}
	cutoff := startedBefore.UTC().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("fail stuck: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE report_jobs SET status = 'failed', failure = ?, payload = NULL, updated_at = ?
		WHERE status = 'in_progress' AND started_at < ?`,
		string(raw), s.db.stamp(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stuck: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE report_jobs SET refresh_started_at = NULL WHERE refresh_started_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("fail stuck: clear refreshes: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("fail stuck: commit: %w", err)
	}
	return res.RowsAffected()
}

func (s *JobStore) transitioned(ctx context.Context, id string, res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n > 0 {
		return nil
	}
	if _, err := s.status(ctx, id); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

func (s *JobStore) status(ctx context.Context, id string) (domain.JobStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM report_jobs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return domain.JobStatus(status), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job                                  domain.Job
		kind, status, fp                     string
		payload, failure                     sql.NullString
		expires, refresh, requested, started sql.NullInt64
		createdAt, updatedAt                 int64
	)
	err := row.Scan(
		&job.ID, &job.Code, &kind, &status, &fp, &job.FingerprintHash, &job.MatchKey, &job.SubjectKey,
		&payload, &failure, &expires, &job.OwnerID, &refresh, &requested, &started, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	if job.Fingerprint, err = domain.DecodeFingerprint(job.Kind, []byte(fp)); err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	if payload.Valid {
		job.Payload = json.RawMessage(payload.String)
	}
	if failure.Valid {
		var f domain.Failure
		if err := json.Unmarshal([]byte(failure.String), &f); err != nil {
			return nil, fmt.Errorf("job %s: decode failure: %w", job.ID, err)
		}
		job.Failure = &f
	}
	job.ExpiresAt = fromNanos(expires)
	job.RefreshStartedAt = fromNanos(refresh)
	job.RefreshRequestedAt = fromNanos(requested)
	job.StartedAt = fromNanos(started)
	job.CreatedAt = time.Unix(0, createdAt).UTC()
	job.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &job, nil
}

func optional(job *domain.Job, err error) (*domain.Job, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return job, err
}

var _ domain.JobRepository = (*JobStore)(nil)
