package sqlite

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroreports/internal/domain"
)

var (
	personA = domain.BirthData{BirthDateTime: "1990-01-15T08:00:00", Gender: domain.GenderMale, BirthTimezone: "America/New_York", IsTimeKnown: true}
	personB = domain.BirthData{BirthDateTime: "1992-06-03T17:45:00", Gender: domain.GenderFemale, BirthTimezone: "Asia/Jakarta", IsTimeKnown: true}
)

// testClock is a manually advanced clock shared by the store and the test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func openTestDB(t *testing.T) (*DB, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
	db, err := Open(":memory:", clock.Now)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, clock
}

func newJob(t *testing.T, fp domain.Fingerprint, id, code string) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(fp, "")
	require.NoError(t, err)
	job.ID, job.Code = id, code
	return job
}

func personal() domain.Fingerprint {
	return domain.PersonalFingerprint{Person: personA, Locale: "en"}
}

func TestCreateAndLookup(t *testing.T) {
	db, _ := openTestDB(t)
	store := NewJobStore(db)
	ctx := context.Background()

	job := newJob(t, personal(), "job-1", "AAAA2222")
	job.OwnerID = "user-1"
	require.NoError(t, store.Create(ctx, job))
	assert.False(t, job.CreatedAt.IsZero())

	byID, err := store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, byID.Status)
	assert.Equal(t, "user-1", byID.OwnerID)
	assert.True(t, domain.EqualFingerprints(personal(), byID.Fingerprint))

	byCode, err := store.GetByCode(ctx, "AAAA2222")
	require.NoError(t, err)
	assert.Equal(t, "job-1", byCode.ID)

	exists, err := store.CodeExists(ctx, "AAAA2222")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateRejectsSecondActiveJob(t *testing.T) {
	db, _ := openTestDB(t)
	store := NewJobStore(db)
	ctx := context.Background()

	fp := domain.CompatibilityFingerprint{Person1: personA, Person2: personB, Locale: "en"}
	require.NoError(t, store.Create(ctx, newJob(t, fp, "job-1", "AAAA2222")))

	swapped := newJob(t, fp.Swapped(), "job-2", "BBBB3333")
	assert.ErrorIs(t, store.Create(ctx, swapped), domain.ErrDuplicateOperation)

	require.NoError(t, store.MarkInProgress(ctx, "job-1"))
	require.NoError(t, store.Fail(ctx, "job-1", domain.Failure{Kind: domain.FailureGeneration, Message: "boom"}))
	assert.NoError(t, store.Create(ctx, swapped), "a failed job no longer blocks a new one")

	taken := newJob(t, personal(), "job-3", "BBBB3333")
	err := store.Create(ctx, taken)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrDuplicateOperation)
}

func TestTransitionsAreConditional(t *testing.T) {
	db, _ := openTestDB(t)
	store := NewJobStore(db)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newJob(t, personal(), "job-1", "AAAA2222")))

	assert.ErrorIs(t, store.Complete(ctx, "job-1", json.RawMessage(`{}`), nil), domain.ErrInvalidTransition)
	require.NoError(t, store.MarkInProgress(ctx, "job-1"))
	assert.ErrorIs(t, store.MarkInProgress(ctx, "job-1"), domain.ErrInvalidTransition)

	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Complete(ctx, "job-1", json.RawMessage(`{"title":"ok"}`), &expires))
	assert.ErrorIs(t, store.Fail(ctx, "job-1", domain.Failure{Kind: domain.FailureTimeout}), domain.ErrInvalidTransition)
	assert.ErrorIs(t, store.MarkInProgress(ctx, "missing"), domain.ErrNotFound)

	job, err := store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.JSONEq(t, `{"title":"ok"}`, string(job.Payload))
	require.NotNil(t, job.ExpiresAt)
	assert.True(t, job.ExpiresAt.Equal(expires))
	assert.NotNil(t, job.StartedAt)
}

func TestFindMatchingPrefersNewest(t *testing.T) {
	db, clock := openTestDB(t)
	store := NewJobStore(db)
	ctx := context.Background()

	old := newJob(t, personal(), "job-1", "AAAA2222")
	require.NoError(t, store.Create(ctx, old))
	require.NoError(t, store.Fail(ctx, "job-1", domain.Failure{Kind: domain.FailureGeneration}))
	clock.Advance(time.Minute)
	require.NoError(t, store.Create(ctx, newJob(t, personal(), "job-2", "BBBB3333")))

	got, err := store.FindMatching(ctx, domain.KindPersonalReport, old.FingerprintHash)
	require.NoError(t, err)
	assert.Equal(t, "job-2", got.ID)

	got, err = store.FindMatching(ctx, domain.KindPersonalReport, old.FingerprintHash, domain.JobStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.ID)

	got, err = store.FindMatching(ctx, domain.KindPersonalReport, old.FingerprintHash, domain.JobStatusCompleted, domain.JobStatusInProgress)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindPlaceholderExcludesExactFingerprint(t *testing.T) {
	db, _ := openTestDB(t)
	store := NewJobStore(db)
	ctx := context.Background()

	yesterday := domain.ForecastFingerprint{Horizon: domain.HorizonToday, Person: personA, TargetDate: "2026-10-17", Locale: "en"}
	today := yesterday
	today.TargetDate = "2026-10-18"

	prev := newJob(t, yesterday, "job-1", "AAAA2222")
	require.NoError(t, store.Create(ctx, prev))
	require.NoError(t, store.MarkInProgress(ctx, "job-1"))
	require.NoError(t, store.Complete(ctx, "job-1", json.RawMessage(`{"title":"yesterday"}`), nil))

	keys, err := domain.KeysFor(today)
	require.NoError(t, err)
	got, err := store.FindPlaceholder(ctx, domain.KindForecastToday, keys.SubjectKey, keys.Hash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "job-1", got.ID)

	got, err = store.FindPlaceholder(ctx, domain.KindForecastToday, keys.SubjectKey, prev.FingerprintHash)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRefreshClaims(t *testing.T) {
	db, clock := openTestDB(t)
	store := NewJobStore(db)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newJob(t, personal(), "job-1", "AAAA2222")))
	won, err := store.BeginRefresh(ctx, "job-1", clock.Now())
	require.NoError(t, err)
	assert.False(t, won, "pending jobs cannot be refreshed")

	require.NoError(t, store.MarkInProgress(ctx, "job-1"))
	require.NoError(t, store.Complete(ctx, "job-1", json.RawMessage(`{"v":1}`), nil))

	won, err = store.BeginRefresh(ctx, "job-1", clock.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.True(t, won)
	won, err = store.BeginRefresh(ctx, "job-1", clock.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.False(t, won, "live claim blocks a second refresh")

	clock.Advance(10 * time.Minute)
	won, err = store.BeginRefresh(ctx, "job-1", clock.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.True(t, won, "stale claim can be taken over")

	require.NoError(t, store.CompleteRefresh(ctx, "job-1", json.RawMessage(`{"v":2}`), nil))
	job, err := store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, job.RefreshStartedAt)
	assert.JSONEq(t, `{"v":2}`, string(job.Payload))
	assert.Equal(t, domain.JobStatusCompleted, job.Status)

	_, err = store.BeginRefresh(ctx, "missing", clock.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeferredRefreshIsClaimedOnce(t *testing.T) {
	db, clock := openTestDB(t)
	store := NewJobStore(db)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newJob(t, personal(), "job-1", "AAAA2222")))
	assert.ErrorIs(t, store.DeferRefresh(ctx, "job-1"), domain.ErrInvalidTransition, "pending jobs have nothing to refresh")
	require.NoError(t, store.MarkInProgress(ctx, "job-1"))
	require.NoError(t, store.Complete(ctx, "job-1", json.RawMessage(`{"v":1}`), nil))

	got, err := store.ClaimRefresh(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "nothing deferred yet")

	won, err := store.BeginRefresh(ctx, "job-1", clock.Now())
	require.NoError(t, err)
	require.True(t, won)
	require.NoError(t, store.DeferRefresh(ctx, "job-1"))

	job, err := store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, job.RefreshStartedAt, "deferring releases the claim")
	require.NotNil(t, job.RefreshRequestedAt)

	clock.Advance(time.Second)
	got, err = store.ClaimRefresh(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "job-1", got.ID)
	assert.Nil(t, got.RefreshRequestedAt)
	require.NotNil(t, got.RefreshStartedAt)
	assert.Equal(t, clock.Now(), *got.RefreshStartedAt)

	got, err = store.ClaimRefresh(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "a claimed refresh is not handed out twice")

	require.NoError(t, store.CompleteRefresh(ctx, "job-1", json.RawMessage(`{"v":2}`), nil))
	job, err = store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, job.RefreshStartedAt)
	assert.Nil(t, job.RefreshRequestedAt)
	assert.JSONEq(t, `{"v":2}`, string(job.Payload))
}

func TestClaimPendingHonoursGrace(t *testing.T) {
	db, clock := openTestDB(t)
	store := NewJobStore(db)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newJob(t, personal(), "job-1", "AAAA2222")))
	clock.Advance(time.Second)
	require.NoError(t, store.Create(ctx, newJob(t, domain.PersonalFingerprint{Person: personB, Locale: "en"}, "job-2", "BBBB3333")))

	got, err := store.ClaimPending(ctx, clock.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Nil(t, got)

	clock.Advance(time.Minute)
	got, err = store.ClaimPending(ctx, clock.Now().Add(-30*time.Second))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "job-1", got.ID)
	assert.Equal(t, domain.JobStatusInProgress, got.Status)

	got, err = store.ClaimPending(ctx, clock.Now().Add(-30*time.Second))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "job-2", got.ID)

	got, err = store.ClaimPending(ctx, clock.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFailStuck(t *testing.T) {
	db, clock := openTestDB(t)
	store := NewJobStore(db)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newJob(t, personal(), "job-1", "AAAA2222")))
	require.NoError(t, store.MarkInProgress(ctx, "job-1"))
	require.NoError(t, store.Create(ctx, newJob(t, domain.PersonalFingerprint{Person: personB, Locale: "en"}, "job-2", "BBBB3333")))
	require.NoError(t, store.MarkInProgress(ctx, "job-2"))
	require.NoError(t, store.Complete(ctx, "job-2", json.RawMessage(`{}`), nil))
	won, err := store.BeginRefresh(ctx, "job-2", clock.Now())
	require.NoError(t, err)
	require.True(t, won)

	clock.Advance(5 * time.Minute)
	n, err := store.FailStuck(ctx, clock.Now().Add(-time.Minute), domain.Failure{Kind: domain.FailureTimeout, Message: "abandoned"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	stuck, err := store.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stuck.Status)
	require.NotNil(t, stuck.Failure)
	assert.Equal(t, domain.FailureTimeout, stuck.Failure.Kind)

	refreshed, err := store.GetByID(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, refreshed.Status)
	assert.Nil(t, refreshed.RefreshStartedAt)
}
