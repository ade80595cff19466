package scans

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/config"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/database"
	"github.com/CosmoTheDev/devsecwatch-worker/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, database.DB) {
	t.Helper()
	db, err := database.NewSQLite(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "scans.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return NewStore(db), db
}

func createJob(t *testing.T, db database.DB, username string) *models.ScanJob {
	t.Helper()
	ctx := context.Background()
	job := &models.ScanJob{RepoURL: "https://example.com/r.git", CorrelationID: "c-1"}
	require.NoError(t, db.InTx(ctx, func(q database.Querier) error {
		uid, err := EnsureUser(ctx, q, username)
		if err != nil {
			return err
		}
		job.UserID = uid
		return Create(ctx, q, job)
	}))
	return job
}

func TestGetNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Get(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDefaults(t *testing.T) {
	s, db := newTestStore(t)
	job := createJob(t, db, "Alice")

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, got.Status)
	assert.Equal(t, "main", got.Branch)
	assert.False(t, got.SubmittedAt.IsZero())
}

func TestEnsureUserReusesRow(t *testing.T) {
	_, db := newTestStore(t)
	ctx := context.Background()
	a := createJob(t, db, "alice")
	b := createJob(t, db, "alice")
	assert.Equal(t, a.UserID, b.UserID)

	err := db.InTx(ctx, func(q database.Querier) error {
		_, err := EnsureUser(ctx, q, "  ")
		return err
	})
	assert.Error(t, err)
}

func TestMarkProcessingSkipsTerminalJobs(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	job := createJob(t, db, "alice")

	ok, err := s.MarkProcessing(ctx, job.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.MarkFailed(ctx, job.ID, "clone failed", time.Now().UTC()))

	ok, err = s.MarkProcessing(ctx, job.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "clone failed", got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)
}

func TestMarkFailedLeavesCompletedJobsAlone(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	job := createJob(t, db, "alice")
	_, err := db.Exec(ctx, `UPDATE scan_jobs SET status = ? WHERE id = ?`, string(models.StatusCompleted), job.ID)
	require.NoError(t, err)

	require.NoError(t, s.MarkFailed(ctx, job.ID, "late failure", time.Now().UTC()))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestUsername(t *testing.T) {
	s, db := newTestStore(t)
	job := createJob(t, db, "Bob")

	name, err := s.Username(context.Background(), job.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)

	name, err = s.Username(context.Background(), 12345)
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestListStale(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	old := createJob(t, db, "alice")
	fresh := createJob(t, db, "alice")

	now := time.Now().UTC()
	_, err := s.MarkProcessing(ctx, old.ID, now.Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = s.MarkProcessing(ctx, fresh.ID, now)
	require.NoError(t, err)

	stale, err := s.ListStale(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
}
