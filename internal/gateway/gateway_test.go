package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/config"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/database"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/metrics"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/scans"
	"github.com/CosmoTheDev/devsecwatch-worker/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthOK(t *testing.T) {
	gw := New(":0", nil, Check{Name: "db", Fn: func(context.Context) error { return nil }})
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var report HealthReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "ok", report.Checks["db"])
}

func TestHealthDegraded(t *testing.T) {
	gw := New(":0", nil,
		Check{Name: "db", Fn: func(context.Context) error { return nil }},
		Check{Name: "redis", Fn: func(context.Context) error { return errors.New("connection refused") }},
	)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var report HealthReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "connection refused", report.Checks["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(New(":0", nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "devsecwatch_jobs_in_progress")

	resp2, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func newJanitorStore(t *testing.T) (*scans.Store, database.DB) {
	t.Helper()
	db, err := database.NewSQLite(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "janitor.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return scans.NewStore(db), db
}

func processingJob(t *testing.T, db database.DB, store *scans.Store, startedAt time.Time) int64 {
	t.Helper()
	ctx := context.Background()
	job := &models.ScanJob{RepoURL: "https://example.com/r.git"}
	require.NoError(t, db.InTx(ctx, func(q database.Querier) error {
		uid, err := scans.EnsureUser(ctx, q, "ops")
		if err != nil {
			return err
		}
		job.UserID = uid
		return scans.Create(ctx, q, job)
	}))
	ok, err := store.MarkProcessing(ctx, job.ID, startedAt)
	require.NoError(t, err)
	require.True(t, ok)
	return job.ID
}

func TestJanitorReportsOnlyByDefault(t *testing.T) {
	store, db := newJanitorStore(t)
	now := time.Now().UTC()
	stale := processingJob(t, db, store, now.Add(-2*time.Hour))
	processingJob(t, db, store, now)

	j := NewJanitor(store, config.JanitorConfig{Schedule: "@every 5m", StaleAfter: 30 * time.Minute})
	n, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StaleJobs))

	job, err := store.Get(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, job.Status)
}

func TestJanitorFailsStaleJobs(t *testing.T) {
	store, db := newJanitorStore(t)
	now := time.Now().UTC()
	stale := processingJob(t, db, store, now.Add(-2*time.Hour))
	fresh := processingJob(t, db, store, now)

	j := NewJanitor(store, config.JanitorConfig{Schedule: "@every 5m", StaleAfter: 30 * time.Minute, FailStale: true})
	n, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "did not finish")

	got, err = store.Get(context.Background(), fresh)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)
}

func TestJanitorRejectsBadSchedule(t *testing.T) {
	store, _ := newJanitorStore(t)
	j := NewJanitor(store, config.JanitorConfig{Schedule: "not a schedule"})
	assert.Error(t, j.Start())
	assert.Error(t, ValidateSchedule("61 * * * *"))
	assert.NoError(t, ValidateSchedule("@every 5m"))
}
