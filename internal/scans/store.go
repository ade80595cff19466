// Package scans reads and transitions ScanJob rows.
package scans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/database"
	"github.com/CosmoTheDev/devsecwatch-worker/models"
)

// ErrNotFound is returned when no scan job has the requested id.
var ErrNotFound = errors.New("scan job not found")

// Store wraps the scan_jobs and users tables.
type Store struct {
	db database.DB
}

// NewStore returns a Store backed by db.
func NewStore(db database.DB) *Store {
	return &Store{db: db}
}

// Get loads one job.
func (s *Store) Get(ctx context.Context, id int64) (*models.ScanJob, error) {
	var job models.ScanJob
	err := s.db.Get(ctx, &job, `SELECT * FROM scan_jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading scan job %d: %w", id, err)
	}
	return &job, nil
}

// MarkProcessing moves a non-terminal job to PROCESSING. It reports false
// when the job reached a terminal state in the meantime.
func (s *Store) MarkProcessing(ctx context.Context, id int64, startedAt time.Time) (bool, error) {
	n, err := s.db.Exec(ctx,
		`UPDATE scan_jobs SET status = ?, started_at = ?, error_message = ''
		 WHERE id = ? AND status NOT IN (?, ?)`,
		string(models.StatusProcessing), startedAt, id,
		string(models.StatusCompleted), string(models.StatusFailed))
	if err != nil {
		return false, fmt.Errorf("marking scan job %d processing: %w", id, err)
	}
	return n > 0, nil
}

// MarkFailed records a terminal failure. COMPLETED jobs are left untouched.
func (s *Store) MarkFailed(ctx context.Context, id int64, reason string, completedAt time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE scan_jobs SET status = ?, error_message = ?, completed_at = ?
		 WHERE id = ? AND status <> ?`,
		string(models.StatusFailed), reason, completedAt, id, string(models.StatusCompleted))
	if err != nil {
		return fmt.Errorf("marking scan job %d failed: %w", id, err)
	}
	return nil
}

// Username returns the owner's username, or "" when the user row is gone.
func (s *Store) Username(ctx context.Context, userID int64) (string, error) {
	var name string
	err := s.db.Get(ctx, &name, `SELECT username FROM users WHERE id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading user %d: %w", userID, err)
	}
	return name, nil
}

// EnsureUser returns the id for username, creating the row when needed.
func EnsureUser(ctx context.Context, q database.Querier, username string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, fmt.Errorf("username is required")
	}
	var id int64
	err := q.Get(ctx, &id, `SELECT id FROM users WHERE username = ?`, username)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("looking up user %q: %w", username, err)
	}
	id, err = q.Insert(ctx, "users", models.User{Username: username})
	if err != nil {
		return 0, fmt.Errorf("creating user %q: %w", username, err)
	}
	return id, nil
}

// Create inserts a QUEUED job through q so callers can publish after commit.
func Create(ctx context.Context, q database.Querier, job *models.ScanJob) error {
	if job.Branch == "" {
		job.Branch = models.DefaultBranch
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	job.Status = models.StatusQueued
	id, err := q.Insert(ctx, "scan_jobs", job)
	if err != nil {
		return fmt.Errorf("creating scan job: %w", err)
	}
	job.ID = id
	return nil
}

// ListStale returns PROCESSING jobs that started before cutoff.
func (s *Store) ListStale(ctx context.Context, cutoff time.Time) ([]models.ScanJob, error) {
	var jobs []models.ScanJob
	err := s.db.Select(ctx, &jobs,
		`SELECT * FROM scan_jobs WHERE status = ? AND started_at < ? ORDER BY id`,
		string(models.StatusProcessing), cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing stale scan jobs: %w", err)
	}
	return jobs, nil
}
