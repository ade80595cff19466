package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/config"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/metrics"
	"github.com/CosmoTheDev/devsecwatch-worker/models"
	"github.com/robfig/cron/v3"
)

// StaleStore is the part of scans.Store the janitor uses.
type StaleStore interface {
	ListStale(ctx context.Context, cutoff time.Time) ([]models.ScanJob, error)
	MarkFailed(ctx context.Context, id int64, reason string, completedAt time.Time) error
}

// Janitor periodically looks for jobs stuck in PROCESSING, which is what a
// worker crash mid-job leaves behind. It reports them and, when configured,
// fails them.
type Janitor struct {
	store      StaleStore
	cron       *cron.Cron
	schedule   string
	staleAfter time.Duration
	failStale  bool
	now        func() time.Time
}

// NewJanitor creates a Janitor from cfg.
func NewJanitor(store StaleStore, cfg config.JanitorConfig) *Janitor {
	return &Janitor{
		store:      store,
		cron:       cron.New(),
		schedule:   cfg.Schedule,
		staleAfter: cfg.StaleAfter,
		failStale:  cfg.FailStale,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the sweep and starts the cron runner.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.Sweep(context.Background()); err != nil {
			slog.Warn("janitor: sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	slog.Info("janitor started", "schedule", j.schedule, "stale_after", j.staleAfter, "fail_stale", j.failStale)
	return nil
}

// Stop halts the cron runner and waits for a running sweep.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep reports PROCESSING jobs older than staleAfter and returns how many
// it found.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.staleAfter)
	stale, err := j.store.ListStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.StaleJobs.Set(float64(len(stale)))

	for _, job := range stale {
		slog.Warn("janitor: scan job stuck in PROCESSING",
			"scan_id", job.ID,
			"correlation_id", job.CorrelationID,
			"started_at", job.StartedAt,
		)
		if !j.failStale {
			continue
		}
		reason := fmt.Sprintf("worker did not finish within %s", j.staleAfter)
		if err := j.store.MarkFailed(ctx, job.ID, reason, j.now()); err != nil {
			slog.Warn("janitor: failing stale job failed", "scan_id", job.ID, "error", err)
		}
	}
	return len(stale), nil
}

// ValidateSchedule checks that expr parses as a cron schedule.
func ValidateSchedule(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}
