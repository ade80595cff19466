// Package agent drives scan jobs through the pipeline and settles their
// queue deliveries.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/catalog"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/enrich"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/metrics"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/queue"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/repository"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/results"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/scanner"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/scans"
	"github.com/CosmoTheDev/devsecwatch-worker/models"
)

const finalizeTimeout = 15 * time.Second

// Pipeline stages, used in logs, metrics and failure records.
const (
	StageFetch   = "fetch"
	StageCatalog = "catalog"
	StageAnalyze = "analyze"
	StageEnrich  = "enrich"
	StagePersist = "persist"
)

// JobStore reads and transitions scan jobs.
type JobStore interface {
	Get(ctx context.Context, id int64) (*models.ScanJob, error)
	MarkProcessing(ctx context.Context, id int64, startedAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id int64, reason string, completedAt time.Time) error
	Username(ctx context.Context, userID int64) (string, error)
}

// Fetcher produces and removes job workspaces.
type Fetcher interface {
	Clone(ctx context.Context, repoURL, branch string, jobID int64) (*repository.Workspace, error)
	Cleanup(path string)
}

// CatalogBuilder lists analyzable files in a workspace.
type CatalogBuilder interface {
	Build(root string) (*catalog.Catalog, error)
}

// Analyzer runs static analysis on a workspace.
type Analyzer interface {
	Analyze(ctx context.Context, workspace string) (*scanner.Report, error)
}

// Enricher attaches explanations to findings.
type Enricher interface {
	Enrich(ctx context.Context, findings []models.Finding) (*enrich.Result, error)
}

// Persister commits a finished job's results.
type Persister interface {
	Persist(ctx context.Context, in results.Input) (*results.Summary, error)
}

// Notifier publishes a job's final state to its owner.
type Notifier interface {
	Notify(ctx context.Context, job *models.ScanJob, username string) error
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Store     JobStore
	Fetcher   Fetcher
	Catalog   CatalogBuilder
	Analyzer  Analyzer
	Enricher  Enricher
	Persister Persister
	Notifier  Notifier
}

// Orchestrator consumes scan deliveries one at a time per worker slot.
// It implements queue.Handler.
type Orchestrator struct {
	Deps
	now func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(d Deps) *Orchestrator {
	return &Orchestrator{Deps: d, now: func() time.Time { return time.Now().UTC() }}
}

// Handle runs one delivery to completion and settles it exactly once.
func (o *Orchestrator) Handle(ctx context.Context, d queue.Delivery) {
	msg := d.Message
	log := slog.With(
		"scan_id", msg.ScanID,
		"correlation_id", msg.CorrelationID,
		"attempt", d.Attempt,
	)

	job, err := o.Store.Get(ctx, msg.ScanID)
	if errors.Is(err, scans.ErrNotFound) {
		log.Warn("Scan job not found, dropping message")
		o.skip(d)
		return
	}
	if err != nil {
		log.Error("Loading scan job failed", "error", err)
		metrics.JobsProcessedTotal.WithLabelValues("failed_retryable").Inc()
		d.Reject(true)
		return
	}
	if job.Status.Terminal() {
		log.Info("Scan job already finished, dropping duplicate delivery", "status", job.Status)
		o.skip(d)
		return
	}

	startedAt := o.now()
	ok, err := o.Store.MarkProcessing(ctx, job.ID, startedAt)
	if err != nil {
		log.Error("Marking scan job processing failed", "error", err)
		metrics.JobsProcessedTotal.WithLabelValues("failed_retryable").Inc()
		d.Reject(true)
		return
	}
	if !ok {
		log.Info("Scan job finished concurrently, dropping delivery")
		o.skip(d)
		return
	}
	job.Status = models.StatusProcessing
	job.StartedAt = &startedAt

	metrics.JobsInProgress.Inc()
	defer metrics.JobsInProgress.Dec()

	log.Info("Scan job started", "repo", repository.DisplayName(job.RepoURL), "branch", job.Branch)
	out := o.run(ctx, log, job, startedAt)
	o.finalize(ctx, log, d, job, out)
}

func (o *Orchestrator) skip(d queue.Delivery) {
	metrics.JobsProcessedTotal.WithLabelValues("skipped").Inc()
	d.Ack()
}

// run executes the stages in order. The workspace is always removed, and a
// panic in any stage becomes a transient Failure.
func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, job *models.ScanJob, startedAt time.Time) (out Outcome) {
	stage := StageFetch
	var ws *repository.Workspace

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic in scan pipeline", "stage", stage, "panic", r, "stack", string(debug.Stack()))
			out = Failure{Kind: FailureTransient, Stage: stage, Err: fmt.Errorf("unexpected error: %v", r)}
		}
	}()
	defer func() {
		if ws != nil {
			o.Fetcher.Cleanup(ws.Path)
		}
	}()

	var m models.ScanMetrics

	t := time.Now()
	ws, err := o.Fetcher.Clone(ctx, job.RepoURL, job.Branch, job.ID)
	m.FetchMs = observe(StageFetch, t)
	if err != nil {
		return fail(stage, err)
	}
	log.Info("Repository fetched", "commit", ws.Commit, "duration_ms", m.FetchMs)

	stage = StageCatalog
	t = time.Now()
	cat, err := o.Catalog.Build(ws.Path)
	observe(StageCatalog, t)
	if err != nil {
		return fail(stage, err)
	}
	m.FilesScanned = cat.TotalFiles()
	m.LinesOfCode = cat.LinesOfCode

	stage = StageAnalyze
	t = time.Now()
	report, err := o.Analyzer.Analyze(ctx, ws.Path)
	m.AnalysisMs = observe(StageAnalyze, t)
	if err != nil {
		return fail(stage, err)
	}

	stage = StageEnrich
	t = time.Now()
	enriched, err := o.Enricher.Enrich(ctx, report.Findings)
	m.EnrichmentMs = observe(StageEnrich, t)
	if err != nil {
		return fail(stage, err)
	}
	m.CacheHitRate = enriched.HitRate()
	m.EnrichmentCalls = enriched.AICalls

	stage = StagePersist
	m.TotalMs = time.Since(startedAt).Milliseconds()
	t = time.Now()
	sum, err := o.Persister.Persist(ctx, results.Input{
		JobID:       job.ID,
		Findings:    enriched.Findings,
		TotalFiles:  m.FilesScanned,
		LinesOfCode: m.LinesOfCode,
		Metrics:     m,
	})
	observe(StagePersist, t)
	if errors.Is(err, results.ErrNotProcessing) {
		return Superseded{Reason: err.Error()}
	}
	if err != nil {
		return fail(stage, err)
	}

	job.Status = models.StatusCompleted
	job.CompletedAt = &sum.CompletedAt
	job.TotalFiles = m.FilesScanned
	job.LinesOfCode = m.LinesOfCode
	job.TotalVulnerabilities = sum.Total
	job.CriticalCount = sum.Critical
	job.HighCount = sum.High
	job.MediumCount = sum.Medium
	job.LowCount = sum.Low
	m.VulnerabilityRows = sum.Total
	return Success{Metrics: m, Summary: sum}
}

// finalize records the terminal state, notifies the owner and settles the
// delivery. Writes use a detached context so a cancelled delivery can still
// be recorded.
func (o *Orchestrator) finalize(ctx context.Context, log *slog.Logger, d queue.Delivery, job *models.ScanJob, out Outcome) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	switch res := out.(type) {
	case Success:
		log.Info("Scan job completed",
			"vulnerabilities", res.Summary.Total,
			"critical", res.Summary.Critical,
			"high", res.Summary.High,
			"files", res.Metrics.FilesScanned,
			"cache_hit_rate", res.Metrics.CacheHitRate,
			"total_ms", res.Metrics.TotalMs,
		)
		o.notify(fctx, log, job)
		metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
		d.Ack()

	case Failure:
		reason := res.Err.Error()
		log.Error("Scan job failed", "stage", res.Stage, "kind", res.Kind, "error", res.Err)
		at := o.now()
		if err := o.Store.MarkFailed(fctx, job.ID, reason, at); err != nil {
			log.Error("Recording scan failure failed", "error", err)
		}
		job.Status = models.StatusFailed
		job.ErrorMessage = reason
		job.CompletedAt = &at
		o.notify(fctx, log, job)
		if res.Kind.Requeue() {
			metrics.JobsProcessedTotal.WithLabelValues("failed_retryable").Inc()
		} else {
			metrics.JobsProcessedTotal.WithLabelValues("failed_permanent").Inc()
		}
		d.Reject(res.Kind.Requeue())

	case Superseded:
		log.Warn("Scan job was finalised elsewhere, discarding results", "reason", res.Reason)
		o.skip(d)
	}
}

// notify is best-effort; failures are logged only.
func (o *Orchestrator) notify(ctx context.Context, log *slog.Logger, job *models.ScanJob) {
	username, err := o.Store.Username(ctx, job.UserID)
	if err != nil {
		log.Warn("Resolving job owner failed", "user_id", job.UserID, "error", err)
	}
	if err := o.Notifier.Notify(ctx, job, username); err != nil {
		log.Warn("Scan notification failed", "status", job.Status, "error", err)
	}
}

func observe(stage string, start time.Time) int64 {
	d := time.Since(start)
	metrics.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	return d.Milliseconds()
}
