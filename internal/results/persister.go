// Package results writes a finished job's vulnerabilities, aggregates and
// metrics in one transaction.
package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/database"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/findings"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/metrics"
	"github.com/CosmoTheDev/devsecwatch-worker/models"
)

// Column limits applied before insert.
const (
	MaxFilePathLen = 500
	MaxVulnTypeLen = 100
	MaxCVELen      = 50
	MaxRuleIDLen   = 100
)

// ErrNotProcessing is returned when the job left PROCESSING before the
// results could be committed. Nothing is written in that case.
var ErrNotProcessing = errors.New("scan job is no longer processing")

// Summary is what a successful Persist committed.
type Summary struct {
	Total    int
	Critical int
	High     int
	Medium   int
	Low      int
	// CompletedAt is the timestamp written to the job.
	CompletedAt time.Time
}

// Input bundles everything Persist needs for one job.
type Input struct {
	JobID       int64
	Findings    []models.EnrichedFinding
	TotalFiles  int
	LinesOfCode int
	Metrics     models.ScanMetrics
}

// Persister stores results through db.
type Persister struct {
	db  database.DB
	now func() time.Time
}

// NewPersister returns a Persister backed by db.
func NewPersister(db database.DB) *Persister {
	return &Persister{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Persist inserts one vulnerability per finding, sets the job COMPLETED with
// its aggregate counts and writes the metrics row. Either all of it commits
// or none of it does.
func (p *Persister) Persist(ctx context.Context, in Input) (*Summary, error) {
	completedAt := p.now()
	rows := BuildVulnerabilities(in.JobID, in.Findings, completedAt)
	sum := Count(rows)
	sum.CompletedAt = completedAt

	m := in.Metrics
	m.ID = 0
	m.ScanJobID = in.JobID
	m.VulnerabilityRows = len(rows)

	err := p.db.InTx(ctx, func(q database.Querier) error {
		for i := range rows {
			if _, err := q.Insert(ctx, "vulnerabilities", rows[i]); err != nil {
				return fmt.Errorf("inserting vulnerability %d/%d: %w", i+1, len(rows), err)
			}
		}

		n, err := q.Exec(ctx,
			`UPDATE scan_jobs SET status = ?, completed_at = ?, error_message = '',
			        total_files = ?, lines_of_code = ?, total_vulnerabilities = ?,
			        critical_count = ?, high_count = ?, medium_count = ?, low_count = ?
			 WHERE id = ? AND status = ?`,
			string(models.StatusCompleted), completedAt,
			in.TotalFiles, in.LinesOfCode, sum.Total,
			sum.Critical, sum.High, sum.Medium, sum.Low,
			in.JobID, string(models.StatusProcessing))
		if err != nil {
			return fmt.Errorf("completing scan job: %w", err)
		}
		if n == 0 {
			return ErrNotProcessing
		}

		if _, err := q.Insert(ctx, "scan_metrics", m); err != nil {
			return fmt.Errorf("inserting scan metrics: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persisting results for scan job %d: %w", in.JobID, err)
	}

	for _, v := range rows {
		metrics.VulnerabilitiesPersistedTotal.WithLabelValues(string(v.Severity)).Inc()
	}
	slog.Info("Scan results persisted",
		"scan_id", in.JobID,
		"vulnerabilities", sum.Total,
		"critical", sum.Critical,
		"high", sum.High,
	)
	return sum, nil
}

// BuildVulnerabilities converts enriched findings into rows for jobID.
func BuildVulnerabilities(jobID int64, enriched []models.EnrichedFinding, createdAt time.Time) []models.Vulnerability {
	out := make([]models.Vulnerability, 0, len(enriched))
	for _, ef := range enriched {
		f, exp := ef.Finding, ef.Explanation
		source := exp.Source
		if source == "" || exp.IsTemplate {
			source = models.SourceTemplate
		}
		out = append(out, models.Vulnerability{
			ScanJobID:       jobID,
			FilePath:        truncate(f.FilePath, MaxFilePathLen),
			LineNumber:      f.Line,
			RuleID:          truncate(f.RuleID, MaxRuleIDLen),
			VulnType:        truncate(f.VulnType, MaxVulnTypeLen),
			Severity:        f.Severity,
			Message:         f.Message,
			CodeSnippet:     f.Snippet,
			CVE:             truncate(f.CVE, MaxCVELen),
			AIDescription:   exp.Description,
			FixSuggestion:   exp.FixSuggestion,
			ExplanationType: string(source),
			Confidence:      findings.Assess(ef),
			CreatedAt:       createdAt,
		})
	}
	return out
}

// Count tallies rows by severity.
func Count(rows []models.Vulnerability) *Summary {
	s := &Summary{Total: len(rows)}
	for _, v := range rows {
		switch v.Severity {
		case models.SeverityCritical:
			s.Critical++
		case models.SeverityHigh:
			s.High++
		case models.SeverityMedium:
			s.Medium++
		case models.SeverityLow:
			s.Low++
		}
	}
	return s
}

// truncate cuts s to at most max runes.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
