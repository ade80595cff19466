package models

import "time"

// ScanStatus is the lifecycle state of a ScanJob.
type ScanStatus string

const (
	StatusQueued     ScanStatus = "QUEUED"
	StatusProcessing ScanStatus = "PROCESSING"
	StatusCompleted  ScanStatus = "COMPLETED"
	StatusFailed     ScanStatus = "FAILED"
)

// Terminal reports whether no further transitions are allowed.
func (s ScanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DefaultBranch is used when a submission does not name one.
const DefaultBranch = "main"

// ScanJob tracks one request to scan a repository.
type ScanJob struct {
	ID                   int64      `json:"id"                     db:"id"`
	UserID               int64      `json:"user_id"                db:"user_id"`
	RepoURL              string     `json:"repo_url"               db:"repo_url"`
	Branch               string     `json:"branch"                 db:"branch"`
	CorrelationID        string     `json:"correlation_id"         db:"correlation_id"`
	Status               ScanStatus `json:"status"                 db:"status"`
	SubmittedAt          time.Time  `json:"submitted_at"           db:"submitted_at"`
	StartedAt            *time.Time `json:"started_at"             db:"started_at"`
	CompletedAt          *time.Time `json:"completed_at"           db:"completed_at"`
	ErrorMessage         string     `json:"error_message"          db:"error_message"`
	TotalFiles           int        `json:"total_files"            db:"total_files"`
	LinesOfCode          int        `json:"lines_of_code"          db:"lines_of_code"`
	TotalVulnerabilities int        `json:"total_vulnerabilities"  db:"total_vulnerabilities"`
	CriticalCount        int        `json:"critical_count"         db:"critical_count"`
	HighCount            int        `json:"high_count"             db:"high_count"`
	MediumCount          int        `json:"medium_count"           db:"medium_count"`
	LowCount             int        `json:"low_count"              db:"low_count"`
}

// ScanMetrics captures per-stage timing and enrichment quality for one job.
type ScanMetrics struct {
	ID                int64   `json:"id"                   db:"id"`
	ScanJobID         int64   `json:"scan_job_id"          db:"scan_job_id"`
	FetchMs           int64   `json:"fetch_ms"             db:"fetch_ms"`
	AnalysisMs        int64   `json:"analysis_ms"          db:"analysis_ms"`
	EnrichmentMs      int64   `json:"enrichment_ms"        db:"enrichment_ms"`
	TotalMs           int64   `json:"total_ms"             db:"total_ms"`
	FilesScanned      int     `json:"files_scanned"        db:"files_scanned"`
	LinesOfCode       int     `json:"lines_of_code"        db:"lines_of_code"`
	CacheHitRate      float64 `json:"cache_hit_rate"       db:"cache_hit_rate"`
	EnrichmentCalls   int     `json:"enrichment_calls"     db:"enrichment_calls"`
	VulnerabilityRows int     `json:"vulnerability_rows"   db:"vulnerability_rows"`
}

// User is the owner of scan jobs. Only the fields the worker reads are mapped.
type User struct {
	ID       int64  `json:"id"       db:"id"`
	Username string `json:"username" db:"username"`
}
