package models

import "time"

// Finding is one raw detection reported by the static analyzer.
type Finding struct {
	FilePath   string        `json:"file_path"`
	Line       int           `json:"line"`
	RuleID     string        `json:"rule_id"`
	VulnType   string        `json:"vuln_type"`
	Severity   SeverityLevel `json:"severity"`
	Message    string        `json:"message"`
	Snippet    string        `json:"snippet"`
	Confidence float64       `json:"confidence"` // 0.0-1.0, analyzer reported
	CVE        string        `json:"cve,omitempty"`
}

// ExplanationSource labels where an Explanation came from.
type ExplanationSource string

const (
	SourceAI       ExplanationSource = "AI"
	SourceTemplate ExplanationSource = "TEMPLATE"
)

// Explanation is remediation content attached to a finding.
type Explanation struct {
	Description   string            `json:"description"`
	FixSuggestion string            `json:"fix_suggestion"`
	Source        ExplanationSource `json:"source"`
	IsTemplate    bool              `json:"is_template"`
}

// EnrichedFinding pairs a finding with its resolved explanation.
type EnrichedFinding struct {
	Finding     Finding
	Explanation Explanation
}

// ConfidenceLevel is a presentation-quality signal, unrelated to severity.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
)

// Vulnerability is the persisted form of an enriched finding.
type Vulnerability struct {
	ID              int64           `json:"id"               db:"id"`
	ScanJobID       int64           `json:"scan_job_id"      db:"scan_job_id"`
	FilePath        string          `json:"file_path"        db:"file_path"`
	LineNumber      int             `json:"line_number"      db:"line_number"`
	RuleID          string          `json:"rule_id"          db:"rule_id"`
	VulnType        string          `json:"vuln_type"        db:"vuln_type"`
	Severity        SeverityLevel   `json:"severity"         db:"severity"`
	Message         string          `json:"message"          db:"message"`
	CodeSnippet     string          `json:"code_snippet"     db:"code_snippet"`
	CVE             string          `json:"cve"              db:"cve"`
	AIDescription   string          `json:"ai_description"   db:"ai_description"`
	FixSuggestion   string          `json:"fix_suggestion"   db:"fix_suggestion"`
	ExplanationType string          `json:"explanation_type" db:"explanation_type"` // AI|TEMPLATE
	Confidence      ConfidenceLevel `json:"confidence"       db:"confidence"`
	CreatedAt       time.Time       `json:"created_at"       db:"created_at"`
}
