package models

import "strings"

// SeverityLevel represents the severity of a security finding.
type SeverityLevel string

const (
	SeverityCritical SeverityLevel = "CRITICAL"
	SeverityHigh     SeverityLevel = "HIGH"
	SeverityMedium   SeverityLevel = "MEDIUM"
	SeverityLow      SeverityLevel = "LOW"
)

// Weight returns a numeric weight for sorting (higher = more severe).
func (s SeverityLevel) Weight() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Actionable reports whether findings of this severity are kept for
// enrichment and persistence.
func (s SeverityLevel) Actionable() bool {
	return s.Weight() >= SeverityHigh.Weight()
}

func (s SeverityLevel) String() string {
	return string(s)
}

// MapSeverity normalises the analyzer's severity vocabulary to SeverityLevel.
// Anything unrecognised lands on MEDIUM.
func MapSeverity(raw string) SeverityLevel {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ERROR":
		return SeverityCritical
	case "WARNING":
		return SeverityHigh
	case "INFO":
		return SeverityLow
	default:
		return SeverityMedium
	}
}
