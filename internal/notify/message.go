package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/models"
)

const unknownUser = "unknown"

// Summary renders the human-readable line for a job's final state.
func Summary(job *models.ScanJob) string {
	if job.Status == models.StatusFailed {
		reason := job.ErrorMessage
		if reason == "" {
			reason = "unknown error"
		}
		return "Scan failed: " + reason
	}
	if job.TotalVulnerabilities == 0 {
		return "Scan completed successfully! No vulnerabilities found."
	}
	return fmt.Sprintf("Scan completed! Found %d vulnerabilities (%d critical, %d high)",
		job.TotalVulnerabilities, job.CriticalCount, job.HighCount)
}

// BuildEvent snapshots job into an Event stamped at now.
func BuildEvent(job *models.ScanJob, now time.Time) Event {
	return Event{
		ScanID:               job.ID,
		RepoURL:              job.RepoURL,
		Status:               string(job.Status),
		TotalVulnerabilities: job.TotalVulnerabilities,
		CriticalCount:        job.CriticalCount,
		HighCount:            job.HighCount,
		Message:              Summary(job),
		Timestamp:            now.UTC(),
		UserID:               job.UserID,
	}
}

// Destination is prefix followed by the lowercased username.
func Destination(prefix, username string) string {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		username = unknownUser
	}
	return prefix + username
}
