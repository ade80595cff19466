package notify

import (
	"context"
	"time"
)

// TaskTypeScanNotification is the relay task type carrying an Envelope.
const TaskTypeScanNotification = "notification:scan"

// Event is the completion or failure summary for one scan job.
type Event struct {
	ScanID               int64     `json:"scanId"`
	RepoURL              string    `json:"repoUrl"`
	Status               string    `json:"status"`
	TotalVulnerabilities int       `json:"totalVulnerabilities"`
	CriticalCount        int       `json:"criticalCount"`
	HighCount            int       `json:"highCount"`
	Message              string    `json:"message"`
	Timestamp            time.Time `json:"timestamp"`
	UserID               int64     `json:"userId"`
}

// Envelope addresses an Event to one user's destination.
type Envelope struct {
	Destination string `json:"destination"`
	Event       Event  `json:"event"`
}

// Channel is implemented by each notification provider.
type Channel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, env Envelope) error
}
