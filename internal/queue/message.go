// Package queue carries scan job messages over asynq with manual
// acknowledgment semantics.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypeScan is the asynq task type for scan job messages.
const TaskTypeScan = "scan:new"

// ErrInvalidMessage is returned for payloads that can never be processed.
var ErrInvalidMessage = errors.New("invalid scan message")

// Message is the inbound job message.
type Message struct {
	ScanID        int64     `json:"scanId"`
	UserID        int64     `json:"userId"`
	RepoURL       string    `json:"repoUrl"`
	Branch        string    `json:"branch"`
	CorrelationID string    `json:"correlationId"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Decode parses and validates a task payload.
func Decode(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if m.ScanID <= 0 {
		return Message{}, fmt.Errorf("%w: missing scanId", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.RepoURL) == "" {
		return Message{}, fmt.Errorf("%w: missing repoUrl", ErrInvalidMessage)
	}
	return m, nil
}

// NewTask encodes m as a scan task.
func NewTask(m Message, opts ...asynq.Option) (*asynq.Task, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal scan message: %w", err)
	}
	return asynq.NewTask(TaskTypeScan, b, opts...), nil
}
