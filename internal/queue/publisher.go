package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/config"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Enqueuer is the part of *asynq.Client the publisher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher sends scan messages. Callers publish only after the job row
// has committed.
type Publisher struct {
	client   Enqueuer
	queue    string
	maxRetry int
	timeout  time.Duration
	now      func() time.Time
}

// NewPublisher returns a Publisher for cfg's scan queue.
func NewPublisher(client Enqueuer, cfg config.QueueConfig) *Publisher {
	return &Publisher{
		client:   client,
		queue:    cfg.ScanQueue,
		maxRetry: cfg.MaxRetry,
		timeout:  cfg.TaskTimeout,
		now:      time.Now,
	}
}

// Publish fills a missing correlation id and submission time, then enqueues
// m. It returns the message as sent.
func (p *Publisher) Publish(ctx context.Context, m Message) (Message, error) {
	if m.CorrelationID == "" {
		m.CorrelationID = uuid.NewString()
	}
	if m.SubmittedAt.IsZero() {
		m.SubmittedAt = p.now().UTC()
	}
	opts := []asynq.Option{asynq.Queue(p.queue), asynq.MaxRetry(p.maxRetry)}
	if p.timeout > 0 {
		opts = append(opts, asynq.Timeout(p.timeout))
	}
	task, err := NewTask(m, opts...)
	if err != nil {
		return m, err
	}
	info, err := p.client.EnqueueContext(ctx, task)
	if err != nil {
		return m, fmt.Errorf("enqueue scan %d: %w", m.ScanID, err)
	}
	slog.Info("Scan job published",
		"scan_id", m.ScanID,
		"task_id", info.ID,
		"queue", info.Queue,
		"correlation_id", m.CorrelationID,
	)
	return m, nil
}
