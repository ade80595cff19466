package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Enqueuer is the part of *asynq.Client the relay needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RelayChannel publishes envelopes to the notification queue, where the
// relay consumer fans them out to live connections and the inbox store.
type RelayChannel struct {
	client Enqueuer
	queue  string
}

// NewRelay returns a RelayChannel. A nil client leaves it unconfigured.
func NewRelay(client Enqueuer, queue string) *RelayChannel {
	return &RelayChannel{client: client, queue: queue}
}

func (r *RelayChannel) Name() string       { return "relay" }
func (r *RelayChannel) IsConfigured() bool { return r.client != nil && r.queue != "" }

func (r *RelayChannel) Send(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskTypeScanNotification, b)
	if _, err := r.client.EnqueueContext(ctx, task, asynq.Queue(r.queue), asynq.MaxRetry(1)); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}
