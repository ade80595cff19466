package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/config"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/metrics"
	"github.com/CosmoTheDev/devsecwatch-worker/models"
)

// Dispatcher fans out a job's final state to all configured channels.
type Dispatcher struct {
	channels []Channel
	prefix   string
	now      func() time.Time
}

// NewDispatcher builds a Dispatcher from cfg. relay may be nil; only
// channels reporting IsConfigured are kept.
func NewDispatcher(cfg config.NotifyConfig, relay Enqueuer, relayQueue string) *Dispatcher {
	var r Channel
	if relay != nil {
		r = NewRelay(relay, relayQueue)
	}
	return NewDispatcherWithChannels(cfg.DestinationPrefix, r, NewWebhook(cfg.Webhook), NewSlack(cfg.Slack))
}

// NewDispatcherWithChannels builds a Dispatcher from explicit channels.
func NewDispatcherWithChannels(prefix string, channels ...Channel) *Dispatcher {
	d := &Dispatcher{prefix: prefix, now: time.Now}
	for _, ch := range channels {
		if ch != nil && ch.IsConfigured() {
			d.channels = append(d.channels, ch)
		}
	}
	return d
}

// IsAnyConfigured returns true if at least one channel is ready to send.
func (d *Dispatcher) IsAnyConfigured() bool {
	return len(d.channels) > 0
}

// Notify sends the job's summary to every channel. It tries all of them and
// returns the joined send errors.
func (d *Dispatcher) Notify(ctx context.Context, job *models.ScanJob, username string) error {
	env := Envelope{
		Destination: Destination(d.prefix, username),
		Event:       BuildEvent(job, d.now()),
	}
	var errs []error
	for _, ch := range d.channels {
		if err := ch.Send(ctx, env); err != nil {
			metrics.NotificationsTotal.WithLabelValues(ch.Name(), "error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(ch.Name(), "sent").Inc()
		slog.Debug("notify: sent", "channel", ch.Name(), "scan_id", job.ID, "destination", env.Destination)
	}
	return errors.Join(errs...)
}
