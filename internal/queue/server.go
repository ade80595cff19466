package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/config"
	"github.com/hibiken/asynq"
)

var (
	// errRequeue makes asynq schedule a retry; MaxRetry bounds redelivery
	// and exhausted tasks move to the archive.
	errRequeue = errors.New("scan job rejected for retry")
	// errUnsettled covers handlers that returned without a decision.
	errUnsettled = errors.New("scan job delivery was not settled")
)

// RedisOpt converts the shared redis config to asynq's connection option.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// Server consumes scan tasks and translates each delivery's settlement into
// asynq's result: nil acks, an error retries, SkipRetry archives.
type Server struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	handler Handler
}

// NewServer builds a consumer on cfg.Queue.ScanQueue with
// cfg.Worker.Concurrency slots.
func NewServer(cfg *config.Config, h Handler) *Server {
	srv := asynq.NewServer(
		RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency:     cfg.Worker.Concurrency,
			Queues:          map[string]int{cfg.Queue.ScanQueue: 1},
			ShutdownTimeout: cfg.Worker.ShutdownTimeout,
			Logger:          slogAdapter{},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				slog.Warn("queue: delivery not acknowledged",
					"type", task.Type(), "attempt", retried, "max_retry", maxRetry, "error", err)
			}),
		},
	)
	s := &Server{server: srv, mux: asynq.NewServeMux(), handler: h}
	s.mux.HandleFunc(TaskTypeScan, s.ProcessTask)
	return s
}

// ProcessTask is the asynq handler for scan tasks.
func (s *Server) ProcessTask(ctx context.Context, t *asynq.Task) error {
	msg, err := Decode(t.Payload())
	if err != nil {
		slog.Error("queue: dropping undecodable scan message", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	attempt, _ := asynq.GetRetryCount(ctx)
	taskID, _ := asynq.GetTaskID(ctx)
	st := &Settlement{}
	s.handler.Handle(ctx, Delivery{Message: msg, Attempt: attempt, TaskID: taskID, Acknowledger: st})
	return settlementError(st.Decision())
}

func settlementError(d Decision) error {
	switch d {
	case Acked:
		return nil
	case Rejected:
		return fmt.Errorf("scan job rejected: %w", asynq.SkipRetry)
	case Requeued:
		return errRequeue
	default:
		return errUnsettled
	}
}

// Run consumes until ctx is cancelled, then drains in-flight jobs for up to
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("queue consumer: %w", err)
	}
	<-ctx.Done()
	slog.Info("queue: stopping consumer")
	s.server.Shutdown()
	return nil
}

// slogAdapter routes asynq's internal logging through slog.
type slogAdapter struct{}

func (slogAdapter) Debug(args ...interface{}) { slog.Debug(fmt.Sprint(args...), "component", "asynq") }
func (slogAdapter) Info(args ...interface{})  { slog.Info(fmt.Sprint(args...), "component", "asynq") }
func (slogAdapter) Warn(args ...interface{})  { slog.Warn(fmt.Sprint(args...), "component", "asynq") }
func (slogAdapter) Error(args ...interface{}) { slog.Error(fmt.Sprint(args...), "component", "asynq") }
func (slogAdapter) Fatal(args ...interface{}) {
	slog.Error(fmt.Sprint(args...), "component", "asynq", "fatal", true)
	os.Exit(1)
}
