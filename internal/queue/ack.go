package queue

import (
	"context"
	"sync"
)

// Acknowledger settles one delivery. The first call wins; later calls are
// ignored.
type Acknowledger interface {
	Ack()
	Reject(requeue bool)
}

// Delivery is one message handed to a Handler.
type Delivery struct {
	Message Message
	// Attempt is the zero-based delivery count.
	Attempt int
	// TaskID identifies the broker task, for logs.
	TaskID string
	Acknowledger
}

// Handler processes deliveries. It must settle each one through its
// Acknowledger before returning.
type Handler interface {
	Handle(ctx context.Context, d Delivery)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d Delivery)

func (f HandlerFunc) Handle(ctx context.Context, d Delivery) { f(ctx, d) }

// Decision is how a delivery was settled.
type Decision int

const (
	Pending Decision = iota
	Acked
	Requeued
	Rejected
)

func (d Decision) String() string {
	switch d {
	case Acked:
		return "acked"
	case Requeued:
		return "requeued"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Settlement records a single ack or reject. It implements Acknowledger.
type Settlement struct {
	mu       sync.Mutex
	decision Decision
}

func (s *Settlement) Ack() { s.settle(Acked) }

func (s *Settlement) Reject(requeue bool) {
	if requeue {
		s.settle(Requeued)
		return
	}
	s.settle(Rejected)
}

func (s *Settlement) settle(d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decision == Pending {
		s.decision = d
	}
}

// Decision returns the recorded outcome.
func (s *Settlement) Decision() Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decision
}
