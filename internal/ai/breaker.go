package ai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/models"
)

// ErrCircuitOpen is returned without contacting the service while the
// breaker is open.
var ErrCircuitOpen = fmt.Errorf("%w: circuit open", ErrUnavailable)

const (
	defaultFailureThreshold = 3
	defaultResetTimeout     = 2 * time.Minute
)

type circuitBreaker struct {
	mu           sync.Mutex
	threshold    int
	resetTimeout time.Duration
	failures     int
	lastFailedAt time.Time
	state        string
	now          func() time.Time
}

func newCircuitBreaker(threshold int, reset time.Duration) *circuitBreaker {
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	if reset <= 0 {
		reset = defaultResetTimeout
	}
	return &circuitBreaker{
		threshold:    threshold,
		resetTimeout: reset,
		state:        "closed",
		now:          time.Now,
	}
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == "open" {
		if cb.now().Sub(cb.lastFailedAt) >= cb.resetTimeout {
			cb.state = "half-open"
			return true
		}
		return false
	}
	return true
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.state = "closed"
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailedAt = cb.now()

	// A failed half-open probe re-opens immediately.
	if cb.failures >= cb.threshold || cb.state == "half-open" {
		if cb.state != "open" {
			slog.Warn("ai: circuit breaker opened", "failures", cb.failures, "cooldown", cb.resetTimeout)
		}
		cb.state = "open"
	}
}

func (cb *circuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Guarded wraps an Explainer with a circuit breaker so a dead service costs
// one timeout per cooldown instead of one per finding.
type Guarded struct {
	inner   Explainer
	breaker *circuitBreaker
}

// NewGuarded wraps inner. Zero values select the defaults (3 failures, 2m).
func NewGuarded(inner Explainer, threshold int, cooldown time.Duration) *Guarded {
	return &Guarded{inner: inner, breaker: newCircuitBreaker(threshold, cooldown)}
}

func (g *Guarded) Name() string { return g.inner.Name() }

func (g *Guarded) IsAvailable(ctx context.Context) bool {
	return g.breaker.allow() && g.inner.IsAvailable(ctx)
}

// Explain delegates unless the circuit is open.
func (g *Guarded) Explain(ctx context.Context, req ExplainRequest) (*models.Explanation, error) {
	if !g.breaker.allow() {
		slog.Debug("ai: circuit open, skipping service", "type", req.VulnerabilityType)
		return nil, ErrCircuitOpen
	}
	exp, err := g.inner.Explain(ctx, req)
	if err != nil {
		// The caller giving up is not the service's fault.
		if ctx.Err() == nil {
			g.breaker.recordFailure()
		}
		return nil, err
	}
	g.breaker.recordSuccess()
	return exp, nil
}
