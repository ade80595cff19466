// Package ai talks to the explanation service that turns a finding into a
// human-readable description and fix suggestion.
package ai

import (
	"context"
	"errors"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/config"
	"github.com/CosmoTheDev/devsecwatch-worker/models"
)

// ErrUnavailable wraps every failure to obtain an explanation from the
// service (transport, status, decode, open circuit).
var ErrUnavailable = errors.New("ai explanation service unavailable")

// Explainer produces an explanation for one finding.
type Explainer interface {
	// Name returns the explainer identifier (e.g. "service", "none").
	Name() string

	// IsAvailable verifies the backend is reachable and configured.
	IsAvailable(ctx context.Context) bool

	// Explain asks for a description and fix for one finding.
	Explain(ctx context.Context, req ExplainRequest) (*models.Explanation, error)
}

// ExplainRequest is the wire body of POST /analyze.
type ExplainRequest struct {
	VulnerabilityType string `json:"vulnerability_type"`
	CodeSnippet       string `json:"code_snippet"`
	FilePath          string `json:"file_path"`
	LineNumber        int    `json:"line_number"`
}

// RequestFor builds the request for a finding.
func RequestFor(f models.Finding) ExplainRequest {
	return ExplainRequest{
		VulnerabilityType: f.VulnType,
		CodeSnippet:       f.Snippet,
		FilePath:          f.FilePath,
		LineNumber:        f.Line,
	}
}

// New returns the configured Explainer. With no service URL it returns a
// NoopExplainer so callers always fall back to templates. Otherwise the
// service client is wrapped in a circuit breaker.
func New(cfg config.AIConfig) (Explainer, error) {
	if cfg.ServiceURL == "" {
		return &NoopExplainer{}, nil
	}
	svc, err := NewService(cfg)
	if err != nil {
		return nil, err
	}
	return NewGuarded(svc, cfg.FailureThreshold, cfg.Cooldown), nil
}
