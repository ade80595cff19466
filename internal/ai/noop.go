package ai

import (
	"context"
	"fmt"

	"github.com/CosmoTheDev/devsecwatch-worker/models"
)

// NoopExplainer is used when no explanation service is configured.
// IsAvailable always returns false and Explain always fails, which makes the
// enricher degrade to static templates.
type NoopExplainer struct{}

func (n *NoopExplainer) Name() string                       { return "none" }
func (n *NoopExplainer) IsAvailable(_ context.Context) bool { return false }

func (n *NoopExplainer) Explain(_ context.Context, _ ExplainRequest) (*models.Explanation, error) {
	return nil, fmt.Errorf("%w: not configured (set ai.service_url)", ErrUnavailable)
}
