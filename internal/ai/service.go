package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/config"
	"github.com/CosmoTheDev/devsecwatch-worker/models"
)

const defaultServiceTimeout = 30 * time.Second

// ServiceClient calls the explanation service over HTTP.
type ServiceClient struct {
	baseURL string
	client  *http.Client
	debug   bool
}

// NewService creates a ServiceClient from cfg.
func NewService(cfg config.AIConfig) (*ServiceClient, error) {
	u, err := url.Parse(cfg.ServiceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid AI service URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("invalid AI service URL scheme %q", u.Scheme)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultServiceTimeout
	}
	return &ServiceClient{
		baseURL: strings.TrimRight(cfg.ServiceURL, "/"),
		client:  &http.Client{Timeout: timeout},
		debug:   isDebug(),
	}, nil
}

func (s *ServiceClient) Name() string { return "service" }

// IsAvailable probes GET /health.
func (s *ServiceClient) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	// #nosec G107 -- baseURL is loaded from trusted local config and validated in NewService.
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// analyzeResponse is the wire body returned by POST /analyze.
type analyzeResponse struct {
	Description   string  `json:"description"`
	FixSuggestion string  `json:"fix_suggestion"`
	Confidence    float64 `json:"confidence"`
	IsTemplate    bool    `json:"is_template"`
}

// Explain posts the finding to /analyze.
func (s *ServiceClient) Explain(ctx context.Context, in ExplainRequest) (*models.Explanation, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encoding explain request: %w", err)
	}
	if s.debug {
		slog.Debug("ai: request", "type", in.VulnerabilityType, "file", in.FilePath, "line", in.LineNumber)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	// #nosec G107 -- baseURL is loaded from trusted local config and validated in NewService.
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(string(raw), 200))
	}

	var out analyzeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	if strings.TrimSpace(out.Description) == "" {
		return nil, fmt.Errorf("%w: empty description", ErrUnavailable)
	}
	if s.debug {
		slog.Debug("ai: response",
			"type", in.VulnerabilityType,
			"is_template", out.IsTemplate,
			"confidence", out.Confidence,
			"duration", time.Since(start).String(),
		)
	}

	source := models.SourceAI
	if out.IsTemplate {
		source = models.SourceTemplate
	}
	return &models.Explanation{
		Description:   out.Description,
		FixSuggestion: out.FixSuggestion,
		Source:        source,
		IsTemplate:    out.IsTemplate,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
