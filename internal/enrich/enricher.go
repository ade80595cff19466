// Package enrich attaches explanations to findings through a content-addressed
// cache, the AI explanation service and static templates.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/ai"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/cache"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/metrics"
	"github.com/CosmoTheDev/devsecwatch-worker/models"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of enriching one job's findings.
type Result struct {
	Findings []models.EnrichedFinding
	// CacheHits is the number of findings served from the cache.
	CacheHits int
	// AICalls is the number of requests sent to the explanation service.
	AICalls int
	// Fallbacks is the number of findings explained by a static template.
	Fallbacks int
	Duration  time.Duration
}

// HitRate is the fraction of findings served from the cache.
func (r *Result) HitRate() float64 {
	if len(r.Findings) == 0 {
		return 0
	}
	return float64(r.CacheHits) / float64(len(r.Findings))
}

// Enricher resolves explanations. Safe for concurrent use.
type Enricher struct {
	explainer   ai.Explainer
	cache       *cache.Cache[models.Explanation]
	templates   Templates
	parallelism int
}

// New builds an Enricher. c may be nil to disable caching. parallelism
// bounds concurrent lookups within one job; values below 2 run sequentially.
func New(explainer ai.Explainer, c *cache.Cache[models.Explanation], templates Templates, parallelism int) *Enricher {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Enricher{explainer: explainer, cache: c, templates: templates, parallelism: parallelism}
}

// CacheKey is "<vulnType>:<xxhash64 of snippet>".
func CacheKey(vulnType, snippet string) string {
	return vulnType + ":" + fastHash(snippet)
}

// Enrich explains every finding. It only fails when ctx is cancelled; service
// and cache failures degrade to templates.
func (e *Enricher) Enrich(ctx context.Context, findings []models.Finding) (*Result, error) {
	start := time.Now()
	out := make([]models.EnrichedFinding, len(findings))
	var hits, calls, fallbacks atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i := range findings {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			exp, src := e.explain(gctx, findings[i])
			switch src {
			case fromCache:
				hits.Add(1)
			case fromService:
				calls.Add(1)
			case fromTemplate:
				calls.Add(1)
				fallbacks.Add(1)
			case fromTemplateNoCall:
				fallbacks.Add(1)
			}
			out[i] = models.EnrichedFinding{Finding: findings[i], Explanation: exp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		Findings:  out,
		CacheHits: int(hits.Load()),
		AICalls:   int(calls.Load()),
		Fallbacks: int(fallbacks.Load()),
		Duration:  time.Since(start),
	}
	slog.Info("Enrichment completed",
		"findings", len(out),
		"cache_hits", res.CacheHits,
		"ai_calls", res.AICalls,
		"template_fallbacks", res.Fallbacks,
		"hit_rate", res.HitRate(),
	)
	return res, nil
}

type source int

const (
	fromCache source = iota
	fromService
	fromTemplate       // service was called and failed
	fromTemplateNoCall // circuit open or no service configured
)

func (e *Enricher) explain(ctx context.Context, f models.Finding) (models.Explanation, source) {
	key := CacheKey(f.VulnType, f.Snippet)

	if e.cache != nil {
		cached, err := e.cache.Get(ctx, key)
		switch {
		case err == nil:
			metrics.EnrichmentLookupsTotal.WithLabelValues("hit").Inc()
			return *cached, fromCache
		case errors.Is(err, cache.ErrCacheMiss):
			metrics.EnrichmentLookupsTotal.WithLabelValues("miss").Inc()
		default:
			metrics.EnrichmentLookupsTotal.WithLabelValues("error").Inc()
			slog.Warn("Explanation cache read failed, treating as miss", "key", key, "error", err)
		}
	}

	exp, err := e.explainer.Explain(ctx, ai.RequestFor(f))
	if err != nil {
		metrics.EnrichmentFallbacksTotal.Inc()
		slog.Debug("AI explanation unavailable, using template",
			"vuln_type", f.VulnType, "file", f.FilePath, "line", f.Line, "error", err)
		src := fromTemplate
		if e.explainer.Name() == "none" || errors.Is(err, ai.ErrCircuitOpen) {
			src = fromTemplateNoCall
		}
		return e.templates.Explanation(f.VulnType), src
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, *exp); err != nil {
			slog.Warn("Explanation cache write failed", "key", key, "error", err)
		}
	}
	return *exp, fromService
}

func fastHash(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}
