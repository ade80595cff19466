package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/config"
	"github.com/CosmoTheDev/devsecwatch-worker/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceExplain(t *testing.T) {
	var got ExplainRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/analyze", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"description":"Use parameterized queries","fix_suggestion":"PreparedStatement","confidence":0.92,"is_template":false}`))
	}))
	defer srv.Close()

	svc, err := NewService(config.AIConfig{ServiceURL: srv.URL + "/"})
	require.NoError(t, err)

	exp, err := svc.Explain(context.Background(), RequestFor(models.Finding{
		VulnType: "SQL_INJECTION", Snippet: "q + id", FilePath: "Dao.java", Line: 12,
	}))
	require.NoError(t, err)
	assert.Equal(t, "Use parameterized queries", exp.Description)
	assert.Equal(t, models.SourceAI, exp.Source)
	assert.False(t, exp.IsTemplate)
	assert.Equal(t, ExplainRequest{VulnerabilityType: "SQL_INJECTION", CodeSnippet: "q + id", FilePath: "Dao.java", LineNumber: 12}, got)
}

func TestServiceExplainTemplateAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"description":"generic","fix_suggestion":"fix","confidence":0.5,"is_template":true}`))
	}))
	defer srv.Close()

	svc, err := NewService(config.AIConfig{ServiceURL: srv.URL})
	require.NoError(t, err)
	exp, err := svc.Explain(context.Background(), ExplainRequest{VulnerabilityType: "X"})
	require.NoError(t, err)
	assert.True(t, exp.IsTemplate)
	assert.Equal(t, models.SourceTemplate, exp.Source)
}

func TestServiceExplainFailures(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"description":`))
		},
		"empty description": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"description":"  "}`))
		},
		"slow": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		},
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			svc, err := NewService(config.AIConfig{ServiceURL: srv.URL, Timeout: 100 * time.Millisecond})
			require.NoError(t, err)
			_, err = svc.Explain(context.Background(), ExplainRequest{VulnerabilityType: "X"})
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestServiceIsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	svc, err := NewService(config.AIConfig{ServiceURL: srv.URL})
	require.NoError(t, err)
	assert.True(t, svc.IsAvailable(context.Background()))
}

func TestNewServiceRejectsBadScheme(t *testing.T) {
	_, err := NewService(config.AIConfig{ServiceURL: "ftp://ai"})
	assert.Error(t, err)
}

func TestNewSelectsNoopWithoutURL(t *testing.T) {
	e, err := New(config.AIConfig{})
	require.NoError(t, err)
	assert.Equal(t, "none", e.Name())
	_, err = e.Explain(context.Background(), ExplainRequest{})
	assert.ErrorIs(t, err, ErrUnavailable)

	e, err = New(config.AIConfig{ServiceURL: "http://localhost:1"})
	require.NoError(t, err)
	assert.IsType(t, &Guarded{}, e)
}

type failingExplainer struct{ calls atomic.Int32 }

func (f *failingExplainer) Name() string                       { return "failing" }
func (f *failingExplainer) IsAvailable(_ context.Context) bool { return false }
func (f *failingExplainer) Explain(_ context.Context, _ ExplainRequest) (*models.Explanation, error) {
	f.calls.Add(1)
	return nil, errors.New("connection refused")
}

func TestGuardedOpensAfterThreshold(t *testing.T) {
	inner := &failingExplainer{}
	g := NewGuarded(inner, 3, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.breaker.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		_, err := g.Explain(context.Background(), ExplainRequest{})
		assert.Error(t, err)
	}
	assert.EqualValues(t, 3, inner.calls.Load(), "calls stop once the circuit opens")
	assert.Equal(t, "open", g.breaker.State())

	now = now.Add(time.Minute)
	_, err := g.Explain(context.Background(), ExplainRequest{})
	assert.Error(t, err)
	assert.EqualValues(t, 4, inner.calls.Load(), "one half-open probe after cooldown")
	assert.Equal(t, "open", g.breaker.State())
}

type okExplainer struct{}

func (okExplainer) Name() string                       { return "ok" }
func (okExplainer) IsAvailable(_ context.Context) bool { return true }
func (okExplainer) Explain(_ context.Context, _ ExplainRequest) (*models.Explanation, error) {
	return &models.Explanation{Description: "d", Source: models.SourceAI}, nil
}

func TestGuardedSuccessClosesCircuit(t *testing.T) {
	g := NewGuarded(okExplainer{}, 1, time.Minute)
	g.breaker.recordFailure()
	assert.Equal(t, "open", g.breaker.State())

	g.breaker.lastFailedAt = time.Now().Add(-2 * time.Minute)
	_, err := g.Explain(context.Background(), ExplainRequest{})
	require.NoError(t, err)
	assert.Equal(t, "closed", g.breaker.State())
}
