// Package gateway is the worker's operational surface: health and metrics
// endpoints and the stale-job janitor.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const checkTimeout = 2 * time.Second

// Check is one named dependency probe for /healthz.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// HealthReport is the /healthz body.
type HealthReport struct {
	Status        string            `json:"status"`
	Checks        map[string]string `json:"checks"`
	UptimeSeconds int64             `json:"uptime_seconds"`
}

// Gateway serves /healthz and /metrics and runs the janitor.
type Gateway struct {
	addr      string
	checks    []Check
	janitor   *Janitor
	startedAt time.Time
}

// New creates a Gateway listening on addr. janitor may be nil.
func New(addr string, janitor *Janitor, checks ...Check) *Gateway {
	return &Gateway{addr: addr, checks: checks, janitor: janitor, startedAt: time.Now()}
}

// Handler returns the HTTP routes.
func (gw *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", gw.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"service":   "devsecwatch-worker",
			"endpoints": []string{"/healthz", "/metrics"},
		})
	})
	return mux
}

// Start runs the janitor and the HTTP server until ctx is cancelled.
func (gw *Gateway) Start(ctx context.Context) error {
	if gw.janitor != nil {
		if err := gw.janitor.Start(); err != nil {
			return fmt.Errorf("starting janitor: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              gw.addr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		if gw.janitor != nil {
			gw.janitor.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway: listening", "addr", gw.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (gw *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	report := HealthReport{
		Status:        "ok",
		Checks:        make(map[string]string, len(gw.checks)),
		UptimeSeconds: int64(time.Since(gw.startedAt).Seconds()),
	}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range gw.checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()
			result := "ok"
			if err := c.Fn(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			report.Checks[c.Name] = result
			if result != "ok" {
				report.Status = "degraded"
			}
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("gateway: writing response failed", "error", err)
	}
}
