// Package scanner runs the static analysis engine and turns its JSON output
// into actionable findings.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/models"
)

// DefaultTimeout bounds one analyzer run when none is configured.
const DefaultTimeout = 180 * time.Second

// resultsFile is written inside the workspace, relative to the analyzer cwd.
const resultsFile = "semgrep_output.json"

var (
	// ErrExecution means the engine crashed or produced no results file.
	ErrExecution = errors.New("static analysis execution failed")
	// ErrTimeout means the engine was killed at its deadline.
	ErrTimeout = errors.New("static analysis timed out")
	// ErrMalformedOutput means the results file could not be parsed.
	ErrMalformedOutput = errors.New("static analysis output malformed")
)

// Engine identifies the analyzer binary flavour.
type Engine string

const (
	EngineSemgrep  Engine = "semgrep"
	EngineOpengrep Engine = "opengrep"
)

// DockerImage returns the image used as a fallback for e.
func (e Engine) DockerImage() string {
	if e == EngineOpengrep {
		return "opengrep/opengrep:latest"
	}
	return "semgrep/semgrep:latest"
}

// Report is the outcome of one analyzer run.
type Report struct {
	// Findings holds only HIGH and CRITICAL results.
	Findings []models.Finding
	// RawCount is the number of results before the severity filter.
	RawCount int
	Duration time.Duration
}

// Options configures an Analyzer.
type Options struct {
	Engine       Engine
	Rules        string
	Timeout      time.Duration
	BinDir       string
	PreferDocker bool
	DockerImage  string
}

// Analyzer invokes the engine against a workspace.
type Analyzer struct {
	opts Options
}

// NewAnalyzer fills in defaults for opts.
func NewAnalyzer(opts Options) *Analyzer {
	if opts.Engine == "" {
		opts.Engine = EngineSemgrep
	}
	if opts.Rules == "" {
		opts.Rules = "auto"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.DockerImage == "" {
		opts.DockerImage = opts.Engine.DockerImage()
	}
	return &Analyzer{opts: opts}
}

// Name returns the engine name.
func (a *Analyzer) Name() string { return string(a.opts.Engine) }

// Available reports how the engine would be executed: "local", "docker" or "".
func (a *Analyzer) Available(ctx context.Context) string {
	if !a.opts.PreferDocker && resolveBinary(string(a.opts.Engine), a.opts.BinDir) != "" {
		return "local"
	}
	if isDockerAvailable(ctx) {
		return "docker"
	}
	return ""
}

// Analyze runs the engine in workspace and returns the actionable findings.
func (a *Analyzer) Analyze(ctx context.Context, workspace string) (*Report, error) {
	tool, err := a.tool(ctx, workspace)
	if err != nil {
		return nil, err
	}

	outPath := filepath.Join(workspace, resultsFile)
	_ = os.Remove(outPath)
	defer os.Remove(outPath)

	slog.Info("Running static analysis", "engine", a.opts.Engine, "via", tool.Name, "workspace", workspace)

	res, err := RunTool(ctx, tool)
	if tool.Container != "" && (errors.Is(err, ErrTimeout) || ctx.Err() != nil) {
		killContainer(tool.Container)
	}
	if err != nil {
		return nil, err
	}

	data, readErr := os.ReadFile(outPath)
	if readErr != nil {
		return nil, fmt.Errorf("%w: exit code %d, no results file: %s",
			ErrExecution, res.ExitCode, lastLine(res.Stderr))
	}
	if res.ExitCode != 0 {
		slog.Debug("Analyzer exited non-zero with results", "exit_code", res.ExitCode)
	}

	findings, raw, err := ParseResults(data)
	if err != nil {
		return nil, err
	}

	slog.Info("Static analysis completed",
		"engine", a.opts.Engine,
		"results", raw,
		"actionable", len(findings),
		"duration", fmt.Sprintf("%.1fs", res.Duration.Seconds()),
	)
	return &Report{Findings: findings, RawCount: raw, Duration: res.Duration}, nil
}

// tool builds the invocation, preferring a local binary over docker.
func (a *Analyzer) tool(ctx context.Context, workspace string) (Tool, error) {
	args := []string{"--config", a.opts.Rules, "--json", "-o", resultsFile, "."}
	if a.opts.Engine == EngineOpengrep {
		args = append([]string{"scan"}, args...)
	}
	base := Tool{
		Args: args,
		Dir:  workspace,
		Env: []string{
			"PYTHONIOENCODING=utf-8",
			"PYTHONUTF8=1",
			"LC_ALL=C.UTF-8",
		},
		Timeout: a.opts.Timeout,
	}

	if !a.opts.PreferDocker {
		if bin := resolveBinary(string(a.opts.Engine), a.opts.BinDir); bin != "" {
			base.Name = bin
			return base, nil
		}
	}
	if isDockerAvailable(ctx) {
		if a.opts.Engine == EngineSemgrep {
			base.Args = append([]string{"semgrep"}, base.Args...)
		}
		slog.Info("Using Docker fallback", "engine", a.opts.Engine, "image", a.opts.DockerImage)
		return dockerTool(a.opts.DockerImage, workspace, base), nil
	}
	return Tool{}, fmt.Errorf("%w: %s binary not found and docker unavailable", ErrExecution, a.opts.Engine)
}

func lastLine(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return s[i+1:]
		}
	}
	return s
}
