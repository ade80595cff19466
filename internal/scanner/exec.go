package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// stderrTailBytes is how much diagnostic output is kept for error messages.
const stderrTailBytes = 4096

// Tool describes one external process invocation.
type Tool struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string // appended to os.Environ()
	Timeout time.Duration
	// Container names the docker container the tool runs in, if any.
	Container string
}

// ToolResult reports how a tool exited.
type ToolResult struct {
	ExitCode int
	Stderr   string // last stderrTailBytes of stderr
	Duration time.Duration
}

// RunTool runs t to completion. Stdout is discarded and stderr is kept as a
// bounded tail; both are drained concurrently with Wait so a chatty process
// never blocks on a full pipe. When the timeout fires the process is killed
// and ErrTimeout is returned. A non-zero exit is reported through
// ToolResult.ExitCode, not as an error.
func RunTool(ctx context.Context, t Tool) (*ToolResult, error) {
	runCtx := ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	stderr := &tailBuffer{max: stderrTailBytes}
	// nosemgrep: go.lang.security.audit.dangerous-exec-command.dangerous-exec-command
	cmd := exec.CommandContext(runCtx, t.Name, t.Args...)
	cmd.Dir = t.Dir
	cmd.Env = append(os.Environ(), t.Env...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	// Children that inherit the pipes must not keep Wait blocked after a kill.
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	res := &ToolResult{Stderr: stderr.String(), Duration: time.Since(start)}

	if errors.Is(ctx.Err(), context.Canceled) {
		return res, fmt.Errorf("%s interrupted: %w", t.Name, ctx.Err())
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%w: %s exceeded %s", ErrTimeout, t.Name, t.Timeout)
	}
	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		return res, nil
	}
	return res, fmt.Errorf("%w: starting %s: %v", ErrExecution, t.Name, err)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
