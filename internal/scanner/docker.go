package scanner

import (
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const containerKillTimeout = 10 * time.Second

// isDockerAvailable returns true if the Docker daemon is reachable.
func isDockerAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "info", "--format", "{{.ServerVersion}}")
	return cmd.Run() == nil
}

// dockerTool wraps a tool invocation so it runs inside image with the
// workspace mounted read-write at /src (the results file is written there).
// The container gets a unique name so it can be killed on timeout; killing
// the docker client alone leaves the container running.
func dockerTool(image, workspace string, inner Tool) Tool {
	name := "devsecwatch-scan-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	args := []string{
		"run", "--rm", "--init",
		"--name", name,
		"-v", workspace + ":/src",
		"-w", "/src",
	}
	for _, kv := range inner.Env {
		args = append(args, "-e", kv)
	}
	args = append(args, image)
	args = append(args, inner.Args...)
	return Tool{
		Name:      "docker",
		Args:      args,
		Dir:       workspace,
		Timeout:   inner.Timeout,
		Container: name,
	}
}

// killContainer force-stops a container left behind by a timed-out run.
// --rm removes it once it exits.
func killContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), containerKillTimeout)
	defer cancel()
	if out, err := exec.CommandContext(ctx, "docker", "kill", name).CombinedOutput(); err != nil {
		slog.Warn("Failed to kill analyzer container",
			"container", name,
			"error", err,
			"output", strings.TrimSpace(string(out)),
		)
		return
	}
	slog.Info("Killed analyzer container after timeout", "container", name)
}

// resolveBinary returns the path of name in binDir or PATH, or "" when the
// binary cannot be found.
func resolveBinary(name, binDir string) string {
	if binDir != "" {
		if p, err := exec.LookPath(filepath.Join(binDir, name)); err == nil {
			return p
		}
	}
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	return ""
}
