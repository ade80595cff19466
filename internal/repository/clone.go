// Package repository fetches remote repositories into disposable workspaces.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/google/uuid"
)

// DefaultCloneTimeout bounds a single clone when none is configured.
const DefaultCloneTimeout = 60 * time.Second

var (
	// ErrCloneFailed covers auth, not-found and network failures.
	ErrCloneFailed = errors.New("repository clone failed")
	// ErrCloneTimeout is returned when the clone exceeds its deadline.
	ErrCloneTimeout = errors.New("repository clone timed out")
)

// Workspace is a job-scoped checkout on local disk.
type Workspace struct {
	Path   string
	Branch string
	Commit string
}

// Fetcher clones repositories with go-git.
type Fetcher struct {
	root    string
	timeout time.Duration
	token   string
}

// NewFetcher creates a Fetcher that places workspaces under root.
// token, when set, is sent as HTTPS basic auth.
func NewFetcher(root string, timeout time.Duration, token string) *Fetcher {
	if root == "" {
		root = os.TempDir()
	}
	if timeout <= 0 {
		timeout = DefaultCloneTimeout
	}
	return &Fetcher{root: root, timeout: timeout, token: token}
}

// Clone shallow-clones branch of repoURL into a fresh directory named after
// the job. On failure the directory is already removed.
func (f *Fetcher) Clone(ctx context.Context, repoURL, branch string, jobID int64) (*Workspace, error) {
	if branch == "" {
		branch = "main"
	}
	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}
	dir := filepath.Join(f.root, fmt.Sprintf("scan-%d-%s", jobID, uuid.NewString()))

	cloneCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	slog.Debug("Cloning repository",
		"url", repoURL,
		"branch", branch,
		"depth", 1,
		"dest", dir,
	)

	repo, err := gogit.PlainCloneContext(cloneCtx, dir, false, &gogit.CloneOptions{
		URL:           repoURL,
		Auth:          f.auth(),
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
		Tags:          gogit.NoTags,
	})
	if err != nil {
		f.Cleanup(dir)
		if ctxErr := ctx.Err(); ctxErr != nil {
			// the caller gave up (shutdown, task deadline); says nothing about the repository
			return nil, fmt.Errorf("clone of %s interrupted: %w", repoURL, ctxErr)
		}
		if errors.Is(cloneCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", ErrCloneTimeout, repoURL, f.timeout)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCloneFailed, repoURL, err)
	}

	ws := &Workspace{Path: dir, Branch: branch}
	if head, err := repo.Head(); err == nil {
		ws.Commit = head.Hash().String()
	}
	return ws, nil
}

// Cleanup removes a workspace. Missing paths are not an error.
func (f *Fetcher) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		slog.Warn("Failed to clean up workspace", "path", path, "error", err)
	}
}

// Probe checks that repoURL answers a reference listing and advertises
// branch, without cloning anything.
func (f *Fetcher) Probe(ctx context.Context, repoURL, branch string) error {
	probeCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	remote := gogit.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{repoURL},
	})
	refs, err := remote.ListContext(probeCtx, &gogit.ListOptions{Auth: f.auth()})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("probing %s interrupted: %w", repoURL, ctxErr)
		}
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrCloneTimeout, repoURL)
		}
		return fmt.Errorf("%w: %s: %v", ErrCloneFailed, repoURL, err)
	}
	if branch == "" {
		return nil
	}
	want := plumbing.NewBranchReferenceName(branch)
	for _, ref := range refs {
		if ref.Name() == want {
			return nil
		}
	}
	return fmt.Errorf("%w: branch %q not found in %s", ErrCloneFailed, branch, repoURL)
}

func (f *Fetcher) auth() transport.AuthMethod {
	if f.token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "devsecwatch", Password: f.token}
}

// DisplayName returns "owner/repo" for logs.
// Supports HTTPS (https://host/owner/repo.git) and SSH (git@host:owner/repo.git).
func DisplayName(repoURL string) string {
	u := strings.TrimSuffix(strings.TrimSuffix(repoURL, "/"), ".git")

	if strings.Contains(u, "://") {
		parts := strings.Split(u, "/")
		if len(parts) >= 2 {
			return parts[len(parts)-2] + "/" + parts[len(parts)-1]
		}
	}

	if idx := strings.Index(u, ":"); idx != -1 {
		path := u[idx+1:]
		if parts := strings.SplitN(path, "/", 2); len(parts) == 2 {
			return path
		}
	}

	return u
}
