package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneUnreachableRepository(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	root := t.TempDir()
	f := NewFetcher(root, 5*time.Second, "")

	ws, err := f.Clone(context.Background(), srv.URL+"/acme/missing.git", "main", 42)
	require.Error(t, err)
	assert.Nil(t, ws)
	assert.ErrorIs(t, err, ErrCloneFailed)
	assert.NotErrorIs(t, err, ErrCloneTimeout)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed clone must not leave a workspace behind")
}

func TestCloneTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	root := t.TempDir()
	f := NewFetcher(root, 100*time.Millisecond, "")

	_, err := f.Clone(context.Background(), srv.URL+"/acme/slow.git", "main", 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCloneTimeout)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCloneCancelledIsNotInputFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := t.TempDir()
	f := NewFetcher(root, 5*time.Second, "")

	_, err := f.Clone(ctx, srv.URL+"/acme/app.git", "main", 9)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrCloneFailed)
	assert.NotErrorIs(t, err, ErrCloneTimeout)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProbeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewFetcher(t.TempDir(), 5*time.Second, "")
	err := f.Probe(context.Background(), srv.URL+"/acme/missing.git", "main")
	assert.ErrorIs(t, err, ErrCloneFailed)
}

func TestCleanupIsIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scan-1-x")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.go"), []byte("package a"), 0o644))

	f := NewFetcher("", 0, "")
	f.Cleanup(dir)
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	assert.NotPanics(t, func() { f.Cleanup(dir) })
	assert.NotPanics(t, func() { f.Cleanup("") })
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"https://github.com/acme/widget.git": "acme/widget",
		"https://github.com/acme/widget/":    "acme/widget",
		"git@github.com:acme/widget.git":     "acme/widget",
		"widget":                             "widget",
	}
	for in, want := range tests {
		assert.Equal(t, want, DisplayName(in), in)
	}
}
