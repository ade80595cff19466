package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "scans", cfg.Queue.ScanQueue)
	assert.Equal(t, 60*time.Second, cfg.Workspace.CloneTimeout)
	assert.Equal(t, 180*time.Second, cfg.Analyzer.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Enrichment.CacheTTL)
	assert.Equal(t, "explanation_v3", cfg.Enrichment.CachePrefix)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Equal(t, os.TempDir(), cfg.Workspace.Root)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("DEVSECWATCH_AI_SERVICE_URL", "http://ai:8000")
	t.Setenv("DEVSECWATCH_ANALYZER_TIMEOUT", "90s")

	path := filepath.Join(home, "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"worker": {"concurrency": 9},
		"analyzer": {"engine": " OpenGrep "},
		"database": {"path": "~/data/scan.db"}
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://ai:8000", cfg.AI.ServiceURL)
	assert.Equal(t, 90*time.Second, cfg.Analyzer.Timeout)
	assert.Equal(t, 3, cfg.Worker.Concurrency, "concurrency is clamped")
	assert.Equal(t, "opengrep", cfg.Analyzer.Engine)
	assert.Equal(t, filepath.Join(home, "data/scan.db"), cfg.Database.Path)
}

func TestLoadMalformedFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	cfg.Redis.Addr = "redis:6380"
	require.NoError(t, Save(cfg, path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis:6380", reloaded.Redis.Addr)
}

func TestRedacted(t *testing.T) {
	cfg := Config{}
	cfg.Database.DSN = "postgres://u:secret@db/scans"
	cfg.Workspace.GitToken = "ghp_x"
	cfg.Redis.Addr = "redis:6379"

	out := cfg.Redacted()
	assert.Equal(t, "***", out.Database.DSN)
	assert.Equal(t, "***", out.Workspace.GitToken)
	assert.Empty(t, out.Redis.Password)
	assert.Equal(t, "redis:6379", out.Redis.Addr)
	assert.Equal(t, "ghp_x", cfg.Workspace.GitToken, "original untouched")
}
