package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/config"
	_ "github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	name: "sqlite",
	migrationsTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		filename    TEXT    NOT NULL UNIQUE,
		applied_at  TEXT    NOT NULL
	)`,
}

// NewSQLite opens (or creates) the SQLite database at cfg.Path. Foreign keys
// are enforced so vulnerabilities cascade with their scan job.
func NewSQLite(cfg config.DatabaseConfig) (DB, error) {
	path := cfg.Path
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, config.DefaultDBFile)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := "file:" + path + "?_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	// single writer: concurrent worker slots queue on the one connection
	return open("sqlite3", dsn, sqliteDialect, pool{maxOpen: 1})
}
