package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/config"
)

// Querier is the statement surface shared by a connection and a transaction.
type Querier interface {
	// Select executes a query and scans rows into dest (slice pointer).
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Get executes a query expected to return a single row and scans into dest.
	// Returns sql.ErrNoRows when nothing matched.
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// Exec executes a statement that returns no rows and reports rows affected.
	Exec(ctx context.Context, query string, args ...interface{}) (int64, error)

	// Insert inserts a struct-tagged record into table and returns the new row ID.
	Insert(ctx context.Context, table string, record interface{}) (int64, error)

	// Update updates rows matching the where clause with values from record.
	Update(ctx context.Context, table string, record interface{}, where string, args ...interface{}) error
}

// DB is the storage interface used by the worker.
// Implementations exist for SQLite (default), MySQL and PostgreSQL; they
// share one querier and differ in driver, placeholder style and migrations.
type DB interface {
	Querier

	// InTx runs fn inside a single transaction. It commits when fn returns
	// nil and rolls back on error or panic.
	InTx(ctx context.Context, fn func(q Querier) error) error

	// Migrate applies pending schema migrations in order.
	Migrate(ctx context.Context) error

	// Ping verifies the database connection is alive.
	Ping(ctx context.Context) error

	// Close releases the database connection.
	Close() error

	// Driver returns the backend name: "sqlite", "mysql" or "postgres".
	Driver() string
}

// New returns a DB implementation matching cfg.Driver.
// SQLite is the default when driver is empty.
func New(cfg config.DatabaseConfig) (DB, error) {
	switch cfg.Driver {
	case "mysql":
		return NewMySQL(cfg)
	case "postgres", "postgresql":
		return NewPostgres(cfg)
	case "sqlite", "sqlite3", "":
		return NewSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q (supported: sqlite, mysql, postgres)", cfg.Driver)
	}
}

type pool struct {
	maxOpen     int
	maxLifetime time.Duration
}

func poolFrom(cfg config.DatabaseConfig) pool {
	p := pool{maxOpen: cfg.MaxOpenConns, maxLifetime: cfg.ConnMaxLifetime}
	if p.maxOpen < 1 {
		p.maxOpen = 10
	}
	return p
}

// open connects with driverName, sizes the pool and pings once so a bad DSN
// fails at startup rather than on the first job.
func open(driverName, dsn string, d dialect, p pool) (DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", d.name, err)
	}
	db.SetMaxOpenConns(p.maxOpen)
	db.SetMaxIdleConns(min(p.maxOpen, 5))
	if p.maxLifetime > 0 {
		db.SetConnMaxLifetime(p.maxLifetime)
	}

	s := newSQLDB(db, d)
	if err := s.Ping(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s: %w", d.name, err)
	}
	return s, nil
}
