// Package dbopen opens the relational backends used by docharvest.
//
// SQLite connections get their pragmas through the DSN so that every
// connection in the pool carries them, not only the first one:
//
//	foreign_keys = ON
//	journal_mode = WAL
//	busy_timeout = 10000
//	synchronous  = NORMAL
//	_txlock      = immediate
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("docs.db")
//
// MySQL (the DSN is passed through untouched):
//
//	import _ "github.com/go-sql-driver/mysql"
//	db, err := dbopen.Open(dsn, dbopen.WithDriver("mysql"))
//
// In tests:
//
//	db := dbopen.OpenMemory(t)
package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Driver names understood by Open.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

type config struct {
	driver      string
	busyTimeout int
	synchronous string
	foreignKeys bool
	mkdirAll    bool
	schemas     []string
	ping        bool
	pingTimeout time.Duration
}

func defaults() config {
	return config{
		driver:      DriverSQLite,
		busyTimeout: 10_000,
		synchronous: "NORMAL",
		foreignKeys: true,
		ping:        true,
		pingTimeout: 5 * time.Second,
	}
}

// Option customises Open behaviour.
type Option func(*config)

// WithDriver sets the database/sql driver name. Default: "sqlite".
func WithDriver(name string) Option { return func(c *config) { c.driver = name } }

// WithBusyTimeout sets the SQLite busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithSynchronous sets the SQLite synchronous mode. Default: "NORMAL".
func WithSynchronous(mode string) Option { return func(c *config) { c.synchronous = mode } }

// WithMkdirAll creates parent directories of the database path before opening.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues inline SQL to execute once the connection is verified.
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

// WithoutPing skips the connectivity check after opening.
func WithoutPing() Option { return func(c *config) { c.ping = false } }

// WithoutForeignKeys disables SQLite foreign key enforcement (rarely needed).
func WithoutForeignKeys() Option { return func(c *config) { c.foreignKeys = false } }

// Open opens a database for the configured driver. For SQLite, dsn is a file
// path (or ":memory:") and the pragmas are appended as DSN parameters. For any
// other driver dsn is handed to sql.Open as is.
func Open(dsn string, opts ...Option) (*sql.DB, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.driver == DriverSQLite {
		if cfg.mkdirAll && !isMemory(dsn) {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("dbopen: mkdir: %w", err)
			}
		}
		dsn = SQLiteDSN(dsn, opts...)
	}

	db, err := sql.Open(cfg.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}

	if cfg.ping {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.pingTimeout)
		err := db.PingContext(ctx)
		cancel()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: ping: %w", err)
		}
	}

	for _, s := range cfg.schemas {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: exec schema: %w", err)
		}
	}

	return db, nil
}

// SQLiteDSN appends the connection pragmas to an SQLite path. Parameters
// already present on path are kept.
func SQLiteDSN(path string, opts ...Option) string {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}

	fk := 1
	if !cfg.foreignKeys {
		fk = 0
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.busyTimeout))
	q.Add("_pragma", fmt.Sprintf("foreign_keys(%d)", fk))
	if !isMemory(path) {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	q.Add("_pragma", fmt.Sprintf("synchronous(%s)", cfg.synchronous))
	q.Set("_txlock", "immediate")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// OpenMemory opens an in-memory SQLite database for testing.
// It sets MaxOpenConns(1) so every query hits the same database (each
// connection to ":memory:" is a separate database) and closes it on cleanup.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, ":memory:?") || strings.Contains(path, "mode=memory")
}
