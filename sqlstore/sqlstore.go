// Package sqlstore persists extracted documents into a relational database.
//
// One Persist call writes a document row plus its text, tables, image paths,
// metadata and links inside a single transaction. Any failure rolls the
// whole document back.
//
// SQLite (modernc.org/sqlite) is the default backend; MySQL is supported
// through github.com/go-sql-driver/mysql with the same statements.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/docharvest/dbopen"
	"github.com/hazyhaar/docharvest/docpipe"
	"github.com/hazyhaar/docharvest/idgen"
)

var (
	ErrNotConnected   = errors.New("sqlstore: not connected")
	ErrSchemaNotReady = errors.New("sqlstore: schema not created")
	ErrConnection     = errors.New("sqlstore: connection failed")
	ErrTransaction    = errors.New("sqlstore: transaction failed")
	ErrNotFound       = errors.New("sqlstore: document not found")
)

// State is the lifecycle position of a Store.
type State int

const (
	Disconnected State = iota
	Connected
	SchemaReady
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case SchemaReady:
		return "schema_ready"
	default:
		return "disconnected"
	}
}

// DocumentIDPrefix prefixes every generated document id.
const DocumentIDPrefix = "doc_"

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithIDGenerator replaces the document id generator.
func WithIDGenerator(g idgen.Generator) Option { return func(s *Store) { s.newID = g } }

// WithClock replaces time.Now for document timestamps.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Store is an explicit database session. It is safe for concurrent use once
// the schema is ready.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	driver string
	state  State

	newID  idgen.Generator
	now    func() time.Time
	logger *slog.Logger
}

func newStore(db *sql.DB, driver string, opts []Option) *Store {
	s := &Store{
		db:     db,
		driver: driver,
		state:  Connected,
		newID:  idgen.Prefixed(DocumentIDPrefix, idgen.Default),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open connects to the database. driver is dbopen.DriverSQLite (dsn is a
// file path) or dbopen.DriverMySQL (dsn is a MySQL DSN).
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	switch driver {
	case dbopen.DriverSQLite, dbopen.DriverMySQL:
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrConnection, driver)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	db, err := dbopen.Open(dsn, dbopen.WithDriver(driver), dbopen.WithMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	s := newStore(db, driver, opts)
	s.logger.Info("database connected", "driver", driver)
	return s, nil
}

// New wraps an already opened database. The Store takes ownership of db.
func New(db *sql.DB, driver string, opts ...Option) *Store {
	return newStore(db, driver, opts)
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// DB returns the underlying *sql.DB, or nil once closed.
func (s *Store) DB() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Close releases the connection pool. Later calls fail with ErrNotConnected.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Disconnected {
		return nil
	}
	s.state = Disconnected
	db := s.db
	s.db = nil
	return db.Close()
}

// CreateSchema creates the six tables if they do not exist. Statements are
// retried on SQLite lock contention.
func (s *Store) CreateSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Disconnected {
		return ErrNotConnected
	}
	ddl := sqliteSchema
	if s.driver == dbopen.DriverMySQL {
		ddl = mysqlSchema
	}
	for _, stmt := range ddl {
		if _, err := dbopen.Exec(ctx, s.db, stmt); err != nil {
			return fmt.Errorf("%w: create schema: %w", ErrConnection, err)
		}
	}
	s.state = SchemaReady
	return nil
}

// session returns the pool if the schema is ready.
func (s *Store) session() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case Disconnected:
		return nil, ErrNotConnected
	case Connected:
		return nil, ErrSchemaNotReady
	}
	return s.db, nil
}

// record is everything Persist writes for one document.
type record struct {
	name     string
	format   docpipe.Format
	text     string
	tables   []docpipe.Table
	images   []string
	metadata docpipe.Metadata
	links    []string
}

func collect(ctx context.Context, src docpipe.Source) (*record, error) {
	rec := &record{name: src.Name(), format: src.Format()}
	var err error
	if rec.text, err = src.Text(ctx); err != nil {
		return nil, err
	}
	if rec.tables, err = src.Tables(ctx); err != nil {
		return nil, err
	}
	images, err := src.Images(ctx)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		if img.Path != "" {
			rec.images = append(rec.images, img.Path)
		}
	}
	if rec.metadata, err = src.Metadata(ctx); err != nil {
		return nil, err
	}
	links, err := src.Links(ctx)
	if err != nil {
		return nil, err
	}
	rec.links = docpipe.UniqueLinks(links)
	return rec, nil
}

// Persist extracts every artifact kind from src and stores it. It returns
// the generated document id. On failure nothing from this call remains in
// the database and the error wraps ErrTransaction, the failed step and the
// cause.
func (s *Store) Persist(ctx context.Context, src docpipe.Source) (string, error) {
	db, err := s.session()
	if err != nil {
		return "", err
	}
	rec, err := collect(ctx, src)
	if err != nil {
		return "", err
	}

	id := s.newID()
	ts := s.now().UTC().Format(time.RFC3339)
	log := s.logger.With("document", rec.name, "document_id", id)

	err = dbopen.Tx(ctx, db, func(tx *sql.Tx) error {
		return insertRecord(ctx, tx, id, ts, rec)
	})
	if err != nil {
		if !errors.Is(err, ErrTransaction) {
			err = fmt.Errorf("%w: %w", ErrConnection, err)
		}
		log.Error("document rolled back", "error", err)
		return "", err
	}
	log.Info("document stored",
		"tables", len(rec.tables),
		"images", len(rec.images),
		"links", len(rec.links),
	)
	return id, nil
}

func stepErr(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransaction, step, err)
}

func insertRecord(ctx context.Context, tx *sql.Tx, id, ts string, rec *record) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, name, format, timestamp) VALUES (?, ?, ?, ?)`,
		id, rec.name, string(rec.format), ts,
	); err != nil {
		return stepErr("insert document", err)
	}

	if strings.TrimSpace(rec.text) != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO texts (document_id, text) VALUES (?, ?)`, id, rec.text,
		); err != nil {
			return stepErr("insert text", err)
		}
	}

	for i, t := range rec.tables {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO `tables` (document_id, table_data) VALUES (?, ?)", id, SerializeTable(t),
		); err != nil {
			return stepErr(fmt.Sprintf("insert table %d", i+1), err)
		}
	}

	for _, p := range rec.images {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO images (document_id, image_path) VALUES (?, ?)`, id, p,
		); err != nil {
			return stepErr("insert image", err)
		}
	}

	for _, k := range rec.metadata.Keys() {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO metadata (document_id, `key`, value) VALUES (?, ?, ?)", id, k, rec.metadata[k],
		); err != nil {
			return stepErr("insert metadata", err)
		}
	}

	for _, l := range rec.links {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO links (document_id, link) VALUES (?, ?)`, id, l,
		); err != nil {
			return stepErr("insert link", err)
		}
	}
	return nil
}

var cellFolder = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

// SerializeTable encodes a table as tab-separated cells and newline-separated
// rows. Tabs and newlines inside cells become spaces. A row with no cells and
// a row holding one empty cell both encode as an empty line, and ParseTable
// reads that back as one empty cell; a table whose only row is empty
// encodes as "" and reads back with no rows.
func SerializeTable(t docpipe.Table) string {
	var b strings.Builder
	for i, row := range t {
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, cell := range row {
			if j > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(cellFolder.Replace(cell))
		}
	}
	return b.String()
}

// ParseTable reverses SerializeTable, up to the folding described there.
func ParseTable(s string) docpipe.Table {
	if s == "" {
		return docpipe.Table{}
	}
	lines := strings.Split(s, "\n")
	t := make(docpipe.Table, len(lines))
	for i, l := range lines {
		t[i] = strings.Split(l, "\t")
	}
	return t
}
