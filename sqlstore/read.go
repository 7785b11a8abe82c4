package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/docharvest/docpipe"
)

// DocumentRow is one row of the documents table.
type DocumentRow struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Format    docpipe.Format `json:"format"`
	Timestamp string         `json:"timestamp"`
}

// Document is a stored document with its artifacts decoded.
type Document struct {
	DocumentRow
	Text     string           `json:"text"`
	Tables   []docpipe.Table  `json:"tables"`
	Images   []string         `json:"images"`
	Metadata docpipe.Metadata `json:"metadata"`
	Links    []string         `json:"links"`
}

// Get loads one document. Unknown ids fail with ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	db, err := s.session()
	if err != nil {
		return nil, err
	}

	d := &Document{Metadata: docpipe.Metadata{}}
	err = db.QueryRowContext(ctx,
		`SELECT id, name, format, timestamp FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &d.Format, &d.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	texts, err := queryStrings(ctx, db, `SELECT text FROM texts WHERE document_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("get texts: %w", err)
	}
	if len(texts) > 0 {
		d.Text = texts[0]
	}

	tables, err := queryStrings(ctx, db, "SELECT table_data FROM `tables` WHERE document_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("get tables: %w", err)
	}
	for _, t := range tables {
		d.Tables = append(d.Tables, ParseTable(t))
	}

	if d.Images, err = queryStrings(ctx, db, `SELECT image_path FROM images WHERE document_id = ? ORDER BY id`, id); err != nil {
		return nil, fmt.Errorf("get images: %w", err)
	}
	if d.Links, err = queryStrings(ctx, db, `SELECT link FROM links WHERE document_id = ? ORDER BY id`, id); err != nil {
		return nil, fmt.Errorf("get links: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT `key`, value FROM metadata WHERE document_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		d.Metadata[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	return d, nil
}

// List returns up to limit documents, newest first. limit <= 0 means 50.
func (s *Store) List(ctx context.Context, limit int) ([]DocumentRow, error) {
	db, err := s.session()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, format, timestamp FROM documents ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var r DocumentRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Format, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of rows in each of the six tables.
func (s *Store) Count(ctx context.Context) (map[string]int, error) {
	db, err := s.session()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(childTables)+1)
	for _, table := range append([]string{"documents"}, childTables...) {
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[trimQuotes(table)] = n
	}
	return out, nil
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '`' && s[len(s)-1] == '`' {
		return s[1 : len(s)-1]
	}
	return s
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
