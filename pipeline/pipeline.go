// Package pipeline drives documents from disk through extraction into the
// file sink and the relational sink.
//
// The two sinks are independent: a database outage never prevents the file
// artifacts from being written, and a file sink failure does not stop the
// database write.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/docharvest/docpipe"
	"github.com/hazyhaar/docharvest/filesink"
	"github.com/hazyhaar/docharvest/materialize"
	"github.com/hazyhaar/docharvest/sqlstore"
)

// Config wires a Pipeline.
type Config struct {
	Loader  *docpipe.Loader
	Files   *filesink.Store
	DB      *sqlstore.Store // nil disables the relational sink
	Workers int             // ProcessAll concurrency, default 4
	Logger  *slog.Logger
}

// Pipeline processes documents. It is safe for concurrent use.
type Pipeline struct {
	loader  *docpipe.Loader
	files   *filesink.Store
	db      *sqlstore.Store
	workers int
	logger  *slog.Logger

	mu    sync.Mutex
	names map[string]*nameLock
}

// nameLock is held by every in-flight document with one base name.
type nameLock struct {
	sync.Mutex
	refs int
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Loader == nil {
		cfg.Loader = docpipe.NewLoader(docpipe.Config{Logger: cfg.Logger})
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		loader:  cfg.Loader,
		files:   cfg.Files,
		db:      cfg.DB,
		workers: cfg.Workers,
		logger:  cfg.Logger,
		names:   make(map[string]*nameLock),
	}
}

// Loader returns the loader used for every document.
func (p *Pipeline) Loader() *docpipe.Loader { return p.loader }

// DB returns the relational store, or nil.
func (p *Pipeline) DB() *sqlstore.Store { return p.db }

// Result reports what happened to one document. LoadErr is fatal for the
// document; FileErr and DBErr are independent sink failures.
type Result struct {
	Path       string
	Name       string
	Format     docpipe.Format
	DocumentID string
	Files      []string
	Duration   time.Duration

	LoadErr error
	FileErr error
	DBErr   error
}

// OK reports whether every attempted step succeeded.
func (r *Result) OK() bool { return r.LoadErr == nil && r.FileErr == nil && r.DBErr == nil }

// Err joins all failures of the document.
func (r *Result) Err() error { return errors.Join(r.LoadErr, r.FileErr, r.DBErr) }

// MarshalJSON renders errors as strings.
func (r *Result) MarshalJSON() ([]byte, error) {
	errStr := func(err error) string {
		if err == nil {
			return ""
		}
		return err.Error()
	}
	return json.Marshal(struct {
		Path       string         `json:"path"`
		Name       string         `json:"name,omitempty"`
		Format     docpipe.Format `json:"format,omitempty"`
		DocumentID string         `json:"document_id,omitempty"`
		Files      []string       `json:"files,omitempty"`
		DurationMS int64          `json:"duration_ms"`
		Error      string         `json:"error,omitempty"`
		FileError  string         `json:"file_error,omitempty"`
		DBError    string         `json:"db_error,omitempty"`
	}{
		Path:       r.Path,
		Name:       r.Name,
		Format:     r.Format,
		DocumentID: r.DocumentID,
		Files:      r.Files,
		DurationMS: r.Duration.Milliseconds(),
		Error:      errStr(r.LoadErr),
		FileError:  errStr(r.FileErr),
		DBError:    errStr(r.DBErr),
	})
}

// lockName serializes documents that share a base name, since they share an
// output directory. The later document wins. The entry for a name is dropped
// once its last document unlocks.
func (p *Pipeline) lockName(name string) func() {
	p.mu.Lock()
	l, ok := p.names[name]
	if !ok {
		l = &nameLock{}
		p.names[name] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		p.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(p.names, name)
		}
		p.mu.Unlock()
	}
}

// lockedNames reports how many base names currently hold a lock entry.
func (p *Pipeline) lockedNames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.names)
}

// Process loads one document and runs both sinks over it.
func (p *Pipeline) Process(ctx context.Context, path string) *Result {
	start := time.Now()
	res := &Result{Path: path}
	defer func() { res.Duration = time.Since(start) }()
	log := p.logger.With("path", path)

	h, err := p.loader.LoadFile(path)
	if err != nil {
		res.LoadErr = err
		log.Error("load failed", "error", err)
		return res
	}
	res.Name = h.Name()
	res.Format = h.Format()
	log = log.With("document", res.Name, "format", res.Format)

	unlock := p.lockName(res.Name)
	defer unlock()

	var sink docpipe.ImageSink
	if p.files != nil {
		sink = materialize.New(p.files.ImageDir(res.Name))
	}
	eng := docpipe.NewEngine(h, sink, p.logger)
	defer eng.Close()

	if p.files != nil {
		rep, err := p.files.Persist(ctx, eng)
		if err != nil {
			res.FileErr = err
			log.Error("file sink failed", "error", err)
		}
		if rep != nil {
			res.Files = rep.Files
		}
	}

	if p.db != nil {
		id, err := p.db.Persist(ctx, eng)
		if err != nil {
			res.DBErr = err
			log.Error("database sink failed", "error", err)
		} else {
			res.DocumentID = id
		}
	}

	if res.OK() {
		log.Info("document processed", "document_id", res.DocumentID, "files", len(res.Files))
	}
	return res
}

// ProcessAll processes paths on a bounded worker pool. Results are in input
// order. A failing document never stops the others; the returned error is
// only set when ctx is cancelled.
func (p *Pipeline) ProcessAll(ctx context.Context, paths []string) ([]*Result, error) {
	results := make([]*Result, len(paths))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, path := range paths {
		if ctx.Err() != nil {
			results[i] = &Result{Path: path, LoadErr: ctx.Err()}
			continue
		}
		g.Go(func() error {
			results[i] = p.Process(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	p.logger.Info("batch done", "documents", len(paths), "failed", failed)
	return results, ctx.Err()
}
