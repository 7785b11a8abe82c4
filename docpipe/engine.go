package docpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/docharvest/materialize"
)

// Extractor is the capability set every format exposes.
type Extractor interface {
	Text(ctx context.Context) (string, error)
	Tables(ctx context.Context) ([]Table, error)
	Images(ctx context.Context) ([]Image, error)
	Metadata(ctx context.Context) (Metadata, error)
	Links(ctx context.Context) ([]string, error)
}

// Source is an Extractor bound to one named document. Sinks consume it.
type Source interface {
	Extractor
	Name() string
	Format() Format
}

// ImageSink materializes raw image payloads. *materialize.Materializer
// implements it.
type ImageSink interface {
	Materialize(data []byte, loc materialize.Locator) (string, error)
}

// rawImage is an image candidate as found by a backend, before
// materialization.
type rawImage struct {
	data []byte
	unit int
}

// backend is the per-format implementation behind an Engine. Backends only
// return errors for cancellation; content problems degrade to empty output.
type backend interface {
	text(ctx context.Context) (string, error)
	tables(ctx context.Context) ([]Table, error)
	images(ctx context.Context) ([]rawImage, error)
	metadata(ctx context.Context) (Metadata, error)
	links(ctx context.Context) ([]string, error)
}

// backends is the format dispatch table.
var backends = map[Format]func(*Handle, *slog.Logger) backend{
	FormatPDF:  newPDFBackend,
	FormatDocx: newDocxBackend,
	FormatPPTX: newPPTXBackend,
}

// Engine runs the five extraction operations over one Handle.
// Operations may be called any number of times and in any order; each call
// re-reads the document and returns equal results.
type Engine struct {
	h      *Handle
	be     backend
	sink   ImageSink
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewEngine builds an Engine over h. sink may be nil, in which case Images
// returns payloads without writing anything. A nil logger uses slog.Default().
func NewEngine(h *Handle, sink ImageSink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("document", h.name, "format", h.format)
	e := &Engine{h: h, sink: sink, logger: logger}
	if mk, ok := backends[h.format]; ok {
		e.be = mk(h, logger)
	}
	return e
}

// Name returns the document base name.
func (e *Engine) Name() string { return e.h.name }

// Format returns the document format tag.
func (e *Engine) Format() Format { return e.h.format }

// Close releases the Handle. Further operations fail with ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.h.Close()
}

func (e *Engine) ready(op string) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return &OpError{Op: op, Format: e.h.format, Err: ErrClosed}
	}
	if e.be == nil {
		return &OpError{Op: op, Format: e.h.format, Err: ErrUnsupportedFormat}
	}
	return nil
}

func (e *Engine) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Format: e.h.format, Err: err}
}

// Text returns the document text, newline-joined across pages, paragraphs
// or slides and trimmed. An empty string is a valid result.
func (e *Engine) Text(ctx context.Context) (string, error) {
	if err := e.ready("text"); err != nil {
		return "", err
	}
	s, err := e.be.text(ctx)
	return s, e.wrap("text", err)
}

// Tables returns every table in document order.
func (e *Engine) Tables(ctx context.Context) ([]Table, error) {
	if err := e.ready("tables"); err != nil {
		return nil, err
	}
	t, err := e.be.tables(ctx)
	return t, e.wrap("tables", err)
}

// Images returns every decodable image in document order. With a sink
// attached each image is materialized first; images the sink cannot decode
// are skipped and logged. Sequence numbers count every candidate, so a
// skipped image leaves a gap.
func (e *Engine) Images(ctx context.Context) ([]Image, error) {
	if err := e.ready("images"); err != nil {
		return nil, err
	}
	raws, err := e.be.images(ctx)
	if err != nil {
		return nil, e.wrap("images", err)
	}

	out := make([]Image, 0, len(raws))
	for i, raw := range raws {
		img := Image{Unit: raw.unit, Seq: i + 1, Data: raw.data}
		if e.sink != nil {
			path, err := e.sink.Materialize(raw.data, materialize.Locator{
				Base: e.h.name,
				Unit: raw.unit,
				Seq:  img.Seq,
			})
			if err != nil {
				if errors.Is(err, materialize.ErrImageDecode) {
					e.logger.Warn("image skipped", "seq", img.Seq, "unit", raw.unit, "error", err)
					continue
				}
				return out, e.wrap("images", fmt.Errorf("materialize image %d: %w", img.Seq, err))
			}
			img.Path = path
		}
		out = append(out, img)
	}
	return out, nil
}

// Metadata returns the document properties.
func (e *Engine) Metadata(ctx context.Context) (Metadata, error) {
	if err := e.ready("metadata"); err != nil {
		return nil, err
	}
	m, err := e.be.metadata(ctx)
	return m, e.wrap("metadata", err)
}

// Links returns hyperlink targets. PDF and DOCX keep duplicates in document
// order; PPTX returns each distinct target once.
func (e *Engine) Links(ctx context.Context) ([]string, error) {
	if err := e.ready("links"); err != nil {
		return nil, err
	}
	l, err := e.be.links(ctx)
	return l, e.wrap("links", err)
}

// Extract runs all five operations and gathers the results.
func (e *Engine) Extract(ctx context.Context) (*Bundle, error) {
	b := &Bundle{Name: e.h.name, Format: e.h.format}
	var err error
	if b.Text, err = e.Text(ctx); err != nil {
		return nil, err
	}
	if b.Tables, err = e.Tables(ctx); err != nil {
		return nil, err
	}
	if b.Images, err = e.Images(ctx); err != nil {
		return nil, err
	}
	if b.Metadata, err = e.Metadata(ctx); err != nil {
		return nil, err
	}
	if b.Links, err = e.Links(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// logUnit records a unit that contributed nothing because it failed to parse.
func logUnit(logger *slog.Logger, kind string, index int, err error) {
	logger.Debug("unit skipped", "unit_kind", kind, "index", index, "error", fmt.Errorf("%w: %v", ErrParse, err))
}
