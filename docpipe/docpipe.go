// Package docpipe extracts normalized artifacts from structured documents.
//
// Supported formats:
//   - .pdf   PDF (pdfcpu: page content streams, image XObjects, annotations, Info)
//   - .docx  Microsoft Word (archive/zip → word/document.xml and its relationships)
//   - .pptx  Microsoft PowerPoint (archive/zip → ppt/slides/*.xml in presentation order)
//
// Every format yields the same five artifact kinds: text, tables, images,
// metadata and links. A document is loaded once into a Handle whose format
// tag never changes, then queried through an Engine:
//
//	loader := docpipe.NewLoader(docpipe.Config{})
//	h, err := loader.LoadFile("/path/to/report.pdf")
//	eng := docpipe.NewEngine(h, materialize.New("/out/report/images"), nil)
//	defer eng.Close()
//	text, err := eng.Text(ctx)
//
// Content problems never fail an operation: a page, paragraph or slide that
// cannot be parsed contributes nothing and is logged at debug level.
package docpipe

import (
	"archive/zip"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Loader opens documents into format-tagged Handles.
type Loader struct {
	cfg    Config
	logger *slog.Logger
}

// NewLoader creates a Loader with the given configuration.
func NewLoader(cfg Config) *Loader {
	cfg.defaults()
	return &Loader{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Detect returns the document format based on file extension.
func (l *Loader) Detect(path string) (Format, error) {
	return Detect(path)
}

// Detect returns the document format based on file extension.
func Detect(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDocx, nil
	case ".pptx":
		return FormatPPTX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// ParseFormat validates a declared format tag.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(s, "."))); f {
	case FormatPDF, FormatDocx, FormatPPTX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// LoadFile detects the format from the extension and loads the document.
func (l *Loader) LoadFile(path string) (*Handle, error) {
	format, err := Detect(path)
	if err != nil {
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, err
	}
	return l.Load(path, format)
}

// Load opens path as a document of the declared format.
func (l *Loader) Load(path string, format Format) (*Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrFileNotFound, path)
	}
	if info.Size() > l.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), l.cfg.MaxFileSize)
	}

	h := &Handle{
		format:      format,
		path:        path,
		name:        BaseName(path),
		maxPartSize: l.cfg.MaxPartSize,
	}

	switch format {
	case FormatPDF:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
		if err != nil {
			return nil, fmt.Errorf("%w: pdfcpu read %s: %v", ErrParse, path, err)
		}
		h.pdf = ctx
	case FormatDocx, FormatPPTX:
		zr, err := zip.OpenReader(path)
		if err != nil {
			return nil, fmt.Errorf("%w: open zip %s: %v", ErrParse, path, err)
		}
		h.zip = zr
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	l.logger.Debug("document loaded", "path", path, "format", format, "size", info.Size())
	return h, nil
}

// BaseName returns the file name of path without directory and extension.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Handle is an opened document. Its format tag is fixed at load time.
// A Handle is owned by the Engine built on it and must not be shared
// between goroutines.
type Handle struct {
	format      Format
	path        string
	name        string
	maxPartSize int64

	pdf *model.Context
	zip *zip.ReadCloser

	closeOnce sync.Once
	closeErr  error
}

// Format returns the format tag fixed at load time.
func (h *Handle) Format() Format { return h.format }

// Path returns the path the document was loaded from.
func (h *Handle) Path() string { return h.path }

// Name returns the document base name (file name without extension).
func (h *Handle) Name() string { return h.name }

// Close releases the underlying document resources.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		if h.zip != nil {
			h.closeErr = h.zip.Close()
		}
		h.pdf = nil
	})
	return h.closeErr
}
