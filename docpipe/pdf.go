package docpipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

type pdfBackend struct {
	ctx    *model.Context
	logger *slog.Logger
}

func newPDFBackend(h *Handle, logger *slog.Logger) backend {
	return &pdfBackend{ctx: h.pdf, logger: logger}
}

func (b *pdfBackend) pageCount() int {
	if b.ctx == nil {
		return 0
	}
	return b.ctx.PageCount
}

// pageContent returns the decoded content stream of one page (1-based).
func (b *pdfBackend) pageContent(pageNr int) ([]byte, error) {
	r, err := pdfcpu.ExtractPageContent(b.ctx, pageNr)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	return io.ReadAll(r)
}

// eachPage calls fn with the content of every page, in page order. Pages
// whose content cannot be read are logged and passed as nil.
func (b *pdfBackend) eachPage(ctx context.Context, fn func(pageNr int, content []byte)) error {
	for pageNr := 1; pageNr <= b.pageCount(); pageNr++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := b.pageContent(pageNr)
		if err != nil {
			logUnit(b.logger, "page", pageNr, err)
			data = nil
		}
		fn(pageNr, data)
	}
	return nil
}

func (b *pdfBackend) text(ctx context.Context) (string, error) {
	var pages []string
	err := b.eachPage(ctx, func(pageNr int, content []byte) {
		if isBlank(content) {
			pages = append(pages, "")
			return
		}
		text, err := pageText(content)
		if err != nil {
			logUnit(b.logger, "page", pageNr, err)
		}
		pages = append(pages, text)
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.Join(pages, "\n")), nil
}

func (b *pdfBackend) tables(ctx context.Context) ([]Table, error) {
	var out []Table
	err := b.eachPage(ctx, func(pageNr int, content []byte) {
		if isBlank(content) {
			return
		}
		tables, err := pageTables(content)
		if err != nil {
			logUnit(b.logger, "page", pageNr, err)
			return
		}
		out = append(out, tables...)
	})
	return out, err
}

func (b *pdfBackend) images(ctx context.Context) ([]rawImage, error) {
	var out []rawImage
	for pageNr := 1; pageNr <= b.pageCount(); pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		imgs, err := pdfcpu.ExtractPageImages(b.ctx, pageNr, false)
		if err != nil {
			logUnit(b.logger, "page images", pageNr, err)
			continue
		}
		objNrs := make([]int, 0, len(imgs))
		for nr := range imgs {
			objNrs = append(objNrs, nr)
		}
		sort.Ints(objNrs)
		for _, nr := range objNrs {
			img := imgs[nr]
			if img.Reader == nil {
				continue
			}
			data, err := io.ReadAll(img)
			if err != nil {
				logUnit(b.logger, "image", nr, err)
				continue
			}
			out = append(out, rawImage{data: data, unit: pageNr - 1})
		}
	}
	return out, nil
}

// metadata returns the document Info dictionary with keys stripped of the
// leading slash.
func (b *pdfBackend) metadata(_ context.Context) (Metadata, error) {
	md := Metadata{}
	if b.ctx == nil || b.ctx.Info == nil {
		return md, nil
	}
	info, err := b.ctx.DereferenceDict(*b.ctx.Info)
	if err != nil {
		logUnit(b.logger, "info", 0, err)
		return md, nil
	}
	for k, v := range info {
		s, err := b.objectString(v)
		if err != nil {
			logUnit(b.logger, "info "+k, 0, err)
			continue
		}
		md[strings.TrimPrefix(k, "/")] = s
	}
	return md, nil
}

// links returns the URI of every URI action annotation, page by page.
// Duplicates are kept.
func (b *pdfBackend) links(ctx context.Context) ([]string, error) {
	var out []string
	for pageNr := 1; pageNr <= b.pageCount(); pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		uris, err := b.pageURIs(pageNr)
		if err != nil {
			logUnit(b.logger, "page annotations", pageNr, err)
		}
		out = append(out, uris...)
	}
	return out, nil
}

func (b *pdfBackend) pageURIs(pageNr int) ([]string, error) {
	d, _, _, err := b.ctx.PageDict(pageNr, false)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	obj, found := d.Find("Annots")
	if !found || obj == nil {
		return nil, nil
	}
	annots, err := b.ctx.DereferenceArray(obj)
	if err != nil {
		return nil, err
	}

	var out []string
	var errs []error
	for _, a := range annots {
		annot, err := b.ctx.DereferenceDict(a)
		if err != nil || annot == nil {
			errs = append(errs, err)
			continue
		}
		actObj, found := annot.Find("A")
		if !found {
			continue
		}
		action, err := b.ctx.DereferenceDict(actObj)
		if err != nil || action == nil {
			errs = append(errs, err)
			continue
		}
		if s, ok := action.Find("S"); ok {
			if name, ok := s.(types.Name); ok && name.Value() != "URI" {
				continue
			}
		}
		uriObj, found := action.Find("URI")
		if !found {
			continue
		}
		uri, err := b.objectString(uriObj)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, uri)
	}
	return out, errors.Join(errs...)
}

// objectString renders a PDF object as text, decoding string literals.
func (b *pdfBackend) objectString(o types.Object) (string, error) {
	o, err := b.ctx.Dereference(o)
	if err != nil {
		return "", err
	}
	switch v := o.(type) {
	case nil:
		return "", nil
	case types.StringLiteral:
		return types.StringLiteralToString(v)
	case types.HexLiteral:
		return types.HexLiteralToString(v)
	case types.Name:
		return v.Value(), nil
	default:
		return fmt.Sprint(v), nil
	}
}
