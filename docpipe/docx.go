package docpipe

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hazyhaar/docharvest/materialize"
)

type docxBackend struct {
	pkg    *opcPackage
	logger *slog.Logger
}

func newDocxBackend(h *Handle, logger *slog.Logger) backend {
	var pkg *opcPackage
	if h.zip != nil {
		pkg = newOPCPackage(&h.zip.Reader, h.maxPartSize)
	}
	return &docxBackend{pkg: pkg, logger: logger}
}

func (b *docxBackend) mainPart() string {
	return b.pkg.mainPart("word/document.xml")
}

// body returns the w:body element, or nil when the main part is unusable.
func (b *docxBackend) body() *xnode {
	if b.pkg == nil {
		return nil
	}
	root, err := b.pkg.xml(b.mainPart())
	if err != nil {
		logUnit(b.logger, "document", 0, err)
		return nil
	}
	return root.child("body")
}

func (b *docxBackend) text(ctx context.Context) (string, error) {
	body := b.body()
	var paras []string
	for _, n := range body.all("p") {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		paras = append(paras, docxParagraphText(n))
	}
	return strings.TrimSpace(strings.Join(paras, "\n")), nil
}

// docxParagraphText concatenates the runs of a w:p, including runs nested
// in hyperlinks and smart tags.
func docxParagraphText(p *xnode) string {
	var sb strings.Builder
	p.walk(func(n *xnode) bool {
		switch n.name.Local {
		case "t":
			sb.WriteString(n.chardata())
		case "tab":
			sb.WriteByte('\t')
		case "br", "cr":
			sb.WriteByte('\n')
		case "pPr", "rPr", "tbl", "txbxContent", "instrText":
			return false
		}
		return true
	})
	return sb.String()
}

func (b *docxBackend) tables(ctx context.Context) ([]Table, error) {
	body := b.body()
	var out []Table
	for _, tbl := range body.all("tbl") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var t Table
		for _, tr := range tbl.all("tr") {
			var row []string
			for _, tc := range tr.all("tc") {
				var paras []string
				for _, p := range tc.all("p") {
					paras = append(paras, docxParagraphText(p))
				}
				row = append(row, strings.Join(paras, "\n"))
			}
			t = append(t, row)
		}
		out = append(out, t)
	}
	return out, nil
}

func (b *docxBackend) images(ctx context.Context) ([]rawImage, error) {
	if b.pkg == nil {
		return nil, nil
	}
	main := b.mainPart()
	rels, err := b.pkg.rels(main)
	if err != nil {
		logUnit(b.logger, "relationships", 0, err)
		return nil, nil
	}
	var out []rawImage
	for i, r := range rels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !r.hasType("image") || r.External {
			continue
		}
		data, err := b.pkg.read(resolvePart(main, r.Target))
		if err != nil {
			logUnit(b.logger, "image", i, err)
			continue
		}
		out = append(out, rawImage{data: data, unit: materialize.NoUnit})
	}
	return out, nil
}

func (b *docxBackend) metadata(_ context.Context) (Metadata, error) {
	if b.pkg == nil {
		return Metadata{}, nil
	}
	md, err := b.pkg.coreProperties()
	if err != nil {
		logUnit(b.logger, "core-properties", 0, err)
	}
	return md, nil
}

func (b *docxBackend) links(_ context.Context) ([]string, error) {
	if b.pkg == nil {
		return nil, nil
	}
	rels, err := b.pkg.rels(b.mainPart())
	if err != nil {
		logUnit(b.logger, "relationships", 0, err)
		return nil, nil
	}
	var out []string
	for _, r := range rels {
		if r.hasType("hyperlink") {
			out = append(out, r.Target)
		}
	}
	return out, nil
}
