package docpipe

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

type pptxBackend struct {
	pkg    *opcPackage
	logger *slog.Logger
}

func newPPTXBackend(h *Handle, logger *slog.Logger) backend {
	var pkg *opcPackage
	if h.zip != nil {
		pkg = newOPCPackage(&h.zip.Reader, h.maxPartSize)
	}
	return &pptxBackend{pkg: pkg, logger: logger}
}

// pptxSlide is one parsed slide with its relationships.
type pptxSlide struct {
	index int
	part  string
	tree  *xnode // p:spTree
	rels  map[string]relationship
}

// slideParts returns slide part names in presentation order
// (p:sldIdLst of presentation.xml). When the presentation part or its
// relationships are unusable, slides are taken from ppt/slides/slideN.xml
// in ascending N.
func (b *pptxBackend) slideParts() []string {
	if b.pkg == nil {
		return nil
	}
	pres := b.pkg.mainPart("ppt/presentation.xml")
	root, err := b.pkg.xml(pres)
	if err != nil {
		logUnit(b.logger, "presentation", 0, err)
		return b.slidePartsByName()
	}
	rels, err := b.pkg.rels(pres)
	if err != nil {
		logUnit(b.logger, "relationships", 0, err)
		return b.slidePartsByName()
	}
	byID := relsByID(rels)

	ids := root.path("sldIdLst").all("sldId")
	var parts []string
	for _, sld := range ids {
		r, ok := byID[sld.relAttr("id")]
		if !ok || r.External {
			continue
		}
		parts = append(parts, resolvePart(pres, r.Target))
	}
	if len(parts) == 0 && len(ids) > 0 {
		return b.slidePartsByName()
	}
	return parts
}

// slidePartsByName lists ppt/slides/slideN.xml ordered by N.
func (b *pptxBackend) slidePartsByName() []string {
	type numbered struct {
		n    int
		part string
	}
	var found []numbered
	for name := range b.pkg.files {
		rest, ok := strings.CutPrefix(name, "ppt/slides/slide")
		if !ok {
			continue
		}
		digits, ok := strings.CutSuffix(rest, ".xml")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(digits)
		if err != nil || n < 0 {
			continue
		}
		found = append(found, numbered{n, name})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	parts := make([]string, len(found))
	for i, f := range found {
		parts[i] = f.part
	}
	return parts
}

// slides parses every slide. A slide that fails to parse keeps its index
// with a nil tree so later slides keep their page numbers.
func (b *pptxBackend) slides(ctx context.Context) ([]pptxSlide, error) {
	parts := b.slideParts()
	out := make([]pptxSlide, 0, len(parts))
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := pptxSlide{index: i, part: part}
		root, err := b.pkg.xml(part)
		if err != nil {
			logUnit(b.logger, "slide", i, err)
			out = append(out, s)
			continue
		}
		s.tree = root.path("cSld", "spTree")
		rels, err := b.pkg.rels(part)
		if err != nil {
			logUnit(b.logger, "slide relationships", i, err)
		}
		s.rels = relsByID(rels)
		out = append(out, s)
	}
	return out, nil
}

// pptxTextBody returns the paragraphs of a txBody joined by newlines.
func pptxTextBody(txBody *xnode) string {
	var paras []string
	for _, p := range txBody.all("p") {
		var sb strings.Builder
		for _, c := range p.children {
			switch c.name.Local {
			case "r", "fld":
				sb.WriteString(c.child("t").chardata())
			case "br":
				sb.WriteByte('\n')
			}
		}
		paras = append(paras, sb.String())
	}
	return strings.Join(paras, "\n")
}

func (b *pptxBackend) text(ctx context.Context) (string, error) {
	slides, err := b.slides(ctx)
	if err != nil {
		return "", err
	}
	var units []string
	for _, s := range slides {
		var shapes []string
		for _, sp := range s.tree.all("sp") {
			tx := sp.child("txBody")
			if tx == nil {
				continue
			}
			shapes = append(shapes, pptxTextBody(tx))
		}
		units = append(units, strings.Join(shapes, "\n"))
	}
	return strings.TrimSpace(strings.Join(units, "\n")), nil
}

func (b *pptxBackend) tables(ctx context.Context) ([]Table, error) {
	slides, err := b.slides(ctx)
	if err != nil {
		return nil, err
	}
	var out []Table
	for _, s := range slides {
		for _, gf := range s.tree.all("graphicFrame") {
			tbl := gf.path("graphic", "graphicData", "tbl")
			if tbl == nil {
				continue
			}
			var t Table
			for _, tr := range tbl.all("tr") {
				var row []string
				for _, tc := range tr.all("tc") {
					row = append(row, pptxTextBody(tc.child("txBody")))
				}
				t = append(t, row)
			}
			out = append(out, t)
		}
	}
	return out, nil
}

func (b *pptxBackend) images(ctx context.Context) ([]rawImage, error) {
	slides, err := b.slides(ctx)
	if err != nil {
		return nil, err
	}
	var out []rawImage
	for _, s := range slides {
		for j, pic := range s.tree.all("pic") {
			id := pic.path("blipFill", "blip").relAttr("embed")
			r, ok := s.rels[id]
			if !ok || r.External {
				logUnit(b.logger, "picture", j, errPartMissing)
				continue
			}
			data, err := b.pkg.read(resolvePart(s.part, r.Target))
			if err != nil {
				logUnit(b.logger, "picture", j, err)
				continue
			}
			out = append(out, rawImage{data: data, unit: s.index})
		}
	}
	return out, nil
}

func (b *pptxBackend) metadata(_ context.Context) (Metadata, error) {
	if b.pkg == nil {
		return Metadata{}, nil
	}
	md, err := b.pkg.coreProperties()
	if err != nil {
		logUnit(b.logger, "core-properties", 0, err)
	}
	return md, nil
}

// links collects run-level click hyperlinks of text shapes. Each distinct
// target is reported once, in order of first appearance.
func (b *pptxBackend) links(ctx context.Context) ([]string, error) {
	slides, err := b.slides(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, s := range slides {
		for _, sp := range s.tree.all("sp") {
			sp.child("txBody").walk(func(n *xnode) bool {
				if !n.is("hlinkClick") {
					return true
				}
				r, ok := s.rels[n.relAttr("id")]
				if !ok || r.Target == "" {
					return false
				}
				if _, dup := seen[r.Target]; !dup {
					seen[r.Target] = struct{}{}
					out = append(out, r.Target)
				}
				return false
			})
		}
	}
	return out, nil
}
