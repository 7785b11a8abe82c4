package docpipe

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// --- OOXML test helpers ---

const (
	nsW    = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsR    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsA    = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsP    = "http://schemas.openxmlformats.org/presentationml/2006/main"
	nsPkg  = "http://schemas.openxmlformats.org/package/2006/relationships"
	relDoc = nsR + "/officeDocument"
	relImg = nsR + "/image"
	relURL = nsR + "/hyperlink"
	relSld = nsR + "/slide"
	relCP  = nsPkg + "/metadata/core-properties"
)

type fixtureRel struct {
	id, typ, target string
	external        bool
}

func relsXML(rels []fixtureRel) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<Relationships xmlns="` + nsPkg + `">`)
	for _, r := range rels {
		mode := ""
		if r.external {
			mode = ` TargetMode="External"`
		}
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="%s" Target="%s"%s/>`, r.id, r.typ, r.target, mode)
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

func coreXML(props map[string]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/">`)
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "<%s>%s</%s>", k, props[k], k)
	}
	b.WriteString(`</cp:coreProperties>`)
	return b.String()
}

// writeZip writes an OOXML package with the given parts.
func writeZip(t *testing.T, path string, parts map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(parts[name]); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

// docxFixture describes a minimal .docx package.
type docxFixture struct {
	body  string            // inner XML of w:body
	rels  []fixtureRel      // relationships of word/document.xml
	media map[string][]byte // extra parts, e.g. word/media/image1.png
	core  map[string]string // dc:title → value etc.
}

func writeDocx(t *testing.T, dir, name string, fx docxFixture) string {
	t.Helper()
	path := filepath.Join(dir, name)
	parts := map[string][]byte{
		"_rels/.rels": []byte(relsXML([]fixtureRel{
			{id: "rId1", typ: relDoc, target: "word/document.xml"},
			{id: "rId2", typ: relCP, target: "docProps/core.xml"},
		})),
		"word/document.xml": []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<w:document xmlns:w="` + nsW + `" xmlns:r="` + nsR + `"><w:body>` + fx.body + `</w:body></w:document>`),
	}
	if fx.rels != nil {
		parts["word/_rels/document.xml.rels"] = []byte(relsXML(fx.rels))
	}
	if fx.core != nil {
		parts["docProps/core.xml"] = []byte(coreXML(fx.core))
	}
	for k, v := range fx.media {
		parts[k] = v
	}
	writeZip(t, path, parts)
	return path
}

func wPara(text string) string {
	return `<w:p><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`
}

func wTable(rows [][]string) string {
	var b strings.Builder
	b.WriteString(`<w:tbl><w:tblPr/>`)
	for _, row := range rows {
		b.WriteString(`<w:tr>`)
		for _, cell := range row {
			b.WriteString(`<w:tc><w:tcPr/>` + wPara(cell) + `</w:tc>`)
		}
		b.WriteString(`</w:tr>`)
	}
	b.WriteString(`</w:tbl>`)
	return b.String()
}

// pptxSlideFixture is one slide: shapes is the inner XML of p:spTree.
type pptxSlideFixture struct {
	shapes string
	rels   []fixtureRel
}

type pptxFixture struct {
	slides []pptxSlideFixture
	media  map[string][]byte
	core   map[string]string

	noPresentation bool // omit presentation.xml and its relationships
}

func writePPTX(t *testing.T, dir, name string, fx pptxFixture) string {
	t.Helper()
	path := filepath.Join(dir, name)

	var presRels []fixtureRel
	var sldIDs strings.Builder
	parts := map[string][]byte{
		"_rels/.rels": []byte(relsXML([]fixtureRel{
			{id: "rId1", typ: relDoc, target: "ppt/presentation.xml"},
			{id: "rId2", typ: relCP, target: "docProps/core.xml"},
		})),
	}
	for i, s := range fx.slides {
		rid := fmt.Sprintf("rId%d", i+10)
		presRels = append(presRels, fixtureRel{id: rid, typ: relSld, target: fmt.Sprintf("slides/slide%d.xml", i+1)})
		fmt.Fprintf(&sldIDs, `<p:sldId id="%d" r:id="%s"/>`, 256+i, rid)

		parts[fmt.Sprintf("ppt/slides/slide%d.xml", i+1)] = []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<p:sld xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `"><p:cSld><p:spTree>` +
			`<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>` +
			s.shapes + `</p:spTree></p:cSld></p:sld>`)
		if s.rels != nil {
			parts[fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", i+1)] = []byte(relsXML(s.rels))
		}
	}
	parts["ppt/presentation.xml"] = []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<p:presentation xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `">` +
		`<p:sldIdLst>` + sldIDs.String() + `</p:sldIdLst></p:presentation>`)
	parts["ppt/_rels/presentation.xml.rels"] = []byte(relsXML(presRels))
	if fx.noPresentation {
		delete(parts, "ppt/presentation.xml")
		delete(parts, "ppt/_rels/presentation.xml.rels")
	}
	if fx.core != nil {
		parts["docProps/core.xml"] = []byte(coreXML(fx.core))
	}
	for k, v := range fx.media {
		parts[k] = v
	}
	writeZip(t, path, parts)
	return path
}

// pTextShape is a text box with one paragraph per entry. An entry of the
// form "text|rId" carries a click hyperlink with that relationship id.
func pTextShape(paras ...string) string {
	var b strings.Builder
	b.WriteString(`<p:sp><p:nvSpPr><p:cNvPr id="2" name="Text"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr><p:spPr/><p:txBody><a:bodyPr/>`)
	for _, p := range paras {
		text, rid, _ := strings.Cut(p, "|")
		b.WriteString(`<a:p><a:r><a:rPr lang="en-US">`)
		if rid != "" {
			b.WriteString(`<a:hlinkClick r:id="` + rid + `"/>`)
		}
		b.WriteString(`</a:rPr><a:t>` + text + `</a:t></a:r></a:p>`)
	}
	b.WriteString(`</p:txBody></p:sp>`)
	return b.String()
}

func pTable(rows [][]string) string {
	var b strings.Builder
	b.WriteString(`<p:graphicFrame><p:nvGraphicFramePr><p:cNvPr id="4" name="Table"/><p:cNvGraphicFramePr/><p:nvPr/></p:nvGraphicFramePr><p:xfrm/>`)
	b.WriteString(`<a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/table"><a:tbl><a:tblGrid/>`)
	for _, row := range rows {
		b.WriteString(`<a:tr h="370840">`)
		for _, cell := range row {
			b.WriteString(`<a:tc><a:txBody><a:bodyPr/><a:p><a:r><a:t>` + cell + `</a:t></a:r></a:p></a:txBody><a:tcPr/></a:tc>`)
		}
		b.WriteString(`</a:tr>`)
	}
	b.WriteString(`</a:tbl></a:graphicData></a:graphic></p:graphicFrame>`)
	return b.String()
}

func pPicture(rid string) string {
	return `<p:pic><p:nvPicPr><p:cNvPr id="5" name="Picture"/><p:cNvPicPr/><p:nvPr/></p:nvPicPr>` +
		`<p:blipFill><a:blip r:embed="` + rid + `"/><a:stretch><a:fillRect/></a:stretch></p:blipFill><p:spPr/></p:pic>`
}

// --- image helpers ---

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{uint8(40 * x), uint8(40 * y), 120, 255})
		}
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(3, 2)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(8, 8), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// --- PDF test helpers ---

// pdfPage describes one page: a content stream, URI link annotations and
// an optional JPEG drawn as image XObject /Im1.
type pdfPage struct {
	content string
	uris    []string
	jpeg    []byte
}

// buildPDF creates a valid PDF with proper xref offsets. info, when not
// empty, is the body of the document Info dictionary.
func buildPDF(pages []pdfPage, info string) []byte {
	// Object layout: 1 catalog, 2 pages, 3 font, then per-page objects.
	objs := []string{"", "", "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"}
	add := func(body string) int {
		objs = append(objs, body)
		return len(objs)
	}
	stream := func(dict, data string) string {
		return "<< " + dict + " /Length " + pdfItoa(len(data)) + " >>\nstream\n" + data + "\nendstream"
	}

	var kids []string
	for _, p := range pages {
		contentNr := add(stream("", p.content))
		res := "/Font << /F1 3 0 R >>"
		if p.jpeg != nil {
			imgNr := add(stream("/Type /XObject /Subtype /Image /Width 8 /Height 8 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode", string(p.jpeg)))
			res += " /XObject << /Im1 " + pdfItoa(imgNr) + " 0 R >>"
		}
		annots := ""
		if len(p.uris) > 0 {
			var refs []string
			for i, u := range p.uris {
				y := 700 - 20*i
				nr := add("<< /Type /Annot /Subtype /Link /Rect [72 " + pdfItoa(y) + " 200 " + pdfItoa(y+12) + "] /Border [0 0 0] /A << /Type /Action /S /URI /URI (" + u + ") >> >>")
				refs = append(refs, pdfItoa(nr)+" 0 R")
			}
			annots = " /Annots [" + strings.Join(refs, " ") + "]"
		}
		pageNr := add("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents " + pdfItoa(contentNr) + " 0 R /Resources << " + res + " >>" + annots + " >>")
		kids = append(kids, pdfItoa(pageNr)+" 0 R")
	}
	objs[0] = "<< /Type /Catalog /Pages 2 0 R >>"
	objs[1] = "<< /Type /Pages /Kids [" + strings.Join(kids, " ") + "] /Count " + pdfItoa(len(pages)) + " >>"
	infoNr := 0
	if info != "" {
		infoNr = add("<< " + info + " >>")
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs)+1)
	for i, body := range objs {
		offsets[i+1] = b.Len()
		b.WriteString(pdfItoa(i+1) + " 0 obj\n" + body + "\nendobj\n")
	}

	xrefOffset := b.Len()
	b.WriteString("xref\n0 " + pdfItoa(len(objs)+1) + "\n")
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objs); i++ {
		b.WriteString(pdfPadOffset(offsets[i]))
		b.WriteString(" 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size " + pdfItoa(len(objs)+1) + " /Root 1 0 R")
	if infoNr > 0 {
		b.WriteString(" /Info " + pdfItoa(infoNr) + " 0 R")
	}
	b.WriteString(" >>\nstartxref\n")
	b.WriteString(pdfItoa(xrefOffset))
	b.WriteString("\n%%EOF\n")
	return []byte(b.String())
}

// textContent renders lines of text, one Tj per line, 20 points apart.
func textContent(lines ...string) string {
	var b strings.Builder
	b.WriteString("BT\n/F1 12 Tf\n")
	for i, l := range lines {
		y := 720 - 20*i
		b.WriteString("1 0 0 1 72 " + pdfItoa(y) + " Tm\n(" + pdfEscape(l) + ") Tj\n")
	}
	b.WriteString("ET")
	return b.String()
}

// tableContent renders rows of cells at fixed column positions.
func tableContent(top int, rows [][]string) string {
	var b strings.Builder
	b.WriteString("BT\n/F1 10 Tf\n")
	for i, row := range rows {
		y := top - 16*i
		for j, cell := range row {
			x := 72 + 150*j
			b.WriteString("1 0 0 1 " + pdfItoa(x) + " " + pdfItoa(y) + " Tm\n(" + pdfEscape(cell) + ") Tj\n")
		}
	}
	b.WriteString("ET")
	return b.String()
}

func pdfEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "(", `\(`)
	return strings.ReplaceAll(s, ")", `\)`)
}

func writePDF(t *testing.T, dir, name string, pages []pdfPage, info string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buildPDF(pages, info), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func pdfItoa(n int) string {
	return fmt.Sprint(n)
}

func pdfPadOffset(n int) string {
	return fmt.Sprintf("%010d", n)
}
