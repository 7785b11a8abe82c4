package docpipe

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// opcPackage gives part-level access to an OOXML (OPC) zip container.
type opcPackage struct {
	files   map[string]*zip.File
	maxPart int64
}

func newOPCPackage(zr *zip.Reader, maxPart int64) *opcPackage {
	p := &opcPackage{files: make(map[string]*zip.File, len(zr.File)), maxPart: maxPart}
	for _, f := range zr.File {
		p.files[strings.TrimPrefix(f.Name, "/")] = f
	}
	return p
}

var errPartMissing = errors.New("part not found")

// read returns the bytes of one part, refusing parts above maxPart.
func (p *opcPackage) read(name string) ([]byte, error) {
	f, ok := p.files[strings.TrimPrefix(name, "/")]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, errPartMissing)
	}
	if int64(f.UncompressedSize64) > p.maxPart {
		return nil, fmt.Errorf("%s: part too large: %d bytes (max %d)", name, f.UncompressedSize64, p.maxPart)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, p.maxPart+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > p.maxPart {
		return nil, fmt.Errorf("%s: part too large (max %d)", name, p.maxPart)
	}
	return data, nil
}

// xml parses one part into an element tree.
func (p *opcPackage) xml(name string) (*xnode, error) {
	f, ok := p.files[strings.TrimPrefix(name, "/")]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, errPartMissing)
	}
	if int64(f.UncompressedSize64) > p.maxPart {
		return nil, fmt.Errorf("%s: part too large: %d bytes (max %d)", name, f.UncompressedSize64, p.maxPart)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	root, err := parseXML(io.LimitReader(rc, p.maxPart))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return root, nil
}

// relationship is one entry of a .rels part.
type relationship struct {
	ID       string
	Type     string
	Target   string
	External bool
}

func (r relationship) hasType(suffix string) bool {
	return strings.HasSuffix(r.Type, "/"+suffix)
}

// relsPartName returns the relationships part for a source part:
// word/document.xml → word/_rels/document.xml.rels, "" → _rels/.rels.
func relsPartName(source string) string {
	dir, file := path.Split(source)
	return dir + "_rels/" + file + ".rels"
}

// rels returns the relationships of a source part in file order. A missing
// .rels part is an empty list.
func (p *opcPackage) rels(source string) ([]relationship, error) {
	name := relsPartName(source)
	if _, ok := p.files[name]; !ok {
		return nil, nil
	}
	root, err := p.xml(name)
	if err != nil {
		return nil, err
	}
	var out []relationship
	for _, n := range root.all("Relationship") {
		out = append(out, relationship{
			ID:       n.attr("Id"),
			Type:     n.attr("Type"),
			Target:   n.attr("Target"),
			External: strings.EqualFold(n.attr("TargetMode"), "External"),
		})
	}
	return out, nil
}

// relsByID indexes relationships by their Id.
func relsByID(rels []relationship) map[string]relationship {
	m := make(map[string]relationship, len(rels))
	for _, r := range rels {
		m[r.ID] = r
	}
	return m
}

// resolvePart resolves an internal relationship target against its source part.
func resolvePart(source, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	return strings.TrimPrefix(path.Join(path.Dir(source), target), "/")
}

// mainPart finds the officeDocument target from the package root
// relationships, falling back to the conventional location.
func (p *opcPackage) mainPart(fallback string) string {
	rels, err := p.rels("")
	if err == nil {
		for _, r := range rels {
			if r.hasType("officeDocument") && !r.External {
				return resolvePart("", r.Target)
			}
		}
	}
	return fallback
}

// coreKeys maps docProps/core.xml element names to metadata keys.
var coreKeys = map[string]string{
	"title":          "title",
	"subject":        "subject",
	"creator":        "author",
	"keywords":       "keywords",
	"description":    "comments",
	"lastModifiedBy": "last_modified_by",
	"revision":       "revision",
	"created":        "created",
	"modified":       "modified",
	"category":       "category",
	"contentStatus":  "content_status",
	"language":       "language",
	"identifier":     "identifier",
	"version":        "version",
	"lastPrinted":    "last_printed",
}

// CorePropertyKeys returns the fixed metadata key set of DOCX and PPTX
// documents, sorted.
func CorePropertyKeys() []string {
	keys := make([]string, 0, len(coreKeys))
	for _, k := range coreKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// coreProperties reads the core properties part. Every key of the fixed set
// is present; missing properties are "".
func (p *opcPackage) coreProperties() (Metadata, error) {
	md := make(Metadata, len(coreKeys))
	for _, k := range coreKeys {
		md[k] = ""
	}

	name := "docProps/core.xml"
	if rels, err := p.rels(""); err == nil {
		for _, r := range rels {
			if r.hasType("core-properties") && !r.External {
				name = resolvePart("", r.Target)
			}
		}
	}
	if _, ok := p.files[name]; !ok {
		return md, nil
	}

	root, err := p.xml(name)
	if err != nil {
		return md, err
	}
	for _, c := range root.children {
		if key, ok := coreKeys[c.name.Local]; ok {
			md[key] = strings.TrimSpace(c.chardata())
		}
	}
	return md, nil
}
