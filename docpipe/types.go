package docpipe

import (
	"sort"
	"strings"
)

// Format identifies a document type. It is fixed when a document is loaded
// and never re-derived from content.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDocx Format = "docx"
	FormatPPTX Format = "pptx"
)

// SupportedFormats returns all supported format tags.
func SupportedFormats() []string {
	return []string{string(FormatPDF), string(FormatDocx), string(FormatPPTX)}
}

// Table is an ordered list of rows, each an ordered list of cell strings.
// Rows are not required to have equal length.
type Table [][]string

// Image is one embedded image found in a document.
type Image struct {
	Path string `json:"path,omitempty"` // materialized PNG, empty when no sink is attached
	Unit int    `json:"unit"`           // 0-based page/slide index, or -1
	Seq  int    `json:"seq"`            // 1-based, per document
	Data []byte `json:"-"`              // raw payload as found in the document
}

// Metadata is a flat string-to-string property map.
type Metadata map[string]string

// Keys returns the keys with a non-blank value, sorted.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// UniqueLinks drops blank links and repeats, keeping first-seen order.
func UniqueLinks(links []string) []string {
	seen := make(map[string]bool, len(links))
	var out []string
	for _, l := range links {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// Bundle gathers every artifact kind of one document.
type Bundle struct {
	Name     string   `json:"name"`
	Format   Format   `json:"format"`
	Text     string   `json:"text"`
	Tables   []Table  `json:"tables"`
	Images   []Image  `json:"images"`
	Metadata Metadata `json:"metadata"`
	Links    []string `json:"links"`
}
