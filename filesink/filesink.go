// Package filesink writes extracted document artifacts into a per-document
// directory tree:
//
//	{root}/{name}/extracted_text.txt
//	{root}/{name}/tables/table_{n}.csv
//	{root}/{name}/images/...
//	{root}/{name}/metadata.txt
//	{root}/{name}/extracted_links.txt
//
// Images are materialized by the source's sink; the store only triggers
// that and records the resulting paths.
package filesink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hazyhaar/docharvest/docpipe"
)

const (
	TextFile     = "extracted_text.txt"
	MetadataFile = "metadata.txt"
	LinksFile    = "extracted_links.txt"
	TablesDir    = "tables"
	ImagesDir    = "images"
)

// Report lists what one Persist call wrote.
type Report struct {
	Dir      string   `json:"dir"`
	Files    []string `json:"files"`
	Tables   int      `json:"tables"`
	Images   int      `json:"images"`
	Metadata int      `json:"metadata"`
	Links    int      `json:"links"`
}

// Store persists artifacts under a root directory.
type Store struct {
	root   string
	logger *slog.Logger
}

// New creates a Store rooted at root. A nil logger uses slog.Default().
func New(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger}
}

// Root returns the output root.
func (s *Store) Root() string { return s.root }

// DocumentDir returns the directory that holds one document's artifacts.
func (s *Store) DocumentDir(name string) string { return filepath.Join(s.root, name) }

// ImageDir returns where a document's images are materialized.
func (s *Store) ImageDir(name string) string {
	return filepath.Join(s.root, name, ImagesDir)
}

// Reset removes the artifacts a previous Persist left for name: the text,
// metadata and links files and the tables and images subtrees. Anything
// else in the document directory is left alone.
func (s *Store) Reset(name string) error {
	dir := s.DocumentDir(name)
	for _, f := range []string{TextFile, MetadataFile, LinksFile} {
		if err := os.Remove(filepath.Join(dir, f)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("filesink: reset: %w", err)
		}
	}
	for _, d := range []string{TablesDir, ImagesDir} {
		if err := os.RemoveAll(filepath.Join(dir, d)); err != nil {
			return fmt.Errorf("filesink: reset: %w", err)
		}
	}
	return nil
}

// Persist runs every extraction operation on src and writes the results.
// The document directory is reset first, so it only ever holds artifacts
// of the latest document with that name; images are materialized during
// the Images call that follows. Artifact kinds that come back empty are
// logged and skipped.
func (s *Store) Persist(ctx context.Context, src docpipe.Source) (*Report, error) {
	dir := s.DocumentDir(src.Name())
	if err := s.Reset(src.Name()); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("filesink: create %s: %w", dir, err)
	}
	log := s.logger.With("document", src.Name(), "dir", dir)
	rep := &Report{Dir: dir}

	text, err := src.Text(ctx)
	if err != nil {
		return rep, err
	}
	if err := s.writeText(dir, text, rep, log); err != nil {
		return rep, err
	}

	tables, err := src.Tables(ctx)
	if err != nil {
		return rep, err
	}
	if err := s.writeTables(dir, tables, rep, log); err != nil {
		return rep, err
	}

	images, err := src.Images(ctx)
	if err != nil {
		return rep, err
	}
	for _, img := range images {
		if img.Path != "" {
			rep.Files = append(rep.Files, img.Path)
			rep.Images++
		}
	}
	if rep.Images == 0 {
		log.Info("nothing extracted", "artifact", "images")
	}

	md, err := src.Metadata(ctx)
	if err != nil {
		return rep, err
	}
	if err := s.writeMetadata(dir, md, rep, log); err != nil {
		return rep, err
	}

	links, err := src.Links(ctx)
	if err != nil {
		return rep, err
	}
	if err := s.writeLinks(dir, links, rep, log); err != nil {
		return rep, err
	}

	log.Info("artifacts written", "files", len(rep.Files))
	return rep, nil
}

func (s *Store) writeText(dir, text string, rep *Report, log *slog.Logger) error {
	text = strings.TrimSpace(text)
	if text == "" {
		log.Info("nothing extracted", "artifact", "text")
		return nil
	}
	return writeFile(filepath.Join(dir, TextFile), []byte(text), rep)
}

func (s *Store) writeTables(dir string, tables []docpipe.Table, rep *Report, log *slog.Logger) error {
	if len(tables) == 0 {
		log.Info("nothing extracted", "artifact", "tables")
		return nil
	}
	tdir := filepath.Join(dir, TablesDir)
	if err := os.MkdirAll(tdir, 0755); err != nil {
		return fmt.Errorf("filesink: create %s: %w", tdir, err)
	}
	for i, t := range tables {
		path := filepath.Join(tdir, "table_"+strconv.Itoa(i+1)+".csv")
		if err := writeCSV(path, t); err != nil {
			return err
		}
		rep.Files = append(rep.Files, path)
		rep.Tables++
	}
	return nil
}

func writeCSV(path string, t docpipe.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("filesink: %w", err)
	}
	w := csv.NewWriter(f)
	// Rows are written as found; csv.Writer does not require equal widths.
	if err := w.WriteAll(t); err != nil {
		f.Close()
		return fmt.Errorf("filesink: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("filesink: close %s: %w", path, err)
	}
	return nil
}

func (s *Store) writeMetadata(dir string, md docpipe.Metadata, rep *Report, log *slog.Logger) error {
	lines := MetadataLines(md)
	if len(lines) == 0 {
		log.Info("nothing extracted", "artifact", "metadata")
		return nil
	}
	rep.Metadata = len(lines)
	return writeFile(filepath.Join(dir, MetadataFile), []byte(strings.Join(lines, "\n")+"\n"), rep)
}

func (s *Store) writeLinks(dir string, links []string, rep *Report, log *slog.Logger) error {
	uniq := docpipe.UniqueLinks(links)
	if len(uniq) == 0 {
		log.Info("nothing extracted", "artifact", "links")
		return nil
	}
	rep.Links = len(uniq)
	return writeFile(filepath.Join(dir, LinksFile), []byte(strings.Join(uniq, "\n")+"\n"), rep)
}

func writeFile(path string, data []byte, rep *Report) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("filesink: %w", err)
	}
	rep.Files = append(rep.Files, path)
	return nil
}

var lineFolder = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// MetadataLines renders non-empty metadata as "key: value", sorted by key.
// Line breaks inside values are folded to spaces, one pair per line.
func MetadataLines(md docpipe.Metadata) []string {
	keys := md.Keys()
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + ": " + lineFolder.Replace(md[k])
	}
	return lines
}
