// Package materialize turns raw embedded image payloads into PNG files at
// deterministic, document-scoped paths.
//
// Input bytes may be JPEG, PNG, GIF, BMP, TIFF or WebP; output is always PNG.
// File names follow one of two shapes:
//
//	{base}_img_{seq}.png                 no page or slide index
//	{base}_page_{unit+1}_img_{seq}.png   unit is the 0-based page or slide
//
// Existing files are overwritten, so materializing the same document twice
// produces the same paths.
package materialize

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	// Registered decoders.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// NoUnit marks an image with no page or slide index.
const NoUnit = -1

// ErrImageDecode is returned when the payload is not a decodable image.
// Callers treat it as non-fatal: the image is skipped.
var ErrImageDecode = errors.New("image decode failed")

// Locator identifies one image inside a document.
type Locator struct {
	Base string // document base name, without extension
	Unit int    // 0-based page/slide index, or NoUnit
	Seq  int    // 1-based, per document
}

// FileName returns the deterministic file name for loc.
func (loc Locator) FileName() string {
	if loc.Unit == NoUnit || loc.Unit < 0 {
		return fmt.Sprintf("%s_img_%d.png", loc.Base, loc.Seq)
	}
	return fmt.Sprintf("%s_page_%d_img_%d.png", loc.Base, loc.Unit+1, loc.Seq)
}

// Materializer writes PNG files under Dir.
type Materializer struct {
	Dir string
}

// New returns a Materializer rooted at dir.
func New(dir string) *Materializer {
	return &Materializer{Dir: dir}
}

// Materialize decodes data and writes it as PNG at Dir/loc.FileName(),
// returning the written path. An undecodable payload yields ErrImageDecode
// and nothing is written.
func (m *Materializer) Materialize(data []byte, loc Locator) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrImageDecode)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return "", fmt.Errorf("materialize: mkdir: %w", err)
	}

	path := filepath.Join(m.Dir, loc.FileName())
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("materialize: encode %s as png: %w", format, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("materialize: write: %w", err)
	}
	return path, nil
}
