// Package source provides document sources for the chunking pipeline.
//
// PDFSource reads a PDF's embedded text layer. PDFs are not rendered here;
// scanned documents supply pre-rendered page images either through
// WithImageDir or through a DirSource.
package source

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/nevindra/kertas"
)

// PDFSource implements kertas.Source for a PDF file.
type PDFSource struct {
	id       string
	reader   *pdf.Reader
	imageDir string
}

// PDFOption configures a PDFSource.
type PDFOption func(*PDFSource)

// WithID overrides the source id (default: the file's base name without
// extension).
func WithID(id string) PDFOption {
	return func(s *PDFSource) { s.id = id }
}

// WithImageDir points at a directory of pre-rendered page images named
// page-0001.png, page-0002.png, ... (1-based, any supported image format).
// Without it, PageImage returns an error and the document can only take
// the native-text path.
func WithImageDir(dir string) PDFOption {
	return func(s *PDFSource) { s.imageDir = dir }
}

// OpenPDF opens a PDF file as a Source.
func OpenPDF(path string, opts ...PDFOption) (*PDFSource, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", path, err)
	}
	r, err := pdf.NewReader(strings.NewReader(string(content)), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("source: open pdf %s: %w", path, err)
	}

	base := filepath.Base(path)
	s := &PDFSource{
		id:     strings.TrimSuffix(base, filepath.Ext(base)),
		reader: r,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the source identifier.
func (s *PDFSource) ID() string { return s.id }

// PageCount reports the number of pages in the PDF.
func (s *PDFSource) PageCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.reader.NumPage(), nil
}

// PageText returns the embedded text of one page (0-based). Pages without
// a text layer return an empty string, not an error.
func (s *PDFSource) PageText(ctx context.Context, page int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if page < 0 || page >= s.reader.NumPage() {
		return "", fmt.Errorf("source: page %d out of range [0,%d)", page, s.reader.NumPage())
	}
	// ledongthuc/pdf pages are 1-based.
	p := s.reader.Page(page + 1)
	if p.V.IsNull() {
		return "", nil
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		// A malformed content stream on one page is treated as an absent
		// text layer, matching how the classifier samples pages.
		return "", nil
	}
	return strings.TrimSpace(text), nil
}

// PageImage loads a pre-rendered page image from the configured image
// directory.
func (s *PDFSource) PageImage(ctx context.Context, page int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.imageDir == "" {
		return nil, fmt.Errorf("source: %s has no rendered page images; configure WithImageDir for scanned documents", s.id)
	}
	return loadPageImage(s.imageDir, page)
}

// loadPageImage reads page-%04d.<ext> for the first supported extension.
func loadPageImage(dir string, page int) (image.Image, error) {
	for _, ext := range []string{"png", "jpg", "jpeg", "tif", "tiff"} {
		path := filepath.Join(dir, fmt.Sprintf("page-%04d.%s", page+1, ext))
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("source: decode %s: %w", path, err)
		}
		return img, nil
	}
	return nil, fmt.Errorf("source: no image found for page %d in %s", page+1, dir)
}

// Compile-time interface check.
var _ kertas.Source = (*PDFSource)(nil)
