package source

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nevindra/kertas"

	// Decoders for rendered page images.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"
)

// DirSource implements kertas.Source over a directory of page images, one
// file per page, ordered by filename. It carries no text layer, so documents
// served from it always classify as scanned.
type DirSource struct {
	id    string
	dir   string
	pages []string
}

// OpenDir opens a directory of page images as a Source. Files with
// unsupported extensions are ignored.
func OpenDir(dir string, opts ...DirOption) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("source: read dir %s: %w", dir, err)
	}

	var pages []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
			pages = append(pages, e.Name())
		}
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("source: no page images in %s", dir)
	}
	sort.Strings(pages)

	s := &DirSource{
		id:    filepath.Base(dir),
		dir:   dir,
		pages: pages,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DirOption configures a DirSource.
type DirOption func(*DirSource)

// WithDirID overrides the source id (default: the directory's base name).
func WithDirID(id string) DirOption {
	return func(s *DirSource) { s.id = id }
}

// ID returns the source identifier.
func (s *DirSource) ID() string { return s.id }

// PageCount reports the number of page images found.
func (s *DirSource) PageCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(s.pages), nil
}

// PageText always returns an empty string; image directories have no text layer.
func (s *DirSource) PageText(ctx context.Context, page int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if page < 0 || page >= len(s.pages) {
		return "", fmt.Errorf("source: page %d out of range [0,%d)", page, len(s.pages))
	}
	return "", nil
}

// PageImage decodes one page image.
func (s *DirSource) PageImage(ctx context.Context, page int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 0 || page >= len(s.pages) {
		return nil, fmt.Errorf("source: page %d out of range [0,%d)", page, len(s.pages))
	}
	path := filepath.Join(s.dir, s.pages[page])
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("source: decode %s: %w", path, err)
	}
	return img, nil
}

// Compile-time interface check.
var _ kertas.Source = (*DirSource)(nil)
