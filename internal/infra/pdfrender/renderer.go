package pdfrender

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"

	"compare/internal/config"
	"compare/internal/domain"
	"compare/internal/infra/logging"
)

// DefaultDPI is the resolution pages are rasterized at.
const DefaultDPI = 300

var ErrNoPages = errors.New("no rendered pages found")

// Document is an open PDF.
type Document interface {
	NumPage() int
	// RenderPage rasterizes the zero-based page index.
	RenderPage(index, dpi int) (image.Image, error)
	Close() error
}

// Backend opens PDF files with a concrete rasterization library.
type Backend interface {
	Name() string
	Open(path string) (Document, error)
	Close() error
}

// NewBackend selects the rasterization library named in cfg.
func NewBackend(cfg config.PDFConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "fitz":
		return NewFitz(), nil
	case "pdfium":
		return NewPdfium(cfg.PdfiumMinIdle, cfg.PdfiumMaxIdle, cfg.PdfiumMaxTotal)
	}
	return nil, fmt.Errorf("unknown pdf backend %q", cfg.Backend)
}

// BackendOrFitz is NewBackend that logs a failed init and falls back to fitz.
func BackendOrFitz(cfg config.PDFConfig) Backend {
	b, err := NewBackend(cfg)
	if err != nil {
		logging.Error("PDF backend init failed, falling back to fitz", "backend", cfg.Backend, "error", err)
		return NewFitz()
	}
	return b
}

// Renderer writes rasterized pages as page_{n}.png files.
type Renderer struct {
	backend Backend
	dpi     int
}

func New(backend Backend, dpi int) *Renderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Renderer{backend: backend, dpi: dpi}
}

func (r *Renderer) BackendName() string { return r.backend.Name() }

// Render rasterizes page (1-based) or, when page is nil, every page of the PDF
// into outDir and returns the written paths in page order.
func (r *Renderer) Render(ctx context.Context, pdfPath string, page *int, outDir string) ([]string, error) {
	doc, err := r.backend.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	count := doc.NumPage()
	first, last := 1, count
	if page != nil {
		if *page < 1 || *page > count {
			return nil, domain.PageOutOfRangeError(*page, count)
		}
		first, last = *page, *page
	}

	paths := make([]string, 0, last-first+1)
	for n := first; n <= last; n++ {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		img, err := doc.RenderPage(n-1, r.dpi)
		if err != nil {
			return paths, fmt.Errorf("render page %d: %w", n, err)
		}
		out := filepath.Join(outDir, fmt.Sprintf("page_%d.png", n))
		if err := imaging.Save(img, out); err != nil {
			return paths, fmt.Errorf("save page %d: %w", n, err)
		}
		paths = append(paths, out)
	}

	logging.Debug("PDF rendered", "backend", r.backend.Name(), "pages", len(paths), "dpi", r.dpi)
	return paths, nil
}

// FirstPNG returns the lexically first PNG in dir.
func FirstPNG(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", ErrNoPages
	}
	sort.Strings(matches)
	return matches[0], nil
}
