package service

import (
	"context"
	"os"

	"compare/internal/domain"
	"compare/internal/infra/cache"
	"compare/internal/infra/codec"
	"compare/internal/infra/pdfrender"
	"compare/internal/infra/worker"
)

// PDFService rasterizes base64 PDFs into base64 PNG pages.
type PDFService struct {
	renderer   domain.PageRenderer
	pool       *worker.Pool
	cache      *cache.Cache
	scratchDir string
}

func NewPDFService(r domain.PageRenderer, pool *worker.Pool, rc *cache.Cache, scratchDir string) *PDFService {
	return &PDFService{renderer: r, pool: pool, cache: rc, scratchDir: scratchDir}
}

// ConvertPage renders one 1-based page.
func (s *PDFService) ConvertPage(ctx context.Context, pdfB64 string, page int) (string, error) {
	pdf, err := decodePDF(pdfB64)
	if err != nil {
		return "", err
	}

	key := cache.PageKey(pdf, page)
	var cached []byte
	if s.cache.Get(ctx, key, &cached) {
		return codec.Encode(cached), nil
	}

	var png []byte
	err = s.render(ctx, pdf, &page, func(outDir string, _ []string) error {
		first, err := pdfrender.FirstPNG(outDir)
		if err != nil {
			return err
		}
		png, err = os.ReadFile(first)
		return err
	})
	if err != nil {
		return "", err
	}

	s.cache.Set(ctx, key, png)
	return codec.Encode(png), nil
}

// ConvertAll renders every page, in page order.
func (s *PDFService) ConvertAll(ctx context.Context, pdfB64 string) ([]string, error) {
	pdf, err := decodePDF(pdfB64)
	if err != nil {
		return nil, err
	}

	key := cache.AllPagesKey(pdf)
	var pages [][]byte
	if !s.cache.Get(ctx, key, &pages) {
		err = s.render(ctx, pdf, nil, func(_ string, paths []string) error {
			pages = make([][]byte, 0, len(paths))
			for _, p := range paths {
				b, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				pages = append(pages, b)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, key, pages)
	}

	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = codec.Encode(p)
	}
	return out, nil
}

func decodePDF(b64 string) ([]byte, error) {
	if b64 == "" {
		return nil, domain.NewClientInputError("PDF data is required", domain.ErrMissingInput)
	}
	pdf, err := codec.Decode(b64)
	if err != nil {
		return nil, domain.NewClientInputError("invalid base64 payload", err)
	}
	return pdf, nil
}

// render materializes pdf, rasterizes it into a fresh directory on the worker
// pool and hands the directory to collect before everything is removed.
func (s *PDFService) render(ctx context.Context, pdf []byte, page *int, collect func(outDir string, paths []string) error) error {
	pdfPath, cleanup, err := codec.Materialize(s.scratchDir, pdf, ".pdf")
	defer cleanup()
	if err != nil {
		return processingError(err)
	}

	outDir, err := os.MkdirTemp(s.scratchDir, "pdfpages-*")
	if err != nil {
		return processingError(err)
	}
	defer os.RemoveAll(outDir)

	paths, err := worker.Run(ctx, s.pool, func() ([]string, error) {
		return s.renderer.Render(context.WithoutCancel(ctx), pdfPath, page, outDir)
	})
	if err != nil {
		if domain.IsKind(err, domain.KindClientInput) {
			return err
		}
		return processingError(err)
	}
	if err := collect(outDir, paths); err != nil {
		return processingError(err)
	}
	return nil
}

func processingError(err error) error {
	return domain.NewUnhandledProcessingError("Error processing PDF: "+err.Error(), err)
}
