package pdfrender

import (
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

const pdfiumInstanceTimeout = 30 * time.Second

// Pdfium renders with PDFium compiled to WebAssembly. Each open document holds
// one instance from the pool until it is closed.
type Pdfium struct {
	mu   sync.Mutex
	pool pdfium.Pool
}

func NewPdfium(minIdle, maxIdle, maxTotal int) (*Pdfium, error) {
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  minIdle,
		MaxIdle:  maxIdle,
		MaxTotal: maxTotal,
	})
	if err != nil {
		return nil, fmt.Errorf("init pdfium webassembly: %w", err)
	}
	return &Pdfium{pool: pool}, nil
}

func (p *Pdfium) Name() string { return "pdfium" }

func (p *Pdfium) Open(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	pool := p.pool
	p.mu.Unlock()
	if pool == nil {
		return nil, fmt.Errorf("pdfium backend closed")
	}

	instance, err := pool.GetInstance(pdfiumInstanceTimeout)
	if err != nil {
		return nil, fmt.Errorf("get pdfium instance: %w", err)
	}

	doc, err := instance.OpenDocument(&requests.OpenDocument{File: &raw})
	if err != nil {
		instance.Close()
		return nil, err
	}
	count, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{Document: doc.Document})
	if err != nil {
		instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
		instance.Close()
		return nil, err
	}

	return &pdfiumDocument{instance: instance, doc: doc.Document, pages: count.PageCount}, nil
}

func (p *Pdfium) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool == nil {
		return nil
	}
	err := p.pool.Close()
	p.pool = nil
	return err
}

type pdfiumDocument struct {
	instance pdfium.Pdfium
	doc      references.FPDF_DOCUMENT
	pages    int
}

func (d *pdfiumDocument) NumPage() int { return d.pages }

func (d *pdfiumDocument) RenderPage(index, dpi int) (image.Image, error) {
	res, err := d.instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI: dpi,
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{
				Document: d.doc,
				Index:    index,
			},
		},
	})
	if err != nil {
		return nil, err
	}
	defer res.Cleanup()
	// the result buffer lives in wasm memory and is freed by Cleanup
	return imaging.Clone(res.Result.Image), nil
}

func (d *pdfiumDocument) Close() error {
	_, err := d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: d.doc})
	if cerr := d.instance.Close(); err == nil {
		err = cerr
	}
	return err
}
