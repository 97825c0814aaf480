package pdfrender

import (
	"image"

	"github.com/gen2brain/go-fitz"
)

// Fitz renders with MuPDF.
type Fitz struct{}

func NewFitz() *Fitz { return &Fitz{} }

func (f *Fitz) Name() string { return "fitz" }

func (f *Fitz) Open(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &fitzDocument{doc: doc}, nil
}

func (f *Fitz) Close() error { return nil }

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) NumPage() int { return d.doc.NumPage() }

func (d *fitzDocument) RenderPage(index, dpi int) (image.Image, error) {
	return d.doc.ImageDPI(index, float64(dpi))
}

func (d *fitzDocument) Close() error { return d.doc.Close() }
