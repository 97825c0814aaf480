// Package domain contains the core concepts of the comparison service.
// It stays free of transport (HTTP) and infrastructure (OpenCV, PDF engines, Redis) concerns.
package domain

import (
	"context"
	"fmt"
	"strings"
)

// Method selects a comparison strategy.
type Method string

const (
	MethodDetectDifferences Method = "one"
	MethodPixelPairwise     Method = "two"
	MethodPhaseCorrelation  Method = "three"
)

// ParseMethod validates a selector from the query string.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MethodDetectDifferences, MethodPixelPairwise, MethodPhaseCorrelation:
		return m, nil
	}
	return "", NewClientInputError(fmt.Sprintf("unknown method: %q", s), ErrUnknownMethod)
}

// FailureMessage is the caller-facing text when the algorithm for m yields nothing.
func (m Method) FailureMessage() string {
	if m == MethodPixelPairwise {
		return "failed to compute difference"
	}
	return "insufficient matches for alignment"
}

// ComparisonResult holds encoded result images. Which fields are set depends on the method.
type ComparisonResult struct {
	Aligned []byte `cbor:"1,keyasint,omitempty"`
	Changed []byte `cbor:"2,keyasint,omitempty"`
}

// Images shapes the result into the response map for method m.
func (r ComparisonResult) Images(m Method, encode func([]byte) string) map[string]string {
	out := make(map[string]string, 2)
	switch m {
	case MethodDetectDifferences:
		out["aligned"] = encode(r.Aligned)
		out["changed"] = encode(r.Changed)
	case MethodPixelPairwise:
		out["changed"] = encode(r.Changed)
	case MethodPhaseCorrelation:
		out["aligned"] = encode(r.Aligned)
	}
	return out
}

// Shift is a sub-pixel translation estimated by phase correlation.
type Shift struct {
	DX, DY   float64
	Response float64
}

// Comparator runs the comparison algorithms on two image files.
// Implementations return ErrNoResult when an algorithm cannot produce output.
type Comparator interface {
	DetectDifferences(path1, path2 string) (aligned, changed []byte, err error)
	PixelPairwise(path1, path2 string) (changed []byte, err error)
	AlignWithPhaseCorrelation(path1, path2 string) (aligned []byte, shift Shift, err error)
}

// PageRenderer rasterizes PDF pages to page_{n}.png files inside outDir.
// A nil page renders every page.
type PageRenderer interface {
	Render(ctx context.Context, pdfPath string, page *int, outDir string) ([]string, error)
}
