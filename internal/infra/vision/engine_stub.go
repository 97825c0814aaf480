//go:build !gocv
// +build !gocv

package vision

import "compare/internal/domain"

// Engine is the placeholder used when OpenCV is not compiled in.
// Every call fails with ErrEngineUnavailable.
type Engine struct {
	p Params
}

func NewEngine(p Params) *Engine {
	return &Engine{p: p}
}

func (e *Engine) DetectDifferences(path1, path2 string) ([]byte, []byte, error) {
	return nil, nil, ErrEngineUnavailable
}

func (e *Engine) PixelPairwise(path1, path2 string) ([]byte, error) {
	return nil, ErrEngineUnavailable
}

func (e *Engine) AlignWithPhaseCorrelation(path1, path2 string) ([]byte, domain.Shift, error) {
	return nil, domain.Shift{}, ErrEngineUnavailable
}
