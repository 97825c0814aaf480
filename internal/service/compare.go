package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"compare/internal/domain"
	"compare/internal/infra/cache"
	"compare/internal/infra/codec"
	"compare/internal/infra/logging"
	"compare/internal/infra/worker"
)

// CompareInput carries either two base64 payloads or two filesystem paths.
type CompareInput struct {
	Img1     string `json:"img1" form:"img1"`
	Img2     string `json:"img2" form:"img2"`
	Img1Path string `json:"img1_path" form:"img1_path"`
	Img2Path string `json:"img2_path" form:"img2_path"`
}

func (in CompareInput) usesPaths() bool {
	return in.Img1 == "" && in.Img2 == "" && (in.Img1Path != "" || in.Img2Path != "")
}

type CompareOptions struct {
	ScratchDir      string
	AllowPathInputs bool
	PathRoot        string
}

// CompareService validates comparison requests and runs the selected algorithm on the worker pool.
type CompareService struct {
	comparator domain.Comparator
	pool       *worker.Pool
	cache      *cache.Cache
	opts       CompareOptions
}

func NewCompareService(c domain.Comparator, pool *worker.Pool, rc *cache.Cache, opts CompareOptions) *CompareService {
	return &CompareService{comparator: c, pool: pool, cache: rc, opts: opts}
}

// Compare returns the encoded result images keyed by name ("aligned", "changed").
func (s *CompareService) Compare(ctx context.Context, method string, in CompareInput) (map[string]string, error) {
	m, err := domain.ParseMethod(method)
	if err != nil {
		return nil, err
	}
	if in.usesPaths() {
		return s.compareFiles(ctx, m, in.Img1Path, in.Img2Path)
	}
	return s.comparePayloads(ctx, m, in.Img1, in.Img2)
}

func (s *CompareService) comparePayloads(ctx context.Context, m domain.Method, b64a, b64b string) (map[string]string, error) {
	if b64a == "" || b64b == "" {
		return nil, domain.NewClientInputError("Both images are required", domain.ErrMissingInput)
	}

	a, err := codec.Decode(b64a)
	if err != nil {
		return nil, domain.NewClientInputError("invalid base64 payload", err)
	}
	b, err := codec.Decode(b64b)
	if err != nil {
		return nil, domain.NewClientInputError("invalid base64 payload", err)
	}
	if err := codec.CheckImage(a); err != nil {
		return nil, domain.NewClientInputError("unreadable image", err)
	}
	if err := codec.CheckImage(b); err != nil {
		return nil, domain.NewClientInputError("unreadable image", err)
	}

	key := cache.ComparisonKey(m, a, b)
	var cached domain.ComparisonResult
	if s.cache.Get(ctx, key, &cached) {
		return cached.Images(m, codec.Encode), nil
	}

	p1, cleanup1, err := codec.Materialize(s.opts.ScratchDir, a, ".png")
	defer cleanup1()
	if err != nil {
		return nil, domain.NewUnhandledProcessingError("failed to store image", err)
	}
	p2, cleanup2, err := codec.Materialize(s.opts.ScratchDir, b, ".png")
	defer cleanup2()
	if err != nil {
		return nil, domain.NewUnhandledProcessingError("failed to store image", err)
	}

	res, err := s.run(ctx, m, p1, p2)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, res)
	return res.Images(m, codec.Encode), nil
}

func (s *CompareService) compareFiles(ctx context.Context, m domain.Method, path1, path2 string) (map[string]string, error) {
	if !s.opts.AllowPathInputs {
		return nil, domain.NewClientInputError("path inputs are disabled", domain.ErrPathInputsDisabled)
	}
	if path1 == "" || path2 == "" {
		return nil, domain.NewClientInputError("Both image paths are required", domain.ErrMissingInput)
	}

	p1, err := resolveUnder(s.opts.PathRoot, path1)
	if err != nil {
		return nil, err
	}
	p2, err := resolveUnder(s.opts.PathRoot, path2)
	if err != nil {
		return nil, err
	}
	if err := codec.CheckImageFile(p1); err != nil {
		return nil, domain.NewClientInputError("unreadable image", err)
	}
	if err := codec.CheckImageFile(p2); err != nil {
		return nil, domain.NewClientInputError("unreadable image", err)
	}

	res, err := s.run(ctx, m, p1, p2)
	if err != nil {
		return nil, err
	}
	return res.Images(m, codec.Encode), nil
}

// run executes the algorithm for m off the request goroutine and classifies its failure.
func (s *CompareService) run(ctx context.Context, m domain.Method, p1, p2 string) (domain.ComparisonResult, error) {
	start := time.Now()
	res, err := worker.Run(ctx, s.pool, func() (domain.ComparisonResult, error) {
		var r domain.ComparisonResult
		var err error
		switch m {
		case domain.MethodDetectDifferences:
			r.Aligned, r.Changed, err = s.comparator.DetectDifferences(p1, p2)
			if err == nil && (r.Aligned == nil || r.Changed == nil) {
				err = domain.ErrNoResult
			}
		case domain.MethodPixelPairwise:
			r.Changed, err = s.comparator.PixelPairwise(p1, p2)
			if err == nil && r.Changed == nil {
				err = domain.ErrNoResult
			}
		case domain.MethodPhaseCorrelation:
			var shift domain.Shift
			r.Aligned, shift, err = s.comparator.AlignWithPhaseCorrelation(p1, p2)
			if err == nil && r.Aligned == nil {
				err = domain.ErrNoResult
			}
			if err == nil {
				logging.Debug("Phase correlation shift", "dx", shift.DX, "dy", shift.DY, "response", shift.Response)
			}
		}
		return r, err
	})

	switch {
	case err == nil:
		logging.Info("Comparison finished", "method", string(m), "took_ms", time.Since(start).Milliseconds())
		return res, nil
	case errors.Is(err, domain.ErrNoResult):
		return res, domain.NewAlgorithmFailure(m.FailureMessage(), err)
	case errors.Is(err, domain.ErrUnreadableImage):
		return res, domain.NewClientInputError("unreadable image", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return res, domain.NewUnhandledProcessingError("comparison not started: "+err.Error(), err)
	default:
		return res, domain.NewUnhandledProcessingError("comparison failed: "+err.Error(), err)
	}
}

// resolveUnder joins p onto root and rejects results that escape root, either
// lexically or through a symlink. The returned path has all links resolved.
func resolveUnder(root, p string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", domain.NewUnhandledProcessingError("invalid path root", err)
	}
	full := p
	if !filepath.IsAbs(full) {
		full = filepath.Join(rootAbs, full)
	}
	full = filepath.Clean(full)
	if !within(rootAbs, full) {
		return "", outsideRoot(p)
	}

	rootReal, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", domain.NewUnhandledProcessingError("invalid path root", err)
	}
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", domain.NewClientInputError("unreadable image", fmt.Errorf("%w: %v", domain.ErrUnreadableImage, err))
	}
	if !within(rootReal, resolved) {
		return "", outsideRoot(p)
	}
	return resolved, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func outsideRoot(p string) error {
	return domain.NewClientInputError(fmt.Sprintf("path %q is outside the allowed root", p), domain.ErrPathOutsideRoot)
}
