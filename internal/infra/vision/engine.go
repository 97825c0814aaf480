//go:build gocv
// +build gocv

package vision

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"compare/internal/domain"
)

// Engine implements domain.Comparator on OpenCV.
type Engine struct {
	p Params
}

func NewEngine(p Params) *Engine {
	return &Engine{p: p}
}

// DetectDifferences registers path2 onto path1 with ORB features and a RANSAC
// homography, then thresholds the absolute difference inside the overlap.
func (e *Engine) DetectDifferences(path1, path2 string) ([]byte, []byte, error) {
	ref, err := readColor(path1)
	if err != nil {
		return nil, nil, err
	}
	defer ref.Close()
	mov, err := readColor(path2)
	if err != nil {
		return nil, nil, err
	}
	defer mov.Close()

	refGray := toGray(ref)
	defer refGray.Close()
	movGray := toGray(mov)
	defer movGray.Close()

	h, err := e.homography(refGray, movGray)
	if err != nil {
		return nil, nil, err
	}
	defer h.Close()

	size := image.Pt(ref.Cols(), ref.Rows())
	aligned := gocv.NewMat()
	defer aligned.Close()
	gocv.WarpPerspective(mov, &aligned, h, size)

	// pixels the warped image does not cover are not differences
	cover := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), mov.Rows(), mov.Cols(), gocv.MatTypeCV8U)
	defer cover.Close()
	coverWarped := gocv.NewMat()
	defer coverWarped.Close()
	gocv.WarpPerspectiveWithParams(cover, &coverWarped, h, size, gocv.InterpolationNearestNeighbor, gocv.BorderConstant, color.RGBA{})

	alignedGray := toGray(aligned)
	defer alignedGray.Close()
	diff := e.diffMask(refGray, alignedGray)
	defer diff.Close()

	changed := gocv.NewMat()
	defer changed.Close()
	gocv.BitwiseAnd(diff, coverWarped, &changed)

	alignedJPG, err := encodeJPEG(aligned)
	if err != nil {
		return nil, nil, err
	}
	changedJPG, err := encodeJPEG(changed)
	if err != nil {
		return nil, nil, err
	}
	return alignedJPG, changedJPG, nil
}

// PixelPairwise thresholds the per-pixel difference of two same-size images.
// path2 is resized to path1 when the dimensions differ.
func (e *Engine) PixelPairwise(path1, path2 string) ([]byte, error) {
	a, err := readColor(path1)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	b, err := readColor(path2)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	resized := resizeTo(b, a.Cols(), a.Rows())
	defer resized.Close()

	ga := toGray(a)
	defer ga.Close()
	gb := toGray(resized)
	defer gb.Close()

	mask := e.diffMask(ga, gb)
	defer mask.Close()
	if mask.Empty() {
		return nil, domain.ErrNoResult
	}
	return encodeJPEG(mask)
}

// AlignWithPhaseCorrelation estimates the translation of path2 against path1
// and shifts path2 back onto path1.
func (e *Engine) AlignWithPhaseCorrelation(path1, path2 string) ([]byte, domain.Shift, error) {
	ref, err := readColor(path1)
	if err != nil {
		return nil, domain.Shift{}, err
	}
	defer ref.Close()
	mov, err := readColor(path2)
	if err != nil {
		return nil, domain.Shift{}, err
	}
	defer mov.Close()

	movSized := resizeTo(mov, ref.Cols(), ref.Rows())
	defer movSized.Close()

	f1 := toFloatGray(ref)
	defer f1.Close()
	f2 := toFloatGray(movSized)
	defer f2.Close()

	window := gocv.NewMat()
	defer window.Close()
	shift, response := gocv.PhaseCorrelate(f1, f2, window)
	if math.IsNaN(response) || response < e.p.MinResponse {
		return nil, domain.Shift{}, fmt.Errorf("%w: weak correlation peak %.4f", domain.ErrNoResult, response)
	}

	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer m.Close()
	m.SetDoubleAt(0, 0, 1)
	m.SetDoubleAt(0, 1, 0)
	m.SetDoubleAt(0, 2, -float64(shift.X))
	m.SetDoubleAt(1, 0, 0)
	m.SetDoubleAt(1, 1, 1)
	m.SetDoubleAt(1, 2, -float64(shift.Y))

	aligned := gocv.NewMat()
	defer aligned.Close()
	gocv.WarpAffine(movSized, &aligned, m, image.Pt(ref.Cols(), ref.Rows()))

	out, err := encodeJPEG(aligned)
	if err != nil {
		return nil, domain.Shift{}, err
	}
	return out, domain.Shift{DX: float64(shift.X), DY: float64(shift.Y), Response: response}, nil
}

func (e *Engine) homography(ref, mov gocv.Mat) (gocv.Mat, error) {
	orb := gocv.NewORBWithParams(e.p.MaxFeatures, 1.2, 8, 31, 0, 2, gocv.ORBScoreTypeHarris, 31, 20)
	defer orb.Close()

	noMask := gocv.NewMat()
	defer noMask.Close()
	kpRef, desRef := orb.DetectAndCompute(ref, noMask)
	defer desRef.Close()
	kpMov, desMov := orb.DetectAndCompute(mov, noMask)
	defer desMov.Close()
	if desRef.Empty() || desMov.Empty() {
		return gocv.Mat{}, fmt.Errorf("%w: no descriptors", domain.ErrNoResult)
	}

	bf := gocv.NewBFMatcherWithParams(gocv.NormHamming, false)
	defer bf.Close()

	var src, dst []gocv.Point2f
	for _, pair := range bf.KnnMatch(desMov, desRef, 2) {
		if len(pair) < 2 || pair[0].Distance >= e.p.Ratio*pair[1].Distance {
			continue
		}
		m, r := kpMov[pair[0].QueryIdx], kpRef[pair[0].TrainIdx]
		src = append(src, gocv.Point2f{X: float32(m.X), Y: float32(m.Y)})
		dst = append(dst, gocv.Point2f{X: float32(r.X), Y: float32(r.Y)})
	}
	if len(src) < e.p.MinMatches || len(src) < 4 {
		return gocv.Mat{}, fmt.Errorf("%w: %d good matches", domain.ErrNoResult, len(src))
	}

	srcVec := gocv.NewPoint2fVectorFromPoints(src)
	defer srcVec.Close()
	dstVec := gocv.NewPoint2fVectorFromPoints(dst)
	defer dstVec.Close()
	srcMat := gocv.NewMatFromPoint2fVector(srcVec, true)
	defer srcMat.Close()
	dstMat := gocv.NewMatFromPoint2fVector(dstVec, true)
	defer dstMat.Close()

	inliers := gocv.NewMat()
	defer inliers.Close()
	h := gocv.FindHomography(srcMat, &dstMat, gocv.HomograpyMethodRANSAC, 5.0, &inliers, 2000, 0.995)
	if h.Empty() {
		h.Close()
		return gocv.Mat{}, fmt.Errorf("%w: homography not found", domain.ErrNoResult)
	}
	return h, nil
}

func (e *Engine) diffMask(a, b gocv.Mat) gocv.Mat {
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(a, b, &diff)

	blur := gocv.NewMat()
	defer blur.Close()
	gocv.GaussianBlur(diff, &blur, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	mask := gocv.NewMat()
	gocv.Threshold(blur, &mask, float32(e.p.DiffThreshold), 255, gocv.ThresholdBinary)
	return mask
}

func readColor(path string) (gocv.Mat, error) {
	m := gocv.IMRead(path, gocv.IMReadColor)
	if m.Empty() {
		m.Close()
		return gocv.Mat{}, fmt.Errorf("%w: %s", domain.ErrUnreadableImage, path)
	}
	return m, nil
}

func toGray(m gocv.Mat) gocv.Mat {
	g := gocv.NewMat()
	gocv.CvtColor(m, &g, gocv.ColorBGRToGray)
	return g
}

func toFloatGray(m gocv.Mat) gocv.Mat {
	g := toGray(m)
	defer g.Close()
	f := gocv.NewMat()
	g.ConvertTo(&f, gocv.MatTypeCV32F)
	return f
}

// resizeTo returns a copy of m with the given size.
func resizeTo(m gocv.Mat, w, h int) gocv.Mat {
	out := gocv.NewMat()
	if m.Cols() == w && m.Rows() == h {
		m.CopyTo(&out)
		return out
	}
	gocv.Resize(m, &out, image.Pt(w, h), 0, 0, gocv.InterpolationArea)
	return out
}

func encodeJPEG(m gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, m)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
