// Package similarity scores structural similarity between two normalized
// rasters for the expensive verification stage of search.
package similarity

import (
	"errors"
	"fmt"

	"imagedex/raster"
)

// Both rasters are resized to this square resolution before comparison.
const compareSize = 256

// SSIM window geometry. Overlapping 8x8 windows with a stride of 4 keep the
// score stable under small alignment shifts without scanning every offset.
const (
	windowSize = 8
	windowStep = 4
)

// Stabilizing constants from the SSIM definition, for 8-bit dynamic range.
const (
	c1 = (0.01 * 255) * (0.01 * 255)
	c2 = (0.03 * 255) * (0.03 * 255)
)

// ErrDimensionMismatch is returned when a raster cannot be brought to the
// common comparison resolution, e.g. a zero-area raster.
var ErrDimensionMismatch = errors.New("rasters cannot be resized to a common resolution")

// Score computes the mean structural similarity between two rasters in
// [0,1]. It is deterministic and symmetric: Score(a, b) == Score(b, a).
func Score(a, b *raster.Raster) (float64, error) {
	pa, err := plane(a)
	if err != nil {
		return 0, err
	}
	pb, err := plane(b)
	if err != nil {
		return 0, err
	}

	var total float64
	var windows int
	for y := 0; y+windowSize <= compareSize; y += windowStep {
		for x := 0; x+windowSize <= compareSize; x += windowStep {
			total += windowSSIM(pa, pb, x, y)
			windows++
		}
	}

	score := total / float64(windows)
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}
	return score, nil
}

// plane resizes a raster to the comparison resolution and widens it to
// float64 luma.
func plane(r *raster.Raster) ([]float64, error) {
	if r.Empty() {
		return nil, fmt.Errorf("%w: zero-area raster", ErrDimensionMismatch)
	}
	resized, err := r.Resize(compareSize, compareSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
	}
	p := make([]float64, len(resized.Pix))
	for i, v := range resized.Pix {
		p[i] = float64(v)
	}
	return p, nil
}

// windowSSIM compares one window: local luminance via the means, contrast
// via the variances, structure via the covariance.
func windowSSIM(a, b []float64, x0, y0 int) float64 {
	const n = windowSize * windowSize

	var sumA, sumB float64
	for y := y0; y < y0+windowSize; y++ {
		row := y * compareSize
		for x := x0; x < x0+windowSize; x++ {
			sumA += a[row+x]
			sumB += b[row+x]
		}
	}
	muA := sumA / n
	muB := sumB / n

	var varA, varB, cov float64
	for y := y0; y < y0+windowSize; y++ {
		row := y * compareSize
		for x := x0; x < x0+windowSize; x++ {
			da := a[row+x] - muA
			db := b[row+x] - muB
			varA += da * da
			varB += db * db
			cov += da * db
		}
	}
	varA /= n
	varB /= n
	cov /= n

	num := (2*muA*muB + c1) * (2*cov + c2)
	den := (muA*muA + muB*muB + c1) * (varA + varB + c2)
	return num / den
}
