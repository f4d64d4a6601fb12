package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagedex/raster"
)

func patternRaster(w, h int, phase float64) *raster.Raster {
	r := &raster.Raster{Pix: make([]uint8, w*h), Width: w, Height: h}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 0.5 + 0.4*math.Sin(2*math.Pi*2*float64(x)/float64(w)+phase)*
				math.Cos(2*math.Pi*3*float64(y)/float64(h))
			r.Pix[y*w+x] = uint8(v * 255)
		}
	}
	return r
}

func TestScoreIdentity(t *testing.T) {
	a := patternRaster(300, 200, 0)
	score, err := Score(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestScoreSymmetry(t *testing.T) {
	a := patternRaster(300, 200, 0)
	b := patternRaster(300, 200, 1.2)

	ab, err := Score(a, b)
	require.NoError(t, err)
	ba, err := Score(b, a)
	require.NoError(t, err)
	assert.InDelta(t, ab, ba, 1e-12)
}

func TestScoreRange(t *testing.T) {
	a := patternRaster(256, 256, 0)
	b := patternRaster(256, 256, math.Pi)

	score, err := Score(a, b)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
	assert.Less(t, score, 0.9)
}

func TestScoreRescaledCopy(t *testing.T) {
	a := patternRaster(400, 300, 0)
	smaller, err := a.Resize(200, 150)
	require.NoError(t, err)

	score, err := Score(a, smaller)
	require.NoError(t, err)
	// A rescaled copy of the same image must stay close to a perfect score.
	assert.Greater(t, score, 0.9)
}

func TestScoreDimensionMismatch(t *testing.T) {
	good := patternRaster(100, 100, 0)

	_, err := Score(&raster.Raster{}, good)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Score(good, &raster.Raster{Width: 5})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
