package fingerprint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagedex/raster"
)

// gradientRaster builds a raster with enough structure that both hashes get
// a mix of set and unset bits.
func gradientRaster(w, h int) *raster.Raster {
	r := &raster.Raster{Pix: make([]uint8, w*h), Width: w, Height: h}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r.Pix[y*w+x] = uint8((x*7 + y*y/3) % 256)
		}
	}
	return r
}

func TestComputeDeterministic(t *testing.T) {
	r := gradientRaster(200, 150)

	avg1, per1, err := Compute(r)
	require.NoError(t, err)
	avg2, per2, err := Compute(r)
	require.NoError(t, err)

	assert.Equal(t, avg1, avg2)
	assert.Equal(t, per1, per2)
	assert.Len(t, avg1, 16)
	assert.Len(t, per1, 16)
}

func TestComputeInvalidRaster(t *testing.T) {
	_, _, err := Compute(&raster.Raster{})
	assert.ErrorIs(t, err, ErrInvalidRaster)

	_, _, err = Compute(&raster.Raster{Width: 10})
	assert.ErrorIs(t, err, ErrInvalidRaster)
}

func TestHashesDistinguishImages(t *testing.T) {
	a := gradientRaster(100, 100)

	// Invert the image: every average-hash bit should flip, so the
	// distance lands near the maximum.
	b := &raster.Raster{Pix: make([]uint8, len(a.Pix)), Width: a.Width, Height: a.Height}
	for i, p := range a.Pix {
		b.Pix[i] = 255 - p
	}

	avgA, _, err := Compute(a)
	require.NoError(t, err)
	avgB, _, err := Compute(b)
	require.NoError(t, err)

	d, err := Distance(avgA, avgB)
	require.NoError(t, err)
	assert.Greater(t, d, Bits/2)
}

// smoothRaster builds a low-frequency pattern that survives downsampling
// without aliasing, for rescale-invariance checks.
func smoothRaster(w, h int) *raster.Raster {
	r := &raster.Raster{Pix: make([]uint8, w*h), Width: w, Height: h}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 0.5 + 0.25*math.Sin(2*math.Pi*3*float64(x)/float64(w)) +
				0.25*math.Cos(2*math.Pi*2*float64(y)/float64(h))
			r.Pix[y*w+x] = uint8(v * 255)
		}
	}
	return r
}

func TestHashesSurviveRescaling(t *testing.T) {
	a := smoothRaster(400, 300)
	smaller, err := a.Resize(200, 150)
	require.NoError(t, err)

	_, perA, err := Compute(a)
	require.NoError(t, err)
	_, perB, err := Compute(smaller)
	require.NoError(t, err)

	d, err := Distance(perA, perB)
	require.NoError(t, err)
	// A rescaled copy should stay well inside the match band.
	assert.LessOrEqual(t, d, 10)
}

func TestDistanceMetricProperties(t *testing.T) {
	const (
		a = "0000000000000000"
		b = "ffffffffffffffff"
		c = "00000000000000ff"
	)

	d, err := Distance(a, a)
	require.NoError(t, err)
	assert.Equal(t, 0, d)

	d, err = Distance(a, b)
	require.NoError(t, err)
	assert.Equal(t, Bits, d)

	dab, err := Distance(a, c)
	require.NoError(t, err)
	dba, err := Distance(c, a)
	require.NoError(t, err)
	assert.Equal(t, dab, dba)
	assert.Equal(t, 8, dab)
}

func TestDistanceRejectsMalformed(t *testing.T) {
	_, err := Distance("abc", "ffffffffffffffff")
	assert.Error(t, err)

	_, err = Distance("abc", "abc")
	assert.Error(t, err)

	_, err = Distance("zzzzzzzzzzzzzzzz", "ffffffffffffffff")
	assert.Error(t, err)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity(0))
	assert.Equal(t, 0.0, Similarity(Bits))
	assert.InDelta(t, 0.5, Similarity(Bits/2), 1e-9)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 2, 3}))
	assert.True(t, !math.IsNaN(median([]float64{7})))
}
