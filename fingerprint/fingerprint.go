// Package fingerprint computes compact perceptual fingerprints from
// normalized rasters: a coarse average-intensity hash and a
// frequency-domain perceptual hash, both packed as 64-bit hex strings.
package fingerprint

import (
	"errors"
	"fmt"
	"sort"

	"imagedex/raster"
)

// SchemeVersion tags records with the hash algorithm generation. Version 1
// was a region-average hash; version 2 is the DCT perceptual hash. Hashes
// from different versions are not comparable.
const SchemeVersion = 2

// Bits is the length of each fingerprint in bits.
const Bits = 64

const (
	avgGrid   = 8  // average hash sampling grid
	dctInput  = 32 // perceptual hash downsample size
	dctBlock  = 8  // retained low-frequency block
	hexDigits = Bits / 4
)

// ErrInvalidRaster is returned when a raster with zero width or height is
// fingerprinted.
var ErrInvalidRaster = errors.New("invalid raster: zero width or height")

// Compute returns the average and perceptual hashes for a raster. Both are
// deterministic pure functions of the pixel data.
func Compute(r *raster.Raster) (avgHash, perceptualHash string, err error) {
	if r.Empty() {
		return "", "", ErrInvalidRaster
	}

	a, err := averageHash(r)
	if err != nil {
		return "", "", err
	}
	p, err := perceptualHashBits(r)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("%016x", a), fmt.Sprintf("%016x", p), nil
}

// averageHash downsamples to an 8x8 grid and emits one bit per cell set
// when the cell's intensity is at or above the grid mean. Bits are packed
// row-major, most significant first.
func averageHash(r *raster.Raster) (uint64, error) {
	small, err := r.Resize(avgGrid, avgGrid)
	if err != nil {
		return 0, err
	}

	var sum int
	for _, p := range small.Pix {
		sum += int(p)
	}
	mean := float64(sum) / float64(len(small.Pix))

	var hash uint64
	for i, p := range small.Pix {
		if float64(p) >= mean {
			hash |= 1 << (Bits - 1 - i)
		}
	}
	return hash, nil
}

// perceptualHashBits downsamples to 32x32, applies a 2D DCT, and keeps the
// top-left 8x8 low-frequency block with the DC term dropped. Each retained
// coefficient contributes one bit: set when the coefficient is at or above
// the block median. More robust to gamma and contrast shifts than the
// average hash.
func perceptualHashBits(r *raster.Raster) (uint64, error) {
	small, err := r.Resize(dctInput, dctInput)
	if err != nil {
		return 0, err
	}

	coeffs := dct2(small)

	lowFreq := make([]float64, 0, Bits)
	for u := 0; u < dctBlock; u++ {
		for v := 0; v < dctBlock; v++ {
			if u == 0 && v == 0 {
				continue
			}
			lowFreq = append(lowFreq, coeffs.At(u, v))
		}
	}
	// Pad the dropped DC slot so the hash stays a full 64 bits.
	for len(lowFreq) < Bits {
		lowFreq = append(lowFreq, coeffs.At(dctBlock-1, dctBlock-1))
	}

	med := median(lowFreq)
	var hash uint64
	for i, c := range lowFreq {
		if c >= med {
			hash |= 1 << (Bits - 1 - i)
		}
	}
	return hash, nil
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
