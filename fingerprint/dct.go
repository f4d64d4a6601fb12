package fingerprint

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"imagedex/raster"
)

// The 2D DCT-II factors as T * X * Tᵀ with an orthonormal cosine basis T.
// The basis is fixed for the 32x32 hash input, so it is built once.
var (
	basisOnce sync.Once
	dctBasis  *mat.Dense
)

func basis() *mat.Dense {
	basisOnce.Do(func() {
		n := dctInput
		nf := float64(n)
		b := mat.NewDense(n, n, nil)
		for j := 0; j < n; j++ {
			b.Set(0, j, 1.0/math.Sqrt(nf))
		}
		for i := 1; i < n; i++ {
			for j := 0; j < n; j++ {
				b.Set(i, j, math.Sqrt(2.0/nf)*
					math.Cos(float64(i)*math.Pi*(2*float64(j)+1)/(2*nf)))
			}
		}
		dctBasis = b
	})
	return dctBasis
}

// dct2 transforms a dctInput-sized raster into its DCT coefficient matrix.
func dct2(r *raster.Raster) *mat.Dense {
	x := mat.NewDense(dctInput, dctInput, nil)
	for y := 0; y < dctInput; y++ {
		for xx := 0; xx < dctInput; xx++ {
			x.Set(y, xx, float64(r.At(xx, y)))
		}
	}

	t := basis()
	var tmp, out mat.Dense
	tmp.Mul(t, x)
	out.Mul(&tmp, t.T())
	return &out
}
