// Package raster normalizes arbitrary image inputs, including camera RAW
// containers, into a fixed in-memory grayscale pixel grid that the hashing
// and comparison stages consume.
package raster

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// DecodeError reports a file that could not be decoded: unreadable,
// truncated, or not a recognized image format.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrUnsupportedFormat marks a container that is recognized but whose
// specific variant or compression is not implemented.
var ErrUnsupportedFormat = errors.New("unsupported image format variant")

// Raster is a decoded grayscale pixel grid. It is transient: produced by a
// decoder, consumed immediately by fingerprinting or verification, never
// persisted or cached.
type Raster struct {
	Pix    []uint8 // row-major luma values
	Width  int
	Height int
	Format string // codec identifier, e.g. "jpeg", "arw"
	IsRaw  bool   // true when RAW-specific decoding was required
}

// At returns the luma value at (x, y). No bounds check; callers iterate
// within Width/Height.
func (r *Raster) At(x, y int) uint8 {
	return r.Pix[y*r.Width+x]
}

// Empty reports whether the raster has zero area.
func (r *Raster) Empty() bool {
	return r == nil || r.Width <= 0 || r.Height <= 0
}

// FromImage converts a decoded image into a grayscale raster using the
// ITU-R BT.601 luma weights.
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	r := &Raster{Pix: make([]uint8, w*h), Width: w, Height: h}

	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < h; y++ {
			copy(r.Pix[y*w:(y+1)*w], g.Pix[y*g.Stride:y*g.Stride+w])
		}
		return r
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cr, cg, cb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			luma := 0.299*float64(cr>>8) + 0.587*float64(cg>>8) + 0.114*float64(cb>>8)
			r.Pix[y*w+x] = uint8(luma + 0.5)
		}
	}
	return r
}

// Resize scales the raster to the requested dimensions. The receiver is not
// modified. Small targets use area-preserving interpolation so that hash
// inputs are stable under minor recompression.
func (r *Raster) Resize(w, h int) (*Raster, error) {
	if r.Empty() {
		return nil, fmt.Errorf("resize: zero-area raster")
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("resize: invalid target %dx%d", w, h)
	}

	src := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
	copy(src.Pix, r.Pix)

	dst := image.NewGray(image.Rect(0, 0, w, h))
	scaler := draw.Scaler(draw.CatmullRom)
	if w < r.Width || h < r.Height {
		scaler = draw.ApproxBiLinear
	}
	scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := &Raster{Pix: dst.Pix, Width: w, Height: h, Format: r.Format, IsRaw: r.IsRaw}
	return out, nil
}
