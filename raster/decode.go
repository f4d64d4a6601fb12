package raster

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// rasterExts are the standard formats decodable directly.
var rasterExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".tif": true, ".tiff": true, ".bmp": true, ".webp": true,
}

// rawExts are the camera sensor containers requiring RAW-specific decoding.
var rawExts = map[string]bool{
	".dng": true, ".raf": true, ".arw": true, ".nef": true,
	".cr2": true, ".cr3": true, ".nrw": true, ".srf": true,
}

// IsSupported reports whether files with the given extension are eligible
// for indexing.
func IsSupported(ext string) bool {
	ext = strings.ToLower(ext)
	return rasterExts[ext] || rawExts[ext]
}

// IsRawExt reports whether the extension names a camera RAW container.
func IsRawExt(ext string) bool {
	return rawExts[strings.ToLower(ext)]
}

// Decoder maps one family of containers to a decode strategy. The set of
// decoders is closed: variants are resolved by extension, not by open-ended
// registration from outside the package.
type Decoder interface {
	CanDecode(path string) bool
	Decode(path string) (*Raster, error)
}

// Registry holds the decode strategies in priority order.
type Registry struct {
	decoders []Decoder
}

// NewRegistry returns a registry covering the standard raster formats and
// the known RAW containers.
func NewRegistry() *Registry {
	return &Registry{decoders: []Decoder{
		&standardDecoder{},
		newRawDecoder(),
	}}
}

// Normalize decodes the file at path into a grayscale raster. It fails with
// a *DecodeError when the file is unreadable or corrupted and with
// ErrUnsupportedFormat when the container is recognized but its variant is
// not implemented.
func (r *Registry) Normalize(path string) (*Raster, error) {
	for _, d := range r.decoders {
		if d.CanDecode(path) {
			return d.Decode(path)
		}
	}
	return nil, &DecodeError{Path: path, Err: fmt.Errorf("no decoder for %q", filepath.Ext(path))}
}

var defaultRegistry = NewRegistry()

// Normalize decodes using the default registry.
func Normalize(path string) (*Raster, error) {
	return defaultRegistry.Normalize(path)
}

// standardDecoder handles formats the stdlib and x/image codecs decode
// directly.
type standardDecoder struct{}

func (d *standardDecoder) CanDecode(path string) bool {
	return rasterExts[strings.ToLower(filepath.Ext(path))]
}

func (d *standardDecoder) Decode(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	r := FromImage(img)
	if r.Empty() {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("decoded to zero-area image")}
	}
	r.Format = format
	return r, nil
}
