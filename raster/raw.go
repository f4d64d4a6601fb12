package raster

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"

	exiftool "github.com/barasher/go-exiftool"
)

// minPreviewEdge is the smallest long-edge size an embedded preview may have
// and still stand in for the full sensor image. Smaller previews (thumbnails)
// are rejected and the demosaic path is tried instead.
const minPreviewEdge = 256

// previewTags are the exiftool binary tags that may hold an embedded
// preview, in order of preference. JpgFromRaw is usually full resolution.
var previewTags = []string{"JpgFromRaw", "PreviewImage", "OtherImage", "ThumbnailImage"}

// rawDecoder normalizes camera RAW containers. The fast path extracts an
// embedded preview raster: first through exiftool when the binary is
// available, then through a native signature scan of the container. The slow
// path demosaics uncompressed sensor data from TIFF-based containers.
type rawDecoder struct {
	once sync.Once
	mu   sync.Mutex
	et   *exiftool.Exiftool
}

func newRawDecoder() *rawDecoder {
	return &rawDecoder{}
}

func (d *rawDecoder) CanDecode(path string) bool {
	return rawExts[strings.ToLower(filepath.Ext(path))]
}

func (d *rawDecoder) Decode(path string) (*Raster, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")

	if r := d.previewViaExiftool(path); r != nil {
		return finishRaw(r, format), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	if r := previewBySignature(data); r != nil {
		return finishRaw(r, format), nil
	}

	r, err := demosaic(data)
	if err != nil {
		return nil, wrapRawErr(path, err)
	}
	return finishRaw(r, format), nil
}

func finishRaw(r *Raster, format string) *Raster {
	r.Format = format
	r.IsRaw = true
	return r
}

func wrapRawErr(path string, err error) error {
	if errors.Is(err, ErrUnsupportedFormat) {
		return fmt.Errorf("%s: %w", path, err)
	}
	return &DecodeError{Path: path, Err: err}
}

// exif returns the shared exiftool handle, or nil when the exiftool binary
// is not installed. The handle serializes callers: the stayopen protocol is
// not concurrency safe.
func (d *rawDecoder) exif() *exiftool.Exiftool {
	d.once.Do(func() {
		et, err := exiftool.NewExiftool(exiftool.ExtractAllBinaryMetadata())
		if err == nil {
			d.et = et
		}
	})
	return d.et
}

func (d *rawDecoder) previewViaExiftool(path string) *Raster {
	et := d.exif()
	if et == nil {
		return nil
	}

	d.mu.Lock()
	metas := et.ExtractMetadata(path)
	d.mu.Unlock()
	if len(metas) == 0 || metas[0].Err != nil {
		return nil
	}

	for _, tag := range previewTags {
		v, err := metas[0].GetString(tag)
		if err != nil {
			continue
		}
		enc, ok := strings.CutPrefix(v, "base64:")
		if !ok {
			continue
		}
		blob, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			continue
		}
		if r := decodePreview(blob); r != nil {
			return r
		}
	}
	return nil
}

// previewBySignature scans the container for embedded JPEG streams and
// decodes the largest one that meets the minimum preview resolution. RAW
// containers routinely hold one or more previews regardless of manufacturer
// layout, so a signature scan works where container parsing would need a
// per-vendor implementation.
func previewBySignature(data []byte) *Raster {
	var (
		best     []byte
		bestArea int
	)
	jpegSOI := []byte{0xFF, 0xD8, 0xFF}
	for off := 0; off < len(data); {
		i := bytes.Index(data[off:], jpegSOI)
		if i < 0 {
			break
		}
		start := off + i
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(data[start:]))
		if err == nil {
			area := cfg.Width * cfg.Height
			if area > bestArea && max(cfg.Width, cfg.Height) >= minPreviewEdge {
				best = data[start:]
				bestArea = area
			}
		}
		off = start + 3
	}
	if best == nil {
		return nil
	}
	img, err := jpeg.Decode(bytes.NewReader(best))
	if err != nil {
		return nil
	}
	return FromImage(img)
}

func decodePreview(blob []byte) *Raster {
	img, _, err := image.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil
	}
	b := img.Bounds()
	if max(b.Dx(), b.Dy()) < minPreviewEdge {
		return nil
	}
	return FromImage(img)
}
