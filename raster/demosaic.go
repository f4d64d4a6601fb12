package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// TIFF tags used by the sensor decode path.
const (
	tagImageWidth    = 256
	tagImageLength   = 257
	tagBitsPerSample = 258
	tagCompression   = 259
	tagPhotometric   = 262
	tagStripOffsets  = 273
	tagStripCounts   = 279
	tagSubIFDs       = 330
	tagCFAPattern    = 33422

	photometricCFA  = 32803
	compressionNone = 1
)

// demosaic decodes uncompressed CFA sensor data from a TIFF-based RAW
// container (DNG and the TIFF-structured vendor formats) into a grayscale
// raster at half sensor resolution. Containers that are recognized but not
// TIFF-structured, or that use a compression scheme we do not implement,
// fail with ErrUnsupportedFormat; malformed data fails with a plain error
// that the caller wraps as a DecodeError.
func demosaic(data []byte) (*Raster, error) {
	order, firstIFD, err := tiffHeader(data)
	if err != nil {
		return nil, err
	}

	ifd, err := findCFAIFD(data, order, firstIFD, 0)
	if err != nil {
		return nil, err
	}

	if ifd.compression != compressionNone {
		return nil, fmt.Errorf("sensor compression %d: %w", ifd.compression, ErrUnsupportedFormat)
	}
	if ifd.bits != 8 && ifd.bits != 16 {
		return nil, fmt.Errorf("sensor bit depth %d: %w", ifd.bits, ErrUnsupportedFormat)
	}
	if ifd.width < 2 || ifd.height < 2 {
		return nil, fmt.Errorf("sensor area %dx%d too small", ifd.width, ifd.height)
	}

	sensor, err := readStrips(data, order, ifd)
	if err != nil {
		return nil, err
	}
	return demosaicCFA(sensor, ifd), nil
}

// tiffHeader validates the byte-order mark and returns the first IFD offset.
// Known non-TIFF RAW signatures map to ErrUnsupportedFormat: the container
// is recognized, its sensor layout just is not implemented here.
func tiffHeader(data []byte) (binary.ByteOrder, uint32, error) {
	if len(data) >= 16 && bytes.HasPrefix(data, []byte("FUJIFILMCCD-RAW")) {
		return nil, 0, fmt.Errorf("fujifilm RAF sensor data: %w", ErrUnsupportedFormat)
	}
	if len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")) {
		return nil, 0, fmt.Errorf("ISO-BMFF sensor data: %w", ErrUnsupportedFormat)
	}
	if len(data) < 8 {
		return nil, 0, fmt.Errorf("truncated container: %d bytes", len(data))
	}

	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, 0, fmt.Errorf("no TIFF byte-order mark")
	}
	if order.Uint16(data[2:4]) != 42 {
		return nil, 0, fmt.Errorf("bad TIFF magic")
	}
	return order, order.Uint32(data[4:8]), nil
}

// cfaIFD carries the tags needed to read one CFA image directory.
type cfaIFD struct {
	width, height int
	bits          int
	compression   int
	photometric   int
	stripOffsets  []uint32
	stripCounts   []uint32
	pattern       [4]uint8 // 2x2 CFA layout, 0=R 1=G 2=B
}

// findCFAIFD walks the IFD chain (and SubIFDs, where DNG keeps the sensor
// image) looking for a directory with CFA photometric interpretation.
func findCFAIFD(data []byte, order binary.ByteOrder, off uint32, depth int) (*cfaIFD, error) {
	if depth > 4 {
		return nil, fmt.Errorf("IFD chain too deep")
	}
	for off != 0 {
		ifd, subIFDs, next, err := parseIFD(data, order, off)
		if err != nil {
			return nil, err
		}
		if ifd.photometric == photometricCFA {
			return ifd, nil
		}
		for _, sub := range subIFDs {
			found, err := findCFAIFD(data, order, sub, depth+1)
			if err == nil {
				return found, nil
			}
		}
		off = next
	}
	return nil, fmt.Errorf("no CFA image directory: %w", ErrUnsupportedFormat)
}

func parseIFD(data []byte, order binary.ByteOrder, off uint32) (*cfaIFD, []uint32, uint32, error) {
	if int(off)+2 > len(data) {
		return nil, nil, 0, fmt.Errorf("IFD offset %d out of range", off)
	}
	count := int(order.Uint16(data[off : off+2]))
	end := int(off) + 2 + count*12 + 4
	if end > len(data) {
		return nil, nil, 0, fmt.Errorf("truncated IFD at %d", off)
	}

	ifd := &cfaIFD{bits: 16, compression: compressionNone, pattern: [4]uint8{0, 1, 1, 2}}
	var subIFDs []uint32

	for i := 0; i < count; i++ {
		e := int(off) + 2 + i*12
		tag := int(order.Uint16(data[e : e+2]))
		typ := int(order.Uint16(data[e+2 : e+4]))
		n := int(order.Uint32(data[e+4 : e+8]))
		vals, err := entryValues(data, order, typ, n, data[e+8:e+12])
		if err != nil || len(vals) == 0 {
			continue
		}
		switch tag {
		case tagImageWidth:
			ifd.width = int(vals[0])
		case tagImageLength:
			ifd.height = int(vals[0])
		case tagBitsPerSample:
			ifd.bits = int(vals[0])
		case tagCompression:
			ifd.compression = int(vals[0])
		case tagPhotometric:
			ifd.photometric = int(vals[0])
		case tagStripOffsets:
			ifd.stripOffsets = vals
		case tagStripCounts:
			ifd.stripCounts = vals
		case tagSubIFDs:
			subIFDs = vals
		case tagCFAPattern:
			if len(vals) >= 4 {
				for j := 0; j < 4; j++ {
					ifd.pattern[j] = uint8(vals[j])
				}
			}
		}
	}
	return ifd, subIFDs, order.Uint32(data[end-4 : end]), nil
}

// entryValues decodes an IFD entry's values for the integer types the
// sensor path needs (BYTE, SHORT, LONG). Values wider than four bytes live
// at an offset elsewhere in the file.
func entryValues(data []byte, order binary.ByteOrder, typ, count int, inline []byte) ([]uint32, error) {
	var size int
	switch typ {
	case 1: // BYTE
		size = 1
	case 3: // SHORT
		size = 2
	case 4: // LONG
		size = 4
	default:
		return nil, fmt.Errorf("unhandled entry type %d", typ)
	}

	total := size * count
	raw := inline
	if total > 4 {
		off := int(order.Uint32(inline))
		if off+total > len(data) {
			return nil, fmt.Errorf("entry values out of range")
		}
		raw = data[off : off+total]
	}

	vals := make([]uint32, count)
	for i := 0; i < count; i++ {
		switch size {
		case 1:
			vals[i] = uint32(raw[i])
		case 2:
			vals[i] = uint32(order.Uint16(raw[i*2 : i*2+2]))
		case 4:
			vals[i] = order.Uint32(raw[i*4 : i*4+4])
		}
	}
	return vals, nil
}

// readStrips concatenates the strip data into one sensor plane of 16-bit
// samples (8-bit data is widened).
func readStrips(data []byte, order binary.ByteOrder, ifd *cfaIFD) ([]uint16, error) {
	if len(ifd.stripOffsets) == 0 || len(ifd.stripOffsets) != len(ifd.stripCounts) {
		return nil, fmt.Errorf("missing or mismatched strip tags")
	}

	sensor := make([]uint16, 0, ifd.width*ifd.height)
	bytesPer := ifd.bits / 8
	for i, off := range ifd.stripOffsets {
		cnt := int(ifd.stripCounts[i])
		if int(off)+cnt > len(data) {
			return nil, fmt.Errorf("strip %d out of range", i)
		}
		strip := data[off : int(off)+cnt]
		for p := 0; p+bytesPer <= len(strip); p += bytesPer {
			if ifd.bits == 16 {
				sensor = append(sensor, order.Uint16(strip[p:p+2]))
			} else {
				sensor = append(sensor, uint16(strip[p])<<8|uint16(strip[p]))
			}
		}
	}
	if len(sensor) < ifd.width*ifd.height {
		return nil, fmt.Errorf("sensor data short: have %d samples, want %d",
			len(sensor), ifd.width*ifd.height)
	}
	return sensor[:ifd.width*ifd.height], nil
}

// demosaicCFA bins each 2x2 CFA quad into one RGB pixel with gamma 0.45
// tone mapping, then converts to luma. Output is half sensor resolution,
// which is plenty for fingerprinting and verification.
func demosaicCFA(sensor []uint16, ifd *cfaIFD) *Raster {
	w, h := ifd.width/2, ifd.height/2
	out := &Raster{Pix: make([]uint8, w*h), Width: w, Height: h}

	const maxVal = 65535.0 // 8-bit samples are widened on read

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var rgb [3]float64
			var cnt [3]int
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					c := ifd.pattern[dy*2+dx]
					if c > 2 {
						continue
					}
					s := float64(sensor[(y*2+dy)*ifd.width+x*2+dx]) / maxVal
					rgb[c] += math.Pow(s, 0.45)
					cnt[c]++
				}
			}
			for c := 0; c < 3; c++ {
				if cnt[c] > 0 {
					rgb[c] /= float64(cnt[c])
				}
			}
			luma := 0.299*rgb[0] + 0.587*rgb[1] + 0.114*rgb[2]
			out.Pix[y*w+x] = uint8(math.Min(luma*255+0.5, 255))
		}
	}
	return out
}
