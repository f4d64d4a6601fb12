package fingerprint

import (
	"fmt"
	"math/bits"
	"strconv"
)

// Distance returns the bitwise Hamming distance between two fingerprints of
// equal length. Lower means more similar.
func Distance(a, b string) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("fingerprint length mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) != hexDigits {
		return 0, fmt.Errorf("fingerprint length %d, want %d hex digits", len(a), hexDigits)
	}

	ua, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fingerprint %q: %w", a, err)
	}
	ub, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fingerprint %q: %w", b, err)
	}
	return bits.OnesCount64(ua ^ ub), nil
}

// Similarity normalizes a Hamming distance to [0,1], where 1 is identical.
func Similarity(distance int) float64 {
	return 1 - float64(distance)/float64(Bits)
}
