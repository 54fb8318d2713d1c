// Copyright (c) 2025-2026 The Signet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fingerprint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

var (
	// ErrMalformed is returned by Parse when the supplied text is not a
	// canonical hexadecimal fingerprint.
	ErrMalformed = errors.New("malformed fingerprint")

	// ErrInvalidLength is returned by Distance when the two fingerprints
	// do not have the same bit width.
	ErrInvalidLength = errors.New("mismatched fingerprint length")
)

// Fingerprint is a fixed-width perceptual hash bit vector.  It is immutable
// once created and is only constructed through Parse or FromBytes.  The
// underlying storage is a string so that fingerprints are comparable and
// usable as map keys.
type Fingerprint struct {
	b string
}

// Parse decodes the canonical hexadecimal representation of a fingerprint.
// Uppercase input is accepted and canonicalized.  The empty string, odd
// length input and non-hex characters all fail with ErrMalformed.
func Parse(s string) (Fingerprint, error) {
	if len(s) == 0 {
		return Fingerprint{}, fmt.Errorf("%w: empty", ErrMalformed)
	}
	if len(s)%2 != 0 {
		return Fingerprint{}, fmt.Errorf("%w: odd length %v",
			ErrMalformed, len(s))
	}
	b, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Fingerprint{b: string(b)}, nil
}

// FromBytes creates a fingerprint from a raw bit vector.  The bytes are
// copied.
func FromBytes(b []byte) (Fingerprint, error) {
	if len(b) == 0 {
		return Fingerprint{}, fmt.Errorf("%w: empty", ErrMalformed)
	}
	return Fingerprint{b: string(b)}, nil
}

// String returns the canonical representation: lowercase hex, fixed width,
// zero padded.  Parse(fp.String()) always round-trips exactly.
func (f Fingerprint) String() string {
	return hex.EncodeToString([]byte(f.b))
}

// Bytes returns a copy of the raw bit vector.
func (f Fingerprint) Bytes() []byte {
	return []byte(f.b)
}

// BitLen returns the width of the fingerprint in bits.
func (f Fingerprint) BitLen() int {
	return len(f.b) * 8
}

// IsZero reports whether f is the zero value, i.e. was never parsed.
func (f Fingerprint) IsZero() bool {
	return len(f.b) == 0
}

// Distance returns the Hamming distance between two fingerprints of equal
// width: the number of differing bit positions.  The metric is symmetric,
// non-negative and satisfies the triangle inequality.
func Distance(a, b Fingerprint) (int, error) {
	if len(a.b) != len(b.b) {
		return 0, fmt.Errorf("%w: %v != %v", ErrInvalidLength,
			a.BitLen(), b.BitLen())
	}
	var d int
	for i := 0; i < len(a.b); i++ {
		d += bits.OnesCount8(a.b[i] ^ b.b[i])
	}
	return d, nil
}
