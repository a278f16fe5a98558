// Package vec implements the binary codec for stored embeddings.
//
// Vectors are produced by embedding providers as float64 but persisted as a
// little-endian sequence of IEEE 754 float32 values, 4 bytes per element, with
// no length prefix. The narrowing to single precision is part of the on-disk
// format: Decode upcasts back to float64 and round-trips are only exact to
// within float32 rounding.
package vec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidLength is returned by Decode when the blob length is not a
// multiple of 4 bytes.
var ErrInvalidLength = errors.New("vec: blob length not a multiple of 4")

// Encode serializes a vector into its storage form.
func Encode(v []float64) []byte {
	if len(v) == 0 {
		return nil
	}
	b := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(float32(f)))
	}
	return b
}

// Decode deserializes a blob produced by Encode. A malformed length indicates
// corruption of the stored row and is reported as ErrInvalidLength.
func Decode(b []byte) ([]float64, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(b))
	}
	if len(b) == 0 {
		return nil, nil
	}
	v := make([]float64, len(b)/4)
	for i := range v {
		bits := binary.LittleEndian.Uint32(b[i*4:])
		v[i] = float64(math.Float32frombits(bits))
	}
	return v, nil
}
