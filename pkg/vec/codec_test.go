package vec

import (
	"errors"
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	orig := []float64{0.0, 1.5, -2.25, 3.75, 0.1, -0.0001, 12345.678}

	b := Encode(orig)
	if len(b) != len(orig)*4 {
		t.Fatalf("blob length = %d, want %d", len(b), len(orig)*4)
	}

	decoded, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded) != len(orig) {
		t.Fatalf("decoded length = %d, want %d", len(decoded), len(orig))
	}

	// Round-trip is lossy (f64 -> f32 -> f64) but bounded by f32 epsilon.
	const relEps = 1.0 / (1 << 23)
	for i := range orig {
		diff := math.Abs(decoded[i] - orig[i])
		bound := relEps * math.Abs(orig[i])
		if bound == 0 {
			bound = relEps
		}
		if diff > bound {
			t.Errorf("decoded[%d] = %v, want %v (diff %v > %v)", i, decoded[i], orig[i], diff, bound)
		}
	}
}

func TestDecodeExactForFloat32Values(t *testing.T) {
	// Values exactly representable in float32 must survive unchanged.
	orig := []float64{1, 0.5, -0.25, 1024, -3}
	decoded, err := Decode(Encode(orig))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	for i := range orig {
		if decoded[i] != orig[i] {
			t.Errorf("decoded[%d] = %v, want %v", i, decoded[i], orig[i])
		}
	}
}

func TestDecodeInvalidLength(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 7} {
		_, err := Decode(make([]byte, n))
		if !errors.Is(err, ErrInvalidLength) {
			t.Errorf("Decode(%d bytes) error = %v, want ErrInvalidLength", n, err)
		}
	}
}

func TestEncodeDecodeEmpty(t *testing.T) {
	if b := Encode(nil); len(b) != 0 {
		t.Fatalf("Encode(nil) = %d bytes, want 0", len(b))
	}
	v, err := Decode(nil)
	if err != nil {
		t.Fatalf("Decode(nil) failed: %v", err)
	}
	if len(v) != 0 {
		t.Fatalf("Decode(nil) = %d elements, want 0", len(v))
	}
}
