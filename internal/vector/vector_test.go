package vector

import (
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []float32{0.5, -1.25, 3.75, 0}
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d values, got %d", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("value %d: expected %v, got %v", i, in[i], out[i])
		}
	}
}

func TestDecodeRejectsTruncatedBlob(t *testing.T) {
	blob := Encode([]float32{1, 2, 3})
	if _, err := Decode(blob[:len(blob)-1]); err == nil {
		t.Fatal("expected error for truncated blob")
	}
}

func TestCosineIdenticalVectors(t *testing.T) {
	v := []float32{0.3, 0.4, 0.5}
	if got := Cosine(v, v); math.Abs(got-1.0) > 1e-6 {
		t.Errorf("expected 1.0 for identical vectors, got %v", got)
	}
}

func TestCosineOrthogonalVectors(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if got := Cosine(a, b); math.Abs(got) > 1e-6 {
		t.Errorf("expected 0 for orthogonal vectors, got %v", got)
	}
}

func TestCosineOppositeVectors(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-1, -2, -3}
	if got := Cosine(a, b); math.Abs(got+1.0) > 1e-6 {
		t.Errorf("expected -1.0 for opposite vectors, got %v", got)
	}
}

func TestCosineZeroNormIsZero(t *testing.T) {
	if got := Cosine([]float32{0, 0, 0}, []float32{1, 2, 3}); got != 0 {
		t.Errorf("expected 0 for zero-norm vector, got %v", got)
	}
}

func TestCosineLengthMismatchIsZero(t *testing.T) {
	if got := Cosine([]float32{1, 2}, []float32{1, 2, 3}); got != 0 {
		t.Errorf("expected 0 for mismatched lengths, got %v", got)
	}
}
