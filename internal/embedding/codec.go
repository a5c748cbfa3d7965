// Package embedding enthält die binäre Kodierung, Normalisierung und
// Validierung von Gesichts-Embeddings.
package embedding

import (
	"encoding/binary"
	"math"
)

// Element sizes of the persisted layout.
const (
	Float32Size = 4
	Float64Size = 8
)

// normEpsilon guards the L2 division against zero vectors.
const normEpsilon = 1e-12

// ElementSize returns the encoded element width for the active mode.
func ElementSize(neural bool) int {
	if neural {
		return Float32Size
	}
	return Float64Size
}

// EncodeFloat32 writes v as a flat big-endian float32 array.
func EncodeFloat32(v []float64) []byte {
	out := make([]byte, len(v)*Float32Size)
	for i, x := range v {
		binary.BigEndian.PutUint32(out[i*Float32Size:], math.Float32bits(float32(x)))
	}
	return out
}

// EncodeFloat64 writes v as a flat big-endian float64 array.
func EncodeFloat64(v []float64) []byte {
	out := make([]byte, len(v)*Float64Size)
	for i, x := range v {
		binary.BigEndian.PutUint64(out[i*Float64Size:], math.Float64bits(x))
	}
	return out
}

// Encode picks the element width for the active mode.
func Encode(v []float64, neural bool) []byte {
	if neural {
		return EncodeFloat32(v)
	}
	return EncodeFloat64(v)
}

// DecodeFloat32 reads a big-endian float32 array. Returns nil when the
// byte length is not a multiple of four.
func DecodeFloat32(b []byte) []float64 {
	if len(b) == 0 || len(b)%Float32Size != 0 {
		return nil
	}
	out := make([]float64, len(b)/Float32Size)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(b[i*Float32Size:])))
	}
	return out
}

// DecodeFloat64 reads a big-endian float64 array.
func DecodeFloat64(b []byte) []float64 {
	if len(b) == 0 || len(b)%Float64Size != 0 {
		return nil
	}
	out := make([]float64, len(b)/Float64Size)
	for i := range out {
		out[i] = math.Float64frombits(binary.BigEndian.Uint64(b[i*Float64Size:]))
	}
	return out
}

// Decode reads an embedding in the layout of the active mode.
func Decode(b []byte, neural bool) []float64 {
	if neural {
		return DecodeFloat32(b)
	}
	return DecodeFloat64(b)
}

// Magnitude returns the L2 norm of v.
func Magnitude(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. Zero vectors stay zero.
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	NormalizeInPlace(out)
	return out
}

// NormalizeInPlace scales v to unit length.
func NormalizeInPlace(v []float64) {
	norm := math.Max(Magnitude(v), normEpsilon)
	for i := range v {
		v[i] /= norm
	}
}

// Cosine returns the cosine similarity of a and b. Mismatched or empty
// vectors yield 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// HasNonFinite reports whether v contains NaN or Inf.
func HasNonFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}
