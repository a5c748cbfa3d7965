package embedding

import "math"

const (
	minMagnitude      = 1e-10
	nonZeroEpsilon    = 1e-12
	minNonZeroPortion = 0.05
)

// Validator prüft erzeugte Embeddings auf Plausibilität.
type Validator struct {
	size int
}

// NewValidator creates a validator for vectors of the given dimensionality.
func NewValidator(size int) *Validator {
	return &Validator{size: size}
}

// Size returns the expected dimensionality.
func (v *Validator) Size() int {
	return v.size
}

// IsValid checks the byte length for the active encoding, finiteness,
// magnitude and sparsity.
func (v *Validator) IsValid(b []byte, usingNeural bool) bool {
	if len(b) != v.size*ElementSize(usingNeural) {
		return false
	}
	vec := Decode(b, usingNeural)
	if vec == nil || HasNonFinite(vec) {
		return false
	}
	if Magnitude(vec) < minMagnitude {
		return false
	}

	nonZero := 0
	for _, x := range vec {
		if math.Abs(x) > nonZeroEpsilon {
			nonZero++
		}
	}
	return float64(nonZero)/float64(v.size) >= minNonZeroPortion
}
