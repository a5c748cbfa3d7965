package embedding

import (
	"math"
	"math/rand"
	"testing"
)

func randomVector(r *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = r.NormFloat64()
	}
	return v
}

func TestRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	tests := []struct {
		name   string
		neural bool
		vec    []float64
	}{
		{name: "float32 unit", neural: true, vec: Normalize(randomVector(r, 512))},
		{name: "float64 unit", neural: false, vec: Normalize(randomVector(r, 512))},
		{name: "float64 raw", neural: false, vec: randomVector(r, 64)},
		{name: "float32 small", neural: true, vec: []float64{0.5, -0.25, 0.125}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Encode(tt.vec, tt.neural)
			if len(b) != len(tt.vec)*ElementSize(tt.neural) {
				t.Fatalf("encoded length = %d, want %d", len(b), len(tt.vec)*ElementSize(tt.neural))
			}
			got := Decode(b, tt.neural)
			if len(got) != len(tt.vec) {
				t.Fatalf("decoded length = %d, want %d", len(got), len(tt.vec))
			}
			for i := range got {
				tol := 1e-6
				if tt.neural {
					tol = 1e-6 * math.Max(1, math.Abs(tt.vec[i]))
				}
				if math.Abs(got[i]-tt.vec[i]) > tol {
					t.Fatalf("component %d = %v, want %v", i, got[i], tt.vec[i])
				}
			}
		})
	}
}

func TestBigEndianLayout(t *testing.T) {
	b := EncodeFloat32([]float64{1})
	want := []byte{0x3f, 0x80, 0x00, 0x00}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, b[i], want[i])
		}
	}
	if DecodeFloat32([]byte{1, 2, 3}) != nil {
		t.Fatal("expected nil for truncated input")
	}
	if DecodeFloat64(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestNormalizeUnitLength(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 50; i++ {
		v := randomVector(r, 1+r.Intn(600))
		if Magnitude(v) == 0 {
			continue
		}
		if m := Magnitude(Normalize(v)); math.Abs(m-1) > 1e-6 {
			t.Fatalf("magnitude after normalize = %v", m)
		}
	}

	zero := Normalize(make([]float64, 4))
	for _, x := range zero {
		if x != 0 {
			t.Fatalf("zero vector changed: %v", zero)
		}
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{name: "identical", a: []float64{1, 2, 3}, b: []float64{1, 2, 3}, want: 1},
		{name: "opposite", a: []float64{1, 0}, b: []float64{-1, 0}, want: -1},
		{name: "orthogonal", a: []float64{1, 0}, b: []float64{0, 1}, want: 0},
		{name: "length mismatch", a: []float64{1}, b: []float64{1, 0}, want: 0},
		{name: "zero", a: []float64{0, 0}, b: []float64{1, 0}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}
