package embedding

import (
	"math"
	"testing"
)

func TestValidatorIsValid(t *testing.T) {
	const size = 100
	v := NewValidator(size)

	dense := make([]float64, size)
	for i := range dense {
		dense[i] = float64(i%7) - 3
	}
	dense = Normalize(dense)

	sparse := make([]float64, size)
	sparse[0], sparse[1], sparse[2], sparse[3] = 1, 1, 1, 1

	border := make([]float64, size)
	for i := 0; i < 5; i++ {
		border[i] = 1
	}

	withNaN := Normalize(dense)
	withNaN[10] = math.NaN()

	withInf := Normalize(dense)
	withInf[3] = math.Inf(-1)

	tests := []struct {
		name   string
		bytes  []byte
		neural bool
		want   bool
	}{
		{name: "dense float32", bytes: EncodeFloat32(dense), neural: true, want: true},
		{name: "dense float64", bytes: EncodeFloat64(dense), neural: false, want: true},
		{name: "wrong width for mode", bytes: EncodeFloat32(dense), neural: false, want: false},
		{name: "short", bytes: EncodeFloat32(dense[:50]), neural: true, want: false},
		{name: "nan", bytes: EncodeFloat64(withNaN), neural: false, want: false},
		{name: "inf", bytes: EncodeFloat64(withInf), neural: false, want: false},
		{name: "zero", bytes: EncodeFloat64(make([]float64, size)), neural: false, want: false},
		{name: "too sparse", bytes: EncodeFloat64(sparse), neural: false, want: false},
		{name: "exactly five percent", bytes: EncodeFloat64(border), neural: false, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.IsValid(tt.bytes, tt.neural); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}
