package recognition

import (
	"math"
	"testing"

	"face-attendance-go/internal/embedding"
)

func TestHistoryConsistencyWindow(t *testing.T) {
	tests := []struct {
		name       string
		sequence   []int
		idx        int
		wantCount  int
		consistent bool
	}{
		{name: "five of seven", sequence: []int{0, 1, 0, 0, 1, 0, 0}, idx: 0, wantCount: 5, consistent: true},
		{name: "four of seven", sequence: []int{0, 1, 0, 1, 1, 0, 0}, idx: 0, wantCount: 4, consistent: false},
		{name: "old votes fall out", sequence: []int{0, 0, 0, 0, 0, 1, 1, 1}, idx: 0, wantCount: 4, consistent: false},
		{name: "rejections do not count", sequence: []int{-1, -1, -1, -1, -1}, idx: -1, wantCount: 0, consistent: false},
		{name: "empty", sequence: nil, idx: 2, wantCount: 0, consistent: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTemporalHistory(DefaultConsistencyWindow, DefaultConsistencyMin, DefaultSmoothingWindow, true)
			for _, p := range tt.sequence {
				h.RecordPrediction(p)
			}
			if got := h.CountMatches(tt.idx); got != tt.wantCount {
				t.Errorf("CountMatches() = %d, want %d", got, tt.wantCount)
			}
			if got := h.IsConsistent(tt.idx); got != tt.consistent {
				t.Errorf("IsConsistent() = %v, want %v", got, tt.consistent)
			}
		})
	}
}

func TestHistoryClampsWindow(t *testing.T) {
	h := NewTemporalHistory(50, 40, 0, false)
	if h.Window() != 20 || h.MinCount() != 20 {
		t.Fatalf("window=%d min=%d, want 20/20", h.Window(), h.MinCount())
	}
	h = NewTemporalHistory(0, 0, 0, false)
	if h.Window() != 1 || h.MinCount() != 1 {
		t.Fatalf("window=%d min=%d, want 1/1", h.Window(), h.MinCount())
	}
}

func TestBuildSmoothedEmbedding(t *testing.T) {
	h := NewTemporalHistory(7, 5, 5, false)
	h.RecordEmbedding(embedding.EncodeFloat64([]float64{1, 0}))
	if h.BuildSmoothedEmbedding() != nil {
		t.Fatal("single sample must not smooth")
	}
	h.RecordEmbedding(embedding.EncodeFloat64([]float64{0, 1}))

	got := embedding.DecodeFloat64(h.BuildSmoothedEmbedding())
	// weights 1/2 and 2/2, normalized: (1/3, 2/3) then unit length
	want := embedding.Normalize([]float64{1.0 / 3, 2.0 / 3})
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("smoothed = %v, want %v", got, want)
		}
	}
	if m := embedding.Magnitude(got); math.Abs(m-1) > 1e-6 {
		t.Fatalf("magnitude = %v", m)
	}
}

func TestSmoothingWindowEvicts(t *testing.T) {
	h := NewTemporalHistory(7, 5, 2, true)
	h.RecordEmbedding(embedding.EncodeFloat32([]float64{1, 0, 0}))
	h.RecordEmbedding(embedding.EncodeFloat32([]float64{0, 1, 0}))
	h.RecordEmbedding(embedding.EncodeFloat32([]float64{0, 1, 0}))

	got := embedding.DecodeFloat32(h.BuildSmoothedEmbedding())
	if math.Abs(got[0]) > 1e-6 || math.Abs(got[1]-1) > 1e-6 {
		t.Fatalf("oldest embedding should have been evicted, got %v", got)
	}

	h.Reset()
	if h.BuildSmoothedEmbedding() != nil || h.CountMatches(0) != 0 {
		t.Fatal("reset must clear both windows")
	}
}
