package recognition

import (
	"face-attendance-go/internal/embedding"
)

// Window limits.
const (
	DefaultConsistencyWindow = 7
	DefaultConsistencyMin    = 5
	DefaultSmoothingWindow   = 5
	maxWindow                = 20
)

// TemporalHistory is the sliding window of recent predictions and
// embeddings for one track. It is not safe for concurrent use.
type TemporalHistory struct {
	window      int
	minCount    int
	smoothing   int
	neural      bool
	predictions []int
	embeddings  [][]float64
}

// NewTemporalHistory creates a history. window is clamped to [1,20] and
// minCount to [1,window].
func NewTemporalHistory(window, minCount, smoothing int, neural bool) *TemporalHistory {
	window = min(max(window, 1), maxWindow)
	minCount = min(max(minCount, 1), window)
	if smoothing < 1 {
		smoothing = DefaultSmoothingWindow
	}
	return &TemporalHistory{
		window:      window,
		minCount:    minCount,
		smoothing:   smoothing,
		neural:      neural,
		predictions: make([]int, 0, window),
		embeddings:  make([][]float64, 0, smoothing),
	}
}

// Window returns the prediction window size.
func (h *TemporalHistory) Window() int { return h.window }

// MinCount returns the votes needed for a consistent verdict.
func (h *TemporalHistory) MinCount() int { return h.minCount }

// RecordPrediction appends a profile index, evicting the oldest entry once
// the window is full. Rejected frames may be recorded as -1.
func (h *TemporalHistory) RecordPrediction(idx int) {
	if len(h.predictions) >= h.window {
		h.predictions = h.predictions[1:]
	}
	h.predictions = append(h.predictions, idx)
}

// CountMatches returns how often idx appears in the window. Negative
// indices never match.
func (h *TemporalHistory) CountMatches(idx int) int {
	if idx < 0 {
		return 0
	}
	n := 0
	for _, p := range h.predictions {
		if p == idx {
			n++
		}
	}
	return n
}

// IsConsistent reports whether idx appears at least minCount times.
func (h *TemporalHistory) IsConsistent(idx int) bool {
	if idx < 0 {
		return false
	}
	return h.CountMatches(idx) >= h.minCount
}

// RecordEmbedding appends an encoded embedding to the smoothing window.
// Undecodable input is ignored.
func (h *TemporalHistory) RecordEmbedding(b []byte) {
	v := embedding.Decode(b, h.neural)
	if v == nil {
		return
	}
	if len(h.embeddings) >= h.smoothing {
		h.embeddings = h.embeddings[1:]
	}
	h.embeddings = append(h.embeddings, v)
}

// BuildSmoothedEmbedding returns a linearly weighted average of the stored
// embeddings, newest weighted highest, re-normalized and encoded. Returns
// nil with fewer than two samples.
func (h *TemporalHistory) BuildSmoothedEmbedding() []byte {
	if len(h.embeddings) < 2 {
		return nil
	}
	dim := len(h.embeddings[0])
	acc := make([]float64, dim)
	var total float64
	for i, v := range h.embeddings {
		if len(v) != dim {
			continue
		}
		w := float64(i+1) / float64(len(h.embeddings))
		for j, x := range v {
			acc[j] += w * x
		}
		total += w
	}
	for j := range acc {
		acc[j] /= total
	}
	embedding.NormalizeInPlace(acc)
	return embedding.Encode(acc, h.neural)
}

// Reset clears both windows.
func (h *TemporalHistory) Reset() {
	h.predictions = h.predictions[:0]
	h.embeddings = h.embeddings[:0]
}
