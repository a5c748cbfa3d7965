// Package recognition scores live embeddings against enrolled profiles and
// turns the scores into accept/reject decisions.
package recognition

import (
	"math"
	"sync/atomic"

	"face-attendance-go/internal/embedding"
)

// Profile is an enrolled identity's gallery with derived statistics. It is
// never mutated after BuildProfile returns.
type Profile struct {
	Label             string
	GalleryRef        string
	Gallery           [][]byte
	Centroid          []float64
	Tightness         float64
	AbsoluteThreshold float64
	RelativeMargin    float64
	StdDev            float64
}

// HasEmbeddings reports whether the profile carries any samples.
func (p *Profile) HasEmbeddings() bool {
	return len(p.Gallery) > 0
}

const (
	liveThresholdRelaxation = 0.85
	minLiveThreshold        = 0.48
	glassesStdDev           = 0.12
)

// BuildProfile computes centroid, tightness, spread and decision
// thresholds for one identity's gallery.
func BuildProfile(label, ref string, gallery [][]byte, neural bool) *Profile {
	vecs := make([][]float64, 0, len(gallery))
	for _, b := range gallery {
		if v := embedding.Decode(b, neural); v != nil {
			vecs = append(vecs, v)
		}
	}

	centroid := centroidOf(vecs)
	tightness := tightnessOf(vecs)
	stdDev := spreadOf(vecs, centroid)

	baseAbsolute, baseMargin := 0.55, 0.12
	if neural {
		baseAbsolute, baseMargin = 0.60, 0.10
	}
	// Wide spread usually means glasses on/off or strong lighting changes.
	if stdDev > glassesStdDev {
		baseAbsolute *= math.Max(0.88, 0.95-stdDev*0.5)
		baseMargin *= 0.85
	}

	training := baseAbsolute + (1-tightness)*0.10
	return &Profile{
		Label:             label,
		GalleryRef:        ref,
		Gallery:           gallery,
		Centroid:          centroid,
		Tightness:         tightness,
		AbsoluteThreshold: math.Max(minLiveThreshold, training*liveThresholdRelaxation),
		RelativeMargin:    baseMargin + (1-tightness)*0.10,
		StdDev:            stdDev,
	}
}

func centroidOf(vecs [][]float64) []float64 {
	if len(vecs) == 0 {
		return nil
	}
	c := make([]float64, len(vecs[0]))
	n := 0
	for _, v := range vecs {
		if len(v) != len(c) {
			continue
		}
		for i, x := range v {
			c[i] += x
		}
		n++
	}
	for i := range c {
		c[i] /= float64(n)
	}
	embedding.NormalizeInPlace(c)
	return c
}

func tightnessOf(vecs [][]float64) float64 {
	if len(vecs) < 2 {
		return 1.0
	}
	var sum float64
	pairs := 0
	for i := range vecs {
		for j := i + 1; j < len(vecs); j++ {
			sum += embedding.Cosine(vecs[i], vecs[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

func spreadOf(vecs [][]float64, centroid []float64) float64 {
	if len(vecs) < 2 || centroid == nil {
		return 0
	}
	sims := make([]float64, len(vecs))
	var mean float64
	for i, v := range vecs {
		sims[i] = embedding.Cosine(v, centroid)
		mean += sims[i]
	}
	mean /= float64(len(sims))
	var variance float64
	for _, s := range sims {
		variance += (s - mean) * (s - mean)
	}
	return math.Sqrt(variance / float64(len(sims)))
}

// ProfileSet holds the current immutable profile list. Reload swaps the
// whole list; readers never see a partial update.
type ProfileSet struct {
	current atomic.Pointer[[]*Profile]
}

// NewProfileSet creates an empty set.
func NewProfileSet() *ProfileSet {
	s := &ProfileSet{}
	empty := []*Profile{}
	s.current.Store(&empty)
	return s
}

// Snapshot returns the profile list active at call time.
func (s *ProfileSet) Snapshot() []*Profile {
	return *s.current.Load()
}

// Swap replaces the profile list.
func (s *ProfileSet) Swap(profiles []*Profile) {
	cp := make([]*Profile, len(profiles))
	copy(cp, profiles)
	s.current.Store(&cp)
}

// Len returns the number of active profiles.
func (s *ProfileSet) Len() int {
	return len(s.Snapshot())
}

// AdaptiveFrameSkip returns how many frames a track waits between full
// recognitions; larger galleries cost more per frame.
func (s *ProfileSet) AdaptiveFrameSkip() int {
	switch n := s.Len(); {
	case n <= 5:
		return 2
	case n <= 20:
		return 3
	default:
		return 4
	}
}
