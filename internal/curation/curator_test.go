package curation

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"face-attendance-go/internal/embedding"
)

const dim = 32

type recordingRemover struct {
	removed []string
	fail    map[string]bool
}

func (r *recordingRemover) RemoveSample(s Sample, reason string) error {
	if r.fail[s.ID] {
		return errors.New("disk busy")
	}
	r.removed = append(r.removed, s.ID)
	return nil
}

func axis(k int) []float64 {
	v := make([]float64, dim)
	v[k] = 1
	return v
}

func clusterSample(i int) Sample {
	v := axis(0)
	v[1+i] = 0.05
	return Sample{ID: fmt.Sprintf("c%d", i), Embedding: embedding.EncodeFloat64(embedding.Normalize(v))}
}

func randomSamples(r *rand.Rand, n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		v := make([]float64, dim)
		for j := range v {
			v[j] = r.NormFloat64()
		}
		out[i] = Sample{ID: fmt.Sprintf("s%d", i), Embedding: embedding.EncodeFloat64(embedding.Normalize(v))}
	}
	return out
}

func ids(samples []Sample) []string {
	out := make([]string, len(samples))
	for i, s := range samples {
		out[i] = s.ID
	}
	return out
}

func TestCurateRemovesOutliers(t *testing.T) {
	var samples []Sample
	for i := 0; i < 10; i++ {
		samples = append(samples, clusterSample(i))
	}
	samples = append(samples,
		Sample{ID: "o1", Embedding: embedding.EncodeFloat64(axis(20))},
		Sample{ID: "o2", Embedding: embedding.EncodeFloat64(axis(21))},
	)

	rm := &recordingRemover{}
	kept, res := NewCurator(false, rm, nil).Curate(samples)

	if res.ProcessedCount != 12 {
		t.Errorf("ProcessedCount = %d, want 12", res.ProcessedCount)
	}
	if res.RemovedOutlierCount != 2 {
		t.Fatalf("RemovedOutlierCount = %d, want 2", res.RemovedOutlierCount)
	}
	if rm.removed[0] != "o2" || rm.removed[1] != "o1" {
		t.Errorf("removal order = %v, want highest index first", rm.removed[:2])
	}
	for _, s := range kept {
		if s.ID == "o1" || s.ID == "o2" {
			t.Errorf("outlier %s survived", s.ID)
		}
	}
	if len(kept) < RetentionFloor(12) {
		t.Errorf("kept %d, below floor %d", len(kept), RetentionFloor(12))
	}
	if res.Message != "Successfully processed 12 embeddings" {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestCurateRetentionFloor(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for n := 5; n <= 30; n++ {
		samples := randomSamples(r, n)
		kept, res := NewCurator(false, &recordingRemover{}, nil).Curate(samples)
		floor := RetentionFloor(n)
		if n >= floor && len(kept) < floor {
			t.Fatalf("n=%d: kept %d, floor %d", n, len(kept), floor)
		}
		if len(kept)+res.RemovedOutlierCount+res.RemovedWeakCount != n {
			t.Fatalf("n=%d: counts do not add up: kept=%d result=%+v", n, len(kept), res)
		}
	}
}

func TestCurateDeterministic(t *testing.T) {
	samples := randomSamples(rand.New(rand.NewSource(3)), 20)

	first := &recordingRemover{}
	keptA, _ := NewCurator(false, first, nil).Curate(samples)
	second := &recordingRemover{}
	keptB, _ := NewCurator(false, second, nil).Curate(samples)

	if !reflect.DeepEqual(first.removed, second.removed) {
		t.Fatalf("removal sets differ: %v vs %v", first.removed, second.removed)
	}
	if !reflect.DeepEqual(ids(keptA), ids(keptB)) {
		t.Fatalf("kept sets differ")
	}
	if len(samples) != 20 || samples[19].ID != "s19" {
		t.Fatal("input slice was modified")
	}
}

func TestCurateSmallBatchUntouched(t *testing.T) {
	samples := randomSamples(rand.New(rand.NewSource(5)), 4)
	rm := &recordingRemover{}
	kept, res := NewCurator(false, rm, nil).Curate(samples)
	if len(kept) != 4 || len(rm.removed) != 0 {
		t.Fatalf("small batch was pruned: kept=%d removed=%v", len(kept), rm.removed)
	}
	if res.RemovedOutlierCount != 0 || res.RemovedWeakCount != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	_, empty := NewCurator(false, rm, nil).Curate(nil)
	if empty.Message != "Failed to process embeddings" {
		t.Errorf("Message = %q", empty.Message)
	}
}

func TestCurateKeepsSampleWhenRemovalFails(t *testing.T) {
	var samples []Sample
	for i := 0; i < 10; i++ {
		samples = append(samples, clusterSample(i))
	}
	samples = append(samples, Sample{ID: "o1", Embedding: embedding.EncodeFloat64(axis(20))})

	rm := &recordingRemover{fail: map[string]bool{"o1": true}}
	kept, res := NewCurator(false, rm, nil).Curate(samples)
	found := false
	for _, s := range kept {
		if s.ID == "o1" {
			found = true
		}
	}
	if !found {
		t.Fatal("sample whose files could not be removed must stay in the gallery")
	}
	if res.RemovedOutlierCount != 0 {
		t.Errorf("RemovedOutlierCount = %d, want 0", res.RemovedOutlierCount)
	}
}

func TestRetentionFloor(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{5, 6}, {8, 6}, {9, 7}, {10, 7}, {20, 14}, {21, 15},
	}
	for _, tt := range tests {
		if got := RetentionFloor(tt.n); got != tt.want {
			t.Errorf("RetentionFloor(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}
