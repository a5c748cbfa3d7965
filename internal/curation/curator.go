// Package curation removes outlier and weak samples from a freshly captured
// embedding gallery.
package curation

import (
	"fmt"
	"math"

	"face-attendance-go/internal/embedding"

	log "github.com/sirupsen/logrus"
)

const (
	outlierFloor       = 0.50
	outlierSigmas      = 2.0
	weakFloor          = 0.40
	weakSigmas         = 0.5
	weakAbsolute       = 0.58
	retentionRatio     = 0.70
	minRetained        = 6
	minOutlierSamples  = 5
	minWeakPassSamples = 3
)

// Sample is one captured embedding together with its on-disk artefacts.
type Sample struct {
	ID            string
	Embedding     []byte
	EmbeddingPath string
	ImagePath     string
}

// Reasons passed to Remover.
const (
	ReasonOutlier = "outlier"
	ReasonWeak    = "weak"
)

// Remover deletes a sample's embedding and source image.
type Remover interface {
	RemoveSample(s Sample, reason string) error
}

// BatchCurationResult summarises one capture batch.
type BatchCurationResult struct {
	ProcessedCount      int    `json:"processed_count"`
	RemovedOutlierCount int    `json:"removed_outlier_count"`
	RemovedWeakCount    int    `json:"removed_weak_count"`
	Message             string `json:"message"`
}

// Curator runs the outlier and weak-sample passes.
type Curator struct {
	neural  bool
	remover Remover
	log     *log.Entry
}

// NewCurator creates a curator for embeddings in the given encoding.
func NewCurator(neural bool, remover Remover, logger *log.Entry) *Curator {
	if logger == nil {
		logger = log.WithField("component", "curator")
	}
	return &Curator{neural: neural, remover: remover, log: logger}
}

// RetentionFloor is the minimum number of samples kept from a batch of n.
func RetentionFloor(n int) int {
	return max(minRetained, int(math.Ceil(retentionRatio*float64(n))))
}

// Curate prunes samples and returns the kept ones in their original order.
func (c *Curator) Curate(samples []Sample) ([]Sample, BatchCurationResult) {
	result := BatchCurationResult{ProcessedCount: len(samples)}
	if len(samples) > 0 {
		result.Message = fmt.Sprintf("Successfully processed %d embeddings", len(samples))
	} else {
		result.Message = "Failed to process embeddings"
	}

	kept := make([]Sample, len(samples))
	copy(kept, samples)
	if len(kept) < minOutlierSamples {
		return kept, result
	}

	floor := RetentionFloor(len(samples))

	avg := c.averageSimilarities(kept)
	mean, std := meanStd(avg)
	threshold := math.Max(outlierFloor, mean-outlierSigmas*std)
	var candidates []int
	for i, s := range avg {
		if s < threshold {
			candidates = append(candidates, i)
		}
	}
	kept, result.RemovedOutlierCount = c.removeDescending(kept, candidates, floor, ReasonOutlier)
	if result.RemovedOutlierCount > 0 {
		c.log.Infof("Auto-removed %d outlier embedding(s) (threshold %.3f)", result.RemovedOutlierCount, threshold)
	}

	if len(kept) < minWeakPassSamples {
		return kept, result
	}

	avg = c.averageSimilarities(kept)
	mean, std = meanStd(avg)
	weakThreshold := math.Max(weakFloor, mean-weakSigmas*std)
	candidates = candidates[:0]
	for i, s := range avg {
		if s < weakThreshold || s < weakAbsolute {
			candidates = append(candidates, i)
		}
	}
	kept, result.RemovedWeakCount = c.removeDescending(kept, candidates, floor, ReasonWeak)
	if result.RemovedWeakCount > 0 {
		c.log.Infof("Auto-removed %d weak embedding(s) (threshold %.3f)", result.RemovedWeakCount, weakThreshold)
	}
	return kept, result
}

// removeDescending drops candidates from the highest index down, skipping
// any removal that would leave fewer than floor samples.
func (c *Curator) removeDescending(samples []Sample, candidates []int, floor int, kind string) ([]Sample, int) {
	removed := 0
	for k := len(candidates) - 1; k >= 0; k-- {
		idx := candidates[k]
		if len(samples)-1 < floor {
			c.log.Debugf("Keeping %s sample %s to honour retention floor %d", kind, samples[idx].ID, floor)
			continue
		}
		if c.remover != nil {
			if err := c.remover.RemoveSample(samples[idx], kind); err != nil {
				c.log.Warnf("Failed to remove %s sample %s: %v", kind, samples[idx].ID, err)
				continue
			}
		}
		samples = append(samples[:idx], samples[idx+1:]...)
		removed++
	}
	return samples, removed
}

// averageSimilarities returns each sample's mean cosine similarity to all
// other samples. Undecodable samples score 0.
func (c *Curator) averageSimilarities(samples []Sample) []float64 {
	vecs := make([][]float64, len(samples))
	for i, s := range samples {
		vecs[i] = embedding.Decode(s.Embedding, c.neural)
	}

	avg := make([]float64, len(samples))
	if len(samples) < 2 {
		return avg
	}
	for i := range vecs {
		var sum float64
		for j := range vecs {
			if i != j {
				sum += embedding.Cosine(vecs[i], vecs[j])
			}
		}
		avg[i] = sum / float64(len(vecs)-1)
	}
	return avg
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / float64(len(values)))
}
