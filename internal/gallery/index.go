package gallery

import (
	"sync"

	"face-attendance-go/internal/recognition"

	"github.com/coder/hnsw"
)

// DuplicateDistance is the cosine distance below which two identity
// centroids are reported as a likely double enrollment.
const DuplicateDistance = 0.35

const indexMaxNeighbors = 16

// CentroidIndex is an HNSW graph over profile centroids keyed by gallery
// folder.
type CentroidIndex struct {
	graph *hnsw.Graph[string]
	mu    sync.RWMutex
}

// NewCentroidIndex creates an empty index.
func NewCentroidIndex() *CentroidIndex {
	return &CentroidIndex{}
}

// Build replaces the graph with the centroids of profiles.
func (c *CentroidIndex) Build(profiles []*recognition.Profile) {
	g := hnsw.NewGraph[string]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	added := 0
	for _, p := range profiles {
		if len(p.Centroid) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(p.GalleryRef, toFloat32(p.Centroid)))
		added++
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if added == 0 {
		c.graph = nil
		return
	}
	c.graph = g
}

// Nearest returns the closest centroid other than exclude.
func (c *CentroidIndex) Nearest(vec []float64, exclude string) (string, float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.graph == nil || len(vec) == 0 {
		return "", 0, false
	}

	q := toFloat32(vec)
	for _, n := range c.graph.Search(q, 2) {
		if n.Key == exclude {
			continue
		}
		return n.Key, float64(hnsw.CosineDistance(q, n.Value)), true
	}
	return "", 0, false
}

// Len returns the number of indexed centroids.
func (c *CentroidIndex) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.graph == nil {
		return 0
	}
	return c.graph.Len()
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
