package gallery

import (
	"fmt"

	"face-attendance-go/internal/recognition"

	log "github.com/sirupsen/logrus"
)

// Registry turns the on-disk galleries into the live profile set.
type Registry struct {
	store *Store
	set   *recognition.ProfileSet
	index *CentroidIndex
	log   *log.Entry
}

// NewRegistry wires a store to a profile set.
func NewRegistry(store *Store, set *recognition.ProfileSet, logger *log.Entry) *Registry {
	if logger == nil {
		logger = log.WithField("component", "profiles")
	}
	return &Registry{store: store, set: set, index: NewCentroidIndex(), log: logger}
}

// Store returns the underlying gallery store.
func (r *Registry) Store() *Store { return r.store }

// Profiles returns the active profile set.
func (r *Registry) Profiles() *recognition.ProfileSet { return r.set }

// Reload rebuilds every profile from disk and swaps the set in one step.
// Identities without valid samples are left out.
func (r *Registry) Reload() (int, error) {
	galleries, err := r.store.Load()
	if err != nil {
		return 0, fmt.Errorf("failed to load galleries: %w", err)
	}

	profiles := make([]*recognition.Profile, 0, len(galleries))
	for _, g := range galleries {
		if len(g.Samples) == 0 {
			r.log.Warnf("Identity %s has no valid embeddings, skipping", g.Identity.Folder)
			continue
		}
		p := recognition.BuildProfile(g.Identity.Label(), g.Identity.Folder, g.Embeddings(), r.store.Neural())
		profiles = append(profiles, p)
		r.log.Debugf("Profile %s: %d samples, tightness=%.3f, threshold=%.3f, margin=%.3f",
			p.Label, len(p.Gallery), p.Tightness, p.AbsoluteThreshold, p.RelativeMargin)
	}

	r.set.Swap(profiles)
	r.index.Build(profiles)
	r.log.Infof("Loaded %d profiles (frame skip %d)", len(profiles), r.set.AdaptiveFrameSkip())
	return len(profiles), nil
}

// NearestOther returns the profile closest to p among all other profiles
// together with its cosine distance.
func (r *Registry) NearestOther(p *recognition.Profile) (string, float64, bool) {
	return r.index.Nearest(p.Centroid, p.GalleryRef)
}

// Profile looks up the active profile for a gallery folder.
func (r *Registry) Profile(folder string) (*recognition.Profile, bool) {
	for _, p := range r.set.Snapshot() {
		if p.GalleryRef == folder {
			return p, true
		}
	}
	return nil, false
}
