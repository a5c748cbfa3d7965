// Package enrollment stores captured faces of an identity, curates the
// gallery and refreshes the live profiles.
package enrollment

import (
	"errors"
	"fmt"
	"sync"

	"face-attendance-go/internal/core/models"
	"face-attendance-go/internal/curation"
	"face-attendance-go/internal/db/repository"
	"face-attendance-go/internal/gallery"
	"face-attendance-go/internal/mqtt"
	"face-attendance-go/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// ErrNoUsableCaptures is returned when every capture of a batch failed.
var ErrNoUsableCaptures = errors.New("no usable captures")

// Capture is one enrolled face: its embedding and the JPEG it came from.
type Capture struct {
	Embedding []byte
	Image     []byte
}

// Result describes one enrollment or curation run.
type Result struct {
	Identity gallery.Identity             `json:"identity"`
	Saved    int                          `json:"saved"`
	Skipped  int                          `json:"skipped"`
	Curation curation.BatchCurationResult `json:"curation"`
	// NearestIdentity is set when another identity's centroid is closer
	// than gallery.DuplicateDistance.
	NearestIdentity string  `json:"nearest_identity,omitempty"`
	NearestDistance float64 `json:"nearest_distance,omitempty"`
}

// Service runs enrollment and curation against the gallery and database.
type Service struct {
	registry  *gallery.Registry
	repo      repository.Repository
	publisher *mqtt.Publisher
	log       *log.Entry

	// serializes writers of one gallery
	mu sync.Mutex
}

// NewService creates the enrollment service. publisher may be nil.
func NewService(registry *gallery.Registry, repo repository.Repository, publisher *mqtt.Publisher, logger *log.Entry) *Service {
	if publisher == nil {
		publisher = mqtt.NewPublisher(nil)
	}
	if logger == nil {
		logger = log.WithField("component", "enrollment")
	}
	return &Service{registry: registry, repo: repo, publisher: publisher, log: logger}
}

// Enroll saves the valid captures for id/name, curates the identity's
// gallery and reloads the profiles.
func (s *Service) Enroll(id, name string, captures []Capture) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	store := s.registry.Store()
	identity, err := store.EnsureIdentity(id, name)
	if err != nil {
		return Result{}, err
	}
	row, err := s.identityRow(identity)
	if err != nil {
		return Result{}, err
	}

	res := Result{Identity: identity}
	for i, c := range captures {
		if !store.Valid(c.Embedding) {
			s.log.Warnf("Capture %d of %s has an invalid embedding, skipping", i+1, identity.Folder)
			res.Skipped++
			continue
		}
		sample, err := store.SaveSample(identity, c.Embedding, c.Image)
		if err != nil {
			return res, fmt.Errorf("failed to save capture %d: %w", i+1, err)
		}
		if err := s.repo.SaveSample(&models.Sample{
			IdentityID:    row.ID,
			FileID:        sample.ID,
			EmbeddingPath: sample.EmbeddingPath,
			ImagePath:     sample.ImagePath,
			Neural:        store.Neural(),
		}); err != nil {
			return res, fmt.Errorf("failed to record capture %d: %w", i+1, err)
		}
		res.Saved++
	}
	if res.Saved == 0 {
		return res, fmt.Errorf("%w for %s (%d skipped)", ErrNoUsableCaptures, identity.Folder, res.Skipped)
	}
	s.log.Infof("Saved %d capture(s) for %s (%d skipped)", res.Saved, identity.Label(), res.Skipped)

	res.Curation, err = s.curate(identity, row, models.TriggerEnrollment)
	if err != nil {
		return res, err
	}
	if _, err := s.registry.Reload(); err != nil {
		return res, err
	}
	res.NearestIdentity, res.NearestDistance = s.checkDuplicate(identity)
	return res, nil
}

// Curate runs the curator over one identity's gallery and reloads the
// profiles. ref is a folder, id or name.
func (s *Service) Curate(ref string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, err := s.registry.Store().Find(ref)
	if err != nil {
		return Result{}, err
	}
	row, err := s.identityRow(identity)
	if err != nil {
		return Result{}, err
	}
	res := Result{Identity: identity}
	if res.Curation, err = s.curate(identity, row, models.TriggerManual); err != nil {
		return res, err
	}
	if _, err := s.registry.Reload(); err != nil {
		return res, err
	}
	res.NearestIdentity, res.NearestDistance = s.checkDuplicate(identity)
	return res, nil
}

// CurateAll curates every identity and reloads the profiles once.
// progress, when set, is called after each identity.
func (s *Service) CurateAll(progress func(done, total int)) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identities, err := s.registry.Store().Identities()
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(identities))
	for i, identity := range identities {
		row, err := s.identityRow(identity)
		if err != nil {
			return results, err
		}
		cur, err := s.curate(identity, row, models.TriggerManual)
		if err != nil {
			s.log.Warnf("Curation of %s failed: %v", identity.Folder, err)
		}
		results = append(results, Result{Identity: identity, Curation: cur})
		if progress != nil {
			progress(i+1, len(identities))
		}
	}
	if _, err := s.registry.Reload(); err != nil {
		return results, err
	}
	for i := range results {
		results[i].NearestIdentity, results[i].NearestDistance = s.checkDuplicate(results[i].Identity)
	}
	return results, nil
}

func (s *Service) curate(identity gallery.Identity, row *models.Identity, trigger string) (curation.BatchCurationResult, error) {
	store := s.registry.Store()
	samples, err := store.Samples(identity)
	if err != nil {
		return curation.BatchCurationResult{}, err
	}

	remover := &bookkeepingRemover{store: store, repo: s.repo, identityID: row.ID, log: s.log}
	curator := curation.NewCurator(store.Neural(), remover, s.log.WithField("identity", identity.Folder))
	_, result := curator.Curate(samples)

	if err := s.repo.SaveCurationRun(&models.CurationRun{
		IdentityID:          row.ID,
		Trigger:             trigger,
		ProcessedCount:      result.ProcessedCount,
		RemovedOutlierCount: result.RemovedOutlierCount,
		RemovedWeakCount:    result.RemovedWeakCount,
		Message:             result.Message,
	}); err != nil {
		s.log.Warnf("Failed to record curation run for %s: %v", identity.Folder, err)
	}
	s.publisher.PublishCuration(mqtt.CurationMessage{
		Identity: identity.Folder,
		Trigger:  trigger,
		Result:   result,
		Time:     timezone.Now(),
	})
	s.log.Infof("Curated %s: %s, %d outlier(s) and %d weak sample(s) removed",
		identity.Label(), result.Message, result.RemovedOutlierCount, result.RemovedWeakCount)
	return result, nil
}

// identityRow returns the database row of identity, creating it if needed.
func (s *Service) identityRow(identity gallery.Identity) (*models.Identity, error) {
	row, err := s.repo.GetIdentityByFolder(identity.Folder)
	if err != nil {
		return nil, fmt.Errorf("failed to look up identity %s: %w", identity.Folder, err)
	}
	if row != nil {
		return row, nil
	}
	row = &models.Identity{ExternalID: identity.ID, Name: identity.Name, Folder: identity.Folder}
	if err := s.repo.UpsertIdentity(row); err != nil {
		return nil, fmt.Errorf("failed to store identity %s: %w", identity.Folder, err)
	}
	if row.ID == 0 {
		if row, err = s.repo.GetIdentityByFolder(identity.Folder); err != nil || row == nil {
			return nil, fmt.Errorf("identity %s not found after upsert: %v", identity.Folder, err)
		}
	}
	return row, nil
}

// checkDuplicate warns when another identity's centroid lies close to the
// one of identity.
func (s *Service) checkDuplicate(identity gallery.Identity) (string, float64) {
	p, ok := s.registry.Profile(identity.Folder)
	if !ok {
		return "", 0
	}
	other, dist, ok := s.registry.NearestOther(p)
	if !ok || dist >= gallery.DuplicateDistance {
		return "", 0
	}
	s.log.Warnf("Identity %s is very close to %s (cosine distance %.3f), possible double enrollment",
		identity.Folder, other, dist)
	return other, dist
}

// bookkeepingRemover deletes curated samples from disk and marks their rows.
type bookkeepingRemover struct {
	store      *gallery.Store
	repo       repository.Repository
	identityID uint
	log        *log.Entry
}

func (r *bookkeepingRemover) RemoveSample(sample curation.Sample, reason string) error {
	if err := r.store.RemoveSample(sample, reason); err != nil {
		return err
	}
	if err := r.repo.MarkSampleRemoved(r.identityID, sample.ID, reason); err != nil {
		r.log.Warnf("Sample %s removed from disk but not marked in database: %v", sample.ID, err)
	}
	return nil
}
