// Package gallery keeps the enrolled embeddings on disk: one folder per
// identity holding a .emb file and a source image per capture.
package gallery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"face-attendance-go/internal/curation"
	"face-attendance-go/internal/embedding"

	log "github.com/sirupsen/logrus"
)

// EmbeddingExt is the extension of persisted embedding files.
const EmbeddingExt = ".emb"

var imageExts = []string{".jpg", ".jpeg", ".png"}

// ErrIdentityNotFound is returned when no folder matches a reference.
var ErrIdentityNotFound = errors.New("identity not found")

// Gallery is the loaded sample list of one identity.
type Gallery struct {
	Identity Identity
	Samples  []curation.Sample
}

// Embeddings returns the encoded vectors in capture order.
func (g Gallery) Embeddings() [][]byte {
	out := make([][]byte, len(g.Samples))
	for i, s := range g.Samples {
		out[i] = s.Embedding
	}
	return out
}

// Store reads and writes the gallery directory.
type Store struct {
	dir       string
	neural    bool
	validator *embedding.Validator
	mu        sync.Mutex
	log       *log.Entry
}

// NewStore opens dir, creating it when missing. neural and size select the
// expected embedding layout.
func NewStore(dir string, neural bool, size int, logger *log.Entry) (*Store, error) {
	if logger == nil {
		logger = log.WithField("component", "gallery")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create gallery directory: %w", err)
	}
	return &Store{dir: dir, neural: neural, validator: embedding.NewValidator(size), log: logger}, nil
}

// Dir returns the gallery root.
func (s *Store) Dir() string { return s.dir }

// Neural reports the embedding layout the store expects.
func (s *Store) Neural() bool { return s.neural }

// Valid reports whether b is a usable embedding for this store.
func (s *Store) Valid(b []byte) bool { return s.validator.IsValid(b, s.neural) }

// Identities lists all identity folders sorted by folder name.
func (s *Store) Identities() ([]Identity, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read gallery: %w", err)
	}
	var out []Identity
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, ParseFolder(e.Name()))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Folder < out[j].Folder })
	return out, nil
}

// Find resolves a folder name, id or (diacritic-insensitive) name.
func (s *Store) Find(ref string) (Identity, error) {
	ids, err := s.Identities()
	if err != nil {
		return Identity{}, err
	}
	wanted := NormalizeName(ref)
	for _, id := range ids {
		if id.Folder == ref || id.ID == ref {
			return id, nil
		}
	}
	for _, id := range ids {
		if id.Name != "" && NormalizeName(id.Name) == wanted {
			return id, nil
		}
	}
	return Identity{}, fmt.Errorf("%w: %s", ErrIdentityNotFound, ref)
}

// EnsureIdentity creates the folder for id/name if it does not exist.
func (s *Store) EnsureIdentity(id, name string) (Identity, error) {
	folder := FolderName(id, name)
	if err := os.MkdirAll(filepath.Join(s.dir, folder), 0755); err != nil {
		return Identity{}, fmt.Errorf("failed to create identity folder: %w", err)
	}
	return ParseFolder(folder), nil
}

// Samples loads the valid embeddings of one identity in file name order.
// Files that fail validation are skipped with a warning.
func (s *Store) Samples(id Identity) ([]curation.Sample, error) {
	folder := filepath.Join(s.dir, id.Folder)
	entries, err := os.ReadDir(folder)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, id.Folder)
		}
		return nil, fmt.Errorf("failed to read %s: %w", id.Folder, err)
	}

	var out []curation.Sample
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != EmbeddingExt {
			continue
		}
		path := filepath.Join(folder, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Warnf("Skipping unreadable embedding %s: %v", path, err)
			continue
		}
		if !s.validator.IsValid(data, s.neural) {
			s.log.Warnf("Skipping invalid embedding %s (%d bytes)", path, len(data))
			continue
		}
		base := strings.TrimSuffix(e.Name(), EmbeddingExt)
		out = append(out, curation.Sample{
			ID:            base,
			Embedding:     data,
			EmbeddingPath: path,
			ImagePath:     s.imageFor(folder, base),
		})
	}
	return out, nil
}

func (s *Store) imageFor(folder, base string) string {
	for _, ext := range imageExts {
		p := filepath.Join(folder, base+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads all galleries. Identities without valid samples are kept with
// an empty list.
func (s *Store) Load() ([]Gallery, error) {
	ids, err := s.Identities()
	if err != nil {
		return nil, err
	}
	out := make([]Gallery, 0, len(ids))
	for _, id := range ids {
		samples, err := s.Samples(id)
		if err != nil {
			s.log.Warnf("Skipping identity %s: %v", id.Folder, err)
			continue
		}
		out = append(out, Gallery{Identity: id, Samples: samples})
	}
	return out, nil
}

// SaveSample writes one capture. image may be nil.
func (s *Store) SaveSample(id Identity, emb []byte, image []byte) (curation.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder := filepath.Join(s.dir, id.Folder)
	if err := os.MkdirAll(folder, 0755); err != nil {
		return curation.Sample{}, fmt.Errorf("failed to create identity folder: %w", err)
	}

	base := fmt.Sprintf("capture_%d", time.Now().UnixNano())
	for n := 1; fileExists(filepath.Join(folder, base+EmbeddingExt)); n++ {
		base = fmt.Sprintf("capture_%d_%d", time.Now().UnixNano(), n)
	}

	sample := curation.Sample{ID: base, Embedding: emb, EmbeddingPath: filepath.Join(folder, base+EmbeddingExt)}
	if err := os.WriteFile(sample.EmbeddingPath, emb, 0644); err != nil {
		return curation.Sample{}, fmt.Errorf("failed to write embedding: %w", err)
	}
	if image != nil {
		sample.ImagePath = filepath.Join(folder, base+".jpg")
		if err := os.WriteFile(sample.ImagePath, image, 0644); err != nil {
			os.Remove(sample.EmbeddingPath)
			return curation.Sample{}, fmt.Errorf("failed to write image: %w", err)
		}
	}
	return sample, nil
}

// RemoveSample deletes a sample's embedding and image file. A missing
// image is not an error.
func (s *Store) RemoveSample(sample curation.Sample, reason string) error {
	if err := os.Remove(sample.EmbeddingPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove embedding %s: %w", sample.EmbeddingPath, err)
	}
	if sample.ImagePath != "" {
		if err := os.Remove(sample.ImagePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove image %s: %w", sample.ImagePath, err)
		}
	}
	s.log.Debugf("Removed %s sample %s", reason, sample.ID)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
