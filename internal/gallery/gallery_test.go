package gallery

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"face-attendance-go/internal/curation"
	"face-attendance-go/internal/embedding"
	"face-attendance-go/internal/recognition"
)

const testSize = 8

func vec(components ...float64) []byte {
	v := make([]float64, testSize)
	copy(v, components)
	return embedding.EncodeFloat32(embedding.Normalize(v))
}

func TestParseFolder(t *testing.T) {
	tests := []struct {
		folder string
		label  string
		id     string
	}{
		{folder: "1001_Alice", label: "1001 - Alice", id: "1001"},
		{folder: "1002_Jan_Novak", label: "1002 - Jan Novak", id: "1002"},
		{folder: "guest", label: "guest", id: "guest"},
	}
	for _, tt := range tests {
		t.Run(tt.folder, func(t *testing.T) {
			id := ParseFolder(tt.folder)
			if id.Label() != tt.label || id.ID != tt.id || id.Folder != tt.folder {
				t.Errorf("ParseFolder(%q) = %+v (label %q)", tt.folder, id, id.Label())
			}
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"Jiří Dvořák":  "jiri dvorak",
		"Anne-Marie":   "anne marie",
		"  José__Luis": "jose luis",
	}
	for in, want := range tests {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
	if got := FolderName("7", " Jan  Novák/x "); got != "7_Jan__Novákx" {
		t.Errorf("FolderName = %q", got)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir(), true, testSize, nil)
	if err != nil {
		t.Fatal(err)
	}
	alice, err := s.EnsureIdentity("1001", "Alice")
	if err != nil {
		t.Fatal(err)
	}

	saved, err := s.SaveSample(alice, vec(1, 0.1), []byte("jpeg"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveSample(alice, vec(1, -0.1), nil); err != nil {
		t.Fatal(err)
	}
	// wrong length for neural layout
	if err := os.WriteFile(filepath.Join(s.Dir(), alice.Folder, "broken.emb"), []byte{1, 2, 3}, 0644); err != nil {
		t.Fatal(err)
	}

	samples, err := s.Samples(alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2 (invalid file skipped)", len(samples))
	}

	if err := s.RemoveSample(saved, curation.ReasonOutlier); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{saved.EmbeddingPath, saved.ImagePath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still exists", p)
		}
	}

	found, err := s.Find("alice")
	if err != nil || found.Folder != alice.Folder {
		t.Fatalf("Find(alice) = %+v, %v", found, err)
	}
	if _, err := s.Find("bob"); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("Find(bob) err = %v", err)
	}
}

func TestRegistryReload(t *testing.T) {
	s, err := NewStore(t.TempDir(), true, testSize, nil)
	if err != nil {
		t.Fatal(err)
	}
	alice, _ := s.EnsureIdentity("1001", "Alice")
	bob, _ := s.EnsureIdentity("1002", "Bob")
	if _, err := s.EnsureIdentity("1003", "Empty"); err != nil {
		t.Fatal(err)
	}
	for _, v := range [][]byte{vec(1, 0.05), vec(1, -0.05), vec(1, 0, 0.05)} {
		if _, err := s.SaveSample(alice, v, nil); err != nil {
			t.Fatal(err)
		}
	}
	for _, v := range [][]byte{vec(0.9, 0.1, 0.05), vec(0.9, 0.1, -0.05)} {
		if _, err := s.SaveSample(bob, v, nil); err != nil {
			t.Fatal(err)
		}
	}

	set := recognition.NewProfileSet()
	r := NewRegistry(s, set, nil)
	before := set.Snapshot()

	n, err := r.Reload()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || set.Len() != 2 {
		t.Fatalf("loaded %d profiles, set has %d", n, set.Len())
	}
	if len(before) != 0 {
		t.Fatal("old snapshot must stay untouched")
	}
	if set.Snapshot()[0].Label != "1001 - Alice" {
		t.Errorf("first profile = %q", set.Snapshot()[0].Label)
	}

	p, ok := r.Profile(alice.Folder)
	if !ok {
		t.Fatal("alice profile missing")
	}
	other, dist, ok := r.NearestOther(p)
	if !ok || other != bob.Folder {
		t.Fatalf("NearestOther = %q, %v", other, ok)
	}
	if dist >= DuplicateDistance {
		t.Errorf("near-identical galleries should be flagged, distance %.3f", dist)
	}
}
