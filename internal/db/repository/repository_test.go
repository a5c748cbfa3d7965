package repository

import (
	"testing"
	"time"

	"face-attendance-go/config"
	"face-attendance-go/internal/core/models"
	"face-attendance-go/internal/db"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	conn, err := db.Open(config.DBConfig{File: ":memory:"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	return NewSQLiteRepository(conn)
}

func TestUpsertIdentity(t *testing.T) {
	repo := newTestRepo(t)

	first := &models.Identity{ExternalID: "1001", Name: "Alice", Folder: "1001_Alice"}
	if err := repo.UpsertIdentity(first); err != nil {
		t.Fatal(err)
	}
	renamed := &models.Identity{ExternalID: "1001", Name: "Alice B", Folder: "1001_Alice_B"}
	if err := repo.UpsertIdentity(renamed); err != nil {
		t.Fatal(err)
	}

	all, err := repo.GetIdentities()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Name != "Alice B" {
		t.Fatalf("identities = %+v", all)
	}

	got, err := repo.GetIdentityByFolder("1001_Alice_B")
	if err != nil || got == nil {
		t.Fatalf("GetIdentityByFolder = %v, %v", got, err)
	}
	missing, err := repo.GetIdentityByFolder("nobody")
	if err != nil || missing != nil {
		t.Fatalf("missing folder = %v, %v; want nil, nil", missing, err)
	}
}

func TestSamplesAndStatistics(t *testing.T) {
	repo := newTestRepo(t)

	id := &models.Identity{ExternalID: "7", Name: "Jan", Folder: "7_Jan"}
	if err := repo.UpsertIdentity(id); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"capture_1", "capture_2", "capture_3"} {
		if err := repo.SaveSample(&models.Sample{IdentityID: id.ID, FileID: f, Neural: true}); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.MarkSampleRemoved(id.ID, "capture_2", models.RemovedOutlier); err != nil {
		t.Fatal(err)
	}

	active, err := repo.ActiveSamples(id.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Fatalf("active samples = %d, want 2", len(active))
	}

	now := time.Now()
	events := []models.RecognitionEvent{
		{EventID: "a", StreamID: "cam", Label: "7 - Jan", Accepted: true, Timestamp: now.Add(-time.Minute)},
		{EventID: "b", StreamID: "cam", Label: "7 - Jan", Accepted: false, Timestamp: now},
	}
	for i := range events {
		if err := repo.SaveEvent(&events[i]); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := repo.GetStatistics()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name      string
		got, want int64
	}{
		{"identities", stats.IdentityCount, 1},
		{"active samples", stats.ActiveSamples, 2},
		{"removed samples", stats.RemovedSamples, 1},
		{"events", stats.TotalEvents, 2},
		{"accepted", stats.AcceptedEvents, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %d, want %d", tt.got, tt.want)
			}
		})
	}
	if len(stats.RecentRecognized) != 1 || stats.RecentRecognized[0].EventID != "a" {
		t.Errorf("recent recognized = %+v", stats.RecentRecognized)
	}
	if stats.LatestEvent.Sub(events[1].Timestamp).Abs() > time.Millisecond {
		t.Errorf("latest event = %v, want %v", stats.LatestEvent, events[1].Timestamp)
	}
}

func TestDeleteEventsBefore(t *testing.T) {
	repo := newTestRepo(t)

	now := time.Now()
	for i, age := range []time.Duration{48 * time.Hour, 36 * time.Hour, time.Hour} {
		ev := &models.RecognitionEvent{EventID: string(rune('a' + i)), Timestamp: now.Add(-age)}
		if err := repo.SaveEvent(ev); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := repo.DeleteEventsBefore(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 2 {
		t.Fatalf("deleted %d, want 2", deleted)
	}
	left, err := repo.RecentEvents(10, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 {
		t.Fatalf("%d events left, want 1", len(left))
	}
}

func TestSaveCurationRun(t *testing.T) {
	repo := newTestRepo(t)
	run := &models.CurationRun{IdentityID: 1, Trigger: models.TriggerManual, ProcessedCount: 10, RemovedOutlierCount: 2}
	if err := repo.SaveCurationRun(run); err != nil {
		t.Fatal(err)
	}
	if run.ID == 0 {
		t.Error("curation run id not assigned")
	}
}
