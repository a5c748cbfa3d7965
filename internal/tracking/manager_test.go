package tracking

import (
	"image"
	"testing"
)

func box(x, y, size int) image.Rectangle {
	return image.Rect(x, y, x+size, y+size)
}

func TestTrackLifecycle(t *testing.T) {
	var evicted []string
	m := NewTrackManager(Options{OnEvict: func(tr *Track) { evicted = append(evicted, tr.ID.String()) }}, nil)

	handles, err := m.Update([]image.Rectangle{box(100, 100, 80)})
	if err != nil {
		t.Fatal(err)
	}
	first, ok := m.Get(handles[0])
	if !ok {
		t.Fatal("new track not resolvable")
	}
	firstID := first.ID

	for tick := 1; tick <= DefaultMaxMisses; tick++ {
		if _, err := m.Update(nil); err != nil {
			t.Fatal(err)
		}
		if _, ok := m.Get(handles[0]); !ok {
			t.Fatalf("track evicted early at miss %d", tick)
		}
	}
	if _, err := m.Update(nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Get(handles[0]); ok {
		t.Fatal("track should be evicted after exceeding the miss limit")
	}
	if len(evicted) != 1 || evicted[0] != firstID.String() {
		t.Fatalf("evicted = %v", evicted)
	}
	if first.History != nil {
		t.Fatal("history must be dropped with the track")
	}

	again, err := m.Update([]image.Rectangle{box(100, 100, 80)})
	if err != nil {
		t.Fatal(err)
	}
	second, ok := m.Get(again[0])
	if !ok {
		t.Fatal("replacement track not resolvable")
	}
	if second.ID == firstID {
		t.Fatal("a returning face must get a fresh track id")
	}
	if again[0] == handles[0] {
		t.Fatal("reused slot must carry a new generation")
	}
}

func TestTrackMatching(t *testing.T) {
	tests := []struct {
		name    string
		next    image.Rectangle
		sameID  bool
		wantLen int
	}{
		{name: "small move", next: box(130, 110, 80), sameID: true, wantLen: 1},
		{name: "inside minimum gate", next: box(175, 100, 80), sameID: true, wantLen: 1},
		{name: "beyond gate", next: box(200, 100, 80), sameID: false, wantLen: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewTrackManager(Options{}, nil)
			h1, _ := m.Update([]image.Rectangle{box(100, 100, 80)})
			h2, err := m.Update([]image.Rectangle{tt.next})
			if err != nil {
				t.Fatal(err)
			}
			a, _ := m.Get(h1[0])
			b, _ := m.Get(h2[0])
			if (a != nil && b != nil && a.ID == b.ID) != tt.sameID {
				t.Fatalf("same track = %v, want %v", !tt.sameID, tt.sameID)
			}
			if m.Len() != tt.wantLen {
				t.Fatalf("Len() = %d, want %d", m.Len(), tt.wantLen)
			}
			if tt.sameID && b.FramesSinceSeen != 0 {
				t.Fatalf("matched track miss counter = %d", b.FramesSinceSeen)
			}
		})
	}
}

func TestLargeFacesWidenGate(t *testing.T) {
	m := NewTrackManager(Options{}, nil)
	h1, _ := m.Update([]image.Rectangle{box(100, 100, 300)})
	// 0.6 * 300 = 180px gate
	h2, _ := m.Update([]image.Rectangle{box(250, 100, 300)})
	if h1[0] != h2[0] {
		t.Fatal("large face moving 150px should stay on its track")
	}
}

func TestClosestPairsWin(t *testing.T) {
	m := NewTrackManager(Options{}, nil)
	h, _ := m.Update([]image.Rectangle{box(100, 100, 60), box(200, 100, 60)})
	left, right := h[0], h[1]

	// both detections lie within both gates; each must go to its nearest track
	next, _ := m.Update([]image.Rectangle{box(190, 100, 60), box(110, 100, 60)})
	if next[0] != right || next[1] != left {
		t.Fatalf("assignment swapped: got %v, want [%v %v]", next, right, left)
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
}

func TestTrackOwnsHistory(t *testing.T) {
	m := NewTrackManager(Options{}, nil)
	h, _ := m.Update([]image.Rectangle{box(0, 0, 80), box(400, 0, 80)})
	a, _ := m.Get(h[0])
	b, _ := m.Get(h[1])
	if a.History == nil || a.History == b.History {
		t.Fatal("each track needs its own history")
	}
	a.History.RecordPrediction(3)
	if b.History.CountMatches(3) != 0 {
		t.Fatal("histories must be independent")
	}

	m.Reset()
	if m.Len() != 0 || len(m.Tracks()) != 0 {
		t.Fatal("reset must drop all tracks")
	}
}
