package timezone

import (
	"testing"
	"time"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Europe/Berlin", "Europe/Berlin"},
		{"Mars/Olympus_Mons", "UTC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Initialize(tt.name)
			if got := Location().String(); got != tt.want {
				t.Errorf("Location = %s, want %s", got, tt.want)
			}
		})
	}

	Initialize("UTC")
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	if got := RFC3339(ts); got != "2026-01-02T02:04:05Z" {
		t.Errorf("RFC3339 = %s", got)
	}
}
