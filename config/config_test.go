package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  data_dir: ` + filepath.Join(dir, "data") + `
log:
  file: ` + filepath.Join(dir, "logs", "app.log") + `
db:
  file: ` + filepath.Join(dir, "db", "app.db") + `
gallery:
  dir: ` + filepath.Join(dir, "gallery") + `
recognition:
  consistency_window: 9
streams:
  - id: entrance
    device: 1
  - id: hall
    url: rtsp://cam/stream
`
	if err := os.WriteFile(file, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FACE_ATTENDANCE_SERVER_PORT", "8081")

	cfg, err := Load(file)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"embedding size default", cfg.Recognition.EmbeddingSize, 512},
		{"min count default", cfg.Recognition.ConsistencyMinCount, 5},
		{"window from file", cfg.Recognition.ConsistencyWindow, 9},
		{"port from env", cfg.Server.Port, 8081},
		{"reset gap", cfg.Recognition.HistoryResetGap(), 450 * time.Millisecond},
		{"timeout", cfg.Recognition.TrackTimeout(), 5 * time.Second},
		{"language default", cfg.Server.Language, "de"},
		{"discovery prefix default", cfg.MQTT.DiscoveryPrefix, "homeassistant"},
		{"streams", len(cfg.Streams), 2},
		{"device source", cfg.Streams[0].Source(), "1"},
		{"url source", cfg.Streams[1].Source(), "rtsp://cam/stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	for _, d := range []string{"data", "logs", "db", "gallery"} {
		if _, err := os.Stat(filepath.Join(dir, d)); err != nil {
			t.Errorf("directory %s not created: %v", d, err)
		}
	}
}
