package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix ist das Präfix für Umgebungsvariablen, z.B. FACE_ATTENDANCE_SERVER_PORT
const EnvPrefix = "FACE_ATTENDANCE"

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	OpenCV      OpenCVConfig      `mapstructure:"opencv"`
	Gallery     GalleryConfig     `mapstructure:"gallery"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup"`
	Streams     []StreamConfig    `mapstructure:"streams"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DataDir  string `mapstructure:"data_dir"`
	Timezone string `mapstructure:"timezone"`
	Language string `mapstructure:"language"` // Standardsprache der API-Meldungen
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" oder "json"
	File   string `mapstructure:"file"`
}

// DBConfig enthält Datenbankeinstellungen
type DBConfig struct {
	File string `mapstructure:"file"`
}

// RecognitionConfig enthält die Parameter der Erkennungspipeline
type RecognitionConfig struct {
	EmbeddingSize       int     `mapstructure:"embedding_size"`
	CanonicalSize       int     `mapstructure:"canonical_size"`
	MinFaceWidth        int     `mapstructure:"min_face_width"`
	FacePadding         float64 `mapstructure:"face_padding"`
	ConsistencyWindow   int     `mapstructure:"consistency_window"`
	ConsistencyMinCount int     `mapstructure:"consistency_min_count"`
	SmoothingWindow     int     `mapstructure:"smoothing_window"`
	UseSmoothing        bool    `mapstructure:"use_smoothing"`
	HistoryResetGapMs   int     `mapstructure:"history_reset_gap_ms"`
	TrackTimeoutMs      int     `mapstructure:"track_timeout_ms"`
	FrameIntervalMs     int     `mapstructure:"frame_interval_ms"`
}

// HistoryResetGap ist die Pause zwischen zwei Frames, nach der die Historie verworfen wird
func (r RecognitionConfig) HistoryResetGap() time.Duration {
	return time.Duration(r.HistoryResetGapMs) * time.Millisecond
}

// TrackTimeout ist die Sitzungsdauer eines Tracks ohne Erkennung
func (r RecognitionConfig) TrackTimeout() time.Duration {
	return time.Duration(r.TrackTimeoutMs) * time.Millisecond
}

// FrameInterval ist die feste Periode der Stream-Worker
func (r RecognitionConfig) FrameInterval() time.Duration {
	return time.Duration(r.FrameIntervalMs) * time.Millisecond
}

// OpenCVConfig enthält Einstellungen für die OpenCV-Integration
type OpenCVConfig struct {
	CascadeDir   string  `mapstructure:"cascade_dir"`   // Verzeichnis mit den Haar-Kaskaden
	FaceCascade  string  `mapstructure:"face_cascade"`  // Dateiname der Gesichtskaskade
	ModelPath    string  `mapstructure:"model_path"`    // ONNX-Modell für Embeddings, leer = heuristisch
	RequireModel bool    `mapstructure:"require_model"` // fehlendes Modell ist ein Startfehler
	UseGPU       bool    `mapstructure:"use_gpu"`
	Backend      string  `mapstructure:"backend"` // DNN-Backend: "default", "cuda", "opencl"
	Target       string  `mapstructure:"target"`  // DNN-Target: "cpu", "cuda", "opencl"
	ScaleFactor  float64 `mapstructure:"scale_factor"`
	MinNeighbors int     `mapstructure:"min_neighbors"`
	DebugImages  int     `mapstructure:"debug_images"` // Anzahl gespeicherter Debug-Frames
}

// GalleryConfig enthält die Einstellungen für die Embedding-Galerie
type GalleryConfig struct {
	Dir                 string `mapstructure:"dir"`
	CapturesPerIdentity int    `mapstructure:"captures_per_identity"`
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`

	HomeAssistant   bool   `mapstructure:"homeassistant"`    // Discovery-Sensoren je Stream
	DiscoveryPrefix string `mapstructure:"discovery_prefix"` // Standard "homeassistant"
}

// CleanupConfig enthält Bereinigungseinstellungen
type CleanupConfig struct {
	RetentionDays int           `mapstructure:"retention_days"`
	Interval      time.Duration `mapstructure:"interval"`
}

// StreamConfig beschreibt eine Videoquelle
type StreamConfig struct {
	ID     string `mapstructure:"id"`
	Device int    `mapstructure:"device"` // Kameraindex, wenn URL leer ist
	URL    string `mapstructure:"url"`
}

// Source liefert die Zeichenkette, die gocv.OpenVideoCapture erwartet
func (s StreamConfig) Source() string {
	if s.URL != "" {
		return s.URL
	}
	return fmt.Sprintf("%d", s.Device)
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "/data")
	v.SetDefault("server.timezone", "UTC")
	v.SetDefault("server.language", "de")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "/data/logs/face-attendance.log")

	v.SetDefault("db.file", "/data/face-attendance.db")

	v.SetDefault("recognition.embedding_size", 512)
	v.SetDefault("recognition.canonical_size", 112)
	v.SetDefault("recognition.min_face_width", 60)
	v.SetDefault("recognition.face_padding", 0.15)
	v.SetDefault("recognition.consistency_window", 7)
	v.SetDefault("recognition.consistency_min_count", 5)
	v.SetDefault("recognition.smoothing_window", 5)
	v.SetDefault("recognition.use_smoothing", true)
	v.SetDefault("recognition.history_reset_gap_ms", 450)
	v.SetDefault("recognition.track_timeout_ms", 5000)
	v.SetDefault("recognition.frame_interval_ms", 100)

	v.SetDefault("opencv.cascade_dir", "/data/models/cascades")
	v.SetDefault("opencv.face_cascade", "haarcascade_frontalface_default.xml")
	v.SetDefault("opencv.model_path", "/data/models/arcface.onnx")
	v.SetDefault("opencv.require_model", false)
	v.SetDefault("opencv.use_gpu", false)
	v.SetDefault("opencv.backend", "default")
	v.SetDefault("opencv.target", "cpu")
	v.SetDefault("opencv.scale_factor", 1.1)
	v.SetDefault("opencv.min_neighbors", 5)
	v.SetDefault("opencv.debug_images", 30)

	v.SetDefault("gallery.dir", "/data/gallery")
	v.SetDefault("gallery.captures_per_identity", 20)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "face-attendance-go")
	v.SetDefault("mqtt.topic_prefix", "face-attendance")
	v.SetDefault("mqtt.homeassistant", false)
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")

	v.SetDefault("cleanup.retention_days", 30)
	v.SetDefault("cleanup.interval", 24*time.Hour)
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	dirs := []string{cfg.Server.DataDir, cfg.Gallery.Dir}
	if cfg.Log.File != "" {
		dirs = append(dirs, filepath.Dir(cfg.Log.File))
	}
	if cfg.DB.File != "" && cfg.DB.File != ":memory:" {
		dirs = append(dirs, filepath.Dir(cfg.DB.File))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
