package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Identity repräsentiert eine eingelernte Person
type Identity struct {
	gorm.Model
	ExternalID string   `gorm:"uniqueIndex;not null"` // Personal- oder Matrikelnummer
	Name       string   `gorm:"index"`
	Folder     string   `gorm:"uniqueIndex;not null"` // Galerieordner "<id>_<name>"
	Samples    []Sample `gorm:"foreignKey:IdentityID;constraint:OnDelete:CASCADE;"`
}

// Sample repräsentiert eine gespeicherte Aufnahme einer Identität
type Sample struct {
	gorm.Model
	IdentityID    uint   `gorm:"index;not null"`
	FileID        string `gorm:"index;not null"` // Dateiname ohne Endung
	EmbeddingPath string `gorm:"not null"`
	ImagePath     string
	Neural        bool   // Layout: float32 (neural) oder float64
	RemovedReason string `gorm:"index"` // "", "outlier" oder "weak"
}

// Gründe für die Entfernung eines Samples durch die Kuratierung
const (
	RemovedOutlier = "outlier"
	RemovedWeak    = "weak"
)

// RecognitionEvent ist ein Eintrag im Anwesenheitsprotokoll
type RecognitionEvent struct {
	ID          uint           `gorm:"primaryKey"`
	EventID     string         `gorm:"uniqueIndex;not null"`
	StreamID    string         `gorm:"index"`
	TrackID     string         `gorm:"index"`
	Label       string         `gorm:"index"`
	Accepted    bool           `gorm:"index"`
	RawScore    float64
	Confidence  float64
	Reason      string
	BoundingBox datatypes.JSON `gorm:"type:json"` // {"x_min":..,"y_min":..,"x_max":..,"y_max":..}
	Details     datatypes.JSON `gorm:"type:json"` // vollständige Entscheidung
	Timestamp   time.Time      `gorm:"index"`
}

// Statistics fasst den Datenbestand zusammen
type Statistics struct {
	IdentityCount    int64              `json:"identity_count"`
	ActiveSamples    int64              `json:"active_samples"`
	RemovedSamples   int64              `json:"removed_samples"`
	TotalEvents      int64              `json:"total_events"`
	AcceptedEvents   int64              `json:"accepted_events"`
	LatestEvent      time.Time          `json:"latest_event"`
	RecentRecognized []RecognitionEvent `json:"recent_recognized"`
}
