package models

import (
	"time"
)

// CurationRun protokolliert einen Kuratierungslauf über die Galerie einer
// Identität
type CurationRun struct {
	ID                  uint   `gorm:"primaryKey"`
	IdentityID          uint   `gorm:"index;not null"`
	Trigger             string `gorm:"index;not null"` // "enrollment", "manual"
	ProcessedCount      int
	RemovedOutlierCount int
	RemovedWeakCount    int
	Message             string
	CreatedAt           time.Time `gorm:"index"`
}

// Auslöser eines Kuratierungslaufs
const (
	TriggerEnrollment = "enrollment"
	TriggerManual     = "manual"
)
