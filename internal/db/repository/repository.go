package repository

import (
	"errors"
	"time"

	"face-attendance-go/internal/core/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository definiert die Schnittstelle für die Datenbank-Operationen
type Repository interface {
	// Identity-Methoden
	UpsertIdentity(identity *models.Identity) error
	GetIdentityByFolder(folder string) (*models.Identity, error)
	GetIdentities() ([]models.Identity, error)

	// Sample-Methoden
	SaveSample(sample *models.Sample) error
	MarkSampleRemoved(identityID uint, fileID, reason string) error
	ActiveSamples(identityID uint) ([]models.Sample, error)

	// Ereignis-Methoden
	SaveEvent(event *models.RecognitionEvent) error
	RecentEvents(limit int, acceptedOnly bool) ([]models.RecognitionEvent, error)
	DeleteEventsBefore(cutoff time.Time) (int64, error)

	// Kuratierung
	SaveCurationRun(run *models.CurationRun) error

	// Statistik-Methoden
	GetStatistics() (models.Statistics, error)
}

// SQLiteRepository implementiert die Repository-Schnittstelle für SQLite
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository erstellt eine neue SQLite-Repository-Instanz
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// DB gibt die zugrunde liegende Verbindung zurück
func (r *SQLiteRepository) DB() *gorm.DB { return r.db }

// UpsertIdentity legt eine Identität an oder aktualisiert Name und Ordner
// anhand der ExternalID
func (r *SQLiteRepository) UpsertIdentity(identity *models.Identity) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "folder", "updated_at"}),
	}).Create(identity).Error
}

// GetIdentityByFolder sucht eine Identität anhand ihres Galerieordners.
// Ohne Treffer ist das Ergebnis nil, nil.
func (r *SQLiteRepository) GetIdentityByFolder(folder string) (*models.Identity, error) {
	var identity models.Identity
	result := r.db.Where("folder = ?", folder).First(&identity)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &identity, nil
}

// GetIdentities holt alle Identitäten
func (r *SQLiteRepository) GetIdentities() ([]models.Identity, error) {
	var identities []models.Identity
	if err := r.db.Order("folder").Find(&identities).Error; err != nil {
		return nil, err
	}
	return identities, nil
}

// SaveSample speichert eine Aufnahme
func (r *SQLiteRepository) SaveSample(sample *models.Sample) error {
	return r.db.Save(sample).Error
}

// MarkSampleRemoved vermerkt, dass die Kuratierung ein Sample gelöscht hat
func (r *SQLiteRepository) MarkSampleRemoved(identityID uint, fileID, reason string) error {
	return r.db.Model(&models.Sample{}).
		Where("identity_id = ? AND file_id = ?", identityID, fileID).
		Update("removed_reason", reason).Error
}

// ActiveSamples holt alle nicht entfernten Samples einer Identität
func (r *SQLiteRepository) ActiveSamples(identityID uint) ([]models.Sample, error) {
	var samples []models.Sample
	err := r.db.Where("identity_id = ? AND removed_reason = ?", identityID, "").
		Order("file_id").Find(&samples).Error
	return samples, err
}

// SaveEvent speichert eine Erkennungsentscheidung
func (r *SQLiteRepository) SaveEvent(event *models.RecognitionEvent) error {
	return r.db.Create(event).Error
}

// RecentEvents holt die neuesten Ereignisse
func (r *SQLiteRepository) RecentEvents(limit int, acceptedOnly bool) ([]models.RecognitionEvent, error) {
	var events []models.RecognitionEvent
	q := r.db.Order("timestamp DESC").Limit(limit)
	if acceptedOnly {
		q = q.Where("accepted = ?", true)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// DeleteEventsBefore löscht Ereignisse älter als cutoff in einer Transaktion
func (r *SQLiteRepository) DeleteEventsBefore(cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("timestamp < ?", cutoff).Delete(&models.RecognitionEvent{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

// SaveCurationRun protokolliert einen Kuratierungslauf
func (r *SQLiteRepository) SaveCurationRun(run *models.CurationRun) error {
	return r.db.Create(run).Error
}

// GetStatistics gibt Statistiken über die gespeicherten Daten zurück
func (r *SQLiteRepository) GetStatistics() (models.Statistics, error) {
	var stats models.Statistics

	if err := r.db.Model(&models.Identity{}).Count(&stats.IdentityCount).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.Sample{}).Where("removed_reason = ?", "").Count(&stats.ActiveSamples).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.Sample{}).Where("removed_reason <> ?", "").Count(&stats.RemovedSamples).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.RecognitionEvent{}).Count(&stats.TotalEvents).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.RecognitionEvent{}).Where("accepted = ?", true).Count(&stats.AcceptedEvents).Error; err != nil {
		return stats, err
	}

	var latest models.RecognitionEvent
	if err := r.db.Order("timestamp DESC").First(&latest).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return stats, err
		}
	} else {
		stats.LatestEvent = latest.Timestamp
	}

	recent, err := r.RecentEvents(5, true)
	if err != nil {
		return stats, err
	}
	stats.RecentRecognized = recent
	return stats, nil
}
