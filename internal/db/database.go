package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"face-attendance-go/config"
	"face-attendance-go/internal/core/models"

	"github.com/glebarez/sqlite" // Pure Go SQLite Treiber
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open öffnet die SQLite-Datenbank und führt die Migrationen aus
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	if cfg.File != "" && cfg.File != ":memory:" {
		dbDir := filepath.Dir(cfg.File)
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Konfiguration des GORM-Loggers
	gormLogger := logger.New(
		log.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second * 2,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Infof("Connecting to database: %s", cfg.File)
	db, err := gorm.Open(sqlite.Open(cfg.File), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	// SQLite erlaubt nur einen Schreiber; eine Verbindung vermeidet SQLITE_BUSY
	// und hält In-Memory-Datenbanken zusammen
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("Database connection established successfully")
	return db, nil
}

// Migrate führt die Auto-Migrationen aus
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Identity{},
		&models.Sample{},
		&models.RecognitionEvent{},
		&models.CurationRun{},
	); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return nil
}

// Close schließt die zugrunde liegende Verbindung
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
