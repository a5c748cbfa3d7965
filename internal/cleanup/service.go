package cleanup

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// EventStore is the part of the repository the cleanup needs.
type EventStore interface {
	DeleteEventsBefore(cutoff time.Time) (int64, error)
}

// Service handles the automatic cleanup of old attendance events.
type Service struct {
	store         EventStore
	retentionDays int
	checkInterval time.Duration
	now           func() time.Time
}

// NewService creates a cleanup service. It returns nil when cleanup is
// disabled (retention_days <= 0).
func NewService(store EventStore, retentionDays int, checkInterval time.Duration) *Service {
	if retentionDays <= 0 {
		log.Info("Automatic cleanup disabled (retention_days <= 0).")
		return nil
	}
	if store == nil {
		log.Error("Cannot initialize CleanupService: event store is nil")
		return nil
	}
	if checkInterval <= 0 {
		checkInterval = 24 * time.Hour
	}
	log.Infof("Initializing CleanupService: RetentionDays=%d, CheckInterval=%s", retentionDays, checkInterval)
	return &Service{
		store:         store,
		retentionDays: retentionDays,
		checkInterval: checkInterval,
		now:           time.Now,
	}
}

// Start runs one cleanup immediately and then on every tick until ctx is
// cancelled.
func (s *Service) Start(ctx context.Context) {
	if s == nil {
		return
	}
	log.Info("Starting background cleanup routine...")

	go func() {
		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()

		log.Info("Running initial cleanup check on startup...")
		s.RunCleanupCycle()
		for {
			select {
			case <-ticker.C:
				log.Info("Running scheduled cleanup cycle...")
				s.RunCleanupCycle()
			case <-ctx.Done():
				log.Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// RunCleanupCycle deletes events older than the retention period and
// returns how many were removed.
func (s *Service) RunCleanupCycle() int64 {
	if s == nil || s.retentionDays <= 0 {
		log.Debug("Skipping cleanup cycle: service not initialized or cleanup disabled.")
		return 0
	}

	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	log.Infof("Cleanup: Deleting events older than %s", cutoff.Format(time.RFC3339))

	deleted, err := s.store.DeleteEventsBefore(cutoff)
	if err != nil {
		log.Errorf("Cleanup: Failed to delete old events: %v", err)
		return 0
	}
	log.Infof("Cleanup cycle finished. Deleted events: %d", deleted)
	return deleted
}
