package timezone

import (
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	currentLocation *time.Location
	mu              sync.RWMutex
)

// Initialize setzt die Zeitzone. Ein leerer Name fällt auf die
// TZ-Umgebungsvariable und danach auf UTC zurück.
func Initialize(name string) {
	tzName := name
	if tzName == "" {
		tzName = os.Getenv("TZ")
	}
	if tzName == "" {
		tzName = "UTC"
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Warnf("Failed to load timezone %s: %v. Falling back to UTC.", tzName, err)
		loc = time.UTC
	} else {
		log.Infof("Successfully initialized timezone to %s", tzName)
	}

	mu.Lock()
	currentLocation = loc
	mu.Unlock()
}

// Location gibt die konfigurierte Zeitzone zurück
func Location() *time.Location {
	mu.RLock()
	loc := currentLocation
	mu.RUnlock()
	if loc == nil {
		Initialize("")
		mu.RLock()
		loc = currentLocation
		mu.RUnlock()
	}
	return loc
}

// Now gibt die aktuelle Zeit in der konfigurierten Zeitzone zurück
func Now() time.Time {
	return time.Now().In(Location())
}

// Format formatiert ein time.Time-Objekt mit der konfigurierten Zeitzone
func Format(t time.Time, layout string) string {
	return t.In(Location()).Format(layout)
}

// RFC3339 formatiert die Zeit im RFC3339-Format
func RFC3339(t time.Time) string {
	return Format(t, time.RFC3339)
}
