package mqtt

import (
	"fmt"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Konstanten für die Home Assistant MQTT Discovery
const (
	// Standard-Präfix von Home Assistant
	DefaultDiscoveryPrefix = "homeassistant"

	componentSensor = "sensor"
	nodeID          = "face_attendance"
)

var unsafeIDChars = regexp.MustCompile(`[^a-z0-9_]+`)

// SensorConfig ist die Discovery-Konfiguration eines Sensors
type SensorConfig struct {
	Name                string  `json:"name"`
	UniqueID            string  `json:"unique_id"`
	StateTopic          string  `json:"state_topic"`
	Icon                string  `json:"icon,omitempty"`
	AvailabilityTopic   string  `json:"availability_topic,omitempty"`
	PayloadAvailable    string  `json:"payload_available,omitempty"`
	PayloadNotAvailable string  `json:"payload_not_available,omitempty"`
	Device              *Device `json:"device,omitempty"`
}

// Device beschreibt den Dienst als Gerät in Home Assistant
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// Discovery registriert je Stream einen Sensor, dessen Zustand die zuletzt
// erkannte Person ist
type Discovery struct {
	client messagePublisher
	prefix string
}

// NewDiscovery erstellt den Discovery-Manager; ein leeres Präfix wählt
// DefaultDiscoveryPrefix. Ein nil-Client registriert nichts.
func NewDiscovery(client *Client, prefix string) *Discovery {
	if prefix == "" {
		prefix = DefaultDiscoveryPrefix
	}
	if client == nil {
		return &Discovery{prefix: prefix}
	}
	return &Discovery{client: client, prefix: prefix}
}

// RegisterStreams veröffentlicht retained Discovery-Konfigurationen für
// alle Streams. Fehler einzelner Sensoren werden protokolliert.
func (d *Discovery) RegisterStreams(streamIDs []string, version string) int {
	if d.client == nil || !d.client.IsConnected() {
		return 0
	}
	device := &Device{
		Identifiers:  []string{nodeID},
		Name:         "Face Attendance",
		Manufacturer: "face-attendance-go",
		Model:        "Go Edition",
		SWVersion:    version,
	}

	registered := 0
	for _, id := range streamIDs {
		objectID := sensorID(id)
		cfg := SensorConfig{
			Name:                fmt.Sprintf("Face Attendance %s", id),
			UniqueID:            nodeID + "_" + objectID,
			StateTopic:          d.client.Topic("decision/" + id + "/last"),
			Icon:                "mdi:face-recognition",
			AvailabilityTopic:   d.client.Topic("status"),
			PayloadAvailable:    "online",
			PayloadNotAvailable: "offline",
			Device:              device,
		}
		topic := fmt.Sprintf("%s/%s/%s/%s/config", d.prefix, componentSensor, nodeID, objectID)
		if err := d.client.PublishMessage(topic, cfg, true); err != nil {
			log.Errorf("Failed to register Home Assistant sensor for stream %s: %v", id, err)
			continue
		}
		registered++
	}
	log.Infof("Registered %d Home Assistant sensor(s)", registered)
	return registered
}

// sensorID macht aus einer Stream-ID eine gültige Object-ID
func sensorID(streamID string) string {
	id := unsafeIDChars.ReplaceAllString(strings.ToLower(streamID), "_")
	id = strings.Trim(id, "_")
	if id == "" {
		return "stream"
	}
	return id
}
