package mqtt

import (
	"time"

	"face-attendance-go/internal/curation"

	log "github.com/sirupsen/logrus"
)

// BoundingBox enthält die Position eines Gesichts im Frame
type BoundingBox struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// DecisionMessage ist die Payload unter <prefix>/decision/<stream>
type DecisionMessage struct {
	StreamID   string      `json:"stream_id"`
	TrackID    string      `json:"track_id"`
	Label      string      `json:"label"`
	Accepted   bool        `json:"accepted"`
	RawScore   float64     `json:"raw_score"`
	Confidence float64     `json:"confidence"`
	Margin     float64     `json:"margin"`
	Reason     string      `json:"reason"`
	Box        BoundingBox `json:"box"`
	Timestamp  time.Time   `json:"timestamp"`
}

// CurationMessage ist die Payload unter <prefix>/curation/<identity>
type CurationMessage struct {
	Identity string                       `json:"identity"`
	Trigger  string                       `json:"trigger"`
	Result   curation.BatchCurationResult `json:"result"`
	Time     time.Time                    `json:"timestamp"`
}

// messagePublisher ist die Teilmenge des Clients, die der Publisher braucht
type messagePublisher interface {
	PublishMessage(topic string, payload interface{}, retain bool) error
	Topic(path string) string
	IsConnected() bool
}

// Publisher veröffentlicht Entscheidungen und Kuratierungsergebnisse
type Publisher struct {
	client messagePublisher
}

// NewPublisher erstellt einen Publisher; ein nil-Client veröffentlicht nichts
func NewPublisher(client *Client) *Publisher {
	if client == nil {
		return &Publisher{}
	}
	return &Publisher{client: client}
}

// PublishDecision veröffentlicht eine Entscheidung. Die letzte angenommene
// Erkennung je Stream wird zusätzlich retained unter .../last abgelegt.
func (p *Publisher) PublishDecision(msg DecisionMessage) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	topic := p.client.Topic("decision/" + msg.StreamID)
	if err := p.client.PublishMessage(topic, msg, false); err != nil {
		log.Warnf("Failed to publish decision for %s: %v", msg.StreamID, err)
		return
	}
	if msg.Accepted {
		if err := p.client.PublishMessage(topic+"/last", msg.Label, true); err != nil {
			log.Warnf("Failed to publish last recognition for %s: %v", msg.StreamID, err)
		}
	}
}

// PublishCuration veröffentlicht das Ergebnis eines Kuratierungslaufs
func (p *Publisher) PublishCuration(msg CurationMessage) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	if err := p.client.PublishMessage(p.client.Topic("curation/"+msg.Identity), msg, false); err != nil {
		log.Warnf("Failed to publish curation result for %s: %v", msg.Identity, err)
	}
}
