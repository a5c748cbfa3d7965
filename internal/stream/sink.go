package stream

import (
	"encoding/json"
	"image"
	"time"

	"face-attendance-go/internal/core/models"
	"face-attendance-go/internal/db/repository"
	"face-attendance-go/internal/mqtt"
	"face-attendance-go/internal/recognition"
	"face-attendance-go/internal/sse"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Event is one fresh decision for one track.
type Event struct {
	StreamID  string
	TrackID   uuid.UUID
	Rect      image.Rectangle
	Decision  recognition.Decision
	Timestamp time.Time
	// Changed is set when the verdict differs from the track's previous one.
	Changed bool
}

// Sink consumes decisions. Implementations must not block the worker.
type Sink interface {
	HandleDecision(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

// HandleDecision calls f.
func (f SinkFunc) HandleDecision(ev Event) { f(ev) }

// Fanout delivers every event to all sinks in order.
type Fanout []Sink

// HandleDecision forwards ev.
func (f Fanout) HandleDecision(ev Event) {
	for _, s := range f {
		if s != nil {
			s.HandleDecision(ev)
		}
	}
}

// MQTTSink publishes changed verdicts.
func MQTTSink(p *mqtt.Publisher) Sink {
	return SinkFunc(func(ev Event) {
		if !ev.Changed {
			return
		}
		p.PublishDecision(mqtt.DecisionMessage{
			StreamID:   ev.StreamID,
			TrackID:    ev.TrackID.String(),
			Label:      ev.Decision.Label,
			Accepted:   ev.Decision.Accepted,
			RawScore:   ev.Decision.RawScore,
			Confidence: ev.Decision.CombinedConfidence,
			Margin:     ev.Decision.Margin,
			Reason:     ev.Decision.Reason,
			Box:        boxOf(ev.Rect),
			Timestamp:  ev.Timestamp,
		})
	})
}

// SSESink broadcasts every decision to the live feed.
func SSESink(hub *sse.Hub) Sink {
	return SinkFunc(func(ev Event) {
		hub.BroadcastDecision(sse.DecisionData{
			StreamID:   ev.StreamID,
			TrackID:    ev.TrackID.String(),
			Label:      ev.Decision.Label,
			Accepted:   ev.Decision.Accepted,
			RawScore:   ev.Decision.RawScore,
			Confidence: ev.Decision.CombinedConfidence,
			Reason:     ev.Decision.Reason,
			Timestamp:  ev.Timestamp,
		})
	})
}

// AttendanceSink writes accepted verdicts to the attendance log, once per
// change of verdict on a track.
func AttendanceSink(repo repository.Repository) Sink {
	return SinkFunc(func(ev Event) {
		if !ev.Changed || !ev.Decision.Accepted {
			return
		}
		event, err := NewRecognitionEvent(ev)
		if err != nil {
			log.Errorf("Failed to build recognition event: %v", err)
			return
		}
		if err := repo.SaveEvent(event); err != nil {
			log.Errorf("Failed to save recognition event for %s: %v", ev.Decision.Label, err)
		}
	})
}

// NewRecognitionEvent converts ev into its database row.
func NewRecognitionEvent(ev Event) (*models.RecognitionEvent, error) {
	box, err := json.Marshal(boxOf(ev.Rect))
	if err != nil {
		return nil, err
	}
	details, err := json.Marshal(ev.Decision)
	if err != nil {
		return nil, err
	}
	return &models.RecognitionEvent{
		EventID:     uuid.NewString(),
		StreamID:    ev.StreamID,
		TrackID:     ev.TrackID.String(),
		Label:       ev.Decision.Label,
		Accepted:    ev.Decision.Accepted,
		RawScore:    ev.Decision.RawScore,
		Confidence:  ev.Decision.CombinedConfidence,
		Reason:      ev.Decision.Reason,
		BoundingBox: datatypes.JSON(box),
		Details:     datatypes.JSON(details),
		Timestamp:   ev.Timestamp,
	}, nil
}

func boxOf(r image.Rectangle) mqtt.BoundingBox {
	return mqtt.BoundingBox{XMin: r.Min.X, YMin: r.Min.Y, XMax: r.Max.X, YMax: r.Max.Y}
}
