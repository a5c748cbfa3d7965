package mqtt

import (
	"encoding/json"
	"testing"

	"face-attendance-go/config"
	"face-attendance-go/internal/curation"
)

type published struct {
	topic   string
	payload interface{}
	retain  bool
}

type fakeClient struct {
	prefix    string
	connected bool
	sent      []published
}

func (f *fakeClient) PublishMessage(topic string, payload interface{}, retain bool) error {
	f.sent = append(f.sent, published{topic, payload, retain})
	return nil
}

func (f *fakeClient) Topic(path string) string { return f.prefix + "/" + path }
func (f *fakeClient) IsConnected() bool        { return f.connected }

func TestTopic(t *testing.T) {
	tests := []struct {
		prefix, path, want string
	}{
		{"attendance", "decision/door", "attendance/decision/door"},
		{"", "status", "status"},
	}
	for _, tt := range tests {
		c := NewClient(config.MQTTConfig{TopicPrefix: tt.prefix})
		if got := c.Topic(tt.path); got != tt.want {
			t.Errorf("Topic(%q) with prefix %q = %q, want %q", tt.path, tt.prefix, got, tt.want)
		}
	}
}

func TestPublishDecision(t *testing.T) {
	tests := []struct {
		name     string
		accepted bool
		topics   []string
	}{
		{"accepted also updates last", true, []string{"attendance/decision/door", "attendance/decision/door/last"}},
		{"rejected", false, []string{"attendance/decision/door"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeClient{prefix: "attendance", connected: true}
			p := &Publisher{client: fake}
			p.PublishDecision(DecisionMessage{StreamID: "door", Label: "1001 - Alice", Accepted: tt.accepted})

			if len(fake.sent) != len(tt.topics) {
				t.Fatalf("sent %d messages, want %d", len(fake.sent), len(tt.topics))
			}
			for i, topic := range tt.topics {
				if fake.sent[i].topic != topic {
					t.Errorf("message %d topic = %q, want %q", i, fake.sent[i].topic, topic)
				}
			}
			if tt.accepted && !fake.sent[1].retain {
				t.Error("last recognition must be retained")
			}
		})
	}
}

func TestPublishSkipsWhenDisconnected(t *testing.T) {
	fake := &fakeClient{prefix: "attendance"}
	p := &Publisher{client: fake}
	p.PublishDecision(DecisionMessage{StreamID: "door", Accepted: true})
	p.PublishCuration(CurationMessage{Identity: "1001_Alice"})
	if len(fake.sent) != 0 {
		t.Fatalf("sent %d messages while disconnected", len(fake.sent))
	}

	// a publisher without client is a no-op
	NewPublisher(nil).PublishDecision(DecisionMessage{StreamID: "door"})
}

func TestEncodePayload(t *testing.T) {
	b, err := encodePayload(CurationMessage{Identity: "7_Jan", Result: curation.BatchCurationResult{ProcessedCount: 9}})
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	result := decoded["result"].(map[string]interface{})
	if result["processed_count"].(float64) != 9 {
		t.Errorf("payload = %s", b)
	}
	if s, _ := encodePayload("offline"); string(s) != "offline" {
		t.Errorf("string payload = %q", s)
	}
}

func TestRegisterStreams(t *testing.T) {
	fake := &fakeClient{prefix: "attendance", connected: true}
	d := &Discovery{client: fake, prefix: DefaultDiscoveryPrefix}

	if n := d.RegisterStreams([]string{"Front Door", "lab-2"}, "0.1.0"); n != 2 {
		t.Fatalf("registered %d sensors, want 2", n)
	}
	wantTopics := []string{
		"homeassistant/sensor/face_attendance/front_door/config",
		"homeassistant/sensor/face_attendance/lab_2/config",
	}
	for i, want := range wantTopics {
		if fake.sent[i].topic != want || !fake.sent[i].retain {
			t.Errorf("sent[%d] = %s (retain %v), want %s", i, fake.sent[i].topic, fake.sent[i].retain, want)
		}
	}
	cfg := fake.sent[0].payload.(SensorConfig)
	if cfg.StateTopic != "attendance/decision/Front Door/last" || cfg.AvailabilityTopic != "attendance/status" {
		t.Errorf("sensor config = %+v", cfg)
	}

	fake.connected = false
	if n := d.RegisterStreams([]string{"x"}, ""); n != 0 {
		t.Errorf("registered %d while disconnected", n)
	}
	if n := NewDiscovery(nil, "").RegisterStreams([]string{"x"}, ""); n != 0 {
		t.Errorf("nil client registered %d", n)
	}
}
