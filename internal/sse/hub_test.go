package sse

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestHubBroadcastDecision(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := make(Client, 1)
	if !hub.Register(client) {
		t.Fatal("register failed on running hub")
	}
	hub.BroadcastDecision(DecisionData{StreamID: "door", Label: "1001 - Alice", Accepted: true})

	select {
	case msg := <-client:
		var d DecisionData
		if err := json.Unmarshal(msg, &d); err != nil {
			t.Fatal(err)
		}
		if d.StreamID != "door" || !d.Accepted || d.Label != "1001 - Alice" {
			t.Errorf("decision = %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	if n := hub.ClientCount(); n != 1 {
		t.Errorf("ClientCount = %d, want 1", n)
	}

	cancel()
	<-stopped
	if _, ok := <-client; ok {
		t.Error("client channel should be closed after stop")
	}
	if hub.Register(make(Client)) {
		t.Error("register after stop should fail")
	}
	hub.Unregister(client)
}
