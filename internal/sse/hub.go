package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Client represents a single connected SSE client.
type Client chan []byte

// Hub manages the set of active clients and broadcasts messages to them.
type Hub struct {
	clients map[Client]bool

	// Inbound messages from the stream workers.
	broadcast chan []byte

	register   chan Client
	unregister chan Client

	// closed when Run returns
	done chan struct{}

	mu sync.Mutex
}

// DecisionData is the payload sent for every recognition decision.
type DecisionData struct {
	StreamID   string    `json:"stream_id"`
	TrackID    string    `json:"track_id"`
	Label      string    `json:"label"`
	Accepted   bool      `json:"accepted"`
	RawScore   float64   `json:"raw_score"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan Client),
		unregister: make(chan Client),
		clients:    make(map[Client]bool),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's processing loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log.Info("SSE Hub started.")
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
			log.Info("SSE Hub stopped.")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Debugf("SSE client registered. Total clients: %d", n)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				log.Debugf("SSE client unregistered. Total clients: %d", len(h.clients))
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client <- message:
				default:
					// slow client, drop the message for it
					log.Warn("SSE client channel full. Skipping message.")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a new client to the hub. It reports false once the hub
// has stopped.
func (h *Hub) Register(client Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends a message to all registered clients without blocking the
// caller.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.Warn("SSE broadcast channel full. Message dropped.")
	}
}

// BroadcastDecision serializes and broadcasts one decision.
func (h *Hub) BroadcastDecision(d DecisionData) {
	data, err := json.Marshal(d)
	if err != nil {
		log.Errorf("Error marshalling decision for SSE: %v", err)
		return
	}
	h.Broadcast(data)
}
