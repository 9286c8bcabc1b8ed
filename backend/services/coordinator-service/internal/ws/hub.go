package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"chargehub/backend/libs/events"
)

// Message is what subscribers receive: the event envelope tagged with its topic.
type Message struct {
	Topic string `json:"topic"`
	events.Envelope
}

// Hub tracks event subscribers and fans published events out to them.
type Hub struct {
	mu           sync.RWMutex
	connections  map[string]*Connection
	pingInterval time.Duration
	logger       *zap.Logger
}

var _ events.Publisher = (*Hub)(nil)

// NewHub builds subscriber hub.
func NewHub(pingInterval time.Duration, logger *zap.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections:  make(map[string]*Connection),
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Add registers new connection.
func (h *Hub) Add(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn.ID()] = conn
}

// Remove removes connection.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, id)
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *Hub) snapshot() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		out = append(out, conn)
	}
	return out
}

// Publish implements events.Publisher. Slow subscribers lose messages instead of blocking.
func (h *Hub) Publish(_ context.Context, topic string, env events.Envelope) error {
	payload, err := json.Marshal(Message{Topic: topic, Envelope: env})
	if err != nil {
		return err
	}
	for _, conn := range h.snapshot() {
		if conn.Wants(topic) {
			conn.Send(payload)
		}
	}
	return nil
}

// Start begins ping loop to keep connections active.
func (h *Hub) Start(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, conn := range h.snapshot() {
				if err := conn.Ping(); err != nil {
					h.logger.Debug("ping failed", zap.String("subscriber_id", conn.ID()), zap.Error(err))
				}
			}
		}
	}
}
