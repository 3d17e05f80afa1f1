package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nfrund/chatroom/internal/events"
	"github.com/nfrund/chatroom/internal/presence"
)

// Broadcaster fans events out to live connections. Delivery is best effort:
// a connection that is closed or not draining its buffer misses the event.
type Broadcaster struct {
	registry *presence.Registry[*Client]
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster over registry.
func NewBroadcaster(registry *presence.Registry[*Client]) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		logger:   slog.Default().With("component", "broadcaster"),
	}
}

// Broadcast sends ev to every active connection registered right now and
// returns how many accepted it.
func (b *Broadcaster) Broadcast(ev events.Event) int {
	frame, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("Failed to marshal event", "type", ev.Type, "error", err)
		return 0
	}

	delivered := 0
	for _, client := range b.registry.Connections() {
		if client.State() != StateActive {
			continue
		}
		if err := client.Send(frame); err != nil {
			b.logger.Warn("Dropping event for connection", "type", ev.Type, "connID", client.ID(), "userID", client.UserID(), "error", err)
			continue
		}
		delivered++
	}
	b.logger.Debug("Broadcast event", "type", ev.Type, "delivered", delivered)
	return delivered
}

// SendTo delivers ev to a single connection.
func (b *Broadcaster) SendTo(connID string, ev events.Event) error {
	client, ok := b.registry.Lookup(connID)
	if !ok {
		return fmt.Errorf("connection %s: %w", connID, ErrClientClosed)
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	return client.Send(frame)
}
