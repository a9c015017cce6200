package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"chat-relay/internal/models"
)

// Router fans events out to the members of a group. Events are encoded once
// and every member receives the same bytes.
type Router struct {
	registry *Registry
	log      *slog.Logger
}

func NewRouter(registry *Registry, log *slog.Logger) *Router {
	return &Router{registry: registry, log: log}
}

// Publish delivers event to every session registered in group at call time,
// the sender included. A member whose outbound queue is full is disconnected;
// it does not affect delivery to the others and is not retried.
func (r *Router) Publish(group string, event models.OutboundEvent) error {
	frame, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.EventType(), err)
	}

	delivered, failed := r.registry.fanout(group, frame)
	eventsPublished.WithLabelValues(string(event.EventType())).Inc()
	r.log.Debug("event published", "group", group, "type", event.EventType(), "recipients", delivered)

	for _, s := range failed {
		deliveriesDropped.Inc()
		r.log.Warn("outbound queue full, disconnecting session", "group", group, "session_id", s.ID())
		s.Close()
	}
	return nil
}
