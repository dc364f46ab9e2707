package hub

import (
	"log/slog"

	"teamsync/internal/metrics"
	"teamsync/internal/room"
	"teamsync/internal/websocket"
	"teamsync/pkg/types"
)

// Broadcaster fans envelopes out to room members. Delivery works against a
// membership snapshot taken at dispatch time, so a concurrent leave never
// results in a send to a connection that was removed before the snapshot.
type Broadcaster struct {
	registry *room.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *room.Registry, m *metrics.Metrics, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry: registry,
		metrics:  m,
		logger:   logger,
	}
}

// BroadcastToRoom delivers env to every current member of the room except
// the connection identified by excludeConnID (empty string excludes nobody).
func (b *Broadcaster) BroadcastToRoom(teamID string, env *types.Envelope, excludeConnID string) {
	b.Deliver(b.registry.Members(teamID), env, excludeConnID)
}

// Deliver sends env to each connection in members, skipping excludeConnID.
// A failed send is logged and counted but never aborts delivery to the
// remaining members; the failing peer is reconciled by its close event or by
// the liveness monitor.
func (b *Broadcaster) Deliver(members []*websocket.Connection, env *types.Envelope, excludeConnID string) {
	b.metrics.BroadcastsTotal.Inc()

	for _, conn := range members {
		if conn.ID == excludeConnID {
			continue
		}
		if err := conn.WriteJSON(env); err != nil {
			b.metrics.DeliveryFailures.Inc()
			b.logger.Warn("delivery failed",
				"error", err,
				"type", env.Type,
				"userId", conn.UserID,
				"connId", conn.ID,
			)
		}
	}
}
