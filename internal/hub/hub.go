// Package hub implements the session server: it owns connection admission,
// envelope routing, and room fan-out for the realtime collaboration core.
package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"teamsync/internal/history"
	"teamsync/internal/metrics"
	"teamsync/internal/note"
	"teamsync/internal/presence"
	"teamsync/internal/room"
	"teamsync/internal/websocket"
	"teamsync/pkg/types"
)

// Hub coordinates the per-room shared state: membership, typing presence,
// and the shared note. All room mutations happen on behalf of an inbound
// event or a liveness eviction, each serialized by the owning component's
// lock; rooms never synchronize with each other.
type Hub struct {
	registry    *room.Registry
	presence    *presence.Tracker
	notes       *note.Store
	broadcaster *Broadcaster
	events      *history.Store // optional, nil disables auditing
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New wires a hub over its room state components. events may be nil.
func New(registry *room.Registry, tracker *presence.Tracker, notes *note.Store, events *history.Store, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		registry:    registry,
		presence:    tracker,
		notes:       notes,
		broadcaster: NewBroadcaster(registry, m, logger),
		events:      events,
		metrics:     m,
		logger:      logger,
	}
}

// Accept admits a connection: validates its identity, joins it to its team
// room, notifies the rest of the room, and sends the newcomer the current
// presence snapshot. The join notification and the snapshot are built from
// the same membership snapshot, so the newcomer cannot miss a broadcast
// caused by its own join.
func (h *Hub) Accept(conn *websocket.Connection) error {
	if err := types.ValidateIdentity(conn.UserID, conn.UserName, conn.TeamID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHandshake, err)
	}

	members := h.registry.Join(conn.TeamID, conn)

	h.metrics.ActiveConnections.Inc()
	h.metrics.OpenRooms.Set(float64(h.registry.Rooms()))
	h.recordEvent(conn, history.KindJoin)
	h.logger.Info("connection joined",
		"userId", conn.UserID,
		"userName", conn.UserName,
		"teamId", conn.TeamID,
		"connId", conn.ID,
	)

	joined, err := types.NewEnvelope(types.TypeUserJoined,
		types.Membership{UserID: conn.UserID, UserName: conn.UserName},
		conn.UserID, conn.UserName, conn.TeamID)
	if err != nil {
		h.logger.Warn("failed to build user-joined envelope", "error", err)
	} else {
		h.broadcaster.Deliver(members, joined, conn.ID)
	}

	h.sendOnlineUsers(conn, members)

	return nil
}

// Dispatch routes one inbound payload. Unparseable payloads and unknown
// envelope types are dropped with a warning; they never bring down the
// connection or the server.
func (h *Hub) Dispatch(conn *websocket.Connection, raw []byte) {
	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.metrics.MalformedTotal.Inc()
		h.logger.Warn("dropping unparseable envelope", "error", err, "userId", conn.UserID, "connId", conn.ID)
		return
	}

	// The type string is client-chosen wire input; only recognized types may
	// become metric label values or the series set grows without bound.
	if types.IsClientType(env.Type) {
		h.metrics.EnvelopesTotal.WithLabelValues(env.Type).Inc()
	}

	switch env.Type {
	case types.TypeChat:
		h.handleChat(conn, &env)
	case types.TypeTyping:
		h.handleTyping(conn, &env)
	case types.TypeNoteUpdate:
		h.handleNoteUpdate(conn, &env)
	case types.TypeTaskUpdate:
		h.handleTaskUpdate(conn, &env)
	case types.TypeCursorMove:
		h.handleCursorMove(conn, &env)
	case types.TypeGetOnlineUsers:
		h.sendOnlineUsers(conn, h.registry.Members(conn.TeamID))
	default:
		h.metrics.MalformedTotal.Inc()
		h.logger.Warn("dropping envelope of unknown type", "type", env.Type, "userId", conn.UserID, "connId", conn.ID)
	}
}

// Disconnect removes the connection from all shared structures and notifies
// the remaining room members. Idempotent: the close path and a liveness
// eviction may both call it for the same connection.
func (h *Hub) Disconnect(conn *websocket.Connection) {
	if !h.registry.Leave(conn.TeamID, conn.ID) {
		return
	}

	h.presence.Remove(conn.TeamID, conn.UserID)

	h.metrics.ActiveConnections.Dec()
	h.metrics.OpenRooms.Set(float64(h.registry.Rooms()))
	h.recordEvent(conn, history.KindLeave)
	h.logger.Info("connection left",
		"userId", conn.UserID,
		"userName", conn.UserName,
		"teamId", conn.TeamID,
		"connId", conn.ID,
	)

	left, err := types.NewEnvelope(types.TypeUserLeft,
		types.Membership{UserID: conn.UserID, UserName: conn.UserName},
		conn.UserID, conn.UserName, conn.TeamID)
	if err != nil {
		h.logger.Warn("failed to build user-left envelope", "error", err)
		return
	}
	h.broadcaster.BroadcastToRoom(conn.TeamID, left, conn.ID)

	_ = conn.Close()
}

func (h *Hub) handleChat(conn *websocket.Connection, env *types.Envelope) {
	var data types.ChatData
	if err := env.DecodeData(&data); err != nil {
		h.dropMalformed(conn, env, err)
		return
	}

	payload := types.ChatBroadcast{
		ID:        uuid.New().String(),
		Message:   data.Message,
		UserID:    conn.UserID,
		UserName:  conn.UserName,
		Timestamp: types.NowMillis(),
	}
	h.broadcast(conn, types.TypeChat, payload)
}

func (h *Hub) handleTyping(conn *websocket.Connection, env *types.Envelope) {
	var data types.TypingData
	if err := env.DecodeData(&data); err != nil {
		h.dropMalformed(conn, env, err)
		return
	}

	conn.SetTyping(data.IsTyping)
	typingUsers := h.presence.SetTyping(conn.TeamID, conn.UserID, conn.UserName, data.IsTyping)

	h.broadcast(conn, types.TypeTypingUpdate, types.TypingUpdate{TypingUsers: typingUsers})
}

func (h *Hub) handleNoteUpdate(conn *websocket.Connection, env *types.Envelope) {
	var data types.NoteData
	if err := env.DecodeData(&data); err != nil {
		h.dropMalformed(conn, env, err)
		return
	}

	h.notes.Update(conn.TeamID, data.Content, conn.UserName)

	h.broadcast(conn, types.TypeNoteUpdate, types.NoteBroadcast{
		Content:        data.Content,
		CursorPosition: data.CursorPosition,
		UpdatedBy:      conn.UserName,
	})
}

func (h *Hub) handleTaskUpdate(conn *websocket.Connection, env *types.Envelope) {
	// The task payload is opaque to the core; it is fanned out verbatim and
	// persisted by the caller against the external store, not here.
	out, err := types.NewEnvelope(types.TypeTaskUpdate, nil, conn.UserID, conn.UserName, conn.TeamID)
	if err != nil {
		h.logger.Warn("failed to build task-update envelope", "error", err)
		return
	}
	out.Data = env.Data
	h.broadcaster.BroadcastToRoom(conn.TeamID, out, conn.ID)
}

func (h *Hub) handleCursorMove(conn *websocket.Connection, env *types.Envelope) {
	var data types.CursorData
	if err := env.DecodeData(&data); err != nil {
		h.dropMalformed(conn, env, err)
		return
	}

	h.broadcast(conn, types.TypeCursorMove, types.CursorBroadcast{
		UserID:   conn.UserID,
		UserName: conn.UserName,
		Position: data.Position,
	})
}

// broadcast wraps payload in an envelope attributed to conn and fans it out
// to the rest of the room.
func (h *Hub) broadcast(conn *websocket.Connection, envType string, payload any) {
	env, err := types.NewEnvelope(envType, payload, conn.UserID, conn.UserName, conn.TeamID)
	if err != nil {
		h.logger.Warn("failed to build envelope", "error", err, "type", envType)
		return
	}
	h.broadcaster.BroadcastToRoom(conn.TeamID, env, conn.ID)
}

// sendOnlineUsers sends conn a snapshot of the given room members.
func (h *Hub) sendOnlineUsers(conn *websocket.Connection, members []*websocket.Connection) {
	users := make([]types.OnlineUser, 0, len(members))
	for _, member := range members {
		users = append(users, types.OnlineUser{
			UserID:   member.UserID,
			UserName: member.UserName,
			LastSeen: member.LastSeen().UnixMilli(),
			IsTyping: member.IsTyping(),
		})
	}

	env, err := types.NewEnvelope(types.TypeOnlineUsers, types.OnlineUsers{Users: users}, "", "", conn.TeamID)
	if err != nil {
		h.logger.Warn("failed to build online-users envelope", "error", err)
		return
	}
	if err := conn.WriteJSON(env); err != nil {
		h.metrics.DeliveryFailures.Inc()
		h.logger.Warn("failed to send online-users snapshot", "error", err, "userId", conn.UserID, "connId", conn.ID)
	}
}

func (h *Hub) dropMalformed(conn *websocket.Connection, env *types.Envelope, err error) {
	h.metrics.MalformedTotal.Inc()
	h.logger.Warn("dropping malformed envelope",
		"error", err,
		"type", env.Type,
		"userId", conn.UserID,
		"connId", conn.ID,
	)
}

func (h *Hub) recordEvent(conn *websocket.Connection, kind string) {
	if h.events == nil {
		return
	}
	err := h.events.Record(history.Event{
		ConnID:   conn.ID,
		UserID:   conn.UserID,
		UserName: conn.UserName,
		TeamID:   conn.TeamID,
		Kind:     kind,
	})
	if err != nil {
		h.logger.Warn("failed to record connection event", "error", err, "kind", kind, "connId", conn.ID)
	}
}
