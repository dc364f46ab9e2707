package websocket

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"teamsync/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Identity is supplied by the caller and trusted; origin checking is
		// left to the deployment in front of this server.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Session is the server-side counterpart a handler forwards connection
// lifecycle and inbound envelopes to.
type Session interface {
	Accept(conn *Connection) error
	Dispatch(conn *Connection, raw []byte)
	Disconnect(conn *Connection)
}

// Handler upgrades HTTP requests to WebSocket connections, enforces the
// handshake contract, and runs the per-connection read pump.
type Handler struct {
	session  Session
	readWait time.Duration
	logger   *slog.Logger
}

// NewHandler creates a WebSocket handler. readWait is the read deadline
// extended on every pong; it should exceed the liveness probe interval.
func NewHandler(session Session, readWait time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		session:  session,
		readWait: readWait,
		logger:   logger,
	}
}

// HandleWebSocket upgrades the request and hands the connection to the
// session. The three identity parameters are mandatory; a missing one closes
// the socket with a policy-violation status before any envelope is exchanged.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	query := r.URL.Query()
	userID := query.Get("userId")
	userName := query.Get("userName")
	teamID := query.Get("teamId")

	if err := types.ValidateIdentity(userID, userName, teamID); err != nil {
		h.logger.Warn("rejecting handshake", "error", err, "remote", r.RemoteAddr)
		h.closePolicyViolation(ws, "missing required parameters")
		return
	}

	conn := NewConnection(ws, userID, userName, teamID)

	if err := h.session.Accept(conn); err != nil {
		h.logger.Warn("session rejected connection", "error", err, "userId", userID, "teamId", teamID)
		h.closePolicyViolation(ws, "handshake rejected")
		_ = conn.Close()
		return
	}

	h.readPump(ws, conn)
}

// readPump consumes inbound frames until the connection drops, then reports
// the disconnect to the session exactly once from this path.
func (h *Handler) readPump(ws *websocket.Conn, conn *Connection) {
	defer func() {
		h.session.Disconnect(conn)
		_ = conn.Close()
	}()

	if err := ws.SetReadDeadline(time.Now().Add(h.readWait)); err != nil {
		h.logger.Warn("failed to set read deadline", "error", err)
		return
	}
	ws.SetPongHandler(func(string) error {
		conn.Touch()
		return ws.SetReadDeadline(time.Now().Add(h.readWait))
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("read failed", "error", err, "userId", conn.UserID, "connId", conn.ID)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		conn.Touch()
		h.session.Dispatch(conn, data)
	}
}

func (h *Handler) closePolicyViolation(ws *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	deadline := time.Now().Add(writeWait)
	if err := ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		h.logger.Debug("failed to send close frame", "error", err)
	}
	_ = ws.Close()
}
