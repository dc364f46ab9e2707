package websocket_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamsync/internal/websocket"
	"teamsync/pkg/types"
)

type fakeSession struct {
	mu          sync.Mutex
	accepted    []*websocket.Connection
	acceptErr   error
	greeting    *types.Envelope
	dispatched  chan []byte
	disconnects chan *websocket.Connection
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		dispatched:  make(chan []byte, 16),
		disconnects: make(chan *websocket.Connection, 16),
	}
}

func (s *fakeSession) Accept(conn *websocket.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acceptErr != nil {
		return s.acceptErr
	}
	s.accepted = append(s.accepted, conn)
	if s.greeting != nil {
		if err := conn.WriteJSON(s.greeting); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeSession) Dispatch(_ *websocket.Connection, raw []byte) {
	s.dispatched <- append([]byte(nil), raw...)
}

func (s *fakeSession) Disconnect(conn *websocket.Connection) {
	s.disconnects <- conn
}

func (s *fakeSession) acceptedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accepted)
}

func startServer(t *testing.T, session websocket.Session) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := websocket.NewHandler(session, 5*time.Second, logger)
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, query string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func dial(t *testing.T, rawURL string) *gws.Conn {
	t.Helper()
	conn, resp, err := gws.DefaultDialer.Dial(rawURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandshakeClosesOnMissingIdentity(t *testing.T) {
	session := newFakeSession()
	srv := startServer(t, session)

	// The upgrade itself succeeds; the policy close follows immediately.
	for _, query := range []string{
		"",
		"userId=u1&teamId=t1",
		"userId=u1&userName=Ada",
		"userName=Ada&teamId=t1",
	} {
		conn := dial(t, wsURL(srv, query))
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		_, _, err := conn.ReadMessage()
		require.Error(t, err, "query %q", query)
		assert.True(t, gws.IsCloseError(err, gws.ClosePolicyViolation), "query %q: got %v", query, err)
	}

	assert.Zero(t, session.acceptedCount())
}

func TestHandshakeAcceptsCompleteIdentity(t *testing.T) {
	session := newFakeSession()
	greeting, err := types.NewEnvelope(types.TypeOnlineUsers, types.OnlineUsers{
		Users: []types.OnlineUser{{UserID: "u1", UserName: "Ada"}},
	}, "", "", "t1")
	require.NoError(t, err)
	session.greeting = greeting

	srv := startServer(t, session)
	conn := dial(t, wsURL(srv, "userId=u1&userName=Ada&teamId=t1"))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env types.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, types.TypeOnlineUsers, env.Type)

	require.Equal(t, 1, session.acceptedCount())
	session.mu.Lock()
	accepted := session.accepted[0]
	session.mu.Unlock()
	assert.Equal(t, "u1", accepted.UserID)
	assert.Equal(t, "Ada", accepted.UserName)
	assert.Equal(t, "t1", accepted.TeamID)
}

func TestTextFramesReachSession(t *testing.T) {
	session := newFakeSession()
	srv := startServer(t, session)
	conn := dial(t, wsURL(srv, "userId=u1&userName=Ada&teamId=t1"))

	payload := []byte(`{"type":"chat","data":{"message":"hi"},"userId":"u1","userName":"Ada","teamId":"t1","timestamp":1}`)
	require.NoError(t, conn.WriteMessage(gws.TextMessage, payload))

	select {
	case raw := <-session.dispatched:
		assert.JSONEq(t, string(payload), string(raw))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func TestDisconnectReportedOnClientClose(t *testing.T) {
	session := newFakeSession()
	srv := startServer(t, session)
	conn := dial(t, wsURL(srv, "userId=u1&userName=Ada&teamId=t1"))

	msg := gws.FormatCloseMessage(gws.CloseNormalClosure, "")
	require.NoError(t, conn.WriteMessage(gws.CloseMessage, msg))
	conn.Close()

	select {
	case gone := <-session.disconnects:
		assert.Equal(t, "u1", gone.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect")
	}
}

func TestSessionRejectionClosesSocket(t *testing.T) {
	session := newFakeSession()
	session.acceptErr = assert.AnError
	srv := startServer(t, session)

	conn := dial(t, wsURL(srv, "userId=u1&userName=Ada&teamId=t1"))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, gws.IsCloseError(err, gws.ClosePolicyViolation), "got %v", err)
}
