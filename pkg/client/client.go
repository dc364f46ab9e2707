// Package client provides the peer-side counterpart of the session server:
// one connection, reconnected with exponential backoff on loss, with local
// mirrors of room presence that are re-synchronized after every reconnect.
package client

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"teamsync/pkg/types"
)

// Transport is one live bidirectional message channel to the server.
type Transport interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens transports. The default wraps gorilla's dialer; tests
// substitute scripted outcomes.
type Dialer interface {
	Dial(rawURL string) (Transport, error)
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(rawURL string) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configures a Client. URL and the three identity fields are
// mandatory; everything else has reference defaults.
type Options struct {
	// URL is the WebSocket endpoint, e.g. "ws://host:8080/ws".
	URL      string
	UserID   string
	UserName string
	TeamID   string

	// MaxAttempts is the reconnect ceiling before the client gives up.
	// Default 5.
	MaxAttempts int
	// BackoffBase scales the reconnect delay: the nth attempt waits
	// BackoffBase * 2^n. Default 1s.
	BackoffBase time.Duration

	Dialer Dialer
	Logger *slog.Logger

	// OnEnvelope observes every inbound envelope after built-in handling.
	OnEnvelope func(*types.Envelope)
	// OnStateChange observes connectivity transitions. Callbacks must not
	// call back into the client synchronously.
	OnStateChange func(State)
}

// Client owns one connection to the session server and keeps it alive
// across transient failures. All exported methods are safe for
// concurrent use.
type Client struct {
	opts Options
	url  string

	logger   *slog.Logger
	schedule func(d time.Duration, fn func()) (cancel func())

	// writeMu serializes transport writes. Gorilla connections support one
	// concurrent writer, and Send is reachable from both caller goroutines
	// and the read loop's snapshot refresh.
	writeMu sync.Mutex

	mu          sync.Mutex
	state       State
	attempts    int
	gen         int
	transport   Transport
	cancelTimer func()
	onlineUsers []types.OnlineUser
	typingUsers []types.TypingUser
}

// New validates options and builds an idle client. Connect starts it.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, ErrMissingURL
	}
	if err := types.ValidateIdentity(opts.UserID, opts.UserName, opts.TeamID); err != nil {
		return nil, err
	}

	endpoint, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	query := endpoint.Query()
	query.Set("userId", opts.UserID)
	query.Set("userName", opts.UserName)
	query.Set("teamId", opts.TeamID)
	endpoint.RawQuery = query.Encode()

	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = gorillaDialer{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		opts:     opts,
		url:      endpoint.String(),
		logger:   logger,
		schedule: defaultSchedule,
		state:    StateIdle,
	}, nil
}

func defaultSchedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Connect opens the connection. It is also the manual re-entry point after
// GaveUp: the attempt counter restarts from zero.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	if c.cancelTimer != nil {
		c.cancelTimer()
		c.cancelTimer = nil
	}
	c.attempts = 0
	c.mu.Unlock()

	c.dial()
}

// Close tears the client down to Idle. No reconnect is attempted until the
// next Connect.
func (c *Client) Close() error {
	c.mu.Lock()
	c.gen++
	if c.cancelTimer != nil {
		c.cancelTimer()
		c.cancelTimer = nil
	}
	transport := c.transport
	c.transport = nil
	c.onlineUsers = nil
	c.typingUsers = nil
	changed := c.state != StateIdle
	c.state = StateIdle
	cb := c.opts.OnStateChange
	c.mu.Unlock()

	var err error
	if transport != nil {
		err = transport.Close()
	}
	if changed && cb != nil {
		cb(StateIdle)
	}
	return err
}

// State returns the current connectivity state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether Send would currently deliver.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// OnlineUsers returns the last received room snapshot. Empty while not
// connected.
func (c *Client) OnlineUsers() []types.OnlineUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.OnlineUser(nil), c.onlineUsers...)
}

// TypingUsers returns the last received typing set. Empty while not
// connected.
func (c *Client) TypingUsers() []types.TypingUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.TypingUser(nil), c.typingUsers...)
}

// Send delivers one envelope of the given type. It is a no-op returning
// ErrNotConnected while the client is not Connected; callers check
// IsConnected before composing if they need to know up front.
func (c *Client) Send(envType string, payload any) error {
	c.mu.Lock()
	if c.state != StateConnected || c.transport == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	transport := c.transport
	c.mu.Unlock()

	env, err := types.NewEnvelope(envType, payload, c.opts.UserID, c.opts.UserName, c.opts.TeamID)
	if err != nil {
		return fmt.Errorf("failed to build envelope: %w", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return transport.WriteMessage(websocket.TextMessage, data)
}

// SendChat sends a chat message to the room.
func (c *Client) SendChat(message string) error {
	return c.Send(types.TypeChat, types.ChatData{Message: message})
}

// SendTyping reports the local typing indicator.
func (c *Client) SendTyping(isTyping bool) error {
	return c.Send(types.TypeTyping, types.TypingData{IsTyping: isTyping})
}

// SendNoteUpdate overwrites the shared note.
func (c *Client) SendNoteUpdate(content string, cursorPosition *int) error {
	return c.Send(types.TypeNoteUpdate, types.NoteData{Content: content, CursorPosition: cursorPosition})
}

// SendTaskUpdate forwards an opaque task payload to the room.
func (c *Client) SendTaskUpdate(task any) error {
	return c.Send(types.TypeTaskUpdate, task)
}

// SendCursorMove shares the local cursor position.
func (c *Client) SendCursorMove(position types.CursorPosition) error {
	return c.Send(types.TypeCursorMove, types.CursorData{Position: position})
}

func (c *Client) dial() {
	// Claiming Connecting and checking the prior state happen under one
	// lock: a second concurrent Connect or a late timer finds the claim and
	// backs off instead of opening a second transport.
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	cb := c.opts.OnStateChange
	c.mu.Unlock()
	if cb != nil {
		cb(StateConnecting)
	}

	transport, err := c.opts.Dialer.Dial(c.url)
	if err != nil {
		c.logger.Warn("dial failed", "error", err, "url", c.opts.URL)
		c.handleFailure()
		return
	}

	c.mu.Lock()
	c.transport = transport
	c.attempts = 0
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.setState(StateConnected)

	go c.readLoop(transport, gen)
}

// redial is the timer path into dial. A Close or a newer connection bumps
// the generation, which invalidates timers armed before it.
func (c *Client) redial(gen int) {
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		return
	}
	c.dial()
}

func (c *Client) readLoop(transport Transport, gen int) {
	for {
		_, data, err := transport.ReadMessage()
		if err != nil {
			c.connectionLost(gen)
			return
		}
		c.handleInbound(data)
	}
}

// connectionLost handles a close or transport error observed by the read
// loop belonging to generation gen. Stale generations (already replaced by
// a newer transport or an explicit Close) are ignored.
func (c *Client) connectionLost(gen int) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	if c.transport != nil {
		_ = c.transport.Close()
		c.transport = nil
	}
	c.mu.Unlock()

	c.handleFailure()
}

// handleFailure clears local presence mirrors and either schedules the next
// reconnect with exponential backoff or gives up at the attempt ceiling.
func (c *Client) handleFailure() {
	c.mu.Lock()
	c.onlineUsers = nil
	c.typingUsers = nil

	if c.attempts >= c.opts.MaxAttempts {
		c.state = StateGaveUp
		cb := c.opts.OnStateChange
		c.mu.Unlock()

		c.logger.Warn("reconnect attempts exhausted", "attempts", c.opts.MaxAttempts)
		if cb != nil {
			cb(StateGaveUp)
		}
		return
	}

	c.attempts++
	delay := c.opts.BackoffBase * (1 << c.attempts)
	c.state = StateDisconnected
	gen := c.gen
	c.cancelTimer = c.schedule(delay, func() { c.redial(gen) })
	cb := c.opts.OnStateChange
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled", "attempt", c.attempts, "delay", delay)
	if cb != nil {
		cb(StateDisconnected)
	}
}

func (c *Client) handleInbound(data []byte) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("dropping unparseable envelope", "error", err)
		return
	}

	switch env.Type {
	case types.TypeOnlineUsers:
		var snapshot types.OnlineUsers
		if err := env.DecodeData(&snapshot); err == nil {
			c.mu.Lock()
			c.onlineUsers = snapshot.Users
			c.mu.Unlock()
		}
	case types.TypeTypingUpdate:
		var update types.TypingUpdate
		if err := env.DecodeData(&update); err == nil {
			c.mu.Lock()
			c.typingUsers = update.TypingUsers
			c.mu.Unlock()
		}
	case types.TypeUserJoined, types.TypeUserLeft:
		// Membership changed; ask for a fresh snapshot.
		if err := c.Send(types.TypeGetOnlineUsers, nil); err != nil {
			c.logger.Debug("snapshot refresh failed", "error", err)
		}
	}

	if c.opts.OnEnvelope != nil {
		c.opts.OnEnvelope(&env)
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	cb := c.opts.OnStateChange
	c.mu.Unlock()

	if cb != nil {
		cb(s)
	}
}
