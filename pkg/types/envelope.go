package types

import (
	"encoding/json"
	"time"
)

// Envelope type values exchanged over the wire. Client-originated types are
// routed by the session server; server-originated types are produced during
// broadcast and snapshot delivery.
const (
	TypeChat       = "chat"
	TypeTyping     = "typing"
	TypeNoteUpdate = "note-update"
	TypeTaskUpdate = "task-update"
	TypeCursorMove = "cursor-move"

	TypeGetOnlineUsers = "get-online-users"

	TypeOnlineUsers  = "online-users"
	TypeTypingUpdate = "typing-update"
	TypeUserJoined   = "user-joined"
	TypeUserLeft     = "user-left"
)

// Envelope is the wire unit for all realtime traffic. Data holds the
// type-specific payload; identity fields name the user the event originated
// from. Timestamps are Unix milliseconds.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	UserID    string          `json:"userId"`
	UserName  string          `json:"userName"`
	TeamID    string          `json:"teamId"`
	Timestamp int64           `json:"timestamp"`
}

// NewEnvelope builds an envelope with the payload marshaled into Data and
// the timestamp set to the current time.
func NewEnvelope(envType string, payload any, userID, userName, teamID string) (*Envelope, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return &Envelope{
		Type:      envType,
		Data:      data,
		UserID:    userID,
		UserName:  userName,
		TeamID:    teamID,
		Timestamp: NowMillis(),
	}, nil
}

// DecodeData unmarshals the envelope payload into v.
func (e *Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return ErrEmptyPayload
	}
	return json.Unmarshal(e.Data, v)
}

// NowMillis returns the current wall clock as Unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// ChatData is the client payload for a chat envelope.
type ChatData struct {
	Message string `json:"message"`
}

// ChatBroadcast is the server payload fanned out for a chat envelope. The ID
// is assigned server-side.
type ChatBroadcast struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Timestamp int64  `json:"timestamp"`
}

// TypingData is the client payload for a typing envelope.
type TypingData struct {
	IsTyping bool `json:"isTyping"`
}

// TypingUser identifies one user currently typing in a room.
type TypingUser struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// TypingUpdate is the server payload carrying the full typing set of a room.
type TypingUpdate struct {
	TypingUsers []TypingUser `json:"typingUsers"`
}

// NoteData is the client payload for a note-update envelope.
type NoteData struct {
	Content        string `json:"content"`
	CursorPosition *int   `json:"cursorPosition,omitempty"`
}

// NoteBroadcast is the server payload fanned out for a note-update envelope.
type NoteBroadcast struct {
	Content        string `json:"content"`
	CursorPosition *int   `json:"cursorPosition,omitempty"`
	UpdatedBy      string `json:"updatedBy"`
}

// CursorPosition is a 2D pointer position within the shared workspace view.
type CursorPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// CursorData is the client payload for a cursor-move envelope.
type CursorData struct {
	Position CursorPosition `json:"position"`
}

// CursorBroadcast is the server payload fanned out for a cursor-move envelope.
type CursorBroadcast struct {
	UserID   string         `json:"userId"`
	UserName string         `json:"userName"`
	Position CursorPosition `json:"position"`
}

// OnlineUser describes one live connection in a room snapshot.
type OnlineUser struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	LastSeen int64  `json:"lastSeen"`
	IsTyping bool   `json:"isTyping"`
}

// OnlineUsers is the server payload sent to a connection on join and on
// explicit request.
type OnlineUsers struct {
	Users []OnlineUser `json:"users"`
}

// Membership is the server payload for user-joined and user-left envelopes.
type Membership struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}
