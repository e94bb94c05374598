package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Frame is the envelope for every websocket message in both directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	TypeJoinRoom    = "join-room"
	TypeLeaveRoom   = "leave-room"
	TypeSignal      = "signal"
	TypeChatMessage = "chat-message"

	TypeConnected = "connected"
	TypeUsers     = "users"
)

var ErrEmptyPayload = errors.New("empty payload")

// JoinRoomPayload is sent by a client to enter a room.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

// LeaveRoomPayload is sent by a client to leave a room.
type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

// SignalRequest carries an opaque negotiation blob addressed to one connection.
type SignalRequest struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

// SignalDelivery is what the addressee of a SignalRequest receives.
type SignalDelivery struct {
	From     string          `json:"from"`
	Signal   json.RawMessage `json:"signal"`
	UserName string          `json:"userName"`
}

// ChatRequest asks the relay to broadcast Message to the room verbatim.
type ChatRequest struct {
	RoomID  string          `json:"roomId"`
	Message json.RawMessage `json:"message"`
}

// ChatMessage is the shape clients put inside ChatRequest.Message.
type ChatMessage struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// User is one roster entry.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ConnectedPayload tells a freshly connected client its connection ID.
type ConnectedPayload struct {
	ID string `json:"id"`
}

// NewFrame marshals payload into a frame of type t.
func NewFrame(t string, payload any) (*Frame, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: t, Payload: b}, nil
}

// IsEmpty reports whether raw carries no value: absent or JSON null.
func IsEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Decode unmarshals the frame payload into v.
func (f *Frame) Decode(v any) error {
	if IsEmpty(f.Payload) {
		return ErrEmptyPayload
	}
	return json.Unmarshal(f.Payload, v)
}
