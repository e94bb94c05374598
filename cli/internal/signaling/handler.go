package signaling

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/protocol"
)

// Event is one room frame. Exactly one field is set.
type Event struct {
	Users  []protocol.User
	Signal *protocol.SignalDelivery
	Chat   json.RawMessage
}

// Handler routes incoming signaling frames to typed channels.
type Handler struct {
	client *Client
	log    zerolog.Logger

	Connected chan string

	// Events carries roster, signal and chat frames in the order the relay
	// sent them. A signal that precedes a roster dropping its sender must
	// be handled first.
	Events chan Event

	// Closed is closed when the connection to the relay ends.
	Closed chan struct{}
}

// NewHandler creates a new frame handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:    client,
		log:       client.log,
		Connected: make(chan string, 1),
		Events:    make(chan Event, 64),
		Closed:    make(chan struct{}),
	}
}

// Start routes frames until the connection ends.
func (h *Handler) Start() {
	defer close(h.Closed)

	for frame := range h.client.Incoming() {
		switch frame.Type {
		case protocol.TypeConnected:
			var p protocol.ConnectedPayload
			if h.decode(frame, &p) {
				emit(h, h.Connected, p.ID)
			}

		case protocol.TypeUsers:
			var users []protocol.User
			if h.decode(frame, &users) {
				emit(h, h.Events, Event{Users: users})
			}

		case protocol.TypeSignal:
			var d protocol.SignalDelivery
			if h.decode(frame, &d) {
				emit(h, h.Events, Event{Signal: &d})
			}

		case protocol.TypeChatMessage:
			emit(h, h.Events, Event{Chat: frame.Payload})

		default:
			h.log.Debug().Str("type", frame.Type).Msg("ignoring unknown frame")
		}
	}
}

func (h *Handler) decode(frame *protocol.Frame, v any) bool {
	if err := frame.Decode(v); err != nil {
		h.log.Warn().Err(err).Str("type", frame.Type).Msg("ignoring malformed frame")
		return false
	}
	return true
}

// emit blocks until the consumer takes v or the client is closed.
func emit[T any](h *Handler, ch chan T, v T) {
	select {
	case ch <- v:
	case <-h.client.done:
	}
}
