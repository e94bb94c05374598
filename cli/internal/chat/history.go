// Package chat keeps the room's chat transcript on the client.
package chat

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/BioHazard786/Huddle/internal/protocol"
)

// HistoryLimit is how many messages a History keeps.
const HistoryLimit = 50

var ErrEmptyMessage = errors.New("message text is empty")

// Message is one chat line as it travels inside a chat-message frame.
type Message = protocol.ChatMessage

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New builds an outgoing message with a fresh ULID.
func New(user, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	now := time.Now().UTC()
	entropyMu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	entropyMu.Unlock()
	if err != nil {
		return Message{}, err
	}

	return Message{ID: id.String(), User: user, Text: text, Timestamp: now}, nil
}

// Decode parses a relayed chat payload. Messages without an ID or text are rejected.
func Decode(raw json.RawMessage) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, err
	}
	if m.ID == "" || m.Text == "" {
		return Message{}, errors.New("chat message missing id or text")
	}
	return m, nil
}

// History is a bounded transcript deduplicated by message ID. Messages are
// kept in arrival order; the relay echoes our own sends back, so there is
// no local echo.
type History struct {
	mu       sync.Mutex
	messages []Message
	seen     map[string]struct{}
}

func NewHistory() *History {
	return &History{seen: make(map[string]struct{})}
}

// Add appends m unless its ID was already recorded. It reports whether m was added.
func (h *History) Add(m Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, dup := h.seen[m.ID]; dup {
		return false
	}

	h.messages = append(h.messages, m)
	h.seen[m.ID] = struct{}{}

	if over := len(h.messages) - HistoryLimit; over > 0 {
		for _, old := range h.messages[:over] {
			delete(h.seen, old.ID)
		}
		h.messages = append([]Message(nil), h.messages[over:]...)
	}
	return true
}

// Messages returns a copy of the transcript, oldest first.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.messages...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}
