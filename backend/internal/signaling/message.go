package signaling

import (
	"encoding/json"

	"github.com/BioHazard786/Huddle/backend/internal/presence"
	"github.com/BioHazard786/Huddle/internal/protocol"
)

// inbound is a frame read from a client, tagged with its sender.
// It never leaves the process.
type inbound struct {
	client *Client
	frame  protocol.Frame
}

// usersFrame builds the roster snapshot sent after every membership change.
func usersFrame(roster []presence.Participant) *protocol.Frame {
	users := make([]protocol.User, len(roster))
	for i, p := range roster {
		users[i] = protocol.User{ID: p.ID, Name: p.Name}
	}
	frame, _ := protocol.NewFrame(protocol.TypeUsers, users)
	return frame
}

// rawFrame wraps an already encoded payload without re-marshalling it.
func rawFrame(t string, payload json.RawMessage) *protocol.Frame {
	return &protocol.Frame{Type: t, Payload: payload}
}
