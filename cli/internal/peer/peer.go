// Package peer keeps one media link per remote participant in a room.
//
// A Manager receives roster updates and inbound negotiation payloads and
// decides, from those alone, which links to create, feed, retry or tear
// down. The media machinery itself sits behind ChannelFactory.
package peer

import (
	"encoding/json"
	"errors"
)

// State is the lifecycle state of the link to one remote connection.
type State int

const (
	StateNegotiating State = iota
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	ErrNegotiationTimeout = errors.New("negotiation timed out")
	ErrChannelClosed      = errors.New("channel closed unexpectedly")
)

// Member is one roster entry as seen by the manager.
type Member struct {
	ID   string
	Name string
}

// Stream describes remote media that arrived on a link.
type Stream struct {
	ID   string
	Kind string // "audio" or "video"
}

// Signaler delivers a locally produced negotiation payload to one remote
// connection through the relay.
type Signaler interface {
	SendSignal(to string, payload json.RawMessage) error
}

// ChannelOptions describes the link a factory is asked to build.
type ChannelOptions struct {
	RemoteID  string
	Initiator bool
}

// Events receives everything a channel reports. Calls may arrive on any
// goroutine, including after the channel was closed.
type Events interface {
	OnSignal(payload json.RawMessage)
	OnConnected()
	OnRemoteStream(s Stream)
	OnError(err error)
	OnClosed()
}

// Channel is one negotiated media connection to a single remote.
type Channel interface {
	ApplyRemoteSignal(payload json.RawMessage) error
	Close() error
}

// ChannelFactory builds channels. An initiator channel must start
// producing its offer through Events.OnSignal on its own.
type ChannelFactory interface {
	CreateChannel(opts ChannelOptions, events Events) (Channel, error)
}

// Initiator reports whether the local side starts negotiation with remote.
// Both sides compute the same answer from the pair of IDs, so exactly one
// of them offers.
func Initiator(localID, remoteID string) bool {
	return localID < remoteID
}

// LinkInfo is a point-in-time view of one remote.
type LinkInfo struct {
	RemoteID  string
	Name      string
	State     State
	Initiator bool
	Stream    *Stream
	Attempts  int
	LastError string
}

// Stats counts link lifecycle events since the manager started.
type Stats struct {
	Created   int
	Destroyed int
	Retries   int
}

// Live is the number of links currently held.
func (s Stats) Live() int {
	return s.Created - s.Destroyed
}
