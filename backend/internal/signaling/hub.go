package signaling

import (
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Huddle/backend/internal/metrics"
	"github.com/BioHazard786/Huddle/backend/internal/presence"
	"github.com/BioHazard786/Huddle/internal/protocol"
)

// EventSink observes room activity after the hub has delivered it.
// Implementations must not block.
type EventSink interface {
	RosterChanged(roomID string, roster []presence.Participant)
	ChatRelayed(roomID string, message json.RawMessage)
}

type nopSink struct{}

func (nopSink) RosterChanged(string, []presence.Participant) {}
func (nopSink) ChatRelayed(string, json.RawMessage)          {}

// Option configures a Hub.
type Option func(*Hub)

// WithEventSink mirrors roster and chat activity to sink.
func WithEventSink(sink EventSink) Option {
	return func(h *Hub) {
		if sink != nil {
			h.events = sink
		}
	}
}

// WithLogger replaces the global logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Hub) {
		h.log = logger
	}
}

// Hub is the central brain of the signaling server.
// Run is the single goroutine that owns the client table and drives every
// presence mutation, so room updates are applied one at a time.
type Hub struct {
	// store holds room membership.
	store *presence.Store

	// clients maps connection IDs to live clients. Only Run touches it.
	clients map[string]*Client

	// register is a channel for registering new clients.
	register chan *Client

	// unregister is a channel for unregistering clients.
	unregister chan *Client

	// inbound carries frames read by client read pumps.
	inbound chan *inbound

	quit   chan struct{}
	events EventSink
	log    zerolog.Logger
}

// NewHub creates a new Hub backed by store.
func NewHub(store *presence.Store, opts ...Option) *Hub {
	h := &Hub{
		store:      store,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *inbound),
		quit:       make(chan struct{}),
		events:     nopSink{},
		log:        log.Logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Store exposes the presence store for read-only HTTP endpoints.
func (h *Hub) Store() *presence.Store {
	return h.store
}

// Register hands a new client to the hub. It returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

// Unregister tells the hub the client's connection is gone.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) submit(c *Client, frame protocol.Frame) bool {
	select {
	case h.inbound <- &inbound{client: c, frame: frame}:
		return true
	case <-h.quit:
		return false
	}
}

// Stop ends Run and closes every client's send queue.
func (h *Hub) Stop() {
	close(h.quit)
}

// Run starts the hub's main processing loop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			for id, client := range h.clients {
				close(client.Send)
				delete(h.clients, id)
			}
			metrics.ConnectedClients.Set(0)
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case msg := <-h.inbound:
			h.handleInbound(msg)
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.clients[c.ID] = c
	metrics.ConnectedClients.Set(float64(len(h.clients)))
	h.log.Info().Str("conn_id", c.ID).Msg("client registered")

	frame, _ := protocol.NewFrame(protocol.TypeConnected, protocol.ConnectedPayload{ID: c.ID})
	h.deliver(c, frame)
}

// handleUnregister treats a dropped connection as an implicit leave of
// every room it had joined.
func (h *Hub) handleUnregister(c *Client) {
	if current, ok := h.clients[c.ID]; ok && current == c {
		delete(h.clients, c.ID)
		close(c.Send)
	}
	metrics.ConnectedClients.Set(float64(len(h.clients)))

	changed := h.store.RemoveConnectionEverywhere(c.ID)
	for _, room := range changed {
		h.broadcastRoster(room.RoomID, room.Participants)
	}
	h.updateRoomGauge()

	h.log.Info().Str("conn_id", c.ID).Int("rooms_left", len(changed)).Msg("client unregistered")
}

func (h *Hub) handleInbound(msg *inbound) {
	c := msg.client
	if _, ok := h.clients[c.ID]; !ok {
		return
	}

	metrics.FramesReceived.WithLabelValues(msg.frame.Type).Inc()
	l := h.log.With().Str("conn_id", c.ID).Str("type", msg.frame.Type).Logger()

	switch msg.frame.Type {
	case protocol.TypeJoinRoom:
		var req protocol.JoinRoomPayload
		if err := msg.frame.Decode(&req); err != nil || req.RoomID == "" {
			h.malformed(l, err, "join-room requires roomId")
			return
		}
		roster := h.store.Join(req.RoomID, c.ID, req.Name)
		l.Info().Str("room_id", req.RoomID).Int("participants", len(roster)).Msg("joined room")
		h.broadcastRoster(req.RoomID, roster)
		h.updateRoomGauge()

	case protocol.TypeLeaveRoom:
		var req protocol.LeaveRoomPayload
		if err := msg.frame.Decode(&req); err != nil || req.RoomID == "" {
			h.malformed(l, err, "leave-room requires roomId")
			return
		}
		roster := h.store.Leave(req.RoomID, c.ID)
		l.Info().Str("room_id", req.RoomID).Int("participants", len(roster)).Msg("left room")
		h.broadcastRoster(req.RoomID, roster)
		h.updateRoomGauge()

	case protocol.TypeSignal:
		var req protocol.SignalRequest
		if err := msg.frame.Decode(&req); err != nil || req.To == "" {
			h.malformed(l, err, "signal requires to")
			return
		}
		h.relaySignal(l, c, req)

	case protocol.TypeChatMessage:
		var req protocol.ChatRequest
		if err := msg.frame.Decode(&req); err != nil || req.RoomID == "" || protocol.IsEmpty(req.Message) {
			h.malformed(l, err, "chat-message requires roomId and message")
			return
		}
		frame := rawFrame(protocol.TypeChatMessage, req.Message)
		for _, p := range h.store.Roster(req.RoomID) {
			h.deliverTo(p.ID, frame)
		}
		h.events.ChatRelayed(req.RoomID, req.Message)

	default:
		h.malformed(l, nil, "unknown message type")
	}
}

// relaySignal forwards a negotiation payload to exactly one connection.
func (h *Hub) relaySignal(l zerolog.Logger, from *Client, req protocol.SignalRequest) {
	name, ok := h.store.LookupDisplayName(from.ID)
	if !ok {
		name = "Unknown"
	}

	frame, err := protocol.NewFrame(protocol.TypeSignal, protocol.SignalDelivery{
		From:     from.ID,
		Signal:   req.Signal,
		UserName: name,
	})
	if err != nil {
		h.malformed(l, err, "signal payload is not valid JSON")
		return
	}

	if !h.deliverTo(req.To, frame) {
		l.Debug().Str("to", req.To).Msg("signal target not connected")
	}
}

func (h *Hub) broadcastRoster(roomID string, roster []presence.Participant) {
	frame := usersFrame(roster)
	for _, p := range roster {
		h.deliverTo(p.ID, frame)
	}
	h.events.RosterChanged(roomID, roster)
}

// deliverTo queues frame for connID. It reports false on a routing miss.
func (h *Hub) deliverTo(connID string, frame *protocol.Frame) bool {
	c, ok := h.clients[connID]
	if !ok {
		metrics.FramesDropped.WithLabelValues(metrics.DropRoutingMiss).Inc()
		return false
	}
	h.deliver(c, frame)
	return true
}

// deliver never blocks the hub. A client whose queue is full is cut off;
// its read pump then unregisters it and its rooms are cleaned up.
func (h *Hub) deliver(c *Client, frame *protocol.Frame) {
	select {
	case c.Send <- frame:
		metrics.FramesDelivered.WithLabelValues(frame.Type).Inc()
	default:
		metrics.FramesDropped.WithLabelValues(metrics.DropSlowConsumer).Inc()
		h.log.Warn().Str("conn_id", c.ID).Msg("send queue full, dropping client")
		delete(h.clients, c.ID)
		close(c.Send)
		metrics.ConnectedClients.Set(float64(len(h.clients)))
	}
}

func (h *Hub) malformed(l zerolog.Logger, err error, reason string) {
	metrics.FramesDropped.WithLabelValues(metrics.DropMalformed).Inc()
	l.Warn().Err(err).Msg(reason)
}

func (h *Hub) updateRoomGauge() {
	rooms, _ := h.store.Stats()
	metrics.ActiveRooms.Set(float64(rooms))
}
