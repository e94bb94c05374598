package signaling

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/backend/internal/metrics"
	"github.com/BioHazard786/Huddle/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Non-trickle SDP blobs fit comfortably.
	maxMessageSize = 64 * 1024

	// sendBuffer bounds the outbound queue before a client counts as a slow consumer.
	sendBuffer = 256
)

// Client is a wrapper for a single websocket connection.
type Client struct {
	// ID is the server-assigned connection identifier. Never reused.
	ID string

	// Hub is the hub that manages this client.
	Hub *Hub

	// Conn is the websocket connection.
	Conn *websocket.Conn

	// Send is a buffered channel of outbound frames. Only the hub closes it.
	Send chan *protocol.Frame

	log zerolog.Logger
}

// NewClient wraps conn with a fresh connection ID.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	id := uuid.NewString()
	return &Client{
		ID:   id,
		Hub:  hub,
		Conn: conn,
		Send: make(chan *protocol.Frame, sendBuffer),
		log:  hub.log.With().Str("conn_id", id).Logger(),
	}
}

// ReadPump pumps frames from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("unexpected close")
			}
			return
		}

		// A bad frame costs the frame, not the connection.
		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
			metrics.FramesDropped.WithLabelValues(metrics.DropMalformed).Inc()
			c.log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
			continue
		}

		if !c.Hub.submit(c, frame) {
			return
		}
	}
}

// WritePump pumps frames from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(frame); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
