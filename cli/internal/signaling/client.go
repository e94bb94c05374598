package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/cli/internal/dns"
	"github.com/BioHazard786/Huddle/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrClosed = errors.New("signaling connection closed")

// Client manages the WebSocket connection to the signaling server.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	incoming  chan *protocol.Frame
	outgoing  chan *protocol.Frame
	done      chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
}

// NewClient creates a new signaling client
func NewClient(serverURL string, logger zerolog.Logger) *Client {
	return &Client{
		serverURL: serverURL,
		incoming:  make(chan *protocol.Frame, 16),
		outgoing:  make(chan *protocol.Frame, 64),
		done:      make(chan struct{}),
		log:       logger.With().Str("component", "signaling").Logger(),
	}
}

// Connect establishes WebSocket connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	// Resolve through our DNS lookup with public fallback
	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = dns.DialContext

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads frames from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Debug().Err(err).Msg("read loop ended")
			return
		}

		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn().Err(err).Msg("ignoring malformed frame")
			continue
		}

		select {
		case c.incoming <- &frame:
		case <-c.done:
			return
		}
	}
}

// writePump writes frames to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.outgoing:
			if err := c.write(frame); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			// Flush what was queued before Close, e.g. a final leave-room.
			for {
				select {
				case frame := <-c.outgoing:
					if c.write(frame) != nil {
						return
					}
					continue
				default:
				}
				break
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) write(frame *protocol.Frame) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(frame)
}

// Send queues a frame for the server.
func (c *Client) Send(frame *protocol.Frame) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) send(t string, payload any) error {
	frame, err := protocol.NewFrame(t, payload)
	if err != nil {
		return err
	}
	return c.Send(frame)
}

// JoinRoom asks the relay to add this connection to roomID.
func (c *Client) JoinRoom(roomID, name string) error {
	return c.send(protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: roomID, Name: name})
}

// LeaveRoom removes this connection from roomID.
func (c *Client) LeaveRoom(roomID string) error {
	return c.send(protocol.TypeLeaveRoom, protocol.LeaveRoomPayload{RoomID: roomID})
}

// SendSignal relays an opaque negotiation payload to one connection.
func (c *Client) SendSignal(to string, payload json.RawMessage) error {
	return c.send(protocol.TypeSignal, protocol.SignalRequest{To: to, Signal: payload})
}

// SendChat broadcasts an encoded chat message to roomID.
func (c *Client) SendChat(roomID string, message json.RawMessage) error {
	return c.send(protocol.TypeChatMessage, protocol.ChatRequest{RoomID: roomID, Message: message})
}

// Incoming returns the channel for receiving frames. It is closed when the
// connection ends.
func (c *Client) Incoming() <-chan *protocol.Frame {
	return c.incoming
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
