// Package bus mirrors room activity onto Redis pub/sub so that processes
// outside the relay (recorders, translation workers) can follow a room.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/BioHazard786/Huddle/backend/internal/metrics"
	"github.com/BioHazard786/Huddle/backend/internal/presence"
)

// Event kinds.
const (
	KindRoster = "roster"
	KindChat   = "chat"
)

const (
	queueSize      = 1024
	publishTimeout = 2 * time.Second
)

// Event is the msgpack document published for every mirrored change.
type Event struct {
	Kind         string                 `msgpack:"kind"`
	RoomID       string                 `msgpack:"room_id"`
	Participants []presence.Participant `msgpack:"participants,omitempty"`
	Message      []byte                 `msgpack:"message,omitempty"` // chat JSON as relayed
	At           time.Time              `msgpack:"at"`
}

// Channel returns the pub/sub channel for a room.
func Channel(roomID string) string {
	return fmt.Sprintf("huddle:room:%s", roomID)
}

// publisher is the slice of *redis.Client the mirror needs.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Mirror publishes room events asynchronously. Its hub-facing methods never
// block; when the queue is full the event is dropped and counted.
type Mirror struct {
	pub    publisher
	closer func() error
	queue  chan Event
	done   chan struct{}
	log    zerolog.Logger
}

// Dial connects to redisURL and returns a mirror that is not yet running.
func Dial(ctx context.Context, redisURL string, logger zerolog.Logger) (*Mirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	m := newMirror(client, logger)
	m.closer = client.Close
	return m, nil
}

func newMirror(pub publisher, logger zerolog.Logger) *Mirror {
	return &Mirror{
		pub:   pub,
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
		log:   logger.With().Str("component", "bus").Logger(),
	}
}

// RosterChanged implements signaling.EventSink.
func (m *Mirror) RosterChanged(roomID string, roster []presence.Participant) {
	m.enqueue(Event{Kind: KindRoster, RoomID: roomID, Participants: roster, At: time.Now().UTC()})
}

// ChatRelayed implements signaling.EventSink.
func (m *Mirror) ChatRelayed(roomID string, message json.RawMessage) {
	m.enqueue(Event{Kind: KindChat, RoomID: roomID, Message: []byte(message), At: time.Now().UTC()})
}

func (m *Mirror) enqueue(ev Event) {
	select {
	case m.queue <- ev:
	default:
		metrics.EventsPublished.WithLabelValues("overflow").Inc()
	}
}

// Run publishes queued events until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.queue:
			m.publish(ctx, ev)
		}
	}
}

func (m *Mirror) publish(ctx context.Context, ev Event) {
	data, err := msgpack.Marshal(&ev)
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		m.log.Error().Err(err).Str("room_id", ev.RoomID).Msg("encode event")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := m.pub.Publish(ctx, Channel(ev.RoomID), data).Err(); err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		m.log.Warn().Err(err).Str("room_id", ev.RoomID).Str("kind", ev.Kind).Msg("publish failed")
		return
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
}

// Close waits for Run to return and releases the Redis connection.
// The context passed to Run must be cancelled first.
func (m *Mirror) Close() error {
	<-m.done
	if m.closer != nil {
		return m.closer()
	}
	return nil
}
