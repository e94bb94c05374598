package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/BioHazard786/Huddle/backend/internal/presence"
)

type published struct {
	channel string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
	got  chan struct{}
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	f.msgs = append(f.msgs, published{channel: channel, data: message.([]byte)})
	f.mu.Unlock()
	f.got <- struct{}{}
	return redis.NewIntResult(1, f.err)
}

func (f *fakePublisher) wait(t *testing.T, n int) []published {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.got:
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d of %d publishes", i, n)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func startMirror(t *testing.T, pub publisher) *Mirror {
	t.Helper()
	m := newMirror(pub, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	t.Cleanup(func() {
		cancel()
		m.Close()
	})
	return m
}

func TestMirrorPublishesRoomEvents(t *testing.T) {
	pub := &fakePublisher{got: make(chan struct{}, 8)}
	m := startMirror(t, pub)

	roster := []presence.Participant{{ID: "A", Name: "Alice"}, {ID: "B", Name: "Bob"}}
	m.RosterChanged("R7X2KQ9P", roster)
	m.ChatRelayed("R7X2KQ9P", json.RawMessage(`{"text":"hi"}`))

	msgs := pub.wait(t, 2)
	for _, p := range msgs {
		if p.channel != "huddle:room:R7X2KQ9P" {
			t.Errorf("channel = %q", p.channel)
		}
	}

	var ev Event
	if err := msgpack.Unmarshal(msgs[0].data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Kind != KindRoster || len(ev.Participants) != 2 || ev.Participants[1].Name != "Bob" {
		t.Errorf("roster event = %+v", ev)
	}

	ev = Event{}
	if err := msgpack.Unmarshal(msgs[1].data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Kind != KindChat || string(ev.Message) != `{"text":"hi"}` {
		t.Errorf("chat event = %+v", ev)
	}
}

func TestMirrorSurvivesPublishErrors(t *testing.T) {
	pub := &fakePublisher{got: make(chan struct{}, 8), err: errors.New("connection refused")}
	m := startMirror(t, pub)

	m.RosterChanged("R1", nil)
	m.RosterChanged("R2", nil)
	if msgs := pub.wait(t, 2); msgs[1].channel != Channel("R2") {
		t.Errorf("second publish went to %q", msgs[1].channel)
	}
}

func TestEnqueueNeverBlocks(t *testing.T) {
	m := newMirror(&fakePublisher{got: make(chan struct{}, 1)}, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < queueSize+10; i++ {
			m.ChatRelayed("R1", json.RawMessage(`{}`))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
	if len(m.queue) != queueSize {
		t.Errorf("queue holds %d events, want %d", len(m.queue), queueSize)
	}
}
