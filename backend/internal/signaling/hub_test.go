package signaling

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/backend/internal/presence"
	"github.com/BioHazard786/Huddle/internal/protocol"
)

func startHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	h := NewHub(presence.NewStore(), opts...)
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

// connect registers a fake client and consumes its welcome frame.
func connect(t *testing.T, h *Hub, id string) *Client {
	t.Helper()
	c := &Client{ID: id, Hub: h, Send: make(chan *protocol.Frame, 64), log: zerolog.Nop()}
	if !h.Register(c) {
		t.Fatal("hub stopped")
	}

	var welcome protocol.ConnectedPayload
	decode(t, expectFrame(t, c, protocol.TypeConnected), &welcome)
	if welcome.ID != id {
		t.Fatalf("welcome id = %q, want %q", welcome.ID, id)
	}
	return c
}

func send(t *testing.T, h *Hub, c *Client, typ string, payload any) {
	t.Helper()
	frame, err := protocol.NewFrame(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	if !h.submit(c, *frame) {
		t.Fatal("hub stopped")
	}
}

func expectFrame(t *testing.T, c *Client, typ string) *protocol.Frame {
	t.Helper()
	select {
	case f, ok := <-c.Send:
		if !ok {
			t.Fatalf("%s: send queue closed, wanted %s", c.ID, typ)
		}
		if f.Type != typ {
			t.Fatalf("%s: got frame %s, want %s", c.ID, f.Type, typ)
		}
		return f
	case <-time.After(time.Second):
		t.Fatalf("%s: timed out waiting for %s", c.ID, typ)
	}
	return nil
}

func expectNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case f := <-c.Send:
		t.Fatalf("%s: unexpected frame %s %s", c.ID, f.Type, f.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func decode(t *testing.T, f *protocol.Frame, v any) {
	t.Helper()
	if err := f.Decode(v); err != nil {
		t.Fatalf("decode %s: %v", f.Type, err)
	}
}

func expectUsers(t *testing.T, c *Client, want []protocol.User) {
	t.Helper()
	var got []protocol.User
	decode(t, expectFrame(t, c, protocol.TypeUsers), &got)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("%s: users = %+v, want %+v", c.ID, got, want)
	}
}

func TestAliceBobScenario(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")
	b := connect(t, h, "B")

	send(t, h, a, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: "R7X2KQ9P", Name: "Alice"})
	expectUsers(t, a, []protocol.User{{ID: "A", Name: "Alice"}})

	send(t, h, b, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: "R7X2KQ9P", Name: "Bob"})
	both := []protocol.User{{ID: "A", Name: "Alice"}, {ID: "B", Name: "Bob"}}
	expectUsers(t, a, both)
	expectUsers(t, b, both)

	msg := protocol.ChatMessage{ID: "m1", User: "Alice", Text: "hi", Timestamp: time.Unix(1700000000, 0).UTC()}
	raw, _ := json.Marshal(msg)
	send(t, h, a, protocol.TypeChatMessage, protocol.ChatRequest{RoomID: "R7X2KQ9P", Message: raw})
	for _, c := range []*Client{a, b} {
		var got protocol.ChatMessage
		decode(t, expectFrame(t, c, protocol.TypeChatMessage), &got)
		if got.User != "Alice" || got.Text != "hi" || got.ID != "m1" {
			t.Errorf("%s: chat = %+v", c.ID, got)
		}
	}

	h.Unregister(b)
	expectUsers(t, a, []protocol.User{{ID: "A", Name: "Alice"}})
	if _, ok := <-b.Send; ok {
		t.Error("disconnected client's queue still open")
	}
}

func TestSignalGoesOnlyToTarget(t *testing.T) {
	h := startHub(t)
	clients := map[string]*Client{}
	for _, id := range []string{"A", "B", "C", "D"} {
		clients[id] = connect(t, h, id)
		send(t, h, clients[id], protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: "R1", Name: "n" + id})
	}
	// drain the roster broadcasts
	for i, id := range []string{"A", "B", "C", "D"} {
		for j := i; j < 4; j++ {
			expectFrame(t, clients[id], protocol.TypeUsers)
		}
	}

	blob := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	send(t, h, clients["A"], protocol.TypeSignal, protocol.SignalRequest{To: "C", Signal: blob})

	var got protocol.SignalDelivery
	decode(t, expectFrame(t, clients["C"], protocol.TypeSignal), &got)
	if got.From != "A" || got.UserName != "nA" {
		t.Errorf("delivery = %+v", got)
	}
	if string(got.Signal) != string(blob) {
		t.Errorf("payload altered: %s", got.Signal)
	}

	for _, id := range []string{"A", "B", "D"} {
		expectNoFrame(t, clients[id])
	}
}

func TestSignalRoutingMissIsSilent(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")

	send(t, h, a, protocol.TypeSignal, protocol.SignalRequest{To: "ghost", Signal: json.RawMessage(`{}`)})
	expectNoFrame(t, a)

	// the hub is still serving
	send(t, h, a, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: "R1", Name: "Alice"})
	expectFrame(t, a, protocol.TypeUsers)
}

func TestSignalFromConnectionOutsideRooms(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")
	b := connect(t, h, "B")

	send(t, h, a, protocol.TypeSignal, protocol.SignalRequest{To: "B", Signal: json.RawMessage(`"x"`)})
	var got protocol.SignalDelivery
	decode(t, expectFrame(t, b, protocol.TypeSignal), &got)
	if got.UserName != "Unknown" {
		t.Errorf("userName = %q, want Unknown", got.UserName)
	}
}

func TestDisconnectBroadcastsOncePerJoinedRoom(t *testing.T) {
	h := startHub(t)
	x := connect(t, h, "X")
	y := connect(t, h, "Y")
	z := connect(t, h, "Z")
	w := connect(t, h, "W")

	join := func(c *Client, room string) {
		send(t, h, c, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: room, Name: c.ID})
	}
	join(y, "A")
	join(z, "B")
	join(w, "C")
	join(x, "A")
	join(x, "B")

	// Y: own join + X joining A. Z: own join + X joining B. W: own join.
	expectFrame(t, y, protocol.TypeUsers)
	expectFrame(t, y, protocol.TypeUsers)
	expectFrame(t, z, protocol.TypeUsers)
	expectFrame(t, z, protocol.TypeUsers)
	expectFrame(t, w, protocol.TypeUsers)
	expectFrame(t, x, protocol.TypeUsers)
	expectFrame(t, x, protocol.TypeUsers)

	h.Unregister(x)

	expectUsers(t, y, []protocol.User{{ID: "Y", Name: "Y"}})
	expectUsers(t, z, []protocol.User{{ID: "Z", Name: "Z"}})
	expectNoFrame(t, y)
	expectNoFrame(t, z)
	expectNoFrame(t, w)
}

func TestLeaveRoomBroadcastsToRemaining(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")
	b := connect(t, h, "B")
	send(t, h, a, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: "R1", Name: "Alice"})
	expectFrame(t, a, protocol.TypeUsers)
	send(t, h, b, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: "R1", Name: "Bob"})
	expectFrame(t, a, protocol.TypeUsers)
	expectFrame(t, b, protocol.TypeUsers)

	send(t, h, b, protocol.TypeLeaveRoom, protocol.LeaveRoomPayload{RoomID: "R1"})
	expectUsers(t, a, []protocol.User{{ID: "A", Name: "Alice"}})
	expectNoFrame(t, b)
}

func TestMalformedFramesAreIgnored(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")

	bad := []protocol.Frame{
		{Type: "teleport", Payload: json.RawMessage(`{}`)},
		{Type: protocol.TypeJoinRoom},
		{Type: protocol.TypeJoinRoom, Payload: json.RawMessage(`{"name":"no room"}`)},
		{Type: protocol.TypeJoinRoom, Payload: json.RawMessage(`[1,2,3]`)},
		{Type: protocol.TypeSignal, Payload: json.RawMessage(`{"signal":{}}`)},
		{Type: protocol.TypeChatMessage, Payload: json.RawMessage(`{"roomId":"R1"}`)},
		{Type: protocol.TypeLeaveRoom, Payload: json.RawMessage(`"R1"`)},
	}
	for _, f := range bad {
		if !h.submit(a, f) {
			t.Fatal("hub stopped")
		}
	}
	expectNoFrame(t, a)

	send(t, h, a, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: "R1", Name: "Alice"})
	expectUsers(t, a, []protocol.User{{ID: "A", Name: "Alice"}})
}

func TestNullChatMessageIsMalformed(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "A")
	send(t, h, a, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: "R1", Name: "Alice"})
	expectUsers(t, a, []protocol.User{{ID: "A", Name: "Alice"}})

	for _, payload := range []string{
		`{"roomId":"R1","message":null}`,
		`{"roomId":"R1","message": null }`,
	} {
		if !h.submit(a, protocol.Frame{Type: protocol.TypeChatMessage, Payload: json.RawMessage(payload)}) {
			t.Fatal("hub stopped")
		}
	}
	expectNoFrame(t, a)

	send(t, h, a, protocol.TypeChatMessage, protocol.ChatRequest{RoomID: "R1", Message: json.RawMessage(`{"text":"hi"}`)})
	expectFrame(t, a, protocol.TypeChatMessage)
}

func TestSlowConsumerIsCutOff(t *testing.T) {
	h := startHub(t)
	slow := &Client{ID: "slow", Hub: h, Send: make(chan *protocol.Frame, 1), log: zerolog.Nop()}
	h.Register(slow) // fills the queue with the welcome frame
	a := connect(t, h, "A")

	send(t, h, a, protocol.TypeSignal, protocol.SignalRequest{To: "slow", Signal: json.RawMessage(`1`)})
	send(t, h, a, protocol.TypeSignal, protocol.SignalRequest{To: "slow", Signal: json.RawMessage(`2`)})

	expectFrame(t, slow, protocol.TypeConnected)
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-slow.Send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("slow consumer was never disconnected")
		}
	}
}

type recordingSink struct {
	mu      sync.Mutex
	rosters []string
	chats   []string
}

func (s *recordingSink) RosterChanged(roomID string, roster []presence.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(roster))
	for i, p := range roster {
		names[i] = p.Name
	}
	s.rosters = append(s.rosters, roomID+":"+strings.Join(names, ","))
}

func (s *recordingSink) ChatRelayed(roomID string, message json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = append(s.chats, roomID+":"+string(message))
}

func TestEventSinkSeesRoomActivity(t *testing.T) {
	sink := &recordingSink{}
	h := startHub(t, WithEventSink(sink))
	a := connect(t, h, "A")

	send(t, h, a, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: "R1", Name: "Alice"})
	expectFrame(t, a, protocol.TypeUsers)
	send(t, h, a, protocol.TypeChatMessage, protocol.ChatRequest{RoomID: "R1", Message: json.RawMessage(`{"text":"hi"}`)})
	expectFrame(t, a, protocol.TypeChatMessage)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if !reflect.DeepEqual(sink.rosters, []string{"R1:Alice"}) {
		t.Errorf("rosters = %v", sink.rosters)
	}
	if !reflect.DeepEqual(sink.chats, []string{`R1:{"text":"hi"}`}) {
		t.Errorf("chats = %v", sink.chats)
	}
}

func TestGenerateRoomID(t *testing.T) {
	id := GenerateRoomID(0, nil)
	if len(id) != DefaultRoomIDLength {
		t.Fatalf("len(%q) = %d, want %d", id, len(id), DefaultRoomIDLength)
	}
	for _, r := range id {
		if !strings.ContainsRune(roomIDAlphabet, r) {
			t.Errorf("unexpected rune %q in %q", r, id)
		}
	}

	calls := 0
	GenerateRoomID(4, func(string) bool {
		calls++
		return calls < 3
	})
	if calls != 3 {
		t.Errorf("taken consulted %d times, want 3", calls)
	}
}
