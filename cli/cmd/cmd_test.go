package cmd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BioHazard786/Huddle/internal/protocol"
)

func TestParseRoomInput(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"R7X2KQ9P", "R7X2KQ9P", false},
		{"  R7X2KQ9P ", "R7X2KQ9P", false},
		{"https://huddle.example/room/R7X2KQ9P", "R7X2KQ9P", false},
		{"http://localhost:3000/room/ab12/", "ab12", false},
		{"https://huddle.example/", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseRoomInput(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseRoomInput(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAPIClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/rooms", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"roomId":"R7X2KQ9P","url":"https://huddle.example/room/R7X2KQ9P","participants":[]}`))
	})
	mux.HandleFunc("GET /api/rooms/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "R7X2KQ9P" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"room not found"}`))
			return
		}
		w.Write([]byte(`{"roomId":"R7X2KQ9P","participants":[{"id":"c1","name":"Alice"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newAPIClient(srv.URL + "/api/")
	ctx := context.Background()

	info, err := c.CreateRoom(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.RoomID != "R7X2KQ9P" || info.URL == "" {
		t.Errorf("CreateRoom = %+v", info)
	}

	info, err = c.Room(ctx, "R7X2KQ9P")
	if err != nil {
		t.Fatal(err)
	}
	want := []protocol.User{{ID: "c1", Name: "Alice"}}
	if len(info.Participants) != 1 || info.Participants[0] != want[0] {
		t.Errorf("participants = %+v, want %+v", info.Participants, want)
	}

	if _, err := c.Room(ctx, "NOPE"); !errors.Is(err, errRoomNotFound) {
		t.Errorf("missing room err = %v, want %v", err, errRoomNotFound)
	}
}

func TestAPIClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	_, err := newAPIClient(srv.URL).CreateRoom(context.Background())
	if err == nil || err.Error() != "server returned 500 Internal Server Error: boom" {
		t.Errorf("err = %v", err)
	}
}
