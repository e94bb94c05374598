package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"", true},
		{"null", true},
		{" null\n", true},
		{`{}`, false},
		{`""`, false},
		{`0`, false},
	}

	for _, tt := range tests {
		if got := IsEmpty(json.RawMessage(tt.raw)); got != tt.want {
			t.Errorf("IsEmpty(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestDecodeRejectsNull(t *testing.T) {
	f := Frame{Type: TypeJoinRoom, Payload: json.RawMessage("null")}
	var p JoinRoomPayload
	if err := f.Decode(&p); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("err = %v, want %v", err, ErrEmptyPayload)
	}
}
