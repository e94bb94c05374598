package webrtc

import (
	"encoding/json"
	"testing"

	pion "github.com/pion/webrtc/v4"
)

func TestDecodeSignal(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantType string
		wantErr  bool
	}{
		{"offer", `{"type":"offer","sdp":"v=0"}`, signalOffer, false},
		{"answer", `{"type":"answer","sdp":"v=0"}`, signalAnswer, false},
		{"simple-peer candidate", `{"type":"candidate","candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0"}}`, signalCandidate, false},
		{"bare candidate", `{"candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host"}}`, signalCandidate, false},
		{"renegotiate", `{"type":"renegotiate","renegotiate":true}`, "renegotiate", false},
		{"not an object", `"hello"`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := decodeSignal(json.RawMessage(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && msg.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", msg.Type, tt.wantType)
			}
		})
	}
}

func TestEncodeDescription(t *testing.T) {
	raw, err := encodeDescription(&pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: "v=0\r\n"})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got["type"] != "answer" || got["sdp"] != "v=0\r\n" {
		t.Errorf("encoded = %s", raw)
	}
	if _, ok := got["candidate"]; ok {
		t.Errorf("description carries a candidate field: %s", raw)
	}
}
