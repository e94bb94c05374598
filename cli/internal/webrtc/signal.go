package webrtc

import (
	"encoding/json"
	"errors"
	"fmt"

	pion "github.com/pion/webrtc/v4"
)

var ErrUnexpectedSignal = errors.New("unexpected signal type")

// signalMessage is the negotiation payload exchanged through the relay. The
// shape matches what browser clients built on simple-peer send and expect:
// full descriptions as {type, sdp} and, for trickling peers, candidates as
// {type: "candidate", candidate: {...}}.
type signalMessage struct {
	Type      string                 `json:"type,omitempty"`
	SDP       string                 `json:"sdp,omitempty"`
	Candidate *pion.ICECandidateInit `json:"candidate,omitempty"`
}

const (
	signalOffer     = "offer"
	signalAnswer    = "answer"
	signalCandidate = "candidate"
)

func decodeSignal(payload json.RawMessage) (*signalMessage, error) {
	var msg signalMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("decode signal: %w", err)
	}
	if msg.Type == "" && msg.Candidate != nil {
		msg.Type = signalCandidate
	}
	return &msg, nil
}

func encodeDescription(desc *pion.SessionDescription) (json.RawMessage, error) {
	return json.Marshal(signalMessage{Type: desc.Type.String(), SDP: desc.SDP})
}
