// Package webrtc builds peer.Channel values on top of pion.
package webrtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/cli/internal/config"
	"github.com/BioHazard786/Huddle/cli/internal/peer"
	"github.com/BioHazard786/Huddle/cli/internal/utils"
)

var ErrConnectionFailed = errors.New("connection failed")

// gatherTimeout caps how long a description waits for ICE gathering before
// it is sent with whatever candidates it has.
const gatherTimeout = 10 * time.Second

// Factory creates pion-backed channels that share one local media source.
type Factory struct {
	api    *pion.API
	config pion.Configuration
	media  *LocalMedia
	log    zerolog.Logger
}

// NewFactory builds the pion API and ICE configuration from cfg. media may
// be nil, in which case channels only receive.
func NewFactory(cfg *config.Config, media *LocalMedia, logger zerolog.Logger) (*Factory, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	return &Factory{
		api:    pion.NewAPI(pion.WithMediaEngine(m)),
		config: ICEConfiguration(cfg, utils.ShouldForceRelay()),
		media:  media,
		log:    logger.With().Str("component", "webrtc").Logger(),
	}, nil
}

// ICEConfiguration turns the configured STUN and TURN servers into a pion
// configuration. Relay-only transport is used when requested, or when the
// network looks restricted and a TURN server is available.
func ICEConfiguration(cfg *config.Config, restrictedNetwork bool) pion.Configuration {
	var servers []pion.ICEServer
	if len(cfg.STUNServers) > 0 {
		servers = append(servers, pion.ICEServer{URLs: cfg.STUNServers})
	}

	turn := cfg.GetTURNServers()
	if turn != nil {
		username, password := cfg.GetTURNCredentials()
		servers = append(servers, pion.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turn != nil && (cfg.ForceRelay || restrictedNetwork) {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: policy,
	}
}

// CreateChannel implements peer.ChannelFactory.
func (f *Factory) CreateChannel(opts peer.ChannelOptions, events peer.Events) (peer.Channel, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	ch := &channel{
		pc:     pc,
		events: events,
		log:    f.log.With().Str("remote", opts.RemoteID).Logger(),
	}

	if f.media != nil {
		for _, track := range f.media.Tracks() {
			sender, err := pc.AddTrack(track)
			if err != nil {
				pc.Close()
				return nil, fmt.Errorf("add track: %w", err)
			}
			go f.media.readRTCP(sender, opts.RemoteID)
		}
	} else if _, err := pc.AddTransceiverFromKind(pion.RTPCodecTypeAudio, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("add transceiver: %w", err)
	}

	ch.setupHandlers()

	if opts.Initiator {
		go ch.offer()
	}
	return ch, nil
}

// channel is one pion peer connection. Negotiation is non-trickle: each
// side sends a single description once gathering has finished.
type channel struct {
	pc      *pion.PeerConnection
	events  peer.Events
	closing atomic.Bool
	log     zerolog.Logger
}

func (c *channel) setupHandlers() {
	c.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		c.log.Debug().Str("state", state.String()).Msg("connection state")

		switch state {
		case pion.PeerConnectionStateConnected:
			c.events.OnConnected()
		case pion.PeerConnectionStateFailed:
			c.events.OnError(ErrConnectionFailed)
		case pion.PeerConnectionStateClosed:
			if !c.closing.Load() {
				c.events.OnClosed()
			}
		}
	})

	c.pc.OnTrack(func(remote *pion.TrackRemote, _ *pion.RTPReceiver) {
		c.events.OnRemoteStream(peer.Stream{ID: remote.StreamID(), Kind: remote.Kind().String()})

		// Nothing plays the audio back yet; keep reading so buffers drain.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := remote.Read(buf); err != nil {
					return
				}
			}
		}()
	})
}

func (c *channel) offer() {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		c.fail("create offer", err)
		return
	}
	if err := c.publishLocal(offer); err != nil {
		c.fail("send offer", err)
	}
}

// ApplyRemoteSignal implements peer.Channel.
func (c *channel) ApplyRemoteSignal(payload json.RawMessage) error {
	msg, err := decodeSignal(payload)
	if err != nil {
		return err
	}

	switch msg.Type {
	case signalOffer:
		if err := c.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: msg.SDP}); err != nil {
			return fmt.Errorf("set remote offer: %w", err)
		}
		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		return c.publishLocal(answer)

	case signalAnswer:
		if err := c.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: msg.SDP}); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}
		return nil

	case signalCandidate:
		if msg.Candidate == nil {
			return nil
		}
		if err := c.pc.AddICECandidate(*msg.Candidate); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
		return nil
	}

	// renegotiate, transceiverRequest and friends
	c.log.Debug().Str("type", msg.Type).Msg("ignoring signal")
	return nil
}

// publishLocal sets desc as the local description, waits for gathering and
// emits the complete description.
func (c *channel) publishLocal(desc pion.SessionDescription) error {
	gathered := pion.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-time.After(gatherTimeout):
		c.log.Warn().Msg("ICE gathering timed out, sending partial description")
	}

	local := c.pc.LocalDescription()
	if local == nil {
		return fmt.Errorf("%w: no local description", ErrUnexpectedSignal)
	}

	payload, err := encodeDescription(local)
	if err != nil {
		return err
	}
	c.events.OnSignal(payload)
	return nil
}

func (c *channel) fail(op string, err error) {
	if c.closing.Load() {
		return
	}
	c.events.OnError(fmt.Errorf("%s: %w", op, err))
}

// Close implements peer.Channel.
func (c *channel) Close() error {
	c.closing.Store(true)
	return c.pc.Close()
}
