package webrtc

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
)

const frameDuration = 20 * time.Millisecond

// opusSilence is a single 20 ms Opus frame that decodes to silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// LocalMedia is the outgoing media shared by every link of a session.
// Muting is process-wide: one switch applies to all links at once.
type LocalMedia struct {
	audio *pion.TrackLocalStaticSample

	audioEnabled atomic.Bool
	videoEnabled atomic.Bool

	startOnce sync.Once
	log       zerolog.Logger
}

// NewSilenceMedia creates a local audio track that carries Opus silence.
// Terminals have no capture device we can rely on, so the track exists to
// give every link a sending audio section and a live RTP flow.
func NewSilenceMedia(logger zerolog.Logger) (*LocalMedia, error) {
	track, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "huddle",
	)
	if err != nil {
		return nil, err
	}

	m := &LocalMedia{audio: track, log: logger.With().Str("component", "media").Logger()}
	m.audioEnabled.Store(true)
	return m, nil
}

// Start pumps frames until ctx ends. Calling it again is a no-op.
func (m *LocalMedia) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		go m.pump(ctx)
	})
}

func (m *LocalMedia) pump(ctx context.Context) {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.audioEnabled.Load() {
				continue
			}
			err := m.audio.WriteSample(media.Sample{Data: opusSilence, Duration: frameDuration})
			if err != nil && !errors.Is(err, io.ErrClosedPipe) {
				m.log.Debug().Err(err).Msg("write sample")
			}
		}
	}
}

// Tracks returns the tracks every new link should send.
func (m *LocalMedia) Tracks() []pion.TrackLocal {
	return []pion.TrackLocal{m.audio}
}

func (m *LocalMedia) SetAudioEnabled(on bool) { m.audioEnabled.Store(on) }
func (m *LocalMedia) SetVideoEnabled(on bool) { m.videoEnabled.Store(on) }
func (m *LocalMedia) AudioEnabled() bool      { return m.audioEnabled.Load() }
func (m *LocalMedia) VideoEnabled() bool      { return m.videoEnabled.Load() }

// readRTCP drains a sender's RTCP so interceptors keep working, and logs
// the loss the remote reports for us.
func (m *LocalMedia) readRTCP(sender *pion.RTPSender, remote string) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, p := range packets {
			rr, ok := p.(*rtcp.ReceiverReport)
			if !ok {
				continue
			}
			for _, report := range rr.Reports {
				if report.FractionLost > 0 {
					m.log.Debug().
						Str("remote", remote).
						Float64("loss", float64(report.FractionLost)/256).
						Uint32("jitter", report.Jitter).
						Msg("receiver report")
				}
			}
		}
	}
}
