// Package session ties the relay connection, the peer manager and the chat
// transcript together for one room.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/cli/internal/chat"
	"github.com/BioHazard786/Huddle/cli/internal/peer"
	"github.com/BioHazard786/Huddle/cli/internal/signaling"
	"github.com/BioHazard786/Huddle/internal/protocol"
)

const DefaultConnectTimeout = 15 * time.Second

// MediaControl is the process-wide switch over local media.
type MediaControl interface {
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
}

// Options configures Join.
type Options struct {
	ServerURL string
	RoomID    string
	Name      string

	Factory peer.ChannelFactory

	// Media is nil when no local media is available. The session then
	// runs degraded: chat and roster work, no links are built.
	Media MediaControl

	ConnectTimeout     time.Duration
	RetryDelay         time.Duration
	NegotiationTimeout time.Duration

	Logger zerolog.Logger
}

// Session is one membership in one room.
type Session struct {
	opts    Options
	client  *signaling.Client
	handler *signaling.Handler
	manager *peer.Manager
	history *chat.History
	selfID  string
	log     zerolog.Logger

	mu       sync.RWMutex
	roster   []protocol.User
	muted    bool
	videoOff bool
	err      error

	updates   chan struct{}
	done      chan struct{}
	routed    chan struct{}
	cancel    context.CancelFunc
	leaveOnce sync.Once
	doneOnce  sync.Once
}

// Join connects to the relay, waits for a connection ID and enters the room.
func Join(ctx context.Context, opts Options) (*Session, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	logger := opts.Logger.With().Str("room_id", opts.RoomID).Logger()

	ctx, cancelConnect := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancelConnect()

	client := signaling.NewClient(opts.ServerURL, logger)
	if err := client.Connect(ctx); err != nil {
		return nil, WrapError("connect to server", ErrSignalingError, err.Error())
	}

	handler := signaling.NewHandler(client)
	go handler.Start()

	var selfID string
	select {
	case selfID = <-handler.Connected:
	case <-handler.Closed:
		client.Close()
		return nil, NewError("connect to server", ErrDisconnected)
	case <-ctx.Done():
		client.Close()
		return nil, WrapError("connect to server", ErrTimeout, "no connection id from relay")
	}

	s := &Session{
		opts:     opts,
		client:   client,
		handler:  handler,
		history:  chat.NewHistory(),
		selfID:   selfID,
		log:      logger.With().Str("self", selfID).Logger(),
		videoOff: true,
		updates:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		routed:   make(chan struct{}),
	}

	s.manager = peer.NewManager(peer.Config{
		LocalID:            selfID,
		Factory:            opts.Factory,
		Signaler:           client,
		HasMedia:           opts.Media != nil,
		RetryDelay:         opts.RetryDelay,
		NegotiationTimeout: opts.NegotiationTimeout,
		Logger:             s.log,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.manager.Run(runCtx)
	go s.route(runCtx)

	if err := client.JoinRoom(opts.RoomID, opts.Name); err != nil {
		s.shutdown(err)
		return nil, NewError("join room", err)
	}

	s.log.Info().Bool("media", opts.Media != nil).Msg("joined room")
	return s, nil
}

// route feeds relay frames into the manager and the transcript.
func (s *Session) route(ctx context.Context) {
	defer close(s.routed)

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.handler.Closed:
			s.finish(ErrDisconnected)
			return

		case ev := <-s.handler.Events:
			s.handleEvent(ev)

		case <-s.manager.Changes():
			s.notify()
		}
	}
}

// handleEvent applies one relay frame. Frames are handled strictly in
// arrival order so a roster that drops a remote always lands after that
// remote's last signal.
func (s *Session) handleEvent(ev signaling.Event) {
	switch {
	case ev.Users != nil:
		s.mu.Lock()
		s.roster = ev.Users
		s.mu.Unlock()

		members := make([]peer.Member, len(ev.Users))
		for i, u := range ev.Users {
			members[i] = peer.Member{ID: u.ID, Name: u.Name}
		}
		s.manager.UpdateRoster(members)
		s.notify()

	case ev.Signal != nil:
		s.manager.HandleSignal(ev.Signal.From, ev.Signal.UserName, ev.Signal.Signal)

	case ev.Chat != nil:
		m, err := chat.Decode(ev.Chat)
		if err != nil {
			s.log.Warn().Err(err).Msg("ignoring chat message")
			return
		}
		if s.history.Add(m) {
			s.notify()
		}
	}
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Session) finish(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Session) shutdown(err error) {
	s.cancel()
	s.client.Close()
	<-s.routed
	s.finish(err)
}

// SendChat broadcasts text to the room. The message shows up in Messages
// once the relay echoes it back.
func (s *Session) SendChat(text string) error {
	m, err := chat.New(s.SelfName(), text)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return NewError("send chat", err)
	}
	if err := s.client.SendChat(s.opts.RoomID, raw); err != nil {
		return NewError("send chat", err)
	}
	return nil
}

// SetMuted toggles outgoing audio on every link at once.
func (s *Session) SetMuted(muted bool) error {
	if s.opts.Media == nil {
		return NewError("mute", ErrNoMedia)
	}
	s.opts.Media.SetAudioEnabled(!muted)

	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetVideoOff toggles outgoing video on every link at once.
func (s *Session) SetVideoOff(off bool) error {
	if s.opts.Media == nil {
		return NewError("toggle video", ErrNoMedia)
	}
	s.opts.Media.SetVideoEnabled(!off)

	s.mu.Lock()
	s.videoOff = off
	s.mu.Unlock()
	s.notify()
	return nil
}

// Leave tells the relay we are gone, tears down every link and closes the
// connection. Calls after the first return ErrLeft.
func (s *Session) Leave(ctx context.Context) error {
	err := ErrLeft
	s.leaveOnce.Do(func() {
		err = nil
		if sendErr := s.client.LeaveRoom(s.opts.RoomID); sendErr != nil && !errors.Is(sendErr, signaling.ErrClosed) {
			s.log.Warn().Err(sendErr).Msg("leave-room not sent")
		}
		if leaveErr := s.manager.Leave(ctx); leaveErr != nil {
			err = NewError("leave room", leaveErr)
		}
		s.shutdown(nil)
		s.log.Info().Msg("left room")
	})
	return err
}

func (s *Session) RoomID() string { return s.opts.RoomID }
func (s *Session) SelfID() string { return s.selfID }

// SelfName is our display name as the relay knows it.
func (s *Session) SelfName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.roster {
		if u.ID == s.selfID {
			return u.Name
		}
	}
	return s.opts.Name
}

// Roster is the latest participant list, local entry included.
func (s *Session) Roster() []protocol.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.User(nil), s.roster...)
}

func (s *Session) Links() []peer.LinkInfo   { return s.manager.Snapshot() }
func (s *Session) Stats() peer.Stats        { return s.manager.Stats() }
func (s *Session) Messages() []chat.Message { return s.history.Messages() }
func (s *Session) HasMedia() bool           { return s.opts.Media != nil }
func (s *Session) Updates() <-chan struct{} { return s.updates }
func (s *Session) Done() <-chan struct{}    { return s.done }

func (s *Session) Muted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muted
}

func (s *Session) VideoOff() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.videoOff
}

// Err reports why Done was closed. It is nil after a normal Leave.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
