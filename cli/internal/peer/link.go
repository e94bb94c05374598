package peer

import (
	"encoding/json"
	"sync"
	"time"
)

// link is the manager's record of one live channel. The manager owns every
// field except the payload inbox; the worker goroutine owns the channel.
type link struct {
	remote    string
	gen       uint64
	initiator bool
	state     State
	stream    *Stream
	timer     *time.Timer

	mu      sync.Mutex
	pending []json.RawMessage
	wake    chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newLink(remote string, gen uint64, initiator bool) *link {
	return &link{
		remote:    remote,
		gen:       gen,
		initiator: initiator,
		state:     StateNegotiating,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// enqueue hands a remote payload to the worker. Payloads are applied in
// arrival order and are never dropped while the link lives.
func (l *link) enqueue(payload json.RawMessage) {
	l.mu.Lock()
	l.pending = append(l.pending, payload)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *link) take() []json.RawMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.pending
	l.pending = nil
	return p
}

// shutdown stops the worker without waiting for it.
func (l *link) shutdown() {
	l.stopOnce.Do(func() { close(l.stop) })
	if l.timer != nil {
		l.timer.Stop()
	}
}

func (l *link) stopped() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

// run creates the channel and applies remote payloads one at a time. prev
// is the done channel of the remote's previous link, if any; the new channel
// is not created before the old one has been closed.
func (l *link) run(factory ChannelFactory, events Events, prev <-chan struct{}) {
	defer close(l.done)

	if prev != nil {
		select {
		case <-prev:
		case <-l.stop:
			// done must not close while the previous channel is still open.
			<-prev
			return
		}
	}
	if l.stopped() {
		return
	}

	ch, err := factory.CreateChannel(ChannelOptions{RemoteID: l.remote, Initiator: l.initiator}, events)
	if err != nil {
		events.OnError(err)
		return
	}
	defer ch.Close()

	for {
		select {
		case <-l.stop:
			return
		case <-l.wake:
		}

		for _, payload := range l.take() {
			if l.stopped() {
				return
			}
			if err := ch.ApplyRemoteSignal(payload); err != nil {
				events.OnError(err)
				return
			}
		}
	}
}

// linkEvents tags channel callbacks with the generation they belong to so
// the manager can discard reports from links it already tore down.
type linkEvents struct {
	q      *eventQueue
	remote string
	gen    uint64
}

func (e linkEvents) OnSignal(payload json.RawMessage) {
	e.q.push(localSignalEvent{remote: e.remote, gen: e.gen, payload: payload})
}

func (e linkEvents) OnConnected() {
	e.q.push(connectedEvent{remote: e.remote, gen: e.gen})
}

func (e linkEvents) OnRemoteStream(s Stream) {
	e.q.push(streamEvent{remote: e.remote, gen: e.gen, stream: s})
}

func (e linkEvents) OnError(err error) {
	e.q.push(failedEvent{remote: e.remote, gen: e.gen, err: err})
}

func (e linkEvents) OnClosed() {
	e.q.push(failedEvent{remote: e.remote, gen: e.gen, err: ErrChannelClosed})
}
