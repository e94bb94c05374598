package peer

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultRetryDelay         = 2 * time.Second
	DefaultNegotiationTimeout = 20 * time.Second
)

// Config configures a Manager.
type Config struct {
	// LocalID is this client's connection ID as assigned by the relay.
	LocalID string

	Factory  ChannelFactory
	Signaler Signaler

	// HasMedia is false when no local media could be acquired. The manager
	// then creates no links and drops inbound payloads.
	HasMedia bool

	// RetryDelay is the fixed wait before a failed link is rebuilt.
	RetryDelay time.Duration

	// NegotiationTimeout bounds how long a link may stay negotiating. An
	// initiator's clock starts at creation, a responder's at its first
	// remote payload. Negative disables it.
	NegotiationTimeout time.Duration

	Logger zerolog.Logger
}

type (
	event interface{}

	rosterEvent       struct{ members []Member }
	remoteSignalEvent struct {
		from, name string
		payload    json.RawMessage
	}
	localSignalEvent struct {
		remote  string
		gen     uint64
		payload json.RawMessage
	}
	connectedEvent struct {
		remote string
		gen    uint64
	}
	streamEvent struct {
		remote string
		gen    uint64
		stream Stream
	}
	failedEvent struct {
		remote string
		gen    uint64
		err    error
	}
	timeoutEvent struct {
		remote string
		gen    uint64
	}
	retryEvent struct {
		remote string
		seq    uint64
	}
	leaveEvent struct{ done chan []<-chan struct{} }
	flushEvent struct{ done chan struct{} }
)

type retry struct {
	timer *time.Timer
	seq   uint64
}

// Manager owns every link of one room session. All state changes happen on
// the goroutine running Run; the exported methods only enqueue.
type Manager struct {
	cfg     Config
	log     zerolog.Logger
	queue   *eventQueue
	changes chan struct{}

	links    map[string]*link
	closing  map[string]<-chan struct{}
	retries  map[string]*retry
	attempts map[string]int
	lastErr  map[string]string
	names    map[string]string
	listed   map[string]bool
	order    []string
	gen      uint64
	retrySeq uint64
	left     bool
	counts   Stats

	mu       sync.RWMutex
	snapshot []LinkInfo
	stats    Stats
}

// NewManager creates a Manager. Nothing happens until Run is called.
func NewManager(cfg Config) *Manager {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.NegotiationTimeout == 0 {
		cfg.NegotiationTimeout = DefaultNegotiationTimeout
	}

	return &Manager{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "peer").Logger(),
		queue:    newEventQueue(),
		changes:  make(chan struct{}, 1),
		links:    make(map[string]*link),
		closing:  make(map[string]<-chan struct{}),
		retries:  make(map[string]*retry),
		attempts: make(map[string]int),
		lastErr:  make(map[string]string),
		names:    make(map[string]string),
		listed:   make(map[string]bool),
	}
}

// UpdateRoster reports the room's full participant list, local entry included.
func (m *Manager) UpdateRoster(members []Member) {
	m.queue.push(rosterEvent{members: append([]Member(nil), members...)})
}

// HandleSignal routes a payload relayed from connection from.
func (m *Manager) HandleSignal(from, name string, payload json.RawMessage) {
	m.queue.push(remoteSignalEvent{from: from, name: name, payload: payload})
}

// Leave destroys every link, cancels pending retries and ignores all later
// input. It waits until every channel has closed or ctx ends.
func (m *Manager) Leave(ctx context.Context) error {
	done := make(chan []<-chan struct{}, 1)
	m.queue.push(leaveEvent{done: done})

	var closing []<-chan struct{}
	select {
	case closing = <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, c := range closing {
		select {
		case <-c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Snapshot returns the current links in roster order.
func (m *Manager) Snapshot() []LinkInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]LinkInfo(nil), m.snapshot...)
}

// Changes fires after the snapshot changed. Bursts coalesce into one signal.
func (m *Manager) Changes() <-chan struct{} {
	return m.changes
}

// Stats returns lifecycle counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Run processes events until ctx is cancelled, then tears every link down.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			m.teardown()
			m.publish()
			return ctx.Err()
		case <-m.queue.ready:
		}

		for _, ev := range m.queue.drain() {
			m.handle(ev)
		}
		m.publish()
	}
}

// flush returns once every event queued before it has been handled.
func (m *Manager) flush(ctx context.Context) error {
	done := make(chan struct{})
	m.queue.push(flushEvent{done: done})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) handle(ev event) {
	switch ev := ev.(type) {
	case rosterEvent:
		m.handleRoster(ev.members)

	case remoteSignalEvent:
		m.handleRemoteSignal(ev)

	case localSignalEvent:
		if m.current(ev.remote, ev.gen) == nil {
			return
		}
		if err := m.cfg.Signaler.SendSignal(ev.remote, ev.payload); err != nil {
			m.log.Warn().Err(err).Str("remote", ev.remote).Msg("send signal")
		}

	case connectedEvent:
		if l := m.current(ev.remote, ev.gen); l != nil {
			l.state = StateConnected
			if l.timer != nil {
				l.timer.Stop()
			}
			delete(m.lastErr, ev.remote)
			m.log.Info().Str("remote", ev.remote).Msg("link connected")
		}

	case streamEvent:
		if l := m.current(ev.remote, ev.gen); l != nil {
			s := ev.stream
			l.stream = &s
		}

	case failedEvent:
		if l := m.current(ev.remote, ev.gen); l != nil {
			m.fail(l, ev.err)
		}

	case timeoutEvent:
		if l := m.current(ev.remote, ev.gen); l != nil && l.state == StateNegotiating {
			m.fail(l, ErrNegotiationTimeout)
		}

	case retryEvent:
		m.handleRetry(ev)

	case leaveEvent:
		m.teardown()
		m.left = true
		m.publish()
		closing := make([]<-chan struct{}, 0, len(m.closing))
		for _, c := range m.closing {
			closing = append(closing, c)
		}
		ev.done <- closing

	case flushEvent:
		m.publish()
		close(ev.done)
	}
}

func (m *Manager) handleRoster(members []Member) {
	if m.left {
		return
	}

	listed := make(map[string]bool, len(members))
	order := make([]string, 0, len(members))
	for _, mem := range members {
		if mem.ID == "" || mem.ID == m.cfg.LocalID || listed[mem.ID] {
			continue
		}
		listed[mem.ID] = true
		order = append(order, mem.ID)
		m.names[mem.ID] = mem.Name
	}
	m.listed, m.order = listed, order

	for id, l := range m.links {
		if !listed[id] {
			m.log.Debug().Str("remote", id).Msg("remote left the room")
			m.destroy(l)
		}
	}
	for id := range m.retries {
		if !listed[id] {
			m.cancelRetry(id)
		}
	}
	m.forgetUnlisted()

	if !m.cfg.HasMedia {
		return
	}
	for _, id := range order {
		if m.links[id] == nil && m.retries[id] == nil {
			m.create(id, Initiator(m.cfg.LocalID, id))
		}
	}
}

func (m *Manager) handleRemoteSignal(ev remoteSignalEvent) {
	if m.left {
		return
	}
	if !m.cfg.HasMedia {
		m.log.Debug().Str("remote", ev.from).Msg("no local media, dropping signal")
		return
	}
	if ev.name != "" {
		m.names[ev.from] = ev.name
	}

	l := m.links[ev.from]
	if l == nil {
		m.cancelRetry(ev.from)
		l = m.create(ev.from, false)
	}
	l.enqueue(ev.payload)

	if l.timer == nil {
		m.armTimeout(l)
	}
}

func (m *Manager) handleRetry(ev retryEvent) {
	r := m.retries[ev.remote]
	if r == nil || r.seq != ev.seq {
		return
	}
	delete(m.retries, ev.remote)

	if m.left || !m.cfg.HasMedia || !m.listed[ev.remote] || m.links[ev.remote] != nil {
		return
	}
	m.counts.Retries++
	m.create(ev.remote, Initiator(m.cfg.LocalID, ev.remote))
}

// current returns the live link for remote if it still has generation gen.
func (m *Manager) current(remote string, gen uint64) *link {
	l := m.links[remote]
	if l == nil || l.gen != gen {
		return nil
	}
	return l
}

func (m *Manager) create(remote string, initiator bool) *link {
	m.gen++
	l := newLink(remote, m.gen, initiator)
	m.links[remote] = l
	m.attempts[remote]++
	m.counts.Created++

	prev := m.closing[remote]
	delete(m.closing, remote)

	if initiator {
		m.armTimeout(l)
	}

	m.log.Debug().
		Str("remote", remote).
		Bool("initiator", initiator).
		Uint64("gen", l.gen).
		Msg("creating link")

	go l.run(m.cfg.Factory, linkEvents{q: m.queue, remote: remote, gen: l.gen}, prev)
	return l
}

func (m *Manager) destroy(l *link) {
	l.shutdown()
	delete(m.links, l.remote)
	m.closing[l.remote] = l.done
	m.counts.Destroyed++
}

// fail tears the link down and, while the remote is still in the room,
// schedules exactly one rebuild after the fixed delay.
func (m *Manager) fail(l *link, err error) {
	m.lastErr[l.remote] = err.Error()
	m.log.Warn().Err(err).Str("remote", l.remote).Uint64("gen", l.gen).Msg("link failed")

	m.destroy(l)
	if !m.left && m.listed[l.remote] {
		m.scheduleRetry(l.remote)
	}
}

func (m *Manager) armTimeout(l *link) {
	if m.cfg.NegotiationTimeout < 0 {
		return
	}
	remote, gen := l.remote, l.gen
	l.timer = time.AfterFunc(m.cfg.NegotiationTimeout, func() {
		m.queue.push(timeoutEvent{remote: remote, gen: gen})
	})
}

func (m *Manager) scheduleRetry(remote string) {
	m.cancelRetry(remote)
	m.retrySeq++
	seq := m.retrySeq
	r := &retry{seq: seq}
	r.timer = time.AfterFunc(m.cfg.RetryDelay, func() {
		m.queue.push(retryEvent{remote: remote, seq: seq})
	})
	m.retries[remote] = r
}

func (m *Manager) cancelRetry(remote string) {
	if r, ok := m.retries[remote]; ok {
		r.timer.Stop()
		delete(m.retries, remote)
	}
}

func (m *Manager) teardown() {
	for _, l := range m.links {
		m.destroy(l)
	}
	for id := range m.retries {
		m.cancelRetry(id)
	}
	m.listed = make(map[string]bool)
	m.order = nil
	m.forgetUnlisted()
}

// forgetUnlisted drops bookkeeping for remotes that are neither listed nor linked.
func (m *Manager) forgetUnlisted() {
	for id := range m.names {
		if !m.listed[id] && m.links[id] == nil {
			delete(m.names, id)
			delete(m.attempts, id)
			delete(m.lastErr, id)
		}
	}
	for id, done := range m.closing {
		select {
		case <-done:
			delete(m.closing, id)
		default:
		}
	}
}

func (m *Manager) info(id string) (LinkInfo, bool) {
	info := LinkInfo{
		RemoteID:  id,
		Name:      m.names[id],
		Attempts:  m.attempts[id],
		LastError: m.lastErr[id],
	}

	if l := m.links[id]; l != nil {
		info.State = l.state
		info.Initiator = l.initiator
		info.Stream = l.stream
		return info, true
	}
	if m.retries[id] != nil {
		info.State = StateFailed
		info.Initiator = Initiator(m.cfg.LocalID, id)
		return info, true
	}
	return info, false
}

func (m *Manager) publish() {
	snap := make([]LinkInfo, 0, len(m.links)+len(m.retries))
	seen := make(map[string]bool, len(m.order))
	for _, id := range m.order {
		seen[id] = true
		if info, ok := m.info(id); ok {
			snap = append(snap, info)
		}
	}

	var extra []string
	for id := range m.links {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		info, _ := m.info(id)
		snap = append(snap, info)
	}

	m.mu.Lock()
	m.snapshot = snap
	m.stats = m.counts
	m.mu.Unlock()

	select {
	case m.changes <- struct{}{}:
	default:
	}
}
