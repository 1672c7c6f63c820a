package channel

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"realtime-whiteboard/internal/model"
)

// Settings 채널 재연결/헬스 체크 설정
type Settings struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	PollInterval time.Duration
}

// DefaultSettings 기본값: 1s 부터 두 배씩 최대 30s, 3s 마다 상태 확인
func DefaultSettings() *Settings {
	return &Settings{
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		PollInterval: 3 * time.Second,
	}
}

// Manager keeps one channel per topic alive.
//
// Health is observed by polling Channel.State on a fixed interval. An errored
// or closed channel schedules a retry after the current backoff delay; the
// retry replaces the channel, and the first poll that sees the replacement
// joined resets the backoff and runs the reconnect callbacks once.
type Manager struct {
	topic     string
	connector Connector
	settings  *Settings
	clock     clock.Clock
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	channel    Channel
	joined     bool
	recovering bool
	backoff    *Backoff
	retryTimer *clock.Timer
	presence   *model.PresenceUser
	closed     bool
	everJoined bool

	// gen identifies the current channel instance; traffic from older ones is dropped.
	gen atomic.Uint64

	handlersMu  sync.RWMutex
	broadcast   map[string][]BroadcastFunc
	onSync      []func(map[string][]model.PresenceUser)
	onLeave     []func([]model.PresenceUser)
	onReconnect []func()
	onJoin      []func()
}

// NewManager creates a manager for topic. A nil settings, clock or logger
// falls back to the defaults.
func NewManager(topic string, connector Connector, settings *Settings, clk clock.Clock, logger *zap.Logger) *Manager {
	if settings == nil {
		settings = DefaultSettings()
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		topic:     topic,
		connector: connector,
		settings:  settings,
		clock:     clk,
		logger:    logger.Named("channel").With(zap.String("topic", topic)),
		backoff:   NewBackoff(settings.BaseDelay, settings.MaxDelay),
		broadcast: make(map[string][]BroadcastFunc),
	}
}

// Topic 채널 이름
func (m *Manager) Topic() string {
	return m.topic
}

// Start opens the first channel and begins health polling. The manager stops
// when ctx is done or Close is called.
func (m *Manager) Start(ctx context.Context) {
	m.init(ctx)
	m.connect()
	go m.run(m.clock.Ticker(m.settings.PollInterval))
}

func (m *Manager) init(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
}

func (m *Manager) run(ticker *clock.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.Close()
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

// connect replaces the current channel with a fresh one. No lock is held while
// calling into the connector or the channel, since implementations may deliver
// events synchronously.
func (m *Manager) connect() {
	m.mu.Lock()
	if m.closed || m.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	old := m.channel
	m.channel = nil
	m.joined = false
	gen := m.gen.Add(1)
	presence := m.presence
	m.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			m.logger.Debug("close superseded channel", zap.Error(err))
		}
	}

	ch := m.connector.Connect(m.ctx, m.topic, &dispatcher{m: m, gen: gen})
	if presence != nil {
		if err := ch.Track(*presence); err != nil {
			m.logger.Debug("track on new channel", zap.Error(err))
		}
	}

	m.mu.Lock()
	if m.closed || m.gen.Load() != gen {
		m.mu.Unlock()
		ch.Close()
		return
	}
	m.channel = ch
	m.mu.Unlock()
}

// checkHealth is one poll of the current channel.
func (m *Manager) checkHealth() {
	m.mu.Lock()
	if m.closed || m.channel == nil {
		m.mu.Unlock()
		return
	}

	var fire, first bool
	switch state := m.channel.State(); state {
	case StateJoined:
		if !m.joined {
			m.joined = true
			m.backoff.Reset()
			fire = m.recovering
			m.recovering = false
			first = !m.everJoined
			m.everJoined = true
			m.logger.Info("channel joined", zap.Bool("reconnect", fire))
		}
	case StateErrored, StateClosed:
		m.joined = false
		m.scheduleRetryLocked(state)
	}
	m.mu.Unlock()

	if first {
		m.handlersMu.Lock()
		callbacks := m.onJoin
		m.onJoin = nil
		m.handlersMu.Unlock()
		for _, fn := range callbacks {
			fn()
		}
	}
	if fire {
		m.handlersMu.RLock()
		callbacks := m.onReconnect
		m.handlersMu.RUnlock()
		for _, fn := range callbacks {
			fn()
		}
	}
}

func (m *Manager) scheduleRetryLocked(state State) {
	if m.retryTimer != nil {
		return
	}
	delay := m.backoff.Next()
	m.logger.Info("channel unhealthy, scheduling reconnect",
		zap.String("state", string(state)),
		zap.Duration("delay", delay),
	)
	m.retryTimer = m.clock.AfterFunc(delay, m.retry)
}

func (m *Manager) retry() {
	m.mu.Lock()
	m.retryTimer = nil
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.recovering = true
	m.mu.Unlock()

	m.connect()
}

// Close stops polling and any pending retry and releases the channel.
// Outstanding requests made by subscribers are not cancelled.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	ch := m.channel
	m.channel = nil
	m.joined = false
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.mu.Unlock()

	m.gen.Add(1)
	if m.cancel != nil {
		m.cancel()
	}
	if ch != nil {
		ch.Close()
	}
}

// Status reports disconnected, connecting or joined.
func (m *Manager) Status() Status {
	m.mu.Lock()
	ch := m.channel
	closed := m.closed
	m.mu.Unlock()

	if closed || ch == nil {
		return StatusDisconnected
	}
	if ch.State() == StateJoined {
		return StatusJoined
	}
	return StatusConnecting
}

// Joined reads the live channel state, not the last poll.
func (m *Manager) Joined() bool {
	return m.Status() == StatusJoined
}

// NextDelay is the delay the next retry would wait.
func (m *Manager) NextDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backoff.Peek()
}

// Send broadcasts event on the current channel. The joined check happens right
// before the send; when not joined the event is dropped and Send reports false.
func (m *Manager) Send(event string, payload any) bool {
	m.mu.Lock()
	ch := m.channel
	m.mu.Unlock()

	if ch == nil || ch.State() != StateJoined {
		m.logger.Debug("drop send, channel not joined", zap.String("event", event))
		return false
	}
	if err := ch.Send(event, payload); err != nil {
		m.logger.Info("send failed", zap.String("event", event), zap.Error(err))
		return false
	}
	return true
}

// Track sets this client's presence on the current channel and on every
// channel that replaces it.
func (m *Manager) Track(meta model.PresenceUser) {
	m.mu.Lock()
	m.presence = &meta
	ch := m.channel
	m.mu.Unlock()

	if ch != nil {
		if err := ch.Track(meta); err != nil {
			m.logger.Debug("track failed", zap.Error(err))
		}
	}
}

// On registers fn for broadcast event. Handlers stay registered across reconnects.
func (m *Manager) On(event string, fn BroadcastFunc) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.broadcast[event] = append(m.broadcast[event], fn)
}

// OnPresenceSync registers fn for presence snapshots.
func (m *Manager) OnPresenceSync(fn func(map[string][]model.PresenceUser)) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.onSync = append(m.onSync, fn)
}

// OnPresenceLeave registers fn for presence leave events.
func (m *Manager) OnPresenceLeave(fn func([]model.PresenceUser)) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.onLeave = append(m.onLeave, fn)
}

// OnReconnect registers fn to run once each time a replacement channel joins.
// It does not run for the first join.
func (m *Manager) OnReconnect(fn func()) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.onReconnect = append(m.onReconnect, fn)
}

// OnFirstJoin registers fn to run once, the first time any channel of this
// manager is seen joined. Registering after that first join runs nothing.
func (m *Manager) OnFirstJoin(fn func()) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.onJoin = append(m.onJoin, fn)
}

// dispatcher binds inbound traffic to the channel generation it came from.
type dispatcher struct {
	m   *Manager
	gen uint64
}

func (d *dispatcher) current() bool {
	return d.m.gen.Load() == d.gen
}

func (d *dispatcher) HandleBroadcast(event string, payload json.RawMessage) {
	if !d.current() {
		return
	}
	d.m.handlersMu.RLock()
	handlers := d.m.broadcast[event]
	d.m.handlersMu.RUnlock()

	for _, fn := range handlers {
		fn(payload)
	}
}

func (d *dispatcher) HandlePresenceSync(state map[string][]model.PresenceUser) {
	if !d.current() {
		return
	}
	d.m.handlersMu.RLock()
	handlers := d.m.onSync
	d.m.handlersMu.RUnlock()

	for _, fn := range handlers {
		fn(state)
	}
}

func (d *dispatcher) HandlePresenceLeave(left []model.PresenceUser) {
	if !d.current() {
		return
	}
	d.m.handlersMu.RLock()
	handlers := d.m.onLeave
	d.m.handlersMu.RUnlock()

	for _, fn := range handlers {
		fn(left)
	}
}
