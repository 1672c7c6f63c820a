package channel

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-whiteboard/internal/model"
)

const topic = "board:b1"

// startManager wires a manager without the polling goroutine so tests drive
// checkHealth by hand.
func startManager(t *testing.T, conn Connector, clk clock.Clock) *Manager {
	t.Helper()
	m := NewManager(topic, conn, nil, clk, nil)
	m.init(context.Background())
	m.connect()
	t.Cleanup(m.Close)
	return m
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) HandleBroadcast(event string, _ json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}
func (r *recorder) HandlePresenceSync(map[string][]model.PresenceUser) {}
func (r *recorder) HandlePresenceLeave([]model.PresenceUser) {}

func TestManager_FirstJoinDoesNotFireReconnect(t *testing.T) {
	hub := NewMemoryHub()
	m := startManager(t, hub, clock.NewMock())
	var fired atomic.Int32
	m.OnReconnect(func() { fired.Add(1) })

	m.checkHealth()

	assert.Equal(t, StatusJoined, m.Status())
	assert.Equal(t, int32(0), fired.Load())
}

func TestManager_FirstJoinFiresOnce(t *testing.T) {
	hub := NewMemoryHub()
	mock := clock.NewMock()
	m := startManager(t, hub, mock)
	var first, reconnects atomic.Int32
	m.OnFirstJoin(func() { first.Add(1) })
	m.OnReconnect(func() { reconnects.Add(1) })

	m.checkHealth()
	m.checkHealth()
	assert.Equal(t, int32(1), first.Load())

	hub.Drop()
	m.checkHealth()
	hub.SetOnline(true)
	mock.Add(time.Second)
	require.Eventually(t, func() bool { return m.Status() == StatusJoined }, time.Second, 5*time.Millisecond)
	m.checkHealth()

	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), reconnects.Load())
}

func TestManager_BackoffSequence(t *testing.T) {
	hub := NewMemoryHub()
	hub.SetOnline(false)
	m := startManager(t, hub, clock.NewMock())

	var delays []time.Duration
	for i := 0; i < 7; i++ {
		require.Equal(t, StatusConnecting, m.Status())
		delays = append(delays, m.NextDelay())
		m.checkHealth()
		m.retry()
	}

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}, delays)
}

func TestManager_RecoversAfterOutage(t *testing.T) {
	hub := NewMemoryHub()
	mock := clock.NewMock()
	m := startManager(t, hub, mock)
	var fired atomic.Int32
	m.OnReconnect(func() { fired.Add(1) })
	m.checkHealth()

	hub.Drop()
	m.checkHealth()
	assert.Equal(t, StatusConnecting, m.Status())
	assert.Equal(t, 2*time.Second, m.NextDelay())

	hub.SetOnline(true)
	mock.Add(time.Second)
	require.Eventually(t, func() bool { return m.Status() == StatusJoined }, time.Second, 5*time.Millisecond)

	// the replacement joined but nobody polled yet
	assert.Equal(t, int32(0), fired.Load())

	m.checkHealth()
	m.checkHealth()

	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, time.Second, m.NextDelay())
}

func TestManager_OneRetryPerOutage(t *testing.T) {
	hub := NewMemoryHub()
	hub.SetOnline(false)
	mock := clock.NewMock()
	m := startManager(t, hub, mock)

	// polls during the wait must not stack retries
	m.checkHealth()
	m.checkHealth()
	m.checkHealth()

	assert.Equal(t, 2*time.Second, m.NextDelay())
}

func TestManager_SendDropsWhenNotJoined(t *testing.T) {
	hub := NewMemoryHub()
	m := startManager(t, hub, clock.NewMock())
	require.True(t, m.Send(model.EventCursor, map[string]int{"x": 1}))

	hub.Drop()

	assert.False(t, m.Send(model.EventCursor, map[string]int{"x": 2}))
	assert.Len(t, hub.Sent(), 1)
}

func TestManager_HandlersSurviveReplacement(t *testing.T) {
	hub := NewMemoryHub()
	mock := clock.NewMock()
	m := startManager(t, hub, mock)
	var got []string
	var mu sync.Mutex
	m.On(model.EventObjectCreate, func(p json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(p))
	})

	hub.Drop()
	m.checkHealth()
	hub.SetOnline(true)
	m.retry()
	require.Equal(t, StatusJoined, m.Status())

	peer := hub.Connect(context.Background(), topic, &recorder{})
	require.NoError(t, peer.Send(model.EventObjectCreate, json.RawMessage(`{"id":"o1"}`)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`{"id":"o1"}`}, got)
}

func TestManager_TrackReappliedOnReplacement(t *testing.T) {
	hub := NewMemoryHub()
	m := startManager(t, hub, clock.NewMock())
	var mu sync.Mutex
	var last map[string][]model.PresenceUser
	peer := hub.Connect(context.Background(), topic, presenceFunc(func(s map[string][]model.PresenceUser) {
		mu.Lock()
		defer mu.Unlock()
		last = s
	}))
	defer peer.Close()

	m.Track(model.PresenceUser{UserID: "u1", UserName: "Ada"})
	hub.Drop()
	hub.SetOnline(true)
	mu.Lock()
	last = nil
	mu.Unlock()
	peer = hub.Connect(context.Background(), topic, presenceFunc(func(s map[string][]model.PresenceUser) {
		mu.Lock()
		defer mu.Unlock()
		last = s
	}))
	m.retry()

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, last, "u1")
	assert.Equal(t, "Ada", last["u1"][0].UserName)
}

type presenceFunc func(map[string][]model.PresenceUser)

func (f presenceFunc) HandleBroadcast(string, json.RawMessage) {}
func (f presenceFunc) HandlePresenceSync(s map[string][]model.PresenceUser) { f(s) }
func (f presenceFunc) HandlePresenceLeave([]model.PresenceUser) {}

// stubConnector hands out channels whose state the test controls.
type stubConnector struct {
	mu       sync.Mutex
	handlers []Handler
	channels []*stubChannel
}

func (c *stubConnector) Connect(_ context.Context, _ string, h Handler) Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := &stubChannel{}
	ch.state.Store(string(StateJoined))
	c.handlers = append(c.handlers, h)
	c.channels = append(c.channels, ch)
	return ch
}

type stubChannel struct {
	state  atomic.Value
	closed atomic.Bool
}

func (c *stubChannel) State() State { return State(c.state.Load().(string)) }
func (c *stubChannel) Send(string, any) error { return nil }
func (c *stubChannel) Track(model.PresenceUser) error { return nil }
func (c *stubChannel) Close() error { c.closed.Store(true); return nil }

func TestManager_IgnoresSupersededChannel(t *testing.T) {
	conn := &stubConnector{}
	m := startManager(t, conn, clock.NewMock())
	var got []string
	m.On(model.EventObjectUpdate, func(p json.RawMessage) { got = append(got, string(p)) })

	conn.channels[0].state.Store(string(StateErrored))
	m.checkHealth()
	m.retry()

	require.Len(t, conn.handlers, 2)
	assert.True(t, conn.channels[0].closed.Load())

	conn.handlers[0].HandleBroadcast(model.EventObjectUpdate, json.RawMessage(`"old"`))
	conn.handlers[1].HandleBroadcast(model.EventObjectUpdate, json.RawMessage(`"new"`))

	assert.Equal(t, []string{`"new"`}, got)
}

func TestManager_CloseCancelsPendingRetry(t *testing.T) {
	conn := &stubConnector{}
	mock := clock.NewMock()
	m := startManager(t, conn, mock)
	conn.channels[0].state.Store(string(StateErrored))
	m.checkHealth()

	m.Close()
	mock.Add(time.Minute)

	assert.Equal(t, StatusDisconnected, m.Status())
	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.Len(t, conn.handlers, 1)
}

func TestManager_PollLoopDrivesRecovery(t *testing.T) {
	hub := NewMemoryHub()
	hub.SetOnline(false)
	mock := clock.NewMock()
	m := NewManager(topic, hub, nil, mock, nil)
	var fired atomic.Int32
	m.OnReconnect(func() { fired.Add(1) })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	hub.SetOnline(true)
	// poll sees errored and schedules a 1s retry
	mock.Add(3 * time.Second)
	require.Eventually(t, func() bool { return m.NextDelay() == 2*time.Second }, time.Second, 5*time.Millisecond)
	mock.Add(time.Second)
	require.Eventually(t, func() bool { return m.Status() == StatusJoined }, time.Second, 5*time.Millisecond)
	mock.Add(3 * time.Second)

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}
