// Package cursor tracks remote cursors and the online roster for one board.
//
// Everything here is ephemeral. Cursor positions come from throttled cursor
// broadcasts; the roster is replaced wholesale on every presence sync. Cursors
// of users who go offline are removed only by an explicit leave.
package cursor

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"realtime-whiteboard/internal/channel"
	"realtime-whiteboard/internal/model"
	"realtime-whiteboard/internal/throttle"
)

// DefaultInterval 커서 브로드캐스트 최소 간격
const DefaultInterval = 50 * time.Millisecond

// Broadcaster is the part of channel.Manager the tracker needs.
type Broadcaster interface {
	Send(event string, payload any) bool
	Track(meta model.PresenceUser)
	On(event string, fn channel.BroadcastFunc)
	OnPresenceSync(fn func(map[string][]model.PresenceUser))
	OnPresenceLeave(fn func([]model.PresenceUser))
}

// Viewport is the canvas pan and zoom. Screen = world*Scale + offset.
type Viewport struct {
	X     float64
	Y     float64
	Scale float64
}

// ToWorld converts a screen position to world coordinates.
func (v Viewport) ToWorld(stageX, stageY float64) (float64, float64) {
	scale := v.Scale
	if scale == 0 {
		scale = 1
	}
	return (stageX - v.X) / scale, (stageY - v.Y) / scale
}

// Tracker 커서/접속자 상태
type Tracker struct {
	self   model.PresenceUser
	clock  clock.Clock
	logger *zap.Logger

	mu        sync.RWMutex
	out       Broadcaster
	cursors   map[string]model.CursorPosition
	online    map[string]model.PresenceUser
	listeners []func()

	throttle *throttle.Throttle[model.CursorPosition]
}

// NewTracker creates a tracker for the local user. interval <= 0 uses DefaultInterval.
func NewTracker(userID, userName string, interval time.Duration, clk clock.Clock, logger *zap.Logger) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		self: model.PresenceUser{
			UserID:   userID,
			UserName: userName,
			Color:    UserColor(userID),
		},
		clock:   clk,
		logger:  logger.Named("cursor"),
		cursors: make(map[string]model.CursorPosition),
		online:  make(map[string]model.PresenceUser),
	}
	t.throttle = throttle.New(clk, interval, t.send)
	return t
}

// Self returns the presence this client tracks.
func (t *Tracker) Self() model.PresenceUser {
	return t.self
}

// Attach subscribes to cursor and presence traffic on b and tracks this
// client's presence on it.
func (t *Tracker) Attach(b Broadcaster) {
	t.mu.Lock()
	t.out = b
	t.mu.Unlock()

	b.On(model.EventCursor, t.handleCursor)
	b.OnPresenceSync(t.SyncPresence)
	b.OnPresenceLeave(t.Leave)

	self := t.self
	self.OnlineAt = t.clock.Now().UTC().Format(time.RFC3339)
	b.Track(self)
}

// OnChange registers fn to run after cursors or the roster change.
func (t *Tracker) OnChange(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Move broadcasts the local cursor at a world position, throttled.
func (t *Tracker) Move(worldX, worldY float64) {
	t.throttle.Call(model.CursorPosition{
		UserID:   t.self.UserID,
		UserName: t.self.UserName,
		X:        worldX,
		Y:        worldY,
		Color:    t.self.Color,
	})
}

// MoveScreen is Move for a pointer position in screen coordinates.
func (t *Tracker) MoveScreen(stageX, stageY float64, vp Viewport) {
	t.Move(vp.ToWorld(stageX, stageY))
}

func (t *Tracker) send(pos model.CursorPosition) {
	t.mu.RLock()
	out := t.out
	t.mu.RUnlock()
	if out == nil {
		return
	}
	out.Send(model.EventCursor, pos)
}

func (t *Tracker) handleCursor(payload json.RawMessage) {
	var pos model.CursorPosition
	if err := json.Unmarshal(payload, &pos); err != nil {
		t.logger.Debug("drop malformed cursor", zap.Error(err))
		return
	}
	t.HandleCursor(pos)
}

// HandleCursor records a remote cursor. The local user's own cursor is ignored.
func (t *Tracker) HandleCursor(pos model.CursorPosition) {
	if pos.UserID == "" || pos.UserID == t.self.UserID {
		return
	}
	t.mu.Lock()
	t.cursors[pos.UserID] = pos
	listeners := t.listeners
	t.mu.Unlock()
	notify(listeners)
}

// SyncPresence replaces the online roster with the given presence state. Each
// key contributes its first presence, keyed by that presence's user id.
func (t *Tracker) SyncPresence(state map[string][]model.PresenceUser) {
	next := make(map[string]model.PresenceUser, len(state))
	for _, presences := range state {
		if len(presences) == 0 {
			continue
		}
		user := presences[0]
		next[user.UserID] = user
	}

	t.mu.Lock()
	t.online = next
	listeners := t.listeners
	t.mu.Unlock()
	notify(listeners)
}

// Leave removes the cursors of users that left.
func (t *Tracker) Leave(left []model.PresenceUser) {
	t.mu.Lock()
	for _, user := range left {
		delete(t.cursors, user.UserID)
	}
	listeners := t.listeners
	t.mu.Unlock()
	notify(listeners)
}

// Cursors returns remote cursors ordered by user id.
func (t *Tracker) Cursors() []model.CursorPosition {
	t.mu.RLock()
	out := make([]model.CursorPosition, 0, len(t.cursors))
	for _, c := range t.cursors {
		out = append(out, c)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Online returns the current roster ordered by user id.
func (t *Tracker) Online() []model.PresenceUser {
	t.mu.RLock()
	out := make([]model.PresenceUser, 0, len(t.online))
	for _, u := range t.online {
		out = append(out, u)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Close drops any pending cursor broadcast.
func (t *Tracker) Close() {
	t.throttle.Stop()
}

func notify(listeners []func()) {
	for _, fn := range listeners {
		fn()
	}
}
