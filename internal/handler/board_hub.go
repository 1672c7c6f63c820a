package handler

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"realtime-whiteboard/internal/auth"
	"realtime-whiteboard/internal/model"
	"realtime-whiteboard/internal/presence"
)

// =============================================================================
// Board Hub - 보드 단위 WebSocket 릴레이
// =============================================================================

// Roster is the cross-instance presence mirror. A nil Roster keeps presence
// local to this instance.
type Roster interface {
	Track(ctx context.Context, boardID, connKey string, user model.PresenceUser) error
	Untrack(ctx context.Context, boardID, connKey string) error
	Heartbeat(ctx context.Context, boardID string) (bool, error)
	List(ctx context.Context, boardID string) (map[string]presence.Entry, error)
}

// HubSettings 소켓 타임아웃 설정
type HubSettings struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	BroadcastBuffer int
	// HeartbeatInterval is how often each board's roster TTL is refreshed.
	HeartbeatInterval time.Duration
}

// DefaultHubSettings 기본 허브 설정
func DefaultHubSettings() HubSettings {
	return HubSettings{
		WriteTimeout:      5 * time.Second,
		ReadTimeout:       60 * time.Second,
		BroadcastBuffer:   256,
		HeartbeatInterval: presence.TTL / 2,
	}
}

// BoardHub manages all board rooms and their connections
type BoardHub struct {
	boards   map[string]*BoardRoom
	mu       sync.Mutex
	roster   Roster
	settings HubSettings
	logger   *zap.Logger
}

// BoardRoom is the set of connections on one board.
type BoardRoom struct {
	ID        string
	members   map[string]*Member
	broadcast chan outbound
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	hub       *BoardHub
}

// Member is one websocket connection in a room.
type Member struct {
	Key      string
	UserID   string
	UserName string
	conn     *websocket.Conn
	writeMu  sync.Mutex
	presence *model.PresenceUser
}

// outbound is a frame for every member except the one with key except.
type outbound struct {
	except string
	data   []byte
}

// NewBoardHub creates a hub. roster may be nil.
func NewBoardHub(roster Roster, settings HubSettings, logger *zap.Logger) *BoardHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoardHub{
		boards:   make(map[string]*BoardRoom),
		roster:   roster,
		settings: settings,
		logger:   logger.Named("hub"),
	}
}

// join adds m to the board's room, creating and starting the room if needed.
func (h *BoardHub) join(boardID string, m *Member) *BoardRoom {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.boards[boardID]
	if !exists {
		ctx, cancel := context.WithCancel(context.Background())
		room = &BoardRoom{
			ID:        boardID,
			members:   make(map[string]*Member),
			broadcast: make(chan outbound, h.settings.BroadcastBuffer),
			ctx:       ctx,
			cancel:    cancel,
			hub:       h,
		}
		h.boards[boardID] = room
		go room.runBroadcaster()
		h.logger.Debug("created room", zap.String("board_id", boardID))
	}

	room.mu.Lock()
	room.members[m.Key] = m
	room.mu.Unlock()
	return room
}

// leave removes m and shuts the room down once it is empty. It returns the
// presence m had tracked, if any.
func (h *BoardHub) leave(room *BoardRoom, m *Member) (*model.PresenceUser, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room.mu.Lock()
	delete(room.members, m.Key)
	empty := len(room.members) == 0
	p := m.presence
	room.mu.Unlock()

	if empty {
		room.cancel()
		delete(h.boards, room.ID)
		h.logger.Debug("removed room", zap.String("board_id", room.ID))
	}
	return p, empty
}

// Room returns the live room for boardID.
func (h *BoardHub) Room(boardID string) (*BoardRoom, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.boards[boardID]
	return room, ok
}

// =============================================================================
// Connection lifecycle
// =============================================================================

// HandleWebSocket serves one board connection. AuthMiddleware must have run
// on the upgrade request.
func (h *BoardHub) HandleWebSocket(c *websocket.Conn) {
	boardID := c.Params("boardId")
	userID, _ := c.Locals(auth.LocalUserID).(string)
	userName, _ := c.Locals(auth.LocalUserName).(string)

	m := &Member{
		Key:      uuid.NewString(),
		UserID:   userID,
		UserName: userName,
		conn:     c,
	}
	logger := h.logger.With(zap.String("board_id", boardID), zap.String("conn", m.Key), zap.String("user_id", userID))

	// ack before joining so no broadcast can overtake it
	if err := h.write(m, model.WSMessage{Type: model.WSJoined}); err != nil {
		logger.Info("joined ack failed", zap.Error(err))
		return
	}
	room := h.join(boardID, m)
	logger.Info("member joined")

	defer func() {
		p, empty := h.leave(room, m)
		if p != nil {
			h.untrack(boardID, m.Key)
			if !empty {
				room.enqueueMessage("", model.WSPresenceLeave, []model.PresenceUser{*p})
				room.syncPresence()
			}
		}
		logger.Info("member left")
	}()

	for {
		c.SetReadDeadline(time.Now().Add(h.settings.ReadTimeout))
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("read failed", zap.Error(err))
			}
			return
		}

		var msg model.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(m, "malformed message")
			continue
		}
		h.dispatch(room, m, msg, logger)
	}
}

func (h *BoardHub) dispatch(room *BoardRoom, m *Member, msg model.WSMessage, logger *zap.Logger) {
	switch msg.Type {
	case model.WSBroadcast:
		if msg.Event == "" {
			h.sendError(m, "broadcast without event")
			return
		}
		room.enqueueMessage(m.Key, model.WSBroadcast, msg)

	case model.WSTrack:
		var p model.PresenceUser
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.sendError(m, "invalid presence")
			return
		}
		// presence is keyed by the authenticated user, whatever the payload claims
		p.UserID = m.UserID
		if p.UserID == "" {
			h.sendError(m, "invalid presence")
			return
		}
		room.mu.Lock()
		m.presence = &p
		room.mu.Unlock()

		if h.roster != nil {
			ctx, cancel := context.WithTimeout(room.ctx, 2*time.Second)
			if err := h.roster.Track(ctx, room.ID, m.Key, p); err != nil {
				logger.Warn("roster track failed", zap.Error(err))
			}
			cancel()
		}
		room.syncPresence()

	case model.WSPing:
		if err := h.write(m, model.WSMessage{Type: model.WSPong}); err != nil {
			logger.Debug("pong failed", zap.Error(err))
		}

	case model.WSPong:

	default:
		h.sendError(m, "unknown message type "+msg.Type)
	}
}

func (h *BoardHub) untrack(boardID, connKey string) {
	if h.roster == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.roster.Untrack(ctx, boardID, connKey); err != nil {
		h.logger.Warn("roster untrack failed", zap.String("board_id", boardID), zap.Error(err))
	}
}

func (h *BoardHub) sendError(m *Member, message string) {
	msg, _ := model.NewWSMessage(model.WSError, "", model.ErrorPayload{Message: message})
	if err := h.write(m, msg); err != nil {
		h.logger.Debug("error frame failed", zap.Error(err))
	}
}

func (h *BoardHub) write(m *Member, msg model.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.writeRaw(m, data)
}

func (h *BoardHub) writeRaw(m *Member, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.conn.SetWriteDeadline(time.Now().Add(h.settings.WriteTimeout))
	return m.conn.WriteMessage(websocket.TextMessage, data)
}

// =============================================================================
// Room Methods
// =============================================================================

// enqueueMessage queues msg for every member except the one keyed except.
// A full buffer drops the frame.
func (r *BoardRoom) enqueueMessage(except, msgType string, payload any) {
	var msg model.WSMessage
	if m, ok := payload.(model.WSMessage); ok {
		msg = m
	} else {
		var err error
		if msg, err = model.NewWSMessage(msgType, "", payload); err != nil {
			r.hub.logger.Warn("marshal room message", zap.Error(err))
			return
		}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case r.broadcast <- outbound{except: except, data: data}:
	default:
		r.hub.logger.Warn("broadcast buffer full", zap.String("board_id", r.ID))
	}
}

// Presence returns the room's tracked users grouped by user id.
func (r *BoardRoom) Presence() map[string][]model.PresenceUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := make(map[string][]model.PresenceUser)
	for _, m := range r.members {
		if m.presence != nil {
			state[m.presence.UserID] = append(state[m.presence.UserID], *m.presence)
		}
	}
	return state
}

// Members 현재 접속 수
func (r *BoardRoom) Members() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *BoardRoom) syncPresence() {
	r.enqueueMessage("", model.WSPresenceSync, r.Presence())
}

// runBroadcaster writes queued frames in order and keeps the roster alive.
func (r *BoardRoom) runBroadcaster() {
	var heartbeat <-chan time.Time
	if r.hub.roster != nil && r.hub.settings.HeartbeatInterval > 0 {
		ticker := time.NewTicker(r.hub.settings.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-r.ctx.Done():
			return
		case out := <-r.broadcast:
			r.deliver(out)
		case <-heartbeat:
			r.heartbeat()
		}
	}
}

func (r *BoardRoom) deliver(out outbound) {
	r.mu.RLock()
	targets := make([]*Member, 0, len(r.members))
	for key, m := range r.members {
		if key != out.except {
			targets = append(targets, m)
		}
	}
	r.mu.RUnlock()

	for _, m := range targets {
		if err := r.hub.writeRaw(m, out.data); err != nil {
			r.hub.logger.Debug("deliver failed", zap.String("board_id", r.ID), zap.String("conn", m.Key), zap.Error(err))
		}
	}
}

// heartbeat extends the roster TTL and re-tracks everyone if it had expired.
func (r *BoardRoom) heartbeat() {
	ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
	defer cancel()

	alive, err := r.hub.roster.Heartbeat(ctx, r.ID)
	if err != nil {
		r.hub.logger.Warn("roster heartbeat failed", zap.String("board_id", r.ID), zap.Error(err))
		return
	}
	if alive {
		return
	}

	r.mu.RLock()
	tracked := make(map[string]model.PresenceUser)
	for key, m := range r.members {
		if m.presence != nil {
			tracked[key] = *m.presence
		}
	}
	r.mu.RUnlock()

	for key, p := range tracked {
		if err := r.hub.roster.Track(ctx, r.ID, key, p); err != nil {
			r.hub.logger.Warn("roster re-track failed", zap.String("board_id", r.ID), zap.Error(err))
			return
		}
	}
}

// =============================================================================
// Presence API
// =============================================================================

// ListPresence answers GET /api/boards/:boardId/presence with the users on a
// board across every instance when a roster is configured, and on this
// instance otherwise. Users are sorted by name.
func (h *BoardHub) ListPresence(c *fiber.Ctx) error {
	boardID := c.Params("boardId")
	users := []model.PresenceUser{}

	if h.roster != nil {
		entries, err := h.roster.List(c.UserContext(), boardID)
		if err != nil {
			h.logger.Warn("roster list failed", zap.String("board_id", boardID), zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "presence unavailable",
			})
		}
		for _, e := range entries {
			users = append(users, e.User)
		}
	} else if room, ok := h.Room(boardID); ok {
		for _, list := range room.Presence() {
			users = append(users, list...)
		}
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].UserName != users[j].UserName {
			return users[i].UserName < users[j].UserName
		}
		return users[i].UserID < users[j].UserID
	})
	return c.JSON(fiber.Map{"users": users})
}
