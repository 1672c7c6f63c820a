package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"realtime-whiteboard/internal/model"
)

// ErrNotJoined is returned by Send on a channel that has not joined yet.
var ErrNotJoined = errors.New("channel not joined")

// WebSocketSettings 소켓 타임아웃 설정
type WebSocketSettings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	SendBuffer       int
}

// DefaultWebSocketSettings 기본 소켓 설정
func DefaultWebSocketSettings() *WebSocketSettings {
	return &WebSocketSettings{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      30 * time.Second,
		PingInterval:     10 * time.Second,
		SendBuffer:       64,
	}
}

// WebSocketConnector dials the relay server's board socket. The topic is the
// board id; the URL is BaseURL + "/ws/boards/{topic}?token=...".
type WebSocketConnector struct {
	BaseURL  string
	Token    string
	Settings *WebSocketSettings
	Logger   *zap.Logger
}

// Connect starts dialing in the background and returns immediately.
func (c *WebSocketConnector) Connect(ctx context.Context, topic string, h Handler) Channel {
	settings := c.Settings
	if settings == nil {
		settings = DefaultWebSocketSettings()
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	ch := &wsChannel{
		ctx:      ctx,
		cancel:   cancel,
		handler:  h,
		settings: settings,
		logger:   logger.Named("ws").With(zap.String("topic", topic)),
		state:    StateJoining,
		send:     make(chan model.WSMessage, settings.SendBuffer),
	}
	go ch.run(c.endpoint(topic))
	return ch
}

func (c *WebSocketConnector) endpoint(topic string) string {
	u := c.BaseURL + "/ws/boards/" + url.PathEscape(topic)
	if c.Token != "" {
		u += "?token=" + url.QueryEscape(c.Token)
	}
	return u
}

type wsChannel struct {
	ctx      context.Context
	cancel   context.CancelFunc
	handler  Handler
	settings *WebSocketSettings
	logger   *zap.Logger

	mu       sync.Mutex
	state    State
	presence *model.PresenceUser

	send chan model.WSMessage
}

func (c *wsChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *wsChannel) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// closed is terminal
	if c.state == StateClosed {
		return
	}
	c.state = s
}

func (c *wsChannel) Send(event string, payload any) error {
	if c.State() != StateJoined {
		return ErrNotJoined
	}
	msg, err := model.NewWSMessage(model.WSBroadcast, event, payload)
	if err != nil {
		return err
	}
	return c.enqueue(msg)
}

func (c *wsChannel) Track(meta model.PresenceUser) error {
	c.mu.Lock()
	c.presence = &meta
	joined := c.state == StateJoined
	c.mu.Unlock()

	if !joined {
		return nil
	}
	msg, err := model.NewWSMessage(model.WSTrack, "", meta)
	if err != nil {
		return err
	}
	return c.enqueue(msg)
}

func (c *wsChannel) enqueue(msg model.WSMessage) error {
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return errors.New("send buffer full")
	}
}

func (c *wsChannel) Close() error {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	c.cancel()
	return nil
}

func (c *wsChannel) run(endpoint string) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.settings.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(c.ctx, endpoint, nil)
	if err != nil {
		c.logger.Info("dial failed", zap.Error(err))
		c.setState(StateErrored)
		return
	}
	defer ws.Close()

	// the writer owns all writes after this point
	go c.writeLoop(ws)

	// close the socket as soon as the channel is closed so the read unblocks
	go func() {
		<-c.ctx.Done()
		ws.Close()
	}()

	for {
		ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
		_, data, err := ws.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Info("read failed", zap.Error(err))
				c.setState(StateErrored)
			}
			c.cancel()
			return
		}

		var msg model.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("ignore malformed message", zap.Error(err))
			continue
		}
		c.dispatch(msg)
	}
}

func (c *wsChannel) dispatch(msg model.WSMessage) {
	switch msg.Type {
	case model.WSJoined:
		c.setState(StateJoined)
		c.mu.Lock()
		presence := c.presence
		c.mu.Unlock()
		if presence != nil {
			if err := c.Track(*presence); err != nil {
				c.logger.Debug("track after join", zap.Error(err))
			}
		}
	case model.WSBroadcast:
		c.handler.HandleBroadcast(msg.Event, msg.Payload)
	case model.WSPresenceSync:
		var state map[string][]model.PresenceUser
		if err := json.Unmarshal(msg.Payload, &state); err != nil {
			c.logger.Debug("bad presence sync", zap.Error(err))
			return
		}
		c.handler.HandlePresenceSync(state)
	case model.WSPresenceLeave:
		var left []model.PresenceUser
		if err := json.Unmarshal(msg.Payload, &left); err != nil {
			c.logger.Debug("bad presence leave", zap.Error(err))
			return
		}
		c.handler.HandlePresenceLeave(left)
	case model.WSError:
		var p model.ErrorPayload
		_ = json.Unmarshal(msg.Payload, &p)
		c.logger.Info("server error", zap.String("message", p.Message))
		c.setState(StateErrored)
		c.cancel()
	case model.WSPing, model.WSPong:
	}
}

func (c *wsChannel) writeLoop(ws *websocket.Conn) {
	ticker := time.NewTicker(c.settings.PingInterval)
	defer ticker.Stop()

	write := func(msg model.WSMessage) bool {
		data, err := json.Marshal(msg)
		if err != nil {
			c.logger.Debug("marshal outbound", zap.Error(err))
			return true
		}
		ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			// a write deadline cannot be recovered from
			c.logger.Info("write failed", zap.Error(err))
			c.setState(StateErrored)
			c.cancel()
			return false
		}
		return true
	}

	for {
		select {
		case <-c.ctx.Done():
			ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			if !write(msg) {
				return
			}
		case <-ticker.C:
			if !write(model.WSMessage{Type: model.WSPing}) {
				return
			}
		}
	}
}
