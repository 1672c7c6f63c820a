// Package session wires one client's view of one board: the channel to the
// relay, the object store and its coordinator, cursors, the clipboard and the
// optional agent bridge.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"realtime-whiteboard/internal/ai"
	"realtime-whiteboard/internal/api"
	"realtime-whiteboard/internal/boardsync"
	"realtime-whiteboard/internal/channel"
	"realtime-whiteboard/internal/config"
	"realtime-whiteboard/internal/cursor"
	"realtime-whiteboard/internal/objectstore"
)

// ErrNoAgent is returned by Command when no agent URL is configured.
var ErrNoAgent = errors.New("no agent configured")

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Options 세션 구성 요소. Only BoardID and Config are required; the rest
// default to the real relay, REST store and agent derived from Config.
type Options struct {
	BoardID string
	Config  *config.ClientConfig

	Connector channel.Connector
	Persister boardsync.Persister
	Agent     boardsync.Agent
	Clock     clock.Clock
	Logger    *zap.Logger
}

// Session 보드 세션
type Session struct {
	BoardID     string
	Store       *objectstore.Store
	Manager     *channel.Manager
	Coordinator *boardsync.Coordinator
	Cursors     *cursor.Tracker
	Clipboard   *boardsync.Clipboard
	// Bridge is nil when no agent is configured.
	Bridge *boardsync.Bridge

	logger *zap.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
}

// New assembles a session without touching the network.
func New(opts Options) (*Session, error) {
	if opts.BoardID == "" {
		return nil, errors.New("board id is required")
	}
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("client config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	connector := opts.Connector
	if connector == nil {
		connector = &channel.WebSocketConnector{
			BaseURL: cfg.WebSocketURL(),
			Token:   cfg.Token,
			Logger:  logger,
		}
	}
	persister := opts.Persister
	if persister == nil {
		persister = api.NewClient(cfg.ServerURL, cfg.Token, api.DefaultTimeout)
	}
	agent := opts.Agent
	if agent == nil && cfg.AgentURL != "" {
		agent = ai.NewClient(cfg.AgentURL, cfg.AgentTimeout)
	}

	settings := &channel.Settings{
		BaseDelay:    cfg.Channel.InitialDelay,
		MaxDelay:     cfg.Channel.MaxDelay,
		PollInterval: cfg.Channel.PollInterval,
	}

	store := objectstore.New()
	coord := boardsync.NewCoordinator(opts.BoardID, store, persister, clk, logger)
	s := &Session{
		BoardID:     opts.BoardID,
		Store:       store,
		Manager:     channel.NewManager(opts.BoardID, connector, settings, clk, logger),
		Coordinator: coord,
		Cursors:     cursor.NewTracker(cfg.UserID, cfg.DisplayName(), cfg.CursorInterval, clk, logger),
		Clipboard:   boardsync.NewClipboard(coord),
		logger:      logger.Named("session").With(zap.String("board_id", opts.BoardID)),
	}
	if agent != nil {
		s.Bridge = boardsync.NewBridge(coord, agent)
	}
	return s, nil
}

// Start loads the durable snapshot, subscribes to the channel and opens it.
// A failed load is returned but the channel is still opened, and the board is
// loaded again once the first channel joins.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	loadErr := s.Coordinator.Load(ctx)
	if loadErr != nil {
		s.logger.Warn("initial load failed", zap.Error(loadErr))
		s.Manager.OnFirstJoin(func() {
			if err := s.Coordinator.Load(ctx); err != nil {
				s.logger.Warn("load on join failed", zap.Error(err))
			}
		})
	}

	s.Coordinator.Attach(ctx, s.Manager)
	s.Cursors.Attach(s.Manager)
	s.Manager.Start(ctx)

	s.logger.Info("session started", zap.Int("objects", s.Store.Len()))
	return loadErr
}

// WaitJoined blocks until the channel is joined or ctx is done.
func (s *Session) WaitJoined(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.Manager.Joined() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Status 채널 상태
func (s *Session) Status() channel.Status {
	return s.Manager.Status()
}

// Command runs message through the agent bridge.
func (s *Session) Command(ctx context.Context, message string) (string, error) {
	if s.Bridge == nil {
		return "", ErrNoAgent
	}
	return s.Bridge.Run(ctx, message)
}

// Close 세션 정리
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	s.Manager.Close()
	s.Cursors.Close()
	if cancel != nil {
		cancel()
	}
	s.logger.Info("session closed")
}

// IsClosed 세션 종료 여부 확인
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
