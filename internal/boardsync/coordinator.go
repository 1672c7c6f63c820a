// Package boardsync keeps a board's object store in step with its peers and
// with the durable store.
//
// Every local edit runs in three phases: apply to the local store, broadcast
// to peers if the channel is joined, then write durably. A failed broadcast or
// write never undoes the local apply; the next refresh reconciles. Inbound
// broadcasts are merged with the store's last-write-wins rule, and a reconnect
// or board_refresh event replaces the store with the durable snapshot.
package boardsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"realtime-whiteboard/internal/channel"
	"realtime-whiteboard/internal/model"
	"realtime-whiteboard/internal/objectstore"
)

// Persister is the durable object store.
type Persister interface {
	// ListByBoard returns every object of the board ordered by z-index ascending.
	ListByBoard(ctx context.Context, boardID string) ([]model.BoardObject, error)
	Insert(ctx context.Context, obj model.BoardObject) error
	// Update writes the set fields of patch to the row with the given id.
	Update(ctx context.Context, id string, patch model.Patch) error
	Delete(ctx context.Context, id string) error
}

// Broadcaster is the part of channel.Manager the coordinator needs.
type Broadcaster interface {
	Send(event string, payload any) bool
	On(event string, fn channel.BroadcastFunc)
	OnReconnect(fn func())
}

// Coordinator 보드 동기화 조정자
type Coordinator struct {
	boardID string
	store   *objectstore.Store
	db      Persister
	clock   clock.Clock
	logger  *zap.Logger

	mu  sync.RWMutex
	out Broadcaster
	ctx context.Context
}

// NewCoordinator creates a coordinator for boardID over store and db. Nothing
// is broadcast until Attach is called.
func NewCoordinator(boardID string, store *objectstore.Store, db Persister, clk clock.Clock, logger *zap.Logger) *Coordinator {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		boardID: boardID,
		store:   store,
		db:      db,
		clock:   clk,
		logger:  logger.Named("boardsync").With(zap.String("board_id", boardID)),
		ctx:     context.Background(),
	}
}

// BoardID 보드 ID
func (c *Coordinator) BoardID() string {
	return c.boardID
}

// Store returns the object store the coordinator writes to.
func (c *Coordinator) Store() *objectstore.Store {
	return c.store
}

// Attach subscribes to the board's broadcast events on b and refreshes after
// every reconnect. ctx bounds the durable reads those inbound events trigger.
func (c *Coordinator) Attach(ctx context.Context, b Broadcaster) {
	c.mu.Lock()
	c.out = b
	c.ctx = ctx
	c.mu.Unlock()

	b.On(model.EventObjectCreate, c.handleUpsert)
	b.On(model.EventObjectUpdate, c.handleUpsert)
	b.On(model.EventObjectDelete, c.handleDelete)
	b.On(model.EventBoardRefresh, c.handleRefresh)
	// The replacement channel is already joined here, so this refresh also
	// sends board_refresh and every peer re-reads the board once.
	b.OnReconnect(func() {
		if err := c.Refresh(c.attachedContext()); err != nil {
			c.logger.Warn("refresh after reconnect failed", zap.Error(err))
		}
	})
}

func (c *Coordinator) attachedContext() context.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ctx
}

// broadcast sends only when the channel reports joined at the moment of
// sending. Anything else is dropped, never queued.
func (c *Coordinator) broadcast(event string, payload any) {
	c.mu.RLock()
	out := c.out
	c.mu.RUnlock()
	if out == nil {
		return
	}
	if !out.Send(event, payload) {
		c.logger.Debug("broadcast skipped", zap.String("event", event))
	}
}

func (c *Coordinator) now() *time.Time {
	t := model.Now(c.clock.Now())
	return &t
}

// =============================================================================
// Local operations
// =============================================================================

// Load replaces the store with the durable snapshot without telling peers.
func (c *Coordinator) Load(ctx context.Context) error {
	objects, err := c.db.ListByBoard(ctx, c.boardID)
	if err != nil {
		c.logger.Error("load board failed", zap.Error(err))
		return fmt.Errorf("load board %s: %w", c.boardID, err)
	}
	c.store.ReplaceAll(objects)
	c.logger.Info("board loaded", zap.Int("objects", len(objects)))
	return nil
}

// Create inserts obj locally, broadcasts it and persists it. A persistence
// failure is logged and returned; the object stays in the store.
func (c *Coordinator) Create(ctx context.Context, obj model.BoardObject) error {
	if obj.BoardID == "" {
		obj.BoardID = c.boardID
	}
	c.store.UpsertLocal(obj)
	c.broadcast(model.EventObjectCreate, obj)

	if err := c.db.Insert(ctx, obj); err != nil {
		c.logger.Error("insert failed", zap.String("id", obj.ID), zap.Error(err))
		return fmt.Errorf("insert object %s: %w", obj.ID, err)
	}
	return nil
}

// Update stamps a fresh UpdatedAt on patch, merges it locally, broadcasts the
// full merged object and persists the patch. An id missing from the store is
// still written durably but nothing is broadcast.
//
// The stamp is always later than the local copy's, so two edits made within
// the same millisecond still order correctly at peers.
func (c *Coordinator) Update(ctx context.Context, id string, patch model.Patch) error {
	stamp := c.now()
	if local, ok := c.store.Get(id); ok && !stamp.After(local.UpdatedAt) {
		next := model.Now(local.UpdatedAt).Add(time.Millisecond)
		stamp = &next
	}
	patch.UpdatedAt = stamp

	if merged, ok := c.store.Merge(id, patch); ok {
		c.broadcast(model.EventObjectUpdate, merged)
	}

	if err := c.db.Update(ctx, id, patch); err != nil {
		c.logger.Error("update failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("update object %s: %w", id, err)
	}
	return nil
}

// Delete removes id locally, broadcasts the delete and deletes durably.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	c.store.Remove(id)
	c.broadcast(model.EventObjectDelete, model.DeletePayload{ID: id})

	if err := c.db.Delete(ctx, id); err != nil {
		c.logger.Error("delete failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("delete object %s: %w", id, err)
	}
	return nil
}

// Refresh replaces the store with the durable snapshot and asks peers to do
// the same. On a failed fetch the store is left as it was and nothing is sent.
func (c *Coordinator) Refresh(ctx context.Context) error {
	objects, err := c.db.ListByBoard(ctx, c.boardID)
	if err != nil {
		c.logger.Error("refresh failed", zap.Error(err))
		return fmt.Errorf("refresh board %s: %w", c.boardID, err)
	}
	c.store.ReplaceAll(objects)
	c.broadcast(model.EventBoardRefresh, struct{}{})
	return nil
}

// =============================================================================
// Inbound events
// =============================================================================

func (c *Coordinator) handleUpsert(payload json.RawMessage) {
	var obj model.BoardObject
	if err := json.Unmarshal(payload, &obj); err != nil {
		c.logger.Warn("drop malformed object", zap.Error(err))
		return
	}
	if obj.ID == "" || obj.BoardID != c.boardID {
		return
	}
	c.store.ReconcileRemote(obj)
}

func (c *Coordinator) handleDelete(payload json.RawMessage) {
	var p model.DeletePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ID == "" {
		c.logger.Warn("drop malformed delete", zap.Error(err))
		return
	}
	c.store.Remove(p.ID)
}

// handleRefresh re-reads the board without re-broadcasting, so a refresh
// never echoes around the room.
func (c *Coordinator) handleRefresh(json.RawMessage) {
	ctx := c.attachedContext()
	objects, err := c.db.ListByBoard(ctx, c.boardID)
	if err != nil {
		c.logger.Warn("peer refresh fetch failed", zap.Error(err))
		return
	}
	c.store.ReplaceAll(objects)
}
