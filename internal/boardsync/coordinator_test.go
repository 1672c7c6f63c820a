package boardsync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-whiteboard/internal/channel"
	"realtime-whiteboard/internal/model"
	"realtime-whiteboard/internal/objectstore"
	"realtime-whiteboard/internal/testutil"
)

const boardID = "b1"

type peer struct {
	coord   *Coordinator
	store   *objectstore.Store
	manager *channel.Manager
	// wall drives object timestamps, poll drives the channel manager
	wall *clock.Mock
	poll *clock.Mock
}

func newPeer(t *testing.T, hub *channel.MemoryHub, db Persister) *peer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	p := &peer{
		store: objectstore.New(),
		wall:  testutil.NewClock(),
		poll:  clock.NewMock(),
	}
	p.coord = NewCoordinator(boardID, p.store, db, p.wall, nil)
	p.manager = channel.NewManager("board:"+boardID, hub, nil, p.poll, nil)
	p.coord.Attach(ctx, p.manager)
	p.manager.Start(ctx)
	t.Cleanup(p.manager.Close)
	require.NoError(t, p.coord.Load(ctx))
	return p
}

// recover walks a peer's manager through one poll, the first retry and the
// poll that observes the rejoin.
func (p *peer) recover(t *testing.T) {
	t.Helper()
	p.poll.Add(3 * time.Second)
	require.Eventually(t, func() bool { return p.manager.NextDelay() == 2*time.Second }, time.Second, 5*time.Millisecond)
	p.poll.Add(time.Second)
	require.Eventually(t, p.manager.Joined, time.Second, 5*time.Millisecond)
}

func sentEvents(hub *channel.MemoryHub) []string {
	var events []string
	for _, s := range hub.Sent() {
		events = append(events, s.Event)
	}
	return events
}

func TestScenarioA_CreateReachesPeer(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()
	a := newPeer(t, hub, db)
	b := newPeer(t, hub, db)

	o1 := model.NewObject(boardID, model.TypeStickyNote, 0, 0, a.wall.Now())
	o1.X, o1.Y = 0, 0
	require.NoError(t, a.coord.Create(context.Background(), o1))

	got, ok := b.store.Get(o1.ID)
	require.True(t, ok)
	want, _ := a.store.Get(o1.ID)
	assert.Equal(t, want, got)
	_, persisted := db.Get(o1.ID)
	assert.True(t, persisted)
}

func TestScenarioB_NewerUpdateReplacesPeerCopy(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()
	a := newPeer(t, hub, db)
	b := newPeer(t, hub, db)
	o1 := model.NewObject(boardID, model.TypeStickyNote, 0, 0, a.wall.Now())
	require.NoError(t, a.coord.Create(context.Background(), o1))
	t1 := o1.UpdatedAt

	a.wall.Add(time.Second)
	require.NoError(t, a.coord.Move(context.Background(), o1.ID, 50, o1.Y))

	got, _ := b.store.Get(o1.ID)
	assert.Equal(t, 50.0, got.X)
	assert.True(t, got.UpdatedAt.After(t1))
	row, _ := db.Get(o1.ID)
	assert.Equal(t, 50.0, row.X)
	assert.Equal(t, got.UpdatedAt, row.UpdatedAt)
}

func TestScenarioC_DeleteReachesPeer(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()
	a := newPeer(t, hub, db)
	b := newPeer(t, hub, db)
	o1 := model.NewObject(boardID, model.TypeRectangle, 0, 0, a.wall.Now())
	require.NoError(t, a.coord.Create(context.Background(), o1))
	require.Equal(t, 1, b.store.Len())

	require.NoError(t, a.coord.Delete(context.Background(), o1.ID))

	_, ok := b.store.Get(o1.ID)
	assert.False(t, ok)
	_, persisted := db.Get(o1.ID)
	assert.False(t, persisted)
}

func TestScenarioD_ReconnectDiscardsMissedState(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()
	a := newPeer(t, hub, db)
	b := newPeer(t, hub, db)
	ctx := context.Background()
	o1 := model.NewObject(boardID, model.TypeStickyNote, 0, 0, a.wall.Now())
	o2 := model.NewObject(boardID, model.TypeCircle, 500, 500, a.wall.Now())
	require.NoError(t, a.coord.Create(ctx, o1))
	require.NoError(t, a.coord.Create(ctx, o2))

	hub.Drop()
	a.wall.Add(time.Second)
	require.NoError(t, a.coord.Move(ctx, o1.ID, 10, 10))
	require.NoError(t, a.coord.SetText(ctx, o1.ID, "missed"))
	require.NoError(t, a.coord.Delete(ctx, o2.ID))
	// nothing reached b
	assert.Equal(t, 2, b.store.Len())

	hub.SetOnline(true)
	b.recover(t)
	listsBefore := db.Calls(testutil.OpList)
	b.poll.Add(3 * time.Second)

	require.Eventually(t, func() bool { return db.Calls(testutil.OpList) > listsBefore }, time.Second, 5*time.Millisecond)
	assert.Equal(t, db.Snapshot(boardID), b.store.List())
	got, _ := b.store.Get(o1.ID)
	assert.Equal(t, "missed", got.Text)
}

func TestReconnect_RefreshesExactlyOnce(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()
	a := newPeer(t, hub, db)

	hub.Drop()
	hub.SetOnline(true)
	a.recover(t)
	before := db.Calls(testutil.OpList)

	a.poll.Add(3 * time.Second)
	require.Eventually(t, func() bool { return db.Calls(testutil.OpList) == before+1 }, time.Second, 5*time.Millisecond)
	a.poll.Add(3 * time.Second)
	a.poll.Add(3 * time.Second)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, before+1, db.Calls(testutil.OpList))
	assert.Contains(t, sentEvents(hub), model.EventBoardRefresh)
}

func TestCreate_NotJoinedSkipsBroadcastOnly(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()
	a := newPeer(t, hub, db)
	hub.Drop()

	o1 := model.NewObject(boardID, model.TypeText, 0, 0, a.wall.Now())
	require.NoError(t, a.coord.Create(context.Background(), o1))

	_, local := a.store.Get(o1.ID)
	_, persisted := db.Get(o1.ID)
	assert.True(t, local)
	assert.True(t, persisted)
	assert.Empty(t, hub.Sent())
}

func TestCreate_PersistFailureKeepsOptimisticCopy(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()
	a := newPeer(t, hub, db)
	b := newPeer(t, hub, db)
	boom := errors.New("connection reset")
	db.FailNext(testutil.OpInsert, boom)

	o1 := model.NewObject(boardID, model.TypeFrame, 0, 0, a.wall.Now())
	err := a.coord.Create(context.Background(), o1)

	assert.ErrorIs(t, err, boom)
	_, local := a.store.Get(o1.ID)
	_, remote := b.store.Get(o1.ID)
	assert.True(t, local)
	assert.True(t, remote)

	// the next refresh is what reconciles
	require.NoError(t, a.coord.Refresh(context.Background()))
	_, local = a.store.Get(o1.ID)
	assert.False(t, local)
}

func TestUpdate_BroadcastsFullObject(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()
	a := newPeer(t, hub, db)
	o1 := model.NewObject(boardID, model.TypeStickyNote, 0, 0, a.wall.Now())
	require.NoError(t, a.coord.Create(context.Background(), o1))

	a.wall.Add(time.Second)
	require.NoError(t, a.coord.SetText(context.Background(), o1.ID, "hello"))

	sent := hub.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, model.EventObjectUpdate, sent[1].Event)
	var obj model.BoardObject
	require.NoError(t, json.Unmarshal(sent[1].Payload, &obj))
	assert.Equal(t, "hello", obj.Text)
	assert.Equal(t, o1.Color, obj.Color)
	assert.Equal(t, o1.Width, obj.Width)
	assert.Equal(t, model.Now(a.wall.Now()), obj.UpdatedAt)
}

func TestUpdate_SameMillisecondEditsReachPeer(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()
	a := newPeer(t, hub, db)
	b := newPeer(t, hub, db)
	ctx := context.Background()

	// the wall clock never moves between these edits
	note, err := a.coord.CreateAt(ctx, model.TypeStickyNote, 0, 0)
	require.NoError(t, err)
	require.NoError(t, a.coord.SetText(ctx, note.ID, "Ship it"))
	require.NoError(t, a.coord.SetColor(ctx, []string{note.ID}, "#000000"))

	mine, _ := a.store.Get(note.ID)
	theirs, ok := b.store.Get(note.ID)
	require.True(t, ok)
	assert.Equal(t, mine, theirs)
	assert.Equal(t, "Ship it", theirs.Text)
	assert.Equal(t, "#000000", theirs.Color)
	assert.Equal(t, note.UpdatedAt.Add(2*time.Millisecond), theirs.UpdatedAt)
	row, _ := db.Get(note.ID)
	assert.Equal(t, mine.UpdatedAt, row.UpdatedAt)
}

func TestUpdate_UnknownIDStillPersists(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()
	a := newPeer(t, hub, db)

	err := a.coord.Move(context.Background(), "ghost", 1, 1)

	assert.ErrorIs(t, err, testutil.ErrNotFound)
	assert.Equal(t, 1, db.Calls(testutil.OpUpdate))
	assert.Empty(t, hub.Sent())
	assert.Equal(t, 0, a.store.Len())
}

func TestRefresh_PeersRefetchWithoutEcho(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()
	a := newPeer(t, hub, db)
	b := newPeer(t, hub, db)
	// an out-of-band writer
	db.Put(model.NewObject(boardID, model.TypeRectangle, 0, 0, testutil.Epoch))

	require.NoError(t, a.coord.Refresh(context.Background()))

	assert.Equal(t, 1, a.store.Len())
	assert.Equal(t, 1, b.store.Len())
	assert.Equal(t, []string{model.EventBoardRefresh}, sentEvents(hub))
}

func TestRefresh_FetchFailureLeavesStore(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()
	a := newPeer(t, hub, db)
	o1 := model.NewObject(boardID, model.TypeCircle, 0, 0, a.wall.Now())
	a.store.UpsertLocal(o1)
	db.FailNext(testutil.OpList, errors.New("timeout"))

	err := a.coord.Refresh(context.Background())

	assert.Error(t, err)
	assert.Equal(t, 1, a.store.Len())
	assert.Empty(t, hub.Sent())
}

func TestInbound_IgnoresOtherBoardsAndGarbage(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()
	a := newPeer(t, hub, db)
	other := hub.Connect(context.Background(), "board:"+boardID, &nopHandler{})
	foreign := model.NewObject("b2", model.TypeCircle, 0, 0, testutil.Epoch)

	require.NoError(t, other.Send(model.EventObjectCreate, foreign))
	require.NoError(t, other.Send(model.EventObjectUpdate, json.RawMessage(`{"id":`)))
	require.NoError(t, other.Send(model.EventObjectDelete, json.RawMessage(`{}`)))

	assert.Equal(t, 0, a.store.Len())
}

func TestInbound_StaleUpdateDiscarded(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()
	a := newPeer(t, hub, db)
	other := hub.Connect(context.Background(), "board:"+boardID, &nopHandler{})
	o1 := model.NewObject(boardID, model.TypeCircle, 0, 0, testutil.Epoch.Add(time.Minute))
	a.store.UpsertLocal(o1)

	stale := o1.Clone()
	stale.X = 999
	stale.UpdatedAt = o1.UpdatedAt.Add(-time.Second)
	require.NoError(t, other.Send(model.EventObjectUpdate, stale))

	got, _ := a.store.Get(o1.ID)
	assert.Equal(t, o1.X, got.X)
}

func TestDeleteThenLateUpdateResurrects(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()
	a := newPeer(t, hub, db)
	other := hub.Connect(context.Background(), "board:"+boardID, &nopHandler{})
	o1 := model.NewObject(boardID, model.TypeCircle, 0, 0, a.wall.Now())
	require.NoError(t, a.coord.Create(context.Background(), o1))
	require.NoError(t, a.coord.Delete(context.Background(), o1.ID))

	require.NoError(t, other.Send(model.EventObjectUpdate, o1))

	_, ok := a.store.Get(o1.ID)
	assert.True(t, ok)
}

type nopHandler struct{}

func (nopHandler) HandleBroadcast(string, json.RawMessage) {}
func (nopHandler) HandlePresenceSync(map[string][]model.PresenceUser) {}
func (nopHandler) HandlePresenceLeave([]model.PresenceUser) {}
