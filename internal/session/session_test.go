package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-whiteboard/internal/channel"
	"realtime-whiteboard/internal/config"
	"realtime-whiteboard/internal/model"
	"realtime-whiteboard/internal/testutil"
)

func testConfig(userID string) *config.ClientConfig {
	cfg := config.DefaultClientConfig()
	cfg.UserID = userID
	cfg.UserName = "user " + userID
	cfg.Channel.PollInterval = 10 * time.Millisecond
	cfg.Channel.InitialDelay = 10 * time.Millisecond
	cfg.Channel.MaxDelay = 50 * time.Millisecond
	return cfg
}

func openSession(t *testing.T, hub *channel.MemoryHub, db *testutil.MemoryStore, userID string) *Session {
	t.Helper()
	s, err := New(Options{
		BoardID:   "b1",
		Config:    testConfig(userID),
		Connector: hub,
		Persister: db,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.WaitJoined(ctx))
	return s
}

func TestNew_RequiresBoardAndConfig(t *testing.T) {
	_, err := New(Options{Config: testConfig("u1")})
	assert.Error(t, err)

	_, err = New(Options{BoardID: "b1"})
	assert.Error(t, err)
}

func TestNew_BridgeOnlyWithAgent(t *testing.T) {
	cfg := testConfig("u1")
	s, err := New(Options{BoardID: "b1", Config: cfg, Connector: channel.NewMemoryHub(), Persister: testutil.NewMemoryStore()})
	require.NoError(t, err)
	assert.Nil(t, s.Bridge)

	_, err = s.Command(context.Background(), "add a note")
	assert.ErrorIs(t, err, ErrNoAgent)

	cfg.AgentURL = "http://127.0.0.1:1"
	s, err = New(Options{BoardID: "b1", Config: cfg, Connector: channel.NewMemoryHub(), Persister: testutil.NewMemoryStore()})
	require.NoError(t, err)
	assert.NotNil(t, s.Bridge)
}

func TestSession_LoadsAndSyncsPeers(t *testing.T) {
	hub := channel.NewMemoryHub()
	existing := model.NewObject("b1", model.TypeRectangle, 0, 0, testutil.Epoch)
	db := testutil.NewMemoryStore(existing)

	a := openSession(t, hub, db, "u1")
	b := openSession(t, hub, db, "u2")

	assert.Equal(t, 1, a.Store.Len())
	assert.Equal(t, channel.StatusJoined, a.Status())

	note, err := a.Coordinator.CreateAt(context.Background(), model.TypeStickyNote, 100, 100)
	require.NoError(t, err)

	got, ok := b.Store.Get(note.ID)
	require.True(t, ok)
	assert.Equal(t, note.Color, got.Color)
	_, ok = db.Get(note.ID)
	assert.True(t, ok)
}

func TestSession_PresenceAcrossPeers(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()

	a := openSession(t, hub, db, "u1")
	b := openSession(t, hub, db, "u2")

	require.Eventually(t, func() bool { return len(a.Cursors.Online()) == 2 }, time.Second, 5*time.Millisecond)

	b.Cursors.Move(10, 20)
	require.Eventually(t, func() bool { return len(a.Cursors.Cursors()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "u2", a.Cursors.Cursors()[0].UserID)

	b.Close()
	require.Eventually(t, func() bool { return len(a.Cursors.Online()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, a.Cursors.Cursors())
}

func TestSession_StartReportsLoadFailure(t *testing.T) {
	hub := channel.NewMemoryHub()
	existing := model.NewObject("b1", model.TypeRectangle, 0, 0, testutil.Epoch)
	db := testutil.NewMemoryStore(existing)
	db.FailNext(testutil.OpList, errors.New("db down"))

	s, err := New(Options{BoardID: "b1", Config: testConfig("u1"), Connector: hub, Persister: db})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	err = s.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, "load board b1: db down", err.Error())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.WaitJoined(ctx))

	// the first join re-reads the board
	require.Eventually(t, func() bool { return s.Store.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, db.Calls(testutil.OpList))
}

func TestSession_LoadedStartSkipsJoinReload(t *testing.T) {
	db := testutil.NewMemoryStore()
	openSession(t, channel.NewMemoryHub(), db, "u1")

	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, db.Calls(testutil.OpList))
}

func TestSession_Close(t *testing.T) {
	s := openSession(t, channel.NewMemoryHub(), testutil.NewMemoryStore(), "u1")

	s.Close()
	s.Close()

	assert.True(t, s.IsClosed())
	assert.Equal(t, channel.StatusDisconnected, s.Status())
	assert.ErrorIs(t, s.Start(context.Background()), ErrClosed)
}
