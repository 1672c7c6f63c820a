package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-whiteboard/internal/auth"
	"realtime-whiteboard/internal/channel"
	"realtime-whiteboard/internal/model"
	"realtime-whiteboard/internal/testutil"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.yaml")
	data := []byte(`server_url: http://127.0.0.1:1
user_id: u1
user_name: Alice
channel:
  initial_delay: 10ms
  max_delay: 50ms
  poll_interval: 10ms
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// run executes the root command against an in-memory relay and store.
func run(t *testing.T, hub *channel.MemoryHub, db *testutil.MemoryStore, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{Connector: hub, Persister: db}
	cmd := newRootCommand(opts)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", writeConfig(t), "--join-wait", "1s"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"list", "create", "connect", "move", "color", "text", "duplicate", "delete", "watch", "ai", "token"}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"config", "board", "format", "verbose", "join-wait"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, channel.NewMemoryHub(), testutil.NewMemoryStore(), "list", "--board", "b1", "--format", "yaml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestBoardRequired(t *testing.T) {
	_, err := run(t, channel.NewMemoryHub(), testutil.NewMemoryStore(), "list")
	assert.ErrorContains(t, err, "--board is required")
}

func TestCreateThenList(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()

	out, err := run(t, hub, db, "create", "sticky_note", "400", "300", "--board", "b1", "--text", "Ship it", "--format", "json")
	require.NoError(t, err)

	var created []model.BoardObject
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.Len(t, created, 1)
	assert.Equal(t, model.TypeStickyNote, created[0].Type)
	assert.Equal(t, "Ship it", created[0].Text)

	stored, ok := db.Get(created[0].ID)
	require.True(t, ok)
	assert.Equal(t, "Ship it", stored.Text)

	out, err = run(t, hub, db, "list", "--board", "b1")
	require.NoError(t, err)
	assert.Contains(t, out, created[0].ID)
	assert.Contains(t, out, "sticky_note")
}

func TestCreate_RejectsBadInput(t *testing.T) {
	hub := channel.NewMemoryHub()
	db := testutil.NewMemoryStore()

	_, err := run(t, hub, db, "create", "circle", "left", "3", "--board", "b1")
	assert.ErrorContains(t, err, "invalid x")

	_, err = run(t, hub, db, "create", "connector", "1", "3", "--board", "b1")
	assert.Error(t, err)
	assert.Zero(t, db.Calls(testutil.OpInsert))
}

func TestEditCommands(t *testing.T) {
	hub := channel.NewMemoryHub()
	a := model.NewObject("b1", model.TypeRectangle, 0, 0, testutil.Epoch)
	b := model.NewObject("b1", model.TypeCircle, 500, 500, testutil.Epoch)
	db := testutil.NewMemoryStore(a, b)

	_, err := run(t, hub, db, "move", a.ID, "10", "20", "--board", "b1")
	require.NoError(t, err)
	_, err = run(t, hub, db, "color", "#000000", a.ID, b.ID, "--board", "b1")
	require.NoError(t, err)

	got, _ := db.Get(a.ID)
	assert.Equal(t, 10.0, got.X)
	assert.Equal(t, 20.0, got.Y)
	assert.Equal(t, "#000000", got.Color)
	got, _ = db.Get(b.ID)
	assert.Equal(t, "#000000", got.Color)

	_, err = run(t, hub, db, "connect", a.ID, b.ID, "--board", "b1")
	require.NoError(t, err)
	assert.Len(t, db.Snapshot("b1"), 3)

	_, err = run(t, hub, db, "delete", a.ID, b.ID, "--board", "b1")
	require.NoError(t, err)
	assert.Len(t, db.Snapshot("b1"), 1)
}

func TestAI_WithoutAgent(t *testing.T) {
	_, err := run(t, channel.NewMemoryHub(), testutil.NewMemoryStore(), "ai", "add a frame", "--board", "b1")
	assert.ErrorContains(t, err, "no agent configured")
}

func TestToken(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--user", "u1", "--name", "Alice", "--secret", "s3cret", "--ttl", "1h"})

	require.NoError(t, cmd.Execute())

	claims, err := auth.NewJWTManager("s3cret", time.Hour).ValidateAccessToken(string(bytes.TrimSpace(out.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "Alice", claims.UserName)
}

func TestToken_RequiresUser(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--secret", "s3cret"})

	assert.Error(t, cmd.Execute())
}
