package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", ":9090")
	t.Setenv("WS_READ_TIMEOUT", "90")
	t.Setenv("ACCESS_TOKEN_EXPIRY", "2h")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.WebSocket.ReadTimeout)
	assert.Equal(t, 2*time.Hour, cfg.Auth.AccessTokenExpiry)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "change-this-secret-in-production")

	_, err := Load()

	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestLoadClient_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: https://boards.example.com/
user_id: u1
user_name: Alice
channel:
  initial_delay: 2s
  max_delay: 1m
cursor_interval: 100ms
`), 0o600))
	t.Setenv("WHITEBOARD_USER_NAME", "Alice B")
	t.Setenv("WHITEBOARD_POLL_INTERVAL", "5")

	cfg, err := LoadClient(path)

	require.NoError(t, err)
	assert.Equal(t, "wss://boards.example.com", cfg.WebSocketURL())
	assert.Equal(t, "Alice B", cfg.DisplayName())
	assert.Equal(t, 2*time.Second, cfg.Channel.InitialDelay)
	assert.Equal(t, time.Minute, cfg.Channel.MaxDelay)
	assert.Equal(t, 5*time.Second, cfg.Channel.PollInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.CursorInterval)
	assert.Equal(t, 60*time.Second, cfg.AgentTimeout)
}

func TestLoadClient_Invalid(t *testing.T) {
	t.Setenv("WHITEBOARD_SERVER_URL", "ftp://nope")
	t.Setenv("WHITEBOARD_RECONNECT_MAX", "100ms")

	_, err := LoadClient("")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be http or https")
	assert.Contains(t, err.Error(), "user_id is required")
	assert.Contains(t, err.Error(), "initial_delay <= max_delay")
}

func TestWebSocketURL(t *testing.T) {
	cfg := DefaultClientConfig()
	assert.Equal(t, "ws://localhost:8080", cfg.WebSocketURL())
	cfg.UserID = "u1"
	assert.Equal(t, "u1", cfg.DisplayName())
}
