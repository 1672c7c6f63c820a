package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig 헤드리스 보드 클라이언트 설정
type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
	AgentURL  string `yaml:"agent_url"`
	Token     string `yaml:"token"`

	UserID   string `yaml:"user_id"`
	UserName string `yaml:"user_name"`
	Email    string `yaml:"email"`

	Channel ChannelConfig `yaml:"channel"`

	CursorInterval time.Duration `yaml:"cursor_interval"`
	AgentTimeout   time.Duration `yaml:"agent_timeout"`
	Debug          bool          `yaml:"debug"`
}

// ChannelConfig 재연결 타이밍
type ChannelConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultClientConfig 기본 클라이언트 설정
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL: "http://localhost:8080",
		Channel: ChannelConfig{
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			PollInterval: 3 * time.Second,
		},
		CursorInterval: 50 * time.Millisecond,
		AgentTimeout:   60 * time.Second,
	}
}

// LoadClient starts from the defaults, applies the YAML file at path when
// path is non-empty, then applies WHITEBOARD_* environment overrides.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read client config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse client config %s: %w", path, err)
		}
	}

	cfg.ServerURL = getEnv("WHITEBOARD_SERVER_URL", cfg.ServerURL)
	cfg.AgentURL = getEnv("WHITEBOARD_AGENT_URL", cfg.AgentURL)
	cfg.Token = getEnv("WHITEBOARD_TOKEN", cfg.Token)
	cfg.UserID = getEnv("WHITEBOARD_USER_ID", cfg.UserID)
	cfg.UserName = getEnv("WHITEBOARD_USER_NAME", cfg.UserName)
	cfg.Email = getEnv("WHITEBOARD_EMAIL", cfg.Email)
	cfg.Channel.InitialDelay = getDuration("WHITEBOARD_RECONNECT_INITIAL", cfg.Channel.InitialDelay)
	cfg.Channel.MaxDelay = getDuration("WHITEBOARD_RECONNECT_MAX", cfg.Channel.MaxDelay)
	cfg.Channel.PollInterval = getDuration("WHITEBOARD_POLL_INTERVAL", cfg.Channel.PollInterval)
	cfg.CursorInterval = getDuration("WHITEBOARD_CURSOR_INTERVAL", cfg.CursorInterval)
	cfg.AgentTimeout = getDuration("WHITEBOARD_AGENT_TIMEOUT", cfg.AgentTimeout)
	cfg.Debug = getBool("WHITEBOARD_DEBUG", cfg.Debug)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 필수 값 확인
func (c *ClientConfig) Validate() error {
	var errs []error
	if c.ServerURL == "" {
		errs = append(errs, errors.New("server_url is required"))
	} else if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		errs = append(errs, fmt.Errorf("server_url %q must be http or https", c.ServerURL))
	}
	if c.UserID == "" {
		errs = append(errs, errors.New("user_id is required"))
	}
	if c.Channel.InitialDelay <= 0 || c.Channel.MaxDelay < c.Channel.InitialDelay {
		errs = append(errs, errors.New("channel delays must satisfy 0 < initial_delay <= max_delay"))
	}
	if c.Channel.PollInterval <= 0 {
		errs = append(errs, errors.New("channel.poll_interval must be positive"))
	}
	return errors.Join(errs...)
}

// WebSocketURL is ServerURL with the scheme switched to ws or wss.
func (c *ClientConfig) WebSocketURL() string {
	u := strings.TrimRight(c.ServerURL, "/")
	if rest, ok := strings.CutPrefix(u, "https://"); ok {
		return "wss://" + rest
	}
	return "ws://" + strings.TrimPrefix(u, "http://")
}

// DisplayName falls back to the user id when no name is configured.
func (c *ClientConfig) DisplayName() string {
	if c.UserName != "" {
		return c.UserName
	}
	return c.UserID
}
