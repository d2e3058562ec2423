package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/npezzotti/studychat/internal/types"
)

const (
	defaultServerURL    = "http://localhost:8000"
	defaultHistoryLimit = 50
	defaultSendRate     = 5
	defaultSendBurst    = 10
)

type Config struct {
	ServerURL    string          `yaml:"server_url"`
	DisplayName  string          `yaml:"display_name"`
	Room         string          `yaml:"room"`
	StateDir     string          `yaml:"state_dir"`
	HistoryLimit int             `yaml:"history_limit"`
	DebugAddr    string          `yaml:"debug_addr"`
	SendRate     float64         `yaml:"send_rate"`
	SendBurst    int             `yaml:"send_burst"`
	Reconnect    ReconnectConfig `yaml:"reconnect"`
}

type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

func Default() *Config {
	return &Config{
		ServerURL:    defaultServerURL,
		StateDir:     defaultStateDir(),
		HistoryLimit: defaultHistoryLimit,
		SendRate:     defaultSendRate,
		SendBurst:    defaultSendBurst,
		Reconnect: ReconnectConfig{
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			MaxAttempts:  10,
		},
	}
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".studychat"
	}

	return dir + string(os.PathSeparator) + "studychat"
}

// NewConfig returns the default configuration for the given server and
// state directory.
func NewConfig(serverURL, stateDir string) (*Config, error) {
	cfg := Default()
	cfg.ServerURL = serverURL
	cfg.StateDir = stateDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile reads a YAML config file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// LoadEnv loads envFile into the process environment, if it exists, and
// applies any STUDYCHAT_* variables to cfg.
func LoadEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	if v := os.Getenv("STUDYCHAT_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("STUDYCHAT_DISPLAY_NAME"); v != "" {
		cfg.DisplayName = v
	}
	if v := os.Getenv("STUDYCHAT_ROOM"); v != "" {
		cfg.Room = v
	}
	if v := os.Getenv("STUDYCHAT_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("STUDYCHAT_DEBUG_ADDR"); v != "" {
		cfg.DebugAddr = v
	}

	return nil
}

func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server url cannot be empty")
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("server url must include a host")
	}

	if c.StateDir == "" {
		return fmt.Errorf("state directory cannot be empty")
	}

	if c.Room != "" {
		if _, err := types.ParseRoomKey(c.Room); err != nil {
			return fmt.Errorf("room %q: %w", c.Room, err)
		}
	}

	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive")
	}
	if c.SendRate <= 0 || c.SendBurst <= 0 {
		return fmt.Errorf("send rate and burst must be positive")
	}

	if c.Reconnect.InitialDelay <= 0 {
		return fmt.Errorf("reconnect initial delay must be positive")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("reconnect max delay must not be less than initial delay")
	}
	if c.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("reconnect max attempts must be positive")
	}

	return nil
}

// WebSocketURL derives the chat endpoint from the server url.
func (c *Config) WebSocketURL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"

	return u.String(), nil
}
