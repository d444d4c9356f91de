package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig
	Runtime   RuntimeConfig
	Launcher  LauncherConfig
	Ports     PortsConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port      string `envconfig:"PORT" default:"8080"`
	Host      string `envconfig:"HOST" default:"0.0.0.0"`
	StaticDir string `envconfig:"STATIC_DIR" default:"./web"`
}

// RuntimeConfig holds container runtime configuration.
type RuntimeConfig struct {
	// Image is the ancestor image that identifies session containers.
	Image string `envconfig:"SESSION_IMAGE" default:"chrome-gui"`
	// VNCHost is where session VNC servers are reachable from here.
	VNCHost string `envconfig:"VNC_HOST" default:"127.0.0.1"`
	// QueryTimeout bounds every runtime query.
	QueryTimeout time.Duration `envconfig:"RUNTIME_QUERY_TIMEOUT" default:"10s"`
	// VNCDialTimeout bounds the bridge's TCP dial to a session's VNC port.
	VNCDialTimeout time.Duration `envconfig:"VNC_DIAL_TIMEOUT" default:"5s"`
}

// LauncherConfig holds session launch configuration.
type LauncherConfig struct {
	Script       string        `envconfig:"LAUNCH_SCRIPT" default:"./run-chrome-gui.sh"`
	ReadyTimeout time.Duration `envconfig:"READY_TIMEOUT" default:"30s"`
	ReadyPoll    time.Duration `envconfig:"READY_POLL" default:"500ms"`
}

// PortsConfig holds the three allocation bands. Defaults follow the
// conventional Chrome debug (9222+), VNC (5900+), and X display (:99+)
// numbering.
type PortsConfig struct {
	DebugStart   int `envconfig:"DEBUG_PORT_START" default:"9222"`
	DebugSize    int `envconfig:"DEBUG_PORT_COUNT" default:"200"`
	VNCStart     int `envconfig:"VNC_PORT_START" default:"5900"`
	VNCSize      int `envconfig:"VNC_PORT_COUNT" default:"200"`
	DisplayStart int `envconfig:"DISPLAY_START" default:"99"`
	DisplaySize  int `envconfig:"DISPLAY_COUNT" default:"101"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("VIEWER", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from the environment or falls back
// to defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      "8080",
			Host:      "0.0.0.0",
			StaticDir: "./web",
		},
		Runtime: RuntimeConfig{
			Image:          "chrome-gui",
			VNCHost:        "127.0.0.1",
			QueryTimeout:   10 * time.Second,
			VNCDialTimeout: 5 * time.Second,
		},
		Launcher: LauncherConfig{
			Script:       "./run-chrome-gui.sh",
			ReadyTimeout: 30 * time.Second,
			ReadyPoll:    500 * time.Millisecond,
		},
		Ports: PortsConfig{
			DebugStart:   9222,
			DebugSize:    200,
			VNCStart:     5900,
			VNCSize:      200,
			DisplayStart: 99,
			DisplaySize:  101,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
