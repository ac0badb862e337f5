// Package config provides runtime configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds servicebus configuration.
type Config struct {
	// Runtime identity. An empty RUNTIME_ID gets a generated UUID.
	RuntimeID string `envconfig:"RUNTIME_ID"`

	// COMMS: connect to standalone NATS at COMMSURL. Empty disables the
	// NATS bridge and the state event publisher.
	COMMSURL  string `envconfig:"COMMS_URL"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"servicebus"`
	// Peers to open a NATS connection to at startup.
	NatsPeers []string `envconfig:"NATS_PEERS"`
	// Global state event subject override (empty = bus.state).
	StateEventSubject string `envconfig:"STATE_EVENT_SUBJECT"`

	// Peers to dial over WebSocket at startup (http://host:port).
	ConnectURLs []string `envconfig:"CONNECT_URLS"`

	// Routing
	OutboundQueueSize       int  `envconfig:"OUTBOUND_QUEUE_SIZE" default:"256"`
	PruneRoutesOnDisconnect bool `envconfig:"PRUNE_ROUTES_ON_DISCONNECT" default:"false"`

	// Timeouts
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`

	// Package repository and launch file
	RepoDir    string `envconfig:"REPO_DIR"`
	LaunchFile string `envconfig:"LAUNCH_FILE"`

	// Database. Empty DATABASE_URL keeps service configs in memory.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP endpoints (HTTP_ADDR preferred, e.g. "0.0.0.0:3001")
	HTTPAddr           string        `envconfig:"HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"3001"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListenAddr returns HTTP_ADDR, or all interfaces on HTTP_PORT.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// ValidateForServe checks required config when running the runtime.
func (c *Config) ValidateForServe() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.OutboundQueueSize <= 0 {
		return fmt.Errorf("%s - OUTBOUND_QUEUE_SIZE must be positive", logPrefix)
	}
	if c.HTTPAddr == "" && (c.HTTPPort <= 0 || c.HTTPPort > 65535) {
		return fmt.Errorf("%s - HTTP_PORT %d is out of range", logPrefix, c.HTTPPort)
	}
	if len(c.NatsPeers) > 0 && c.COMMSURL == "" {
		return fmt.Errorf("%s - NATS_PEERS requires COMMS_URL", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, ensure-db).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
