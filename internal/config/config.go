package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Tree            TreeConfig     `yaml:"tree"`
	Poll            PollConfig     `yaml:"poll"`
	Surface         SurfaceConfig  `yaml:"surface"`
	Display         DisplayConfig  `yaml:"display"`
	Database        DatabaseConfig `yaml:"database"`
	Log             LogConfig      `yaml:"log"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	Script          string         `yaml:"script"`           // Optional Lua script loaded at startup
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// TreeConfig contains tree server connection settings
type TreeConfig struct {
	URL          string   `yaml:"url"`
	Timeout      Duration `yaml:"timeout"`        // Per-request timeout
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Outbound command rate
}

// PollConfig contains state polling settings
type PollConfig struct {
	Interval Duration `yaml:"interval"`
}

// SurfaceConfig contains the local control surface settings
type SurfaceConfig struct {
	Enabled        *bool    `yaml:"enabled"` // default: true
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // extra WebSocket origins besides same-host
}

// IsEnabled returns whether the surface is enabled (default: true)
func (c *SurfaceConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// DisplayConfig controls how times are rendered
type DisplayConfig struct {
	Clock    string `yaml:"clock"`    // "24h" or "12h"
	Timezone string `yaml:"timezone"` // IANA name, empty = local
}

// Location loads the configured timezone.
func (c *DisplayConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"`
}

// LedgerConfig contains command ledger settings
type LedgerConfig struct {
	Enabled         *bool    `yaml:"enabled"` // default: true
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionPeriod Duration `yaml:"retention_period"`
}

// IsEnabled returns whether the ledger is enabled (default: true)
func (c *LedgerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML, expanding environment variables
// and applying defaults.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./treeremote.sqlite"
	}

	// Tree defaults
	cfg.Tree.URL = strings.TrimRight(cfg.Tree.URL, "/")
	if cfg.Tree.Timeout == 0 {
		cfg.Tree.Timeout = Duration(10 * time.Second)
	}
	if cfg.Tree.RateLimitRPS == 0 {
		cfg.Tree.RateLimitRPS = 5.0
	}

	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = Duration(5 * time.Second)
	}

	// Surface defaults
	if cfg.Surface.Host == "" {
		cfg.Surface.Host = "127.0.0.1"
	}
	if cfg.Surface.Port == 0 {
		cfg.Surface.Port = 8080
	}

	if cfg.Display.Clock == "" {
		cfg.Display.Clock = "24h"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionPeriod == 0 {
		cfg.Ledger.RetentionPeriod = Duration(30 * 24 * time.Hour)
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate reports the first invalid setting.
func (cfg *Config) Validate() error {
	if cfg.Tree.URL == "" {
		return errors.New("tree.url is required")
	}
	if !strings.HasPrefix(cfg.Tree.URL, "http://") && !strings.HasPrefix(cfg.Tree.URL, "https://") {
		return fmt.Errorf("tree.url must start with http:// or https://, got %q", cfg.Tree.URL)
	}
	if cfg.Tree.RateLimitRPS < 0 {
		return fmt.Errorf("tree.rate_limit_rps must be positive, got %v", cfg.Tree.RateLimitRPS)
	}
	if cfg.Poll.Interval.Duration() < 0 {
		return fmt.Errorf("poll.interval must be positive, got %v", cfg.Poll.Interval.Duration())
	}
	switch strings.ToLower(cfg.Display.Clock) {
	case "24h", "12h":
	default:
		return fmt.Errorf("display.clock must be 24h or 12h, got %q", cfg.Display.Clock)
	}
	if _, err := cfg.Display.Location(); err != nil {
		return fmt.Errorf("display.timezone: %w", err)
	}
	if cfg.Surface.Port < 0 || cfg.Surface.Port > 65535 {
		return fmt.Errorf("surface.port out of range: %d", cfg.Surface.Port)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
