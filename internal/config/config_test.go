package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("tree:\n  url: http://tree.local:5000/\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Tree.URL != "http://tree.local:5000" {
		t.Errorf("url = %q, trailing slash should be trimmed", cfg.Tree.URL)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"tree.timeout", cfg.Tree.Timeout.Duration(), 10 * time.Second},
		{"tree.rate_limit_rps", cfg.Tree.RateLimitRPS, 5.0},
		{"poll.interval", cfg.Poll.Interval.Duration(), 5 * time.Second},
		{"surface.host", cfg.Surface.Host, "127.0.0.1"},
		{"surface.port", cfg.Surface.Port, 8080},
		{"surface.enabled", cfg.Surface.IsEnabled(), true},
		{"display.clock", cfg.Display.Clock, "24h"},
		{"ledger.enabled", cfg.Ledger.IsEnabled(), true},
		{"ledger.retention_period", cfg.Ledger.RetentionPeriod.Duration(), 30 * 24 * time.Hour},
		{"log.level", cfg.Log.Level, "info"},
		{"eventbus.workers", cfg.EventBus.GetWorkers(), 4},
		{"eventbus.queue_size", cfg.EventBus.GetQueueSize(), 100},
		{"shutdown_timeout", cfg.ShutdownTimeout.Duration(), 5 * time.Second},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if c.got != c.want {
				t.Errorf("got %v, want %v", c.got, c.want)
			}
		})
	}
}

func TestParseFull(t *testing.T) {
	raw := `
tree:
  url: https://tree.example
  timeout: 3s
  rate_limit_rps: 2
poll:
  interval: 1500ms
surface:
  enabled: false
  port: 9000
  allowed_origins: ["http://panel.local:3000"]
display:
  clock: 12h
  timezone: Europe/Berlin
ledger:
  enabled: false
  retention_period: 72h
log:
  level: debug
  json: true
script: scripts/main.lua
`
	cfg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Surface.IsEnabled() || cfg.Ledger.IsEnabled() {
		t.Error("explicit false should disable surface and ledger")
	}
	if cfg.Poll.Interval.Duration() != 1500*time.Millisecond {
		t.Errorf("poll = %v", cfg.Poll.Interval.Duration())
	}
	loc, err := cfg.Display.Location()
	if err != nil || loc.String() != "Europe/Berlin" {
		t.Errorf("location = %v, %v", loc, err)
	}
	if len(cfg.Surface.AllowedOrigins) != 1 || cfg.Surface.AllowedOrigins[0] != "http://panel.local:3000" {
		t.Errorf("allowed_origins = %v", cfg.Surface.AllowedOrigins)
	}
	if !cfg.Log.JSON || cfg.Script != "scripts/main.lua" {
		t.Errorf("log/script = %+v %q", cfg.Log, cfg.Script)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"missing url", "poll:\n  interval: 1s\n", "tree.url is required"},
		{"bad scheme", "tree:\n  url: tree.local\n", "must start with http"},
		{"bad clock", "tree:\n  url: http://x\ndisplay:\n  clock: 36h\n", "display.clock"},
		{"bad timezone", "tree:\n  url: http://x\ndisplay:\n  timezone: Mars/Olympus\n", "display.timezone"},
		{"bad duration", "tree:\n  url: http://x\npoll:\n  interval: soon\n", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TREE_URL", "http://10.0.0.5")

	tests := []struct {
		input string
		want  string
	}{
		{"url: ${TREE_URL}", "url: http://10.0.0.5"},
		{"url: ${TREE_URL:http://fallback}", "url: http://10.0.0.5"},
		{"port: ${TREE_PORT_UNSET:8080}", "port: 8080"},
		{"x: ${TREE_UNSET}", "x: "},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.input); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TREE_URL", "http://192.168.1.20:5000")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("tree:\n  url: ${TREE_URL}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tree.URL != "http://192.168.1.20:5000" {
		t.Errorf("url = %q", cfg.Tree.URL)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}
