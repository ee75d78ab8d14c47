package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	websocket "github.com/cmz2012/textsocket"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "textsocket.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":4000" || cfg.Greeting != websocket.DefaultGreeting || cfg.MetricsPath != "/metrics" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
addr = "127.0.0.1:9001"
greeting = "hello there"
echo = true
log_format = "json"
read_buffer_size = 512
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9001" || cfg.Greeting != "hello there" || !cfg.Echo {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.LogFormat != "json" || cfg.ReadBufferSize != 512 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.AllowOrigin != "http://localhost:3000" || cfg.LogLevel != "info" {
		t.Fatalf("undefined keys must keep defaults: %+v", cfg)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string]string{
		"long greeting":  `greeting = "` + strings.Repeat("g", websocket.MaxFramePayload+1) + `"`,
		"unknown key":    `port = 4000`,
		"bad log format": `log_format = "xml"`,
		"bad log level":  `log_level = "loud"`,
		"empty addr":     `addr = ""`,
		"buffer size":    `read_buffer_size = 0`,
		"metrics path":   `metrics_path = "metrics"`,
		"not toml":       `addr = `,
	}
	for name, body := range cases {
		if _, err := loadConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
