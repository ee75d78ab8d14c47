package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	websocket "github.com/cmz2012/textsocket"
)

type Config struct {
	Addr           string
	Greeting       string
	AllowOrigin    string
	ReadBufferSize int
	Echo           bool
	LogLevel       string
	LogFormat      string
	MetricsPath    string
}

type fileConfig struct {
	Addr           string `toml:"addr"`
	Greeting       string `toml:"greeting"`
	AllowOrigin    string `toml:"allow_origin"`
	ReadBufferSize int    `toml:"read_buffer_size"`
	Echo           bool   `toml:"echo"`
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
	MetricsPath    string `toml:"metrics_path"`
}

func defaultConfig() Config {
	return Config{
		Addr:           ":4000",
		Greeting:       websocket.DefaultGreeting,
		AllowOrigin:    "http://localhost:3000",
		ReadBufferSize: websocket.DefaultReadBufferSize,
		LogLevel:       "info",
		LogFormat:      "text",
		MetricsPath:    "/metrics",
	}
}

// loadConfig applies the keys defined in the TOML file at path on top of
// the defaults. An empty path yields the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("greeting") {
		cfg.Greeting = raw.Greeting
	}
	if meta.IsDefined("allow_origin") {
		cfg.AllowOrigin = strings.TrimSpace(raw.AllowOrigin)
	}
	if meta.IsDefined("read_buffer_size") {
		cfg.ReadBufferSize = raw.ReadBufferSize
	}
	if meta.IsDefined("echo") {
		cfg.Echo = raw.Echo
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}
	if meta.IsDefined("metrics_path") {
		cfg.MetricsPath = strings.TrimSpace(raw.MetricsPath)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr is required")
	}
	if len(c.Greeting) > websocket.MaxFramePayload {
		return fmt.Errorf("config: greeting is %d bytes, limit %d", len(c.Greeting), websocket.MaxFramePayload)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("config: read_buffer_size must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: log_format must be text or json, got %q", c.LogFormat)
	}
	if c.MetricsPath != "" && !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("config: metrics_path must start with /")
	}
	return nil
}

func setupLogging(c Config) {
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
