package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the config file inside the workspace directory.
const FileName = "tasktimer.yml"

// Config models tasktimer.yml.
type Config struct {
	Timer  TimerConfig  `yaml:"timer"`
	Notify NotifyConfig `yaml:"notify"`
	Sync   SyncConfig   `yaml:"sync"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

type TimerConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	TickInterval      time.Duration `yaml:"tick_interval"`
}

type NotifyConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Debounce       time.Duration `yaml:"debounce"`
	LeakNudgeAfter time.Duration `yaml:"leak_nudge_after"`
	LeakNudgeEvery time.Duration `yaml:"leak_nudge_every"`
}

// SyncConfig points at the external workspace mirror. An empty URL disables it.
type SyncConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	BasePath        string        `yaml:"base_path"`
	JWTSecret       string        `yaml:"jwt_secret"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".tasktimer", FileName)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns the default config as YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads the workspace config. A missing file yields the defaults.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses data over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Overlay applies every key set in v (flags, TASKTIMER_* env) on top of c
// and validates the result.
func (c *Config) Overlay(v *viper.Viper) error {
	durations := map[string]*time.Duration{
		"timer.reconcile_interval": &c.Timer.ReconcileInterval,
		"timer.tick_interval":      &c.Timer.TickInterval,
		"notify.debounce":          &c.Notify.Debounce,
		"notify.leak_nudge_after":  &c.Notify.LeakNudgeAfter,
		"notify.leak_nudge_every":  &c.Notify.LeakNudgeEvery,
		"sync.timeout":             &c.Sync.Timeout,
		"server.shutdown_timeout":  &c.Server.ShutdownTimeout,
	}
	for key, dst := range durations {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}
	strs := map[string]*string{
		"sync.url":          &c.Sync.URL,
		"sync.token":        &c.Sync.Token,
		"server.addr":       &c.Server.Addr,
		"server.base_path":  &c.Server.BasePath,
		"server.jwt_secret": &c.Server.JWTSecret,
		"log.level":         &c.Log.Level,
		"log.file":          &c.Log.File,
	}
	for key, dst := range strs {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	if v.IsSet("notify.enabled") {
		c.Notify.Enabled = v.GetBool("notify.enabled")
	}
	return c.Validate()
}

// Keys lists every overridable key, for binding env vars.
func Keys() []string {
	return []string{
		"timer.reconcile_interval", "timer.tick_interval",
		"notify.enabled", "notify.debounce", "notify.leak_nudge_after", "notify.leak_nudge_every",
		"sync.url", "sync.token", "sync.timeout",
		"server.addr", "server.base_path", "server.jwt_secret", "server.shutdown_timeout",
		"log.level", "log.file",
	}
}

const defaultTemplate = `timer:
  reconcile_interval: 5s
  tick_interval: 1s

notify:
  enabled: true
  debounce: 5s
  leak_nudge_after: 1h
  leak_nudge_every: 5m

sync:
  url: ""
  token: ""
  timeout: 10s

server:
  addr: 127.0.0.1:7788
  base_path: /v1
  jwt_secret: ""
  shutdown_timeout: 10s

log:
  level: info
  file: ""
`
