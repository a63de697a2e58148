// Package config loads client settings from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/daemon"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/live"
)

type Config struct {
	APIURL         string        `yaml:"api_url"`
	RecorderSocket string        `yaml:"recorder_socket"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	LegacyChat     bool          `yaml:"legacy_chat"`
	LogFile        string        `yaml:"log_file"`
	LogLevel       string        `yaml:"log_level"`
	UserName       string        `yaml:"user_name"`
	DevServerAddr  string        `yaml:"devserver_addr"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		APIURL:         "http://localhost:8000",
		RecorderSocket: daemon.SocketPath(),
		ReconnectDelay: live.DefaultReconnectDelay,
		LogFile:        filepath.Join(os.TempDir(), "jarvis.log"),
		LogLevel:       "info",
		DevServerAddr:  ":8000",
	}
}

// Path returns the config file location: JARVIS_CONFIG if set, otherwise
// jarvis/config.yaml under the user config directory.
func Path() string {
	if p := os.Getenv("JARVIS_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "jarvis", "config.yaml")
}

// Load builds the config and validates it. A missing file is not an error.
func Load() (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(Path()); err != nil {
		return nil, err
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.APIURL = getEnv("JARVIS_API_URL", getEnv("EXPO_PUBLIC_API_URL", c.APIURL))
	c.RecorderSocket = getEnv("JARVIS_RECORDER_SOCKET", c.RecorderSocket)
	c.LegacyChat = getBoolEnv("JARVIS_LEGACY_CHAT", c.LegacyChat)
	c.LogFile = getEnv("JARVIS_LOG_FILE", c.LogFile)
	c.LogLevel = getEnv("JARVIS_LOG_LEVEL", c.LogLevel)
	c.UserName = getEnv("JARVIS_USER", c.UserName)
	c.DevServerAddr = getEnv("JARVIS_DEVSERVER_ADDR", c.DevServerAddr)

	if v := os.Getenv("JARVIS_RECONNECT_DELAY"); v != "" {
		d, err := parseDelay(v)
		if err != nil {
			return fmt.Errorf("JARVIS_RECONNECT_DELAY: %w", err)
		}
		c.ReconnectDelay = d
	}
	return nil
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api url %q: scheme must be http or https", c.APIURL)
	}
	if u.Host == "" {
		return fmt.Errorf("api url %q: missing host", c.APIURL)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive, got %v", c.ReconnectDelay)
	}
	return nil
}

// WebsocketURL returns the push endpoint for APIURL.
func (c *Config) WebsocketURL() (string, error) {
	return live.WebsocketURL(c.APIURL)
}

// parseDelay accepts Go durations ("3s") and bare milliseconds ("3000").
func parseDelay(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
