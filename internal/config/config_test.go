package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points every source at the test and clears inherited env.
func isolate(t *testing.T) string {
	t.Helper()
	for _, k := range []string{
		"JARVIS_API_URL", "EXPO_PUBLIC_API_URL", "JARVIS_RECORDER_SOCKET",
		"JARVIS_RECONNECT_DELAY", "JARVIS_LEGACY_CHAT", "JARVIS_LOG_FILE",
		"JARVIS_LOG_LEVEL", "JARVIS_USER", "JARVIS_DEVSERVER_ADDR",
	} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("JARVIS_CONFIG", path)
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIURL != "http://localhost:8000" {
		t.Errorf("APIURL = %q, want %q", cfg.APIURL, "http://localhost:8000")
	}
	if cfg.ReconnectDelay != 3*time.Second {
		t.Errorf("ReconnectDelay = %v, want 3s", cfg.ReconnectDelay)
	}
	if cfg.LegacyChat {
		t.Error("LegacyChat should default to false")
	}
	if !strings.HasSuffix(cfg.RecorderSocket, "jarvis-recorder.sock") {
		t.Errorf("RecorderSocket = %q", cfg.RecorderSocket)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := isolate(t)
	yaml := "api_url: https://finance.example.com\nreconnect_delay: 5s\nuser_name: Ana\nlegacy_chat: true\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JARVIS_USER", "Luis")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIURL != "https://finance.example.com" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Errorf("ReconnectDelay = %v, want 5s", cfg.ReconnectDelay)
	}
	if !cfg.LegacyChat {
		t.Error("LegacyChat = false, want true from file")
	}
	if cfg.UserName != "Luis" {
		t.Errorf("UserName = %q, want env to win", cfg.UserName)
	}
}

func TestLoadExpoFallback(t *testing.T) {
	isolate(t)
	t.Setenv("EXPO_PUBLIC_API_URL", "http://192.168.1.20:8000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIURL != "http://192.168.1.20:8000" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}

	t.Setenv("JARVIS_API_URL", "http://10.0.0.1:9000")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIURL != "http://10.0.0.1:9000" {
		t.Errorf("APIURL = %q, want JARVIS_API_URL to win", cfg.APIURL)
	}
}

func TestReconnectDelayEnv(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Duration
		wantErr bool
	}{
		{"1500", 1500 * time.Millisecond, false},
		{"2s", 2 * time.Second, false},
		{"soon", 0, true},
		{"0", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			isolate(t)
			t.Setenv("JARVIS_RECONNECT_DELAY", tt.value)
			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && cfg.ReconnectDelay != tt.want {
				t.Errorf("ReconnectDelay = %v, want %v", cfg.ReconnectDelay, tt.want)
			}
		})
	}
}

func TestLoadBadFile(t *testing.T) {
	path := isolate(t)
	if err := os.WriteFile(path, []byte("api_url: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"ftp scheme", func(c *Config) { c.APIURL = "ftp://x" }, true},
		{"no host", func(c *Config) { c.APIURL = "http://" }, true},
		{"negative delay", func(c *Config) { c.ReconnectDelay = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWebsocketURL(t *testing.T) {
	cfg := Default()
	cfg.APIURL = "https://finance.example.com"
	got, err := cfg.WebsocketURL()
	if err != nil {
		t.Fatalf("WebsocketURL: %v", err)
	}
	if got != "wss://finance.example.com/ws" {
		t.Errorf("WebsocketURL() = %q, want %q", got, "wss://finance.example.com/ws")
	}
}
