package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yok-tottii/EzCapture/internal/capture"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config == nil {
		t.Fatal("Expected default config to be created")
	}

	if config.Backend != "auto" {
		t.Errorf("Expected Backend 'auto', got '%s'", config.Backend)
	}

	if config.BufferSize != capture.DefaultBufferSize {
		t.Errorf("Expected BufferSize %d, got %d", capture.DefaultBufferSize, config.BufferSize)
	}

	if config.LatencyMs != 30 {
		t.Errorf("Expected LatencyMs 30, got %d", config.LatencyMs)
	}

	if config.OverflowPolicy != "drop-newest" {
		t.Errorf("Expected OverflowPolicy 'drop-newest', got '%s'", config.OverflowPolicy)
	}

	if config.DeviceID != -1 {
		t.Errorf("Expected DeviceID -1, got %d", config.DeviceID)
	}

	if config.HTTPPort != 18766 {
		t.Errorf("Expected HTTPPort 18766, got %d", config.HTTPPort)
	}

	if !config.Hotkey.Ctrl || !config.Hotkey.Alt {
		t.Error("Expected Ctrl+Alt hotkey")
	}

	if config.Hotkey.Key != "Space" {
		t.Errorf("Expected Key to be 'Space', got '%s'", config.Hotkey.Key)
	}

	if config.Hotkey.Mode != ModePressToHold {
		t.Errorf("Expected Mode '%s', got '%s'", ModePressToHold, config.Hotkey.Mode)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	config := DefaultConfig()
	config.Backend = "portaudio"
	config.BufferSize = 4096
	config.OverflowPolicy = "block"
	config.Hotkey.Mode = ModeToggle
	config.Hotkey.Shift = true

	if err := config.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
	if !strings.Contains(string(data), "buffer_size: 4096") {
		t.Errorf("Expected YAML key buffer_size, got:\n%s", data)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Backend != "portaudio" {
		t.Errorf("Expected Backend 'portaudio', got '%s'", loaded.Backend)
	}
	if loaded.BufferSize != 4096 {
		t.Errorf("Expected BufferSize 4096, got %d", loaded.BufferSize)
	}
	if loaded.OverflowPolicy != "block" {
		t.Errorf("Expected OverflowPolicy 'block', got '%s'", loaded.OverflowPolicy)
	}
	if loaded.Hotkey.Mode != ModeToggle || !loaded.Hotkey.Shift {
		t.Errorf("Hotkey not restored: %+v", loaded.Hotkey)
	}
}

func TestLoadNonexistent(t *testing.T) {
	config, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected no error when loading nonexistent file, got: %v", err)
	}

	defaultConfig := DefaultConfig()
	if config.BufferSize != defaultConfig.BufferSize {
		t.Errorf("Expected BufferSize %d, got %d", defaultConfig.BufferSize, config.BufferSize)
	}
	if config.Hotkey.Key != defaultConfig.Hotkey.Key {
		t.Errorf("Expected Key '%s', got '%s'", defaultConfig.Hotkey.Key, config.Hotkey.Key)
	}
}

func TestLoadPartialFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("buffer_size: 2048\nhotkey:\n  key: F9\n"), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.BufferSize != 2048 {
		t.Errorf("Expected BufferSize 2048, got %d", config.BufferSize)
	}
	if config.Hotkey.Key != "F9" {
		t.Errorf("Expected Key 'F9', got '%s'", config.Hotkey.Key)
	}
	// unset keys keep their defaults
	if config.QueueSize != capture.DefaultQueueSize || !config.Hotkey.Ctrl {
		t.Errorf("Expected defaults for unset keys, got %+v", config)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("buffer_size: [unclosed\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("EZCAPTURE_BUFFER_SIZE", "8192")
	t.Setenv("EZCAPTURE_BACKEND", "malgo")
	t.Setenv("EZCAPTURE_HOTKEY_MODE", "toggle")
	t.Setenv("EZCAPTURE_DISCARD_ON_STOP", "true")

	config, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.BufferSize != 8192 {
		t.Errorf("Expected BufferSize 8192 from env, got %d", config.BufferSize)
	}
	if config.Backend != "malgo" {
		t.Errorf("Expected Backend 'malgo' from env, got '%s'", config.Backend)
	}
	if config.Hotkey.Mode != ModeToggle {
		t.Errorf("Expected Mode 'toggle' from env, got '%s'", config.Hotkey.Mode)
	}
	if !config.DiscardOnStop {
		t.Error("Expected DiscardOnStop from env")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"max buffer", func(c *Config) { c.BufferSize = capture.MaxBufferSize }, false},
		{"zero buffer", func(c *Config) { c.BufferSize = 0 }, true},
		{"buffer too large", func(c *Config) { c.BufferSize = capture.MaxBufferSize + 1 }, true},
		{"unknown backend", func(c *Config) { c.Backend = "alsa" }, true},
		{"zero latency", func(c *Config) { c.LatencyMs = 0 }, true},
		{"zero queue", func(c *Config) { c.QueueSize = 0 }, true},
		{"bad policy", func(c *Config) { c.OverflowPolicy = "ring" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, true},
		{"bad port", func(c *Config) { c.HTTPPort = 70000 }, true},
		{"bad mode", func(c *Config) { c.Hotkey.Mode = "tap" }, true},
		{"empty key", func(c *Config) { c.Hotkey.Key = "" }, true},
		{"empty key disabled", func(c *Config) { c.Hotkey.Key = ""; c.Hotkey.Enabled = false }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClone(t *testing.T) {
	original := DefaultConfig()
	original.BufferSize = 1000
	original.Hotkey.Key = "F8"
	original.DiscardOnStop = true

	clone := original.Clone()
	if clone.BufferSize != 1000 || clone.Hotkey.Key != "F8" || !clone.DiscardOnStop {
		t.Errorf("Clone did not copy fields: %+v", clone)
	}

	clone.SetBufferSize(2000)
	clone.Hotkey.Key = "F9"
	if original.BufferSize != 1000 || original.Hotkey.Key != "F8" {
		t.Error("Modifying clone should not affect original")
	}
}

func TestGetConfigPath(t *testing.T) {
	path := GetConfigPath()

	if path == "" {
		t.Fatal("Expected config path to be set")
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected config.yaml, got %s", filepath.Base(path))
	}
	if filepath.Base(filepath.Dir(path)) != "EzCapture" {
		t.Errorf("Expected EzCapture directory, got %s", path)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("No home directory: %v", err)
	}

	got, err := ExpandPath("~/logs")
	if err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	if got != filepath.Join(home, "logs") {
		t.Errorf("Expected %s, got %s", filepath.Join(home, "logs"), got)
	}

	if got, _ := ExpandPath(""); got != "" {
		t.Errorf("Expected empty path, got %s", got)
	}

	got, err = ExpandPath("relative")
	if err != nil || !filepath.IsAbs(got) {
		t.Errorf("Expected absolute path, got %s (%v)", got, err)
	}
}

func TestGetLogDir(t *testing.T) {
	config := DefaultConfig()
	dir, err := config.GetLogDir()
	if err != nil || dir == "" {
		t.Errorf("Expected default log dir, got %q (%v)", dir, err)
	}

	tmp := t.TempDir()
	config.LogDir = tmp
	if dir, _ := config.GetLogDir(); dir != tmp {
		t.Errorf("Expected %s, got %s", tmp, dir)
	}
}
