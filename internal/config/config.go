package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/yok-tottii/EzCapture/internal/audio"
	"github.com/yok-tottii/EzCapture/internal/capture"
	"github.com/yok-tottii/EzCapture/internal/logger"
)

// EnvPrefix is the prefix of environment overrides, e.g. EZCAPTURE_BUFFER_SIZE
const EnvPrefix = "EZCAPTURE"

// Hotkey trigger modes
const (
	ModePressToHold = "press-to-hold"
	ModeToggle      = "toggle"
)

// Config holds application configuration
type Config struct {
	Backend        string       `mapstructure:"backend" yaml:"backend" json:"backend"`
	BufferSize     int          `mapstructure:"buffer_size" yaml:"buffer_size" json:"buffer_size"`
	LatencyMs      int          `mapstructure:"latency_ms" yaml:"latency_ms" json:"latency_ms"`
	QueueSize      int          `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size"`
	OverflowPolicy string       `mapstructure:"overflow_policy" yaml:"overflow_policy" json:"overflow_policy"`
	DiscardOnStop  bool         `mapstructure:"discard_on_stop" yaml:"discard_on_stop" json:"discard_on_stop"`
	DeviceID       int          `mapstructure:"device_id" yaml:"device_id" json:"device_id"`
	LogLevel       string       `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogDir         string       `mapstructure:"log_dir" yaml:"log_dir" json:"log_dir"`
	HTTPPort       int          `mapstructure:"http_port" yaml:"http_port" json:"http_port"`
	Hotkey         HotkeyConfig `mapstructure:"hotkey" yaml:"hotkey" json:"hotkey"`
	mu             sync.RWMutex
}

// HotkeyConfig holds hotkey configuration
type HotkeyConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Ctrl    bool   `mapstructure:"ctrl" yaml:"ctrl" json:"ctrl"`
	Shift   bool   `mapstructure:"shift" yaml:"shift" json:"shift"`
	Alt     bool   `mapstructure:"alt" yaml:"alt" json:"alt"`
	Cmd     bool   `mapstructure:"cmd" yaml:"cmd" json:"cmd"`
	Key     string `mapstructure:"key" yaml:"key" json:"key"`
	Mode    string `mapstructure:"mode" yaml:"mode" json:"mode"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Backend:        "auto",
		BufferSize:     capture.DefaultBufferSize,
		LatencyMs:      int(audio.DefaultLatency.Milliseconds()),
		QueueSize:      capture.DefaultQueueSize,
		OverflowPolicy: capture.DropNewest.String(),
		DeviceID:       -1,
		LogLevel:       "info",
		HTTPPort:       18766,
		Hotkey: HotkeyConfig{
			Enabled: true,
			Ctrl:    true,
			Alt:     true,
			Key:     "Space",
			Mode:    ModePressToHold,
		},
	}
}

// setDefaults registers every key so that env overrides apply on Unmarshal
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("buffer_size", d.BufferSize)
	v.SetDefault("latency_ms", d.LatencyMs)
	v.SetDefault("queue_size", d.QueueSize)
	v.SetDefault("overflow_policy", d.OverflowPolicy)
	v.SetDefault("discard_on_stop", d.DiscardOnStop)
	v.SetDefault("device_id", d.DeviceID)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_dir", d.LogDir)
	v.SetDefault("http_port", d.HTTPPort)
	v.SetDefault("hotkey.enabled", d.Hotkey.Enabled)
	v.SetDefault("hotkey.ctrl", d.Hotkey.Ctrl)
	v.SetDefault("hotkey.shift", d.Hotkey.Shift)
	v.SetDefault("hotkey.alt", d.Hotkey.Alt)
	v.SetDefault("hotkey.cmd", d.Hotkey.Cmd)
	v.SetDefault("hotkey.key", d.Hotkey.Key)
	v.SetDefault("hotkey.mode", d.Hotkey.Mode)
}

// Load loads configuration from the specified path. A missing file yields
// the defaults; EZCAPTURE_* environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Hotkey.Key == "" {
		cfg.Hotkey.Key = "Space"
	}

	return cfg, nil
}

// Save saves configuration to the specified path as YAML
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		homeDir, _ := os.UserHomeDir()
		dir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(dir, "EzCapture", "config.yaml")
}

// SetBufferSize updates the chunk capacity
func (c *Config) SetBufferSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BufferSize = n
}

// SetDeviceID updates the selected input device
func (c *Config) SetDeviceID(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DeviceID = id
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Backend:        c.Backend,
		BufferSize:     c.BufferSize,
		LatencyMs:      c.LatencyMs,
		QueueSize:      c.QueueSize,
		OverflowPolicy: c.OverflowPolicy,
		DiscardOnStop:  c.DiscardOnStop,
		DeviceID:       c.DeviceID,
		LogLevel:       c.LogLevel,
		LogDir:         c.LogDir,
		HTTPPort:       c.HTTPPort,
		Hotkey:         c.Hotkey,
	}
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// GetLogDir returns the expanded log directory, or the per-user default
func (c *Config) GetLogDir() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.LogDir == "" {
		return logger.DefaultLogDir(), nil
	}
	return ExpandPath(c.LogDir)
}

// Validate validates all configuration fields
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !audio.IsValidBackend(c.Backend) {
		return fmt.Errorf("invalid backend: %s (must be 'auto', 'wasapi', 'portaudio' or 'malgo')", c.Backend)
	}

	if c.BufferSize < 1 || c.BufferSize > capture.MaxBufferSize {
		return fmt.Errorf("invalid buffer_size: %d (must be between 1 and %d bytes)", c.BufferSize, capture.MaxBufferSize)
	}

	if c.LatencyMs <= 0 || c.LatencyMs > 1000 {
		return fmt.Errorf("invalid latency_ms: %d (must be between 1 and 1000)", c.LatencyMs)
	}

	if c.QueueSize <= 0 || c.QueueSize > 4096 {
		return fmt.Errorf("invalid queue_size: %d (must be between 1 and 4096)", c.QueueSize)
	}

	if _, err := capture.ParseOverflowPolicy(c.OverflowPolicy); err != nil {
		return fmt.Errorf("invalid overflow_policy: %w", err)
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}

	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}

	if c.Hotkey.Mode != ModePressToHold && c.Hotkey.Mode != ModeToggle {
		return fmt.Errorf("invalid hotkey mode: %s (must be '%s' or '%s')", c.Hotkey.Mode, ModePressToHold, ModeToggle)
	}

	if c.Hotkey.Enabled && c.Hotkey.Key == "" {
		return fmt.Errorf("hotkey key cannot be empty")
	}

	return nil
}
