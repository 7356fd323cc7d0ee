package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/chaz8081/carrito/internal/control"
	"github.com/chaz8081/carrito/internal/permission"
)

// Config holds all application configuration.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Scan        ScanConfig        `yaml:"scan"`
	Reconnect   ReconnectConfig   `yaml:"reconnect"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Commands    map[string]string `yaml:"commands"` // command name -> wire word
	Input       InputConfig       `yaml:"input"`
	LogLevel    string            `yaml:"log_level"`
}

// DeviceConfig identifies the rover and the local adapter.
type DeviceConfig struct {
	Name               string `yaml:"name"`
	ServiceUUID        string `yaml:"service_uuid"`
	CharacteristicUUID string `yaml:"characteristic_uuid"`
	Adapter            string `yaml:"adapter"` // BlueZ adapter, Linux only
}

// ScanConfig holds scan settings.
type ScanConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ReconnectConfig holds automatic reconnect settings.
type ReconnectConfig struct {
	Enabled bool          `yaml:"enabled"`
	Delay   time.Duration `yaml:"delay"`
}

// PermissionsConfig selects the permission tier.
type PermissionsConfig struct {
	Tier string `yaml:"tier"` // "modern" or "legacy"
}

// InputConfig holds keyboard driving settings.
type InputConfig struct {
	Keyboard   bool    `yaml:"keyboard"`
	RepeatRate float64 `yaml:"repeat_rate"` // max repeated commands per second
	Console    bool    `yaml:"console"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "carrito")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	id := control.DefaultIdentity()
	return &Config{
		Device: DeviceConfig{
			Name:               id.Name,
			ServiceUUID:        id.ServiceUUID,
			CharacteristicUUID: id.CharacteristicUUID,
			Adapter:            "hci0",
		},
		Scan: ScanConfig{
			Timeout: control.DefaultScanTimeout,
		},
		Reconnect: ReconnectConfig{
			Enabled: true,
			Delay:   control.DefaultReconnectDelay,
		},
		Permissions: PermissionsConfig{
			Tier: "modern",
		},
		Input: InputConfig{
			Keyboard:   false,
			RepeatRate: 10,
			Console:    true,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Name == "" {
		return fmt.Errorf("device.name must not be empty")
	}
	if _, err := uuid.Parse(c.Device.ServiceUUID); err != nil {
		return fmt.Errorf("device.service_uuid %q: %w", c.Device.ServiceUUID, err)
	}
	if _, err := uuid.Parse(c.Device.CharacteristicUUID); err != nil {
		return fmt.Errorf("device.characteristic_uuid %q: %w", c.Device.CharacteristicUUID, err)
	}

	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("scan.timeout must be > 0")
	}
	if c.Reconnect.Enabled && c.Reconnect.Delay <= 0 {
		return fmt.Errorf("reconnect.delay must be > 0")
	}

	if _, err := permission.ParseTier(c.Permissions.Tier); err != nil {
		return fmt.Errorf("permissions.tier: %w", err)
	}

	if _, err := c.WireWords(); err != nil {
		return err
	}

	if c.Input.RepeatRate <= 0 {
		return fmt.Errorf("input.repeat_rate must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// WireWords converts the commands section into controller overrides.
func (c *Config) WireWords() (map[control.Command]string, error) {
	words := make(map[control.Command]string, len(c.Commands))
	for name, word := range c.Commands {
		cmd := control.Command(strings.ToLower(name))
		if !cmd.Valid() {
			return nil, fmt.Errorf("commands: unknown command %q", name)
		}
		if strings.TrimSpace(word) == "" {
			return nil, fmt.Errorf("commands.%s must not be empty", name)
		}
		words[cmd] = word
	}
	return words, nil
}

// ControllerOptions builds controller options from the config. Call
// Validate first.
func (c *Config) ControllerOptions() control.Options {
	opts := control.DefaultOptions()
	opts.Identity = control.Identity{
		Name:               c.Device.Name,
		ServiceUUID:        strings.ToLower(c.Device.ServiceUUID),
		CharacteristicUUID: strings.ToLower(c.Device.CharacteristicUUID),
	}
	opts.ScanTimeout = c.Scan.Timeout
	opts.ReconnectDelay = c.Reconnect.Delay
	opts.DisableReconnect = !c.Reconnect.Enabled
	opts.WireWords, _ = c.WireWords()
	return opts
}

const defaultHeader = `# carrito configuration
# Drives the MAKA rover over Bluetooth Low Energy.
`

// WriteDefault writes the default config to DefaultConfigPath. If a file
// already exists it is left untouched and WriteDefault returns ("", nil).
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if path == "config.yaml" {
		return "", errors.New("cannot determine home directory")
	}
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
