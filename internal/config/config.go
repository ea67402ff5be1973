// Package config loads wcommd's daemon configuration: an optional YAML
// file merged under CLI flags, the way haasonsaas-vouch/pkg/config loads
// AgentConfig under flag.Parse overrides. Durations are plain integer
// seconds in the YAML file (request_timeout_s-style), not time.Duration
// strings, matching that teacher's convention.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config bundles every tunable in §6's CLI surface plus the two
// operation-level deadlines §5 names. CLI flags always win over the
// YAML file; Merge applies that precedence.
type Config struct {
	Interface        string `yaml:"interface"`
	BLESecret        string `yaml:"ble_secret"`
	EnableBLE        bool   `yaml:"enable_ble"`
	EnableUnixSocket bool   `yaml:"enable_unix_socket"`
	SocketPath       string `yaml:"socket_path"`
	SocketMode       uint32 `yaml:"socket_mode"`

	ScanTimeoutS    int `yaml:"scan_timeout_s"`
	ConnectTimeoutS int `yaml:"connect_timeout_s"`
	ShutdownGraceS  int `yaml:"shutdown_grace_s"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig controls the zerolog sink, the way
// haasonsaas-vouch/pkg/config.LoggingConfig does for the agent.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration a freshly provisioned device should
// boot with absent any flags or config file: BLE enabled, the Unix
// socket disabled (the local socket is the operator escape hatch, not
// the default commissioning path), and the §5 default timeouts.
func Default() *Config {
	return &Config{
		Interface:        "wlan0",
		EnableBLE:        true,
		EnableUnixSocket: false,
		SocketPath:       "/run/wcommd.sock",
		SocketMode:       0660,
		ScanTimeoutS:     30,
		ConnectTimeoutS:  60,
		ShutdownGraceS:   10,
		Logging:          LoggingConfig{Level: "info", JSON: false},
	}
}

// Load reads path (if non-empty and present) over Default(), the way
// vouch's config.Load tolerates a missing file rather than failing
// startup on it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate enforces the minimal invariants main needs before wiring
// anything: a BLE secret is required whenever the BLE transport is
// enabled, since §4.2 authorization has nothing to hash against
// otherwise.
func (c *Config) Validate() error {
	if c.Interface == "" {
		return fmt.Errorf("config: interface must not be empty")
	}
	if c.EnableBLE && c.BLESecret == "" {
		return fmt.Errorf("config: ble-secret is required when BLE is enabled")
	}
	if c.EnableUnixSocket && c.SocketPath == "" {
		return fmt.Errorf("config: socket-path is required when the unix socket is enabled")
	}
	if !c.EnableBLE && !c.EnableUnixSocket {
		return fmt.Errorf("config: at least one of --enable-ble or --enable-unix-socket must be set")
	}
	if c.ScanTimeoutS <= 0 {
		return fmt.Errorf("config: scan-timeout-s must be positive")
	}
	if c.ConnectTimeoutS <= 0 {
		return fmt.Errorf("config: connect-timeout-s must be positive")
	}
	if c.ShutdownGraceS <= 0 {
		return fmt.Errorf("config: shutdown-grace-s must be positive")
	}
	return nil
}
