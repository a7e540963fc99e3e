// Package config loads and validates this connector's YAML
// configuration: ${ENV} expansion before unmarshal, tilde expansion on
// path fields, and a Validate pass run once at load time. No field
// carries a hard-coded default in its zero value — an empty string or
// zero duration means "not configured", caught by Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML schema.
type Config struct {
	Version  int            `yaml:"version"`
	General  General        `yaml:"general"`
	Network  Network        `yaml:"network"`
	Retry    Retry          `yaml:"retry"`
	Firmware FirmwareConfig `yaml:"firmware"`
	Logging  Logging        `yaml:"logging"`
}

// General holds the repository/store roots and size ceilings.
type General struct {
	DataRoot             string `yaml:"data_root"`  // repository database directory
	StoreRoot            string `yaml:"store_root"` // materialized file directory
	MaxFileSizeBytes     uint64 `yaml:"max_file_size_bytes"`
	MaxChunkSizeBytes    uint64 `yaml:"max_chunk_size_bytes"`
	MaxSessionsPerDevice int    `yaml:"max_sessions_per_device"` // 0 means filemanagement's own default (1)
}

// Network configures the URL downloader's HTTP client.
type Network struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
	TLSVerify      bool   `yaml:"tls_verify"`
	MaxRedirects   int    `yaml:"max_redirects"`
}

// Retry holds chunk-retry and backoff settings. They are validated but
// not read by any other package: the platform-upload retry ceiling is
// the fixed maxRetryCount (3) in internal/filetransfer, and the URL
// downloader makes a single attempt with no backoff.
type Retry struct {
	MaxChunkRetries int `yaml:"max_chunk_retries"`
	BackoffMinMS    int `yaml:"backoff_min_ms"`
	BackoffMaxMS    int `yaml:"backoff_max_ms"`
}

// FirmwareConfig locates the version marker and names this build.
type FirmwareConfig struct {
	MarkerPath     string `yaml:"marker_path"`
	CurrentVersion string `yaml:"current_version"`
	InstallerPath  string `yaml:"installer_path"`
}

// Logging configures the leveled logger.
type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // human|json
}

// NetworkTimeout returns Network.TimeoutSeconds as a time.Duration.
func (n Network) NetworkTimeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// Load reads, expands, and validates the config at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	expanded, err := expandTilde(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	raw = []byte(os.ExpandEnv(string(raw)))

	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := c.expandPaths(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) expandPaths() error {
	var err error
	if c.General.DataRoot, err = expandTilde(c.General.DataRoot); err != nil {
		return err
	}
	if c.General.StoreRoot, err = expandTilde(c.General.StoreRoot); err != nil {
		return err
	}
	if c.Firmware.MarkerPath, err = expandTilde(c.Firmware.MarkerPath); err != nil {
		return err
	}
	if c.Firmware.InstallerPath, err = expandTilde(c.Firmware.InstallerPath); err != nil {
		return err
	}
	return nil
}

// Validate rejects a config with missing required fields or
// out-of-range values. Called once by Load.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d", c.Version)
	}
	if c.General.DataRoot == "" {
		return errors.New("general.data_root is required")
	}
	if c.General.StoreRoot == "" {
		return errors.New("general.store_root is required")
	}
	if c.Retry.MaxChunkRetries < 0 {
		return errors.New("retry.max_chunk_retries must be >= 0")
	}
	if c.Firmware.CurrentVersion == "" {
		return errors.New("firmware.current_version is required")
	}
	if c.Firmware.MarkerPath == "" {
		return errors.New("firmware.marker_path is required")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level invalid: %s", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "human", "json":
	default:
		return fmt.Errorf("logging.format invalid: %s", c.Logging.Format)
	}
	return nil
}

func expandTilde(p string) (string, error) {
	if p == "" || p[0] != '~' {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if p == "~" {
		return home, nil
	}
	return filepath.Join(home, p[2:]), nil
}
