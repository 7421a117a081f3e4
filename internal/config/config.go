// Package config manages simrelease operator configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	ConfigDirName   = ".simrelease"
	ConfigFileName  = "config.json"
	DefaultLogLevel = "info"

	DefaultAuthURL        = "http://localhost:5012/auth/login"
	DefaultProvisionURL   = "http://localhost:5012/sim/creation-liberation"
	DefaultExportFileName = "auc_sim_logs.txt"
)

// AccessRules overrides the built-in role tables. Empty slices fall back to defaults.
type AccessRules struct {
	ProdOnly []string `json:"prod_only,omitempty"`
	UATOnly  []string `json:"uat_only,omitempty"`
	Both     []string `json:"both,omitempty"`
}

// Config holds user-level configuration for the simrelease CLI.
type Config struct {
	AuthURL                     string      `json:"auth_url"`
	ProvisionURL                string      `json:"provision_url"`
	LogLevel                    string      `json:"log_level"`
	SessionCheckIntervalMinutes int         `json:"session_check_interval_minutes"`
	HTTPTimeoutSeconds          int         `json:"http_timeout_seconds"`      // 0 = transport default
	SuccessPhrases              []string    `json:"success_phrases,omitempty"` // appended to the built-in vocabulary
	AccessRules                 AccessRules `json:"access_rules"`
	ExportFileName              string      `json:"export_file_name"`
	StateDir                    string      `json:"state_dir"` // vault + audit database
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		AuthURL:                     DefaultAuthURL,
		ProvisionURL:                DefaultProvisionURL,
		LogLevel:                    DefaultLogLevel,
		SessionCheckIntervalMinutes: 5,
		HTTPTimeoutSeconds:          60,
		ExportFileName:              DefaultExportFileName,
		StateDir:                    Dir(),
	}
}

// CheckInterval returns the session re-validation period.
func (c Config) CheckInterval() time.Duration {
	if c.SessionCheckIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SessionCheckIntervalMinutes) * time.Minute
}

// HTTPTimeout returns the client timeout, zero meaning none.
func (c Config) HTTPTimeout() time.Duration {
	if c.HTTPTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// Dir returns the global simrelease config directory path.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ConfigDirName)
}

// Path returns the config file location.
func Path() string {
	return filepath.Join(Dir(), ConfigFileName)
}

// Load reads the config from ~/.simrelease/config.json.
func Load() (Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads a config file, returning defaults when it does not exist.
func LoadFrom(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save persists the config to ~/.simrelease/config.json.
func Save(cfg Config) error {
	return SaveTo(Path(), cfg)
}

// SaveTo writes the config to path, creating its directory.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Set assigns a single scalar setting by its JSON key.
func (c *Config) Set(key, value string) error {
	switch key {
	case "auth_url":
		c.AuthURL = value
	case "provision_url":
		c.ProvisionURL = value
	case "log_level":
		c.LogLevel = value
	case "export_file_name":
		c.ExportFileName = value
	case "state_dir":
		c.StateDir = value
	case "session_check_interval_minutes", "http_timeout_seconds":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer", key)
		}
		if key == "http_timeout_seconds" {
			c.HTTPTimeoutSeconds = n
		} else {
			c.SessionCheckIntervalMinutes = n
		}
	case "success_phrases":
		c.SuccessPhrases = splitList(value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
