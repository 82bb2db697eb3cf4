// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the master configuration for devpulse.
type Config struct {
	// IdleThresholdSeconds is how long a session may go without events
	// before it is marked idle. Default 120.
	IdleThresholdSeconds int `yaml:"idle_threshold_seconds" json:"idle_threshold_seconds"`

	// StopThresholdSeconds is how long a session may go without events
	// before it is stopped and its devlog generated. Must be >= the
	// idle threshold. Default 600.
	StopThresholdSeconds int `yaml:"stop_threshold_seconds" json:"stop_threshold_seconds"`

	// ReconcileIntervalSeconds is the reconciliation cadence. Default 30.
	ReconcileIntervalSeconds int `yaml:"reconcile_interval_seconds" json:"reconcile_interval_seconds"`

	// ConflictWindowSeconds is the sliding window within which two
	// sessions touching the same file count as a conflict. Default 1800.
	ConflictWindowSeconds int `yaml:"conflict_window_seconds" json:"conflict_window_seconds"`

	// DatabasePath is the SQLite database file. Default
	// ${HOME}/.local/share/devpulse/devpulse.db.
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// IngestSocket is the unix socket path the serve command listens
	// on for newline-delimited JSON events. Default
	// /run/devpulse/ingest.sock.
	IngestSocket string `yaml:"ingest_socket" json:"ingest_socket"`
}

// Default returns the default configuration. These are the documented
// defaults; the config file overrides field by field.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		IdleThresholdSeconds:     120,
		StopThresholdSeconds:     600,
		ReconcileIntervalSeconds: 30,
		ConflictWindowSeconds:    1800,
		DatabasePath:             filepath.Join(homeDir, ".local", "share", "devpulse", "devpulse.db"),
		IngestSocket:             "/run/devpulse/ingest.sock",
	}
}

// Load loads configuration from the DEVPULSE_CONFIG environment
// variable. If the variable is unset, the defaults are returned.
func Load() (*Config, error) {
	configPath := os.Getenv("DEVPULSE_CONFIG")
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging over
// the defaults. JSON/JSONC files (by extension) are accepted alongside
// YAML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.IdleThresholdSeconds <= 0 {
		errs = append(errs, fmt.Errorf("idle_threshold_seconds must be positive"))
	}
	if c.StopThresholdSeconds <= 0 {
		errs = append(errs, fmt.Errorf("stop_threshold_seconds must be positive"))
	}
	if c.StopThresholdSeconds < c.IdleThresholdSeconds {
		errs = append(errs, fmt.Errorf("stop_threshold_seconds (%d) must be >= idle_threshold_seconds (%d)",
			c.StopThresholdSeconds, c.IdleThresholdSeconds))
	}
	if c.ReconcileIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("reconcile_interval_seconds must be positive"))
	}
	if c.ConflictWindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("conflict_window_seconds must be positive"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, fmt.Errorf("database_path is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// IdleThreshold returns the idle threshold as a duration.
func (c *Config) IdleThreshold() time.Duration {
	return time.Duration(c.IdleThresholdSeconds) * time.Second
}

// StopThreshold returns the stop threshold as a duration.
func (c *Config) StopThreshold() time.Duration {
	return time.Duration(c.StopThresholdSeconds) * time.Second
}

// ReconcileInterval returns the reconciliation cadence as a duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

// ConflictWindow returns the conflict detection window as a duration.
func (c *Config) ConflictWindow() time.Duration {
	return time.Duration(c.ConflictWindowSeconds) * time.Second
}
