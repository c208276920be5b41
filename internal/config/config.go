/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads the remediator configuration.
//
// Sources in priority order: environment variables with the REMEDIATOR
// prefix, an optional YAML config file, built-in defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/llm-d/llm-d-cluster-remediator/internal/safety"
)

// Audit store backends.
const (
	AuditBackendFile   = "file"
	AuditBackendSQLite = "sqlite"
)

// Config is the full runtime configuration.
type Config struct {
	Safety safety.Policy `mapstructure:"safety"`

	Audit struct {
		// Backend selects the audit store implementation: file or sqlite.
		Backend string `mapstructure:"backend"`
		// Path is the audit file or database location.
		Path string `mapstructure:"path"`
	} `mapstructure:"audit"`

	Executor struct {
		// DryRun makes every allowed action resolve to a simulated outcome.
		DryRun bool `mapstructure:"dryRun"`
		// DispatchTimeoutSeconds bounds one action dispatch.
		DispatchTimeoutSeconds int `mapstructure:"dispatchTimeoutSeconds"`
	} `mapstructure:"executor"`

	Monitor struct {
		// IntervalMinutes is the sleep between monitoring cycles.
		IntervalMinutes int `mapstructure:"intervalMinutes"`
		// MaxIterations caps the number of cycles; 0 means run until
		// cancelled.
		MaxIterations int `mapstructure:"maxIterations"`
		// MetricsAddr serves Prometheus metrics during monitoring when
		// non-empty.
		MetricsAddr string `mapstructure:"metricsAddr"`
	} `mapstructure:"monitor"`

	Explainer struct {
		Enabled bool   `mapstructure:"enabled"`
		Model   string `mapstructure:"model"`
		// APIKey is normally supplied via REMEDIATOR_EXPLAINER_APIKEY.
		APIKey string `mapstructure:"apiKey"`
	} `mapstructure:"explainer"`

	Logging struct {
		// Level is one of debug, info, warn, error.
		Level string `mapstructure:"level"`
		// Format is json or console.
		Format string `mapstructure:"format"`
		// File enables rotated file output when non-empty.
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"maxSizeMB"`
		MaxBackups int    `mapstructure:"maxBackups"`
		MaxAgeDays int    `mapstructure:"maxAgeDays"`
	} `mapstructure:"logging"`
}

// DispatchTimeout returns the executor timeout as a duration.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.Executor.DispatchTimeoutSeconds) * time.Second
}

// MonitorInterval returns the monitor sleep as a duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalMinutes) * time.Minute
}

// Load reads configuration from the optional file at path plus the
// environment. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("REMEDIATOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	policy := safety.DefaultPolicy()
	v.SetDefault("safety.protectedNamespaces", policy.ProtectedNamespaces)
	v.SetDefault("safety.protectedResources", policy.ProtectedResources)
	v.SetDefault("safety.maxActionsPerHour", policy.MaxActionsPerHour)
	v.SetDefault("safety.maxDeletionsPerHour", policy.MaxDeletionsPerHour)
	v.SetDefault("safety.maxBulkTargets", policy.MaxBulkTargets)
	v.SetDefault("safety.maxReplicas", policy.MaxReplicas)
	v.SetDefault("safety.maxScalePercentage", policy.MaxScalePercentage)
	v.SetDefault("safety.failOpen", policy.FailOpen)

	v.SetDefault("audit.backend", AuditBackendFile)
	v.SetDefault("audit.path", "/var/lib/remediator/audit.json")

	v.SetDefault("executor.dryRun", true)
	v.SetDefault("executor.dispatchTimeoutSeconds", 30)

	v.SetDefault("monitor.intervalMinutes", 5)
	v.SetDefault("monitor.maxIterations", 10)
	v.SetDefault("monitor.metricsAddr", "")

	v.SetDefault("explainer.enabled", false)
	v.SetDefault("explainer.model", "")
	v.SetDefault("explainer.apiKey", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.maxSizeMB", 100)
	v.SetDefault("logging.maxBackups", 3)
	v.SetDefault("logging.maxAgeDays", 28)
}

// Validate rejects configurations the agent cannot run with.
func (c *Config) Validate() error {
	if c.Audit.Backend != AuditBackendFile && c.Audit.Backend != AuditBackendSQLite {
		return fmt.Errorf("invalid audit backend %q: must be %s or %s", c.Audit.Backend, AuditBackendFile, AuditBackendSQLite)
	}
	if c.Audit.Path == "" {
		return fmt.Errorf("audit path must not be empty")
	}
	if c.Safety.MaxActionsPerHour <= 0 {
		return fmt.Errorf("safety maxActionsPerHour must be positive, got %d", c.Safety.MaxActionsPerHour)
	}
	if c.Safety.MaxDeletionsPerHour <= 0 {
		return fmt.Errorf("safety maxDeletionsPerHour must be positive, got %d", c.Safety.MaxDeletionsPerHour)
	}
	if c.Safety.MaxDeletionsPerHour > c.Safety.MaxActionsPerHour {
		return fmt.Errorf("safety maxDeletionsPerHour (%d) must not exceed maxActionsPerHour (%d)",
			c.Safety.MaxDeletionsPerHour, c.Safety.MaxActionsPerHour)
	}
	if c.Safety.MaxBulkTargets <= 0 {
		return fmt.Errorf("safety maxBulkTargets must be positive, got %d", c.Safety.MaxBulkTargets)
	}
	if c.Safety.MaxReplicas <= 0 {
		return fmt.Errorf("safety maxReplicas must be positive, got %d", c.Safety.MaxReplicas)
	}
	if c.Safety.MaxScalePercentage <= 0 {
		return fmt.Errorf("safety maxScalePercentage must be positive, got %d", c.Safety.MaxScalePercentage)
	}
	if c.Executor.DispatchTimeoutSeconds <= 0 {
		return fmt.Errorf("executor dispatchTimeoutSeconds must be positive, got %d", c.Executor.DispatchTimeoutSeconds)
	}
	if c.Monitor.IntervalMinutes <= 0 {
		return fmt.Errorf("monitor intervalMinutes must be positive, got %d", c.Monitor.IntervalMinutes)
	}
	if c.Monitor.MaxIterations < 0 {
		return fmt.Errorf("monitor maxIterations must not be negative, got %d", c.Monitor.MaxIterations)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}
	if c.Explainer.Enabled && c.Explainer.APIKey == "" {
		return fmt.Errorf("explainer enabled but no API key configured")
	}
	return nil
}
