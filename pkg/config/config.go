// Package config loads the sentineld daemon configuration from a YAML
// file. The policy knobs are read once at startup; the daemon does not
// hot-reload them.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/psantana5/sentinel/pkg/supervisor"
)

// Config is the complete daemon configuration.
type Config struct {
	// Network listeners
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	// APIKey guards the operator surface. Empty disables authentication
	// (not recommended outside development).
	APIKey string `yaml:"api_key"`

	// JournalPath is the SQLite audit journal location. Empty disables
	// the journal.
	JournalPath string `yaml:"journal_path"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	// Supervisor escalation policy
	Supervisor SupervisorConfig `yaml:"supervisor"`
}

// SupervisorConfig mirrors supervisor.Config with millisecond knobs, the
// unit the policy is expressed in everywhere else.
type SupervisorConfig struct {
	HeartbeatTimeoutMs     int64 `yaml:"heartbeat_timeout_ms"`
	HeartbeatMissThreshold int   `yaml:"heartbeat_miss_threshold"`
	HealthyCyclesToRecover int   `yaml:"healthy_cycles_to_recover"`
	QuarantineCooldownMs   int64 `yaml:"quarantine_cooldown_ms"`
	WorkerRestartThreshold int   `yaml:"worker_restart_threshold"`
	WorkerRestartWindowMs  int64 `yaml:"worker_restart_window_ms"`
}

// Default returns the daemon defaults.
func Default() *Config {
	sup := supervisor.DefaultConfig()
	return &Config{
		ListenAddr:  ":8070",
		MetricsAddr: ":9097",
		JournalPath: "sentinel-audit.db",
		LogLevel:    "INFO",
		Supervisor: SupervisorConfig{
			HeartbeatTimeoutMs:     sup.HeartbeatTimeout.Milliseconds(),
			HeartbeatMissThreshold: sup.HeartbeatMissThreshold,
			HealthyCyclesToRecover: sup.HealthyCyclesToRecover,
			QuarantineCooldownMs:   sup.QuarantineCooldown.Milliseconds(),
			WorkerRestartThreshold: sup.WorkerRestartThreshold,
			WorkerRestartWindowMs:  sup.WorkerRestartWindow.Milliseconds(),
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the supervisor cannot run with.
func (c *Config) Validate() error {
	s := c.Supervisor
	if s.HeartbeatTimeoutMs <= 0 {
		return fmt.Errorf("heartbeat_timeout_ms must be positive, got %d", s.HeartbeatTimeoutMs)
	}
	if s.HeartbeatMissThreshold <= 0 {
		return fmt.Errorf("heartbeat_miss_threshold must be positive, got %d", s.HeartbeatMissThreshold)
	}
	if s.HealthyCyclesToRecover <= 0 {
		return fmt.Errorf("healthy_cycles_to_recover must be positive, got %d", s.HealthyCyclesToRecover)
	}
	if s.QuarantineCooldownMs < 0 {
		return fmt.Errorf("quarantine_cooldown_ms must not be negative, got %d", s.QuarantineCooldownMs)
	}
	if s.WorkerRestartThreshold <= 0 {
		return fmt.Errorf("worker_restart_threshold must be positive, got %d", s.WorkerRestartThreshold)
	}
	if s.WorkerRestartWindowMs <= 0 {
		return fmt.Errorf("worker_restart_window_ms must be positive, got %d", s.WorkerRestartWindowMs)
	}
	return nil
}

// SupervisorConfig converts the millisecond knobs into the supervisor's
// duration-based config.
func (c *Config) SupervisorConfig() supervisor.Config {
	s := c.Supervisor
	return supervisor.Config{
		HeartbeatTimeout:       time.Duration(s.HeartbeatTimeoutMs) * time.Millisecond,
		HeartbeatMissThreshold: s.HeartbeatMissThreshold,
		HealthyCyclesToRecover: s.HealthyCyclesToRecover,
		QuarantineCooldown:     time.Duration(s.QuarantineCooldownMs) * time.Millisecond,
		WorkerRestartThreshold: s.WorkerRestartThreshold,
		WorkerRestartWindow:    time.Duration(s.WorkerRestartWindowMs) * time.Millisecond,
	}
}
