package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":8070" {
		t.Errorf("Expected default listen addr :8070, got %s", cfg.ListenAddr)
	}
	if cfg.Supervisor.HealthyCyclesToRecover != 3 {
		t.Errorf("Expected default healthy_cycles_to_recover 3, got %d", cfg.Supervisor.HealthyCyclesToRecover)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen_addr: ":9999"
log_level: DEBUG
supervisor:
  heartbeat_timeout_ms: 5000
  heartbeat_miss_threshold: 2
  healthy_cycles_to_recover: 5
  quarantine_cooldown_ms: 1000
  worker_restart_threshold: 4
  worker_restart_window_ms: 60000
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("Expected listen addr :9999, got %s", cfg.ListenAddr)
	}
	// Untouched defaults survive the overlay.
	if cfg.MetricsAddr != ":9097" {
		t.Errorf("Expected default metrics addr, got %s", cfg.MetricsAddr)
	}

	sup := cfg.SupervisorConfig()
	if sup.HeartbeatTimeout != 5*time.Second {
		t.Errorf("Expected heartbeat timeout 5s, got %s", sup.HeartbeatTimeout)
	}
	if sup.HealthyCyclesToRecover != 5 {
		t.Errorf("Expected healthy cycles 5, got %d", sup.HealthyCyclesToRecover)
	}
	if sup.WorkerRestartWindow != time.Minute {
		t.Errorf("Expected restart window 1m, got %s", sup.WorkerRestartWindow)
	}
}

func TestLoad_RejectsInvalidPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
supervisor:
  heartbeat_timeout_ms: 0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected validation error for zero heartbeat timeout")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}
