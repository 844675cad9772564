package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %q, want %q", cfg.Env, "development")
	}
	if cfg.CommandTimeout != 30*time.Second {
		t.Errorf("CommandTimeout = %v, want 30s", cfg.CommandTimeout)
	}
	if cfg.InventoryPath != "fleet.toml" {
		t.Errorf("InventoryPath = %q, want %q", cfg.InventoryPath, "fleet.toml")
	}
	if cfg.Pool.MaxConnections != 5 {
		t.Errorf("Pool.MaxConnections = %d, want 5", cfg.Pool.MaxConnections)
	}
	if cfg.Pool.IdleTimeout != 60*time.Second {
		t.Errorf("Pool.IdleTimeout = %v, want 60s", cfg.Pool.IdleTimeout)
	}
	if !cfg.Pool.HealthChecks {
		t.Error("Pool.HealthChecks disabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FLEETDOCK_COMMAND_TIMEOUT_MS", "5000")
	t.Setenv("FLEETDOCK_POOL_MAX_CONNECTIONS", "10")
	t.Setenv("FLEETDOCK_POOL_HEALTH_CHECKS", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.CommandTimeout != 5*time.Second {
		t.Errorf("CommandTimeout = %v, want 5s", cfg.CommandTimeout)
	}
	if cfg.Pool.MaxConnections != 10 {
		t.Errorf("Pool.MaxConnections = %d, want 10", cfg.Pool.MaxConnections)
	}
	if cfg.Pool.HealthChecks {
		t.Error("Pool.HealthChecks should be disabled")
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[0] != want[0] || cfg.CORSAllowedOrigins[1] != want[1] {
		t.Errorf("CORSAllowedOrigins = %v, want %v", cfg.CORSAllowedOrigins, want)
	}
}

func TestGetEnvAsInt_Invalid(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want default 8080 on parse failure", cfg.Port)
	}
}
