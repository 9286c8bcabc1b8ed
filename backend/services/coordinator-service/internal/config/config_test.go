package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("COORDINATOR_DB_DRIVER", "memory")
	t.Setenv("COORDINATOR_JWT_SECRET", "s3cret")
	t.Setenv("COORDINATOR_SWEEP_INTERVAL", "15s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.UseMemory() {
		t.Fatalf("expected memory driver")
	}
	if cfg.Sweep.Interval != 15*time.Second {
		t.Fatalf("expected sweep override, got %s", cfg.Sweep.Interval)
	}
	if cfg.Reservations.RefundFullThreshold != 2*time.Hour || cfg.Billing.DefaultRatePerKWh != 20000 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.HTTPAddress() != ":8085" {
		t.Fatalf("unexpected address %q", cfg.HTTPAddress())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordinator.yaml")
	body := `
http:
  port: ":9090"
database:
  driver: postgres
  dsn: postgres://localhost/chargehub
auth:
  jwtSecret: abc
waitlist:
  slotEstimate: 45m
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddress() != ":9090" || cfg.UseMemory() {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Waitlist.SlotEstimate != 45*time.Minute {
		t.Fatalf("expected 45m slot, got %s", cfg.Waitlist.SlotEstimate)
	}
	if cfg.Sweep.Interval != time.Minute {
		t.Fatalf("default sweep interval lost: %s", cfg.Sweep.Interval)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "x"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("postgres without dsn must fail")
	}
	cfg.Database.Driver = "sqlite"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown driver must fail")
	}
	cfg.Database.Driver = DriverMemory
	cfg.Auth.JWTSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("missing secret must fail")
	}
}
