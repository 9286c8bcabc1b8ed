package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sample struct {
	HTTP struct {
		Port string `yaml:"port" env:"SAMPLE_HTTP_PORT"`
	} `yaml:"http"`
	Sweep struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"sweep"`
	Rate   float64  `yaml:"rate"`
	Topics []string `yaml:"topics"`
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "http:\n  port: \"9000\"\nsweep:\n  interval: 30s\nrate: 15000\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(defaultConfigPathEnv, path)
	t.Setenv("SAMPLE_HTTP_PORT", "9100")
	t.Setenv("SWEEP_INTERVAL", "2m")
	t.Setenv("TOPICS", "a, b,,c")

	var cfg sample
	if err := LoadConfig(&cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Port != "9100" {
		t.Fatalf("expected env override for port, got %q", cfg.HTTP.Port)
	}
	if cfg.Sweep.Interval != 2*time.Minute {
		t.Fatalf("expected 2m interval, got %s", cfg.Sweep.Interval)
	}
	if cfg.Rate != 15000 {
		t.Fatalf("expected rate from file, got %v", cfg.Rate)
	}
	if len(cfg.Topics) != 3 || cfg.Topics[2] != "c" {
		t.Fatalf("unexpected topics %v", cfg.Topics)
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "soon")
	var cfg sample
	if err := LoadConfig(&cfg); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadConfigRequiresStructPointer(t *testing.T) {
	var cfg sample
	if err := LoadConfig(cfg); err == nil {
		t.Fatalf("expected error for non-pointer target")
	}
}
