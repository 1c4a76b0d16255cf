package config

import (
	"strings"
	"testing"
)

type envTestConfig struct {
	Workers int `env:"HOTDICE_TEST_WORKERS" envDefault:"4"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Workers != 4 {
		t.Fatalf("expected default workers 4, got %d", cfg.Workers)
	}
}

func TestParseEnvOverride(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("HOTDICE_TEST_WORKERS", "9")

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Workers != 9 {
		t.Fatalf("expected workers 9, got %d", cfg.Workers)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("HOTDICE_TEST_WORKERS", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
