package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}

	if cfg.Quality.CoverageDenominator != 20 {
		t.Errorf("expected coverage denominator 20, got %d", cfg.Quality.CoverageDenominator)
	}
	if cfg.Conflict.TrendStructurePenalty != 40 {
		t.Errorf("expected trend structure penalty 40, got %.0f", cfg.Conflict.TrendStructurePenalty)
	}
	if cfg.Justify.CriticalFactor != 0.70 {
		t.Errorf("expected critical factor 0.70, got %.2f", cfg.Justify.CriticalFactor)
	}
	if cfg.Ranker.BTCMoveCapPct != 0.8 {
		t.Errorf("expected BTC move cap 0.8, got %.2f", cfg.Ranker.BTCMoveCapPct)
	}
	if cfg.Correlation.MinSamples != 24 {
		t.Errorf("expected 24 minimum samples, got %d", cfg.Correlation.MinSamples)
	}
	if len(cfg.Futures.Timeframes) != 5 {
		t.Errorf("expected 5 default timeframes, got %v", cfg.Futures.Timeframes)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Errorf("a missing config file must fall back to defaults, got %v", err)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("ranker:\n  top_n: 7\nquality:\n  coverage_denominator: 25\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Ranker.TopN != 7 {
		t.Errorf("expected top_n 7, got %d", cfg.Ranker.TopN)
	}
	if cfg.Quality.CoverageDenominator != 25 {
		t.Errorf("expected coverage denominator 25, got %d", cfg.Quality.CoverageDenominator)
	}
	// Untouched values keep their defaults.
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected an error for a malformed config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RANKER_TOP_N", "5")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("QUALITY_COVERAGE_DENOMINATOR", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Ranker.TopN != 5 {
		t.Errorf("expected top_n 5 from env, got %d", cfg.Ranker.TopN)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090 from env, got %d", cfg.Server.Port)
	}
	// Non-numeric overrides keep the default.
	if cfg.Quality.CoverageDenominator != 20 {
		t.Errorf("expected default denominator kept, got %d", cfg.Quality.CoverageDenominator)
	}
}

func TestValidationRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected a validation error for a negative port")
	}
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	if err := WriteSample(path); err != nil {
		t.Fatalf("writing sample: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("the sample config must load cleanly: %v", err)
	}
	if cfg.Quality.CoverageDenominator != 20 {
		t.Errorf("sample must carry defaults, got denominator %d", cfg.Quality.CoverageDenominator)
	}
}
