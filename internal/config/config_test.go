package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DEFAULT_LOCATION_ID", "")
	t.Setenv("METRICS_ENABLED", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.LocationID != "loc-main" {
		t.Fatalf("expected default location loc-main, got %q", cfg.LocationID)
	}
	if !cfg.MetricsEnabled {
		t.Fatalf("expected metrics enabled by default")
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestMetricsCanBeDisabled(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "false")

	cfg := Load()
	if cfg.MetricsEnabled {
		t.Fatalf("expected metrics disabled when METRICS_ENABLED=false")
	}
}
