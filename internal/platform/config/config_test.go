package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "http://backend.local")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Server.Port)
	}
	if cfg.Checkout.TaxDebounce != 500*time.Millisecond {
		t.Fatalf("expected default tax debounce, got %v", cfg.Checkout.TaxDebounce)
	}
	if cfg.Telemetry.SampleInterval != 30*time.Second {
		t.Fatalf("expected default sample interval, got %v", cfg.Telemetry.SampleInterval)
	}
	if cfg.State.Dir != "" {
		t.Fatalf("expected in-memory state by default, got %q", cfg.State.Dir)
	}
	if cfg.Upstream.BaseURL != "http://backend.local" {
		t.Fatalf("unexpected upstream url %q", cfg.Upstream.BaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "http://backend.local")
	t.Setenv("PORT", "9090")
	t.Setenv("UPSTREAM_TIMEOUT", "5s")
	t.Setenv("CHECKOUT_TAX_DEBOUNCE", "250ms")
	t.Setenv("TELEMETRY_SAMPLE_INTERVAL", "1m")
	t.Setenv("STATE_DIR", "/var/lib/checkout")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected overridden port, got %q", cfg.Server.Port)
	}
	if cfg.Upstream.Timeout != 5*time.Second {
		t.Fatalf("expected overridden timeout, got %v", cfg.Upstream.Timeout)
	}
	if cfg.Checkout.TaxDebounce != 250*time.Millisecond {
		t.Fatalf("expected overridden debounce, got %v", cfg.Checkout.TaxDebounce)
	}
	if cfg.Telemetry.SampleInterval != time.Minute {
		t.Fatalf("expected overridden interval, got %v", cfg.Telemetry.SampleInterval)
	}
	if cfg.State.Dir != "/var/lib/checkout" {
		t.Fatalf("expected overridden state dir, got %q", cfg.State.Dir)
	}
}

func TestLoadRequiresUpstreamURL(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "UPSTREAM_BASE_URL") {
		t.Fatalf("expected missing upstream url error, got %v", err)
	}
}

func TestLoadRejectsInvalidDurations(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "http://backend.local")

	t.Setenv("CHECKOUT_TAX_DEBOUNCE", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed duration")
	}

	t.Setenv("CHECKOUT_TAX_DEBOUNCE", "-1s")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for non-positive duration")
	}
}
