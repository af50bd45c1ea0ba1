package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultUpstreamTimeout   = 15 * time.Second
	defaultTaxDebounce       = 500 * time.Millisecond
	defaultTelemetryInterval = 30 * time.Second
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Upstream  UpstreamConfig
	Checkout  CheckoutConfig
	Telemetry TelemetryConfig
	State     StateConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// UpstreamConfig points at the commerce backend API.
type UpstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CheckoutConfig tunes the checkout orchestration core.
type CheckoutConfig struct {
	TaxDebounce time.Duration
}

// TelemetryConfig tunes the behavioral telemetry sampler.
type TelemetryConfig struct {
	SampleInterval time.Duration
}

// StateConfig controls where persisted wizard state lives. An empty Dir keeps
// state in process memory only.
type StateConfig struct {
	Dir string
}

// Load reads configuration from the environment, consulting a .env file when
// present.
func Load() (Config, error) {
	if err := godotenv.Load(defaultEnvFile); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: load %s: %w", defaultEnvFile, err)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         envString("PORT", defaultPort),
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
			IdleTimeout:  defaultIdleTimeout,
		},
		Upstream: UpstreamConfig{
			BaseURL: envString("UPSTREAM_BASE_URL", ""),
			Timeout: defaultUpstreamTimeout,
		},
		Checkout: CheckoutConfig{
			TaxDebounce: defaultTaxDebounce,
		},
		Telemetry: TelemetryConfig{
			SampleInterval: defaultTelemetryInterval,
		},
		State: StateConfig{
			Dir: envString("STATE_DIR", ""),
		},
	}

	var err error
	if cfg.Server.ReadTimeout, err = envDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Server.WriteTimeout, err = envDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Server.IdleTimeout, err = envDuration("SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Upstream.Timeout, err = envDuration("UPSTREAM_TIMEOUT", cfg.Upstream.Timeout); err != nil {
		return Config{}, err
	}
	if cfg.Checkout.TaxDebounce, err = envDuration("CHECKOUT_TAX_DEBOUNCE", cfg.Checkout.TaxDebounce); err != nil {
		return Config{}, err
	}
	if cfg.Telemetry.SampleInterval, err = envDuration("TELEMETRY_SAMPLE_INTERVAL", cfg.Telemetry.SampleInterval); err != nil {
		return Config{}, err
	}

	if cfg.Upstream.BaseURL == "" {
		return Config{}, fmt.Errorf("config: UPSTREAM_BASE_URL is required")
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: invalid duration %q", key, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("config: %s: duration must be positive", key)
	}
	return parsed, nil
}
