// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration.
type Config struct {
	// HTTP server.
	Port int

	// Home Assistant connection. Empty URL or token disables the live host
	// and the trigger engine.
	HAURL     string
	HAToken   string
	HATimeout time.Duration

	// Mock forces the simulated host even when HA credentials are set.
	Mock bool

	// Auth. The daemon only validates JWTs; interactive sign-on is delegated
	// to a fronting proxy, whose presence SSOConfigured records (SESSION_SECRET
	// or any AUTHENTIK_* variable set).
	JWTSecret     string
	SSOConfigured bool

	// Rate limiting for the run endpoints.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	port, err := intEnv("PORT", 8000)
	if err != nil {
		return nil, err
	}
	timeoutMs, err := intEnv("HA_TIMEOUT_MS", 8000)
	if err != nil {
		return nil, err
	}
	burst, err := intEnv("RATE_LIMIT_BURST", 10)
	if err != nil {
		return nil, err
	}

	rps := 5.0
	if raw := os.Getenv("RATE_LIMIT_RPS"); raw != "" {
		if rps, err = strconv.ParseFloat(raw, 64); err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
		}
	}

	cfg := &Config{
		Port:           port,
		HAURL:          os.Getenv("HA_URL"),
		HAToken:        os.Getenv("HA_TOKEN"),
		HATimeout:      time.Duration(timeoutMs) * time.Millisecond,
		Mock:           boolEnv("MOCK"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		SSOConfigured:  ssoEnvPresent(),
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

// HAConfigured reports whether a live Home Assistant endpoint is usable.
func (c *Config) HAConfigured() bool {
	return !c.Mock && c.HAURL != "" && c.HAToken != ""
}

// ssoEnvPresent detects the reverse-proxy SSO variables this daemon accepts
// but does not consume itself.
func ssoEnvPresent() bool {
	if os.Getenv("SESSION_SECRET") != "" {
		return true
	}
	for _, kv := range os.Environ() {
		if name, val, ok := strings.Cut(kv, "="); ok && val != "" && strings.HasPrefix(name, "AUTHENTIK_") {
			return true
		}
	}
	return false
}

func intEnv(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func boolEnv(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	}
	return false
}
