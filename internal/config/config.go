package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the interception core service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// MonitoredHosts is an exact-match host allowlist; subdomains must be
	// enumerated explicitly. MonitoredURLPatterns is the matching pattern
	// list used for bulk tab queries. The two must be kept in sync if the
	// monitored destination set changes.
	MonitoredHosts       []string
	MonitoredURLPatterns []string

	// InterventionURL is where a deferred tab is redirected. The browser shim
	// resolves relative paths against the extension origin.
	InterventionURL string

	// MaxSessionMinutes caps the duration a single intention capture may
	// request.
	MaxSessionMinutes int

	// TabQueryTimeout bounds how long a broad monitored-tab query may wait on
	// the browser shim before the fallback is skipped.
	TabQueryTimeout time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:             envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:     envOrDefault("APP_METRICS_NAMESPACE", "mindgate"),
		AllowAnyOrigin:       false,
		MonitoredHosts:       splitList(envOrDefault("GATE_MONITORED_HOSTS", "x.com,www.x.com,mobile.x.com,twitter.com,www.twitter.com")),
		MonitoredURLPatterns: splitList(envOrDefault("GATE_MONITORED_URL_PATTERNS", "*://*.x.com/*,*://*.twitter.com/*")),
		InterventionURL:      envOrDefault("GATE_INTERVENTION_URL", "/intervention/intervention.html"),
		MaxSessionMinutes:    120,
		TabQueryTimeout:      3 * time.Second,
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		ShutdownTimeout:      15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TabQueryTimeout, err = durationFromEnv("GATE_TAB_QUERY_TIMEOUT", cfg.TabQueryTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxSessionMinutes, err = intFromEnv("GATE_MAX_SESSION_MINUTES", cfg.MaxSessionMinutes)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if len(cfg.MonitoredHosts) == 0 {
		return Config{}, fmt.Errorf("GATE_MONITORED_HOSTS must name at least one host")
	}
	if len(cfg.MonitoredURLPatterns) == 0 {
		return Config{}, fmt.Errorf("GATE_MONITORED_URL_PATTERNS must name at least one pattern")
	}
	if strings.TrimSpace(cfg.InterventionURL) == "" {
		return Config{}, fmt.Errorf("GATE_INTERVENTION_URL must not be empty")
	}
	if cfg.MaxSessionMinutes <= 0 {
		return Config{}, fmt.Errorf("GATE_MAX_SESSION_MINUTES must be positive")
	}
	if cfg.TabQueryTimeout <= 0 {
		return Config{}, fmt.Errorf("GATE_TAB_QUERY_TIMEOUT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
