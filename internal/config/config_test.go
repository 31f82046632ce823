package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.MetricsNamespace != "mindgate" {
		t.Fatalf("MetricsNamespace = %q", cfg.MetricsNamespace)
	}
	if cfg.MaxSessionMinutes != 120 {
		t.Fatalf("MaxSessionMinutes = %d", cfg.MaxSessionMinutes)
	}
	if cfg.TabQueryTimeout != 3*time.Second {
		t.Fatalf("TabQueryTimeout = %s", cfg.TabQueryTimeout)
	}
	if cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin default must be false")
	}
	wantHosts := []string{"x.com", "www.x.com", "mobile.x.com", "twitter.com", "www.twitter.com"}
	if len(cfg.MonitoredHosts) != len(wantHosts) {
		t.Fatalf("MonitoredHosts = %v", cfg.MonitoredHosts)
	}
	for i, h := range wantHosts {
		if cfg.MonitoredHosts[i] != h {
			t.Fatalf("MonitoredHosts = %v, want %v", cfg.MonitoredHosts, wantHosts)
		}
	}
	if len(cfg.MonitoredURLPatterns) != 2 {
		t.Fatalf("MonitoredURLPatterns = %v", cfg.MonitoredURLPatterns)
	}
	if cfg.InterventionURL != "/intervention/intervention.html" {
		t.Fatalf("InterventionURL = %q", cfg.InterventionURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_BIND_ADDR", ":9999")
	t.Setenv("GATE_MONITORED_HOSTS", "reddit.com, www.reddit.com ,")
	t.Setenv("GATE_MONITORED_URL_PATTERNS", "*://*.reddit.com/*")
	t.Setenv("GATE_MAX_SESSION_MINUTES", "45")
	t.Setenv("GATE_TAB_QUERY_TIMEOUT", "500ms")
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "true")
	t.Setenv("DATABASE_URL", "postgres://localhost/mindgate")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9999" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if len(cfg.MonitoredHosts) != 2 || cfg.MonitoredHosts[1] != "www.reddit.com" {
		t.Fatalf("MonitoredHosts = %v", cfg.MonitoredHosts)
	}
	if cfg.MaxSessionMinutes != 45 {
		t.Fatalf("MaxSessionMinutes = %d", cfg.MaxSessionMinutes)
	}
	if cfg.TabQueryTimeout != 500*time.Millisecond {
		t.Fatalf("TabQueryTimeout = %s", cfg.TabQueryTimeout)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("ShutdownTimeout = %s", cfg.ShutdownTimeout)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true")
	}
	if cfg.DatabaseURL != "postgres://localhost/mindgate" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"GATE_MONITORED_HOSTS", " , "},
		{"GATE_MONITORED_URL_PATTERNS", ","},
		{"GATE_INTERVENTION_URL", "  "},
		{"GATE_MAX_SESSION_MINUTES", "0"},
		{"GATE_MAX_SESSION_MINUTES", "abc"},
		{"GATE_TAB_QUERY_TIMEOUT", "-1s"},
		{"GATE_TAB_QUERY_TIMEOUT", "soon"},
		{"APP_SHUTDOWN_TIMEOUT", "later"},
		{"APP_ALLOW_ANY_ORIGIN", "maybe"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() accepted %s=%q", tc.key, tc.value)
			}
		})
	}
}
