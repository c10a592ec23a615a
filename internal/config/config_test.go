package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.Timezone != "Europe/Amsterdam" {
		t.Errorf("expected default timezone Europe/Amsterdam, got %s", cfg.Timezone)
	}
	if cfg.WindowMinutes != 5 {
		t.Errorf("expected default window 5, got %d", cfg.WindowMinutes)
	}
	if cfg.PushDriver != "log" {
		t.Errorf("expected default push driver log, got %s", cfg.PushDriver)
	}
	if cfg.CronEnabled {
		t.Error("cron should be disabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TIMEZONE", "Europe/Brussels")
	t.Setenv("DISPATCH_WINDOW_MIN", "10")
	t.Setenv("PUSH_DRIVER", "webpush")
	t.Setenv("CRON_ENABLED", "true")
	t.Setenv("CRON_INTERVAL", "30s")
	t.Setenv("SNS_REGION", "eu-central-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.Timezone != "Europe/Brussels" {
		t.Errorf("expected timezone override, got %s", cfg.Timezone)
	}
	if cfg.WindowMinutes != 10 {
		t.Errorf("expected window 10, got %d", cfg.WindowMinutes)
	}
	if cfg.PushDriver != "webpush" {
		t.Errorf("expected webpush driver, got %s", cfg.PushDriver)
	}
	if !cfg.CronEnabled || cfg.CronInterval != 30*time.Second {
		t.Errorf("expected cron enabled at 30s, got %v/%v", cfg.CronEnabled, cfg.CronInterval)
	}
	if cfg.SNSRegion != "eu-central-1" {
		t.Errorf("expected SNS region override, got %s", cfg.SNSRegion)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad port", "PORT", "not-a-port"},
		{"bad timezone", "TIMEZONE", "Mars/Olympus"},
		{"bad window", "DISPATCH_WINDOW_MIN", "-1"},
		{"bad driver", "PUSH_DRIVER", "carrier-pigeon"},
		{"bad interval", "CRON_INTERVAL", "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
