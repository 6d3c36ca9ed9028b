package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.PingMinInterval != 59*time.Second {
		t.Fatalf("expected 59s ping interval, got %v", cfg.PingMinInterval)
	}
	if cfg.OfflineAfter != 5*time.Minute {
		t.Fatalf("expected 5m offline threshold, got %v", cfg.OfflineAfter)
	}
	if cfg.NotifyCooldown != time.Hour {
		t.Fatalf("expected 1h notify cooldown, got %v", cfg.NotifyCooldown)
	}
	if cfg.ValidationTokenTTL != 24*time.Hour {
		t.Fatalf("expected 24h token ttl, got %v", cfg.ValidationTokenTTL)
	}
	if cfg.MailProvider != "log" {
		t.Fatalf("expected log mail provider by default, got %q", cfg.MailProvider)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("OFFLINE_AFTER", "10m")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SWEEP_CONCURRENCY", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected overridden addr, got %q", cfg.HTTPAddr)
	}
	if cfg.OfflineAfter != 10*time.Minute {
		t.Fatalf("expected 10m offline threshold, got %v", cfg.OfflineAfter)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("expected trimmed origin list, got %v", cfg.CORSOrigins)
	}
	if cfg.SweepConcurrency != 3 {
		t.Fatalf("expected sweep concurrency 3, got %d", cfg.SweepConcurrency)
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("PING_MIN_INTERVAL", "not-a-duration")

	_, err := Load()
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "parse PING_MIN_INTERVAL") {
		t.Fatalf("expected parse error naming the key, got %v", err)
	}
}

func TestLoadValidatesWindowOrdering(t *testing.T) {
	t.Setenv("OFFLINE_AFTER", "30s")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error when offline window is inside the ping interval")
	}
	if !strings.Contains(err.Error(), "validate config:") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadRejectsUnknownMailProvider(t *testing.T) {
	t.Setenv("MAIL_PROVIDER", "carrier-pigeon")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error for unknown mail provider")
	}
}
