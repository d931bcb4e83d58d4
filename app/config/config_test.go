package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("USAGE_BACKEND", "")
	t.Setenv("LOCAL_STORE", "")
	t.Setenv("ANALYSIS_PROVIDER", "")
	t.Setenv("SIGNAL_DELAY", "")
	t.Setenv("PRICE_ID_TRADER", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Port)
	}
	if cfg.Stripe.PriceIDTrader != "price_1RjU3gB1hl0IoocUWlz842SY" {
		t.Fatalf("unexpected trader price id %q", cfg.Stripe.PriceIDTrader)
	}
	if cfg.Analysis.SignalDelay != 2*time.Second {
		t.Fatalf("expected 2s signal delay, got %v", cfg.Analysis.SignalDelay)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.Local != "file" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PRICE_ID_TRADER", "price_custom")
	t.Setenv("SIGNAL_DELAY", "30s")
	t.Setenv("BILLING_TEST_MODE", "true")
	t.Setenv("FRONTEND_URL", "https://tickrify.com/")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("USAGE_BACKEND", "")
	t.Setenv("LOCAL_STORE", "")
	t.Setenv("ANALYSIS_PROVIDER", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Stripe.PriceIDTrader != "price_custom" {
		t.Fatalf("expected override, got %q", cfg.Stripe.PriceIDTrader)
	}
	if cfg.Analysis.SignalDelay != 30*time.Second {
		t.Fatalf("expected 30s, got %v", cfg.Analysis.SignalDelay)
	}
	if !cfg.Stripe.TestMode {
		t.Fatalf("expected billing test mode")
	}
	if cfg.Stripe.FrontendURL != "https://tickrify.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Stripe.FrontendURL)
	}
}

func TestLoadConfigRejectsPostgresWithoutHost(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("USAGE_BACKEND", "")
	t.Setenv("LOCAL_STORE", "")
	t.Setenv("ANALYSIS_PROVIDER", "")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected missing postgres host error")
	}
	if !strings.Contains(err.Error(), "POSTGRES_URL") {
		t.Fatalf("expected error to mention POSTGRES_URL, got %v", err)
	}
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("USAGE_BACKEND", "")
	t.Setenv("LOCAL_STORE", "")
	t.Setenv("ANALYSIS_PROVIDER", "claude")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected provider validation error")
	}
}

func TestDSN(t *testing.T) {
	p := PostgresConfig{Username: "u", Password: "p", URL: "db.local", Port: "5432", Database: "tickrify", SSLMode: "disable"}
	if got := p.DSN(); got != "postgres://u:p@db.local:5432/tickrify?sslmode=disable" {
		t.Fatalf("DSN = %q", got)
	}
}
