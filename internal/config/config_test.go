package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	v := NewViper()
	v.Set("auth.signing_secret", "secret")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected http address: %q", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != "propdeck.db" {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath)
	}
	if cfg.TokenTTL != 168*time.Hour {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
	if cfg.TokenIssuer != "propdeck-auth" || cfg.TokenAudience != "propdeck-api" {
		t.Fatalf("unexpected token metadata: %#v", cfg)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	v := NewViper()

	if _, err := Load(v); err == nil {
		t.Fatalf("expected error for missing signing secret")
	}
}

func TestLoadRejectsNonPositiveTTL(t *testing.T) {
	v := NewViper()
	v.Set("auth.signing_secret", "secret")
	v.Set("auth.token_ttl_hours", 0)

	if _, err := Load(v); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}

func TestLoadHonorsOverrides(t *testing.T) {
	v := NewViper()
	v.Set("auth.signing_secret", "secret")
	v.Set("http.address", "127.0.0.1:9090")
	v.Set("auth.token_ttl_hours", 24)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9090" {
		t.Fatalf("unexpected http address: %q", cfg.HTTPAddress)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
}
