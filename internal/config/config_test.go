package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadReadsYAMLAndAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
databaseURL: "postgres://localhost/orderchat"
jwtSecret: "file-secret"
tokenTTL: "24h"
logLevel: "debug"
`)
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("PORT", "9090")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected env override for port, got %q", cfg.Port)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Fatalf("expected env override for jwt secret, got %q", cfg.JWTSecret)
	}
	if cfg.DatabaseURL != "postgres://localhost/orderchat" {
		t.Fatalf("unexpected database url: %q", cfg.DatabaseURL)
	}

	ttl, err := ParseTokenTTL(cfg.TokenTTL)
	if err != nil {
		t.Fatalf("parse ttl: %v", err)
	}
	if ttl != 24*time.Hour {
		t.Fatalf("unexpected ttl: %v", ttl)
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	cases := map[string]string{
		"missing port":        "databaseURL: \"x\"\njwtSecret: \"s\"\n",
		"missing databaseURL": "port: \"8080\"\njwtSecret: \"s\"\n",
		"missing jwtSecret":   "port: \"8080\"\ndatabaseURL: \"x\"\n",
	}
	for name, body := range cases {
		path := writeConfig(t, body)
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadRequiresRedisWhenRateLimited(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
databaseURL: "postgres://localhost/orderchat"
jwtSecret: "s"
loginRateLimitPerMinute: 10
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when rate limits set without redis")
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" a, b ,,c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected split: %v", got)
	}
	if out := SplitList(""); len(out) != 0 {
		t.Fatalf("expected empty result, got %v", out)
	}
}
