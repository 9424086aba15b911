package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default invalid: %v", err)
	}
	if cfg.RateLimits.Tiers.Default.Window != 15*time.Minute || cfg.Planner.Model != "llama-3.1-8b-instant" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !cfg.Engine.SerializeSessions || cfg.Engine.Mode != "auto" {
		t.Fatalf("unexpected engine defaults %+v", cfg.Engine)
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
server:
  addr: 0.0.0.0:9000
  allowed_origins: [https://app.example.com]
rate_limits:
  tiers:
    plan: {limit: 5, window: 10s}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" || cfg.Server.BasePath != "/v0" {
		t.Fatalf("unexpected server %+v", cfg.Server)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://app.example.com" {
		t.Fatalf("unexpected origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.RateLimits.Tiers.Plan.Limit != 5 || cfg.RateLimits.Tiers.Plan.Window != 10*time.Second {
		t.Fatalf("unexpected plan tier %+v", cfg.RateLimits.Tiers.Plan)
	}
	if cfg.RateLimits.Tiers.Transcribe.Limit != 60 {
		t.Fatalf("expected transcribe default kept")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"mode":      "engine: {mode: psychic}",
		"tier":      "rate_limits: {tiers: {default: {limit: 0, window: 1m}}}",
		"origin":    "server: {allowed_origins: [not-a-url]}",
		"base path": "server: {base_path: v0}",
		"model":     "planner: {model: \"\"}",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("VOICEUI_TEST_KEY", "sk-test")
	u := UpstreamConfig{BaseURL: "http://x", Model: "m", APIKeyEnv: "VOICEUI_TEST_KEY"}
	if u.APIKey() != "sk-test" || !u.Enabled() {
		t.Fatalf("expected key from env")
	}
	if (UpstreamConfig{BaseURL: "http://x"}).Enabled() {
		t.Fatalf("expected disabled without key")
	}
}

func TestWatcherReloadsValidEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voiceui.yml")
	if err := os.WriteFile(path, []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	got := make(chan *Config, 4)
	w := Watcher{Path: path, Logger: zerolog.Nop(), Debounce: 20 * time.Millisecond, OnChange: func(c *Config) { got <- c }}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	bad := strings.Replace(GenerateDefault(), "mode: auto", "mode: psychic", 1)
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	select {
	case <-got:
		t.Fatalf("invalid config must not be delivered")
	default:
	}

	good := strings.Replace(GenerateDefault(), "limit: 60, window: 1m}\n    plan", "limit: 7, window: 1m}\n    plan", 1)
	if err := os.WriteFile(path, []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-got:
		if c.RateLimits.Tiers.Transcribe.Limit != 7 {
			t.Fatalf("unexpected reloaded tier %+v", c.RateLimits.Tiers.Transcribe)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no reload observed")
	}
}

func TestWebhookValidation(t *testing.T) {
	cfg, err := FromYAML([]byte("webhooks:\n  - url: https://hooks.example.com/voice\n    statuses: [error]\n  - url: https://off.example.com\n    enabled: false\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.Webhooks[0].Active() || cfg.Webhooks[1].Active() {
		t.Fatalf("unexpected active flags %+v", cfg.Webhooks)
	}
	if _, err := FromYAML([]byte("webhooks:\n  - url: ftp://x\n")); err == nil {
		t.Fatalf("expected scheme error")
	}
	if _, err := FromYAML([]byte("webhooks:\n  - url: https://x\n    statuses: [maybe]\n")); err == nil {
		t.Fatalf("expected status error")
	}
}
