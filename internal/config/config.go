package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"voiceui/internal/ratelimit"
)

// Config models voiceui.yml.
type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Auth        AuthConfig      `yaml:"auth"`
	RateLimits  RateLimitConfig `yaml:"rate_limits"`
	Planner     UpstreamConfig  `yaml:"planner"`
	Transcriber UpstreamConfig  `yaml:"transcriber"`
	Engine      EngineConfig    `yaml:"engine"`
	Browser     BrowserConfig   `yaml:"browser"`
	Journal     JournalConfig   `yaml:"journal"`
	Webhooks    []WebhookConfig `yaml:"webhooks"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	BasePath       string   `yaml:"base_path"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	DevMode        bool     `yaml:"dev_mode"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type RateLimitConfig struct {
	SweepInterval time.Duration   `yaml:"sweep_interval"`
	Tiers         ratelimit.Tiers `yaml:"tiers"`
}

// UpstreamConfig points at an OpenAI-compatible endpoint. The key is read
// from the named environment variable, never from the file.
type UpstreamConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// APIKey resolves the key from the environment.
func (u UpstreamConfig) APIKey() string {
	if u.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(u.APIKeyEnv)
}

// Enabled reports whether the upstream can be called.
func (u UpstreamConfig) Enabled() bool {
	return u.BaseURL != "" && u.APIKey() != ""
}

type EngineConfig struct {
	Mode              string `yaml:"mode"`
	SerializeSessions bool   `yaml:"serialize_sessions"`
}

type BrowserConfig struct {
	ControlURL string `yaml:"control_url"`
	Headless   bool   `yaml:"headless"`
}

// JournalConfig locates the outcome journal. Empty keeps it in memory.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// WebhookConfig posts journaled outcomes to URL. Statuses filters by outcome
// status; empty means all.
type WebhookConfig struct {
	URL      string        `yaml:"url"`
	Secret   string        `yaml:"secret"`
	Statuses []string      `yaml:"statuses"`
	Timeout  time.Duration `yaml:"timeout"`
	Enabled  *bool         `yaml:"enabled"`
}

// Active reports whether the hook should receive deliveries.
func (w WebhookConfig) Active() bool {
	return strings.TrimSpace(w.URL) != "" && (w.Enabled == nil || *w.Enabled)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	for _, o := range c.Server.AllowedOrigins {
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.server.allowed_origins has invalid origin %q", o)
		}
	}
	if c.RateLimits.SweepInterval < 0 {
		return fmt.Errorf("config.rate_limits.sweep_interval must not be negative")
	}
	if err := c.RateLimits.Tiers.Validate(); err != nil {
		return fmt.Errorf("config.%w", err)
	}
	for name, u := range map[string]UpstreamConfig{"planner": c.Planner, "transcriber": c.Transcriber} {
		if u.BaseURL != "" && u.Model == "" {
			return fmt.Errorf("config.%s.model is required when base_url is set", name)
		}
		if u.Timeout < 0 {
			return fmt.Errorf("config.%s.timeout must not be negative", name)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			continue
		}
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) url", i)
		}
		for _, st := range hook.Statuses {
			if st != "success" && st != "error" {
				return fmt.Errorf("config.webhooks[%d].statuses has unknown status %q", i, st)
			}
		}
	}
	switch c.Engine.Mode {
	case "", "static", "ai", "auto":
	default:
		return fmt.Errorf("config.engine.mode must be static, ai or auto")
	}
	return nil
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep
// their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults when path is empty.
func LoadOptional(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return FromFile(path)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0
  allowed_origins:
    - http://localhost:3000
  dev_mode: false

auth:
  jwt_secret: ""

rate_limits:
  sweep_interval: 1m
  tiers:
    transcribe: {limit: 60, window: 1m}
    plan: {limit: 60, window: 1m}
    default: {limit: 100, window: 15m}

planner:
  base_url: https://api.groq.com/openai/v1
  model: llama-3.1-8b-instant
  api_key_env: GROQ_API_KEY
  timeout: 30s

transcriber:
  base_url: https://api.openai.com/v1
  model: whisper-1
  api_key_env: OPENAI_API_KEY
  timeout: 60s

engine:
  mode: auto
  serialize_sessions: true

browser:
  control_url: ""
  headless: true

journal:
  path: ""

webhooks: []
`
