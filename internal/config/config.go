package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Cache      CacheConfig      `yaml:"cache"`
	Document   DocumentConfig   `yaml:"document"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig configures the persisted low-score concentration cache.
type CacheConfig struct {
	TTL        string `yaml:"ttl"`
	MaxEntries int    `yaml:"max_entries"`
	StorageKey string `yaml:"storage_key"`
}

// ParseTTL returns the TTL as time.Duration.
func (c CacheConfig) ParseTTL() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return 12 * time.Hour
	}
	return d
}

// DocumentConfig describes the host page.
type DocumentConfig struct {
	ItemSelector string `yaml:"item_selector"`
	BaseURL      string `yaml:"base_url"` // location of local snapshot files
}

// FetchConfig configures outbound HTTP requests.
type FetchConfig struct {
	UserAgent string `yaml:"user_agent"`
	Timeout   string `yaml:"timeout"`
	Cookie    string `yaml:"cookie"` // sent with comment listing requests (optional)
}

// ParseTimeout returns the request timeout as time.Duration.
func (f FetchConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(f.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ClassifierConfig configures the toxicity classifier.
type ClassifierConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // "huggingface", "openai", "anthropic" or "gemini"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"` // custom endpoint (optional)
	Timeout  string `yaml:"timeout"`
}

// ParseTimeout returns the classifier timeout as time.Duration.
func (c ClassifierConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ScheduleConfig configures remote document polling.
type ScheduleConfig struct {
	PollInterval string `yaml:"poll_interval"`
}

// ParsePollInterval returns the poll interval as time.Duration.
func (s ScheduleConfig) ParsePollInterval() time.Duration {
	d, err := time.ParseDuration(s.PollInterval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Threshold float64       `yaml:"threshold"`
	Slack     SlackConfig   `yaml:"slack"`
	Discord   DiscordConfig `yaml:"discord"`
	Webhook   WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures the default slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./feedpulse.db"},
		Cache: CacheConfig{
			TTL:        "12h",
			MaxEntries: 500,
			StorageKey: "lowScoreConcentrationCache",
		},
		Document: DocumentConfig{
			ItemSelector: "shreddit-post",
			BaseURL:      "https://www.reddit.com/",
		},
		Fetch: FetchConfig{
			UserAgent: "feedpulse/1.0",
			Timeout:   "30s",
		},
		Classifier: ClassifierConfig{
			Provider: "huggingface",
			Model:    "unitary/toxic-bert",
			Timeout:  "30s",
		},
		Schedule: ScheduleConfig{PollInterval: "5m"},
		Alerts:   AlertsConfig{Threshold: 0.7},
		Server:   ServerConfig{Port: 8080},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
// A provider key enables the classifier with that provider; the last one
// set in this order wins.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FEEDPULSE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("FEEDPULSE_COOKIE"); v != "" {
		cfg.Fetch.Cookie = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}

	providers := []struct {
		env, name, model string
	}{
		{"HF_API_TOKEN", "huggingface", "unitary/toxic-bert"},
		{"OPENAI_API_KEY", "openai", "gpt-4o-mini"},
		{"ANTHROPIC_API_KEY", "anthropic", "claude-sonnet-4-20250514"},
		{"GEMINI_API_KEY", "gemini", "gemini-2.0-flash"},
	}
	for _, p := range providers {
		v := os.Getenv(p.env)
		if v == "" {
			continue
		}
		if cfg.Classifier.Provider != p.name {
			cfg.Classifier.Model = p.model
		}
		cfg.Classifier.APIKey = v
		cfg.Classifier.Enabled = true
		cfg.Classifier.Provider = p.name
	}
}
