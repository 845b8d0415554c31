// Package config loads and validates talbot configuration from
// ~/.talbot/config.yaml with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds the bot token and access control list.
type TelegramConfig struct {
	Token string `yaml:"token"`
	// AllowedIDs restricts which chats the bot serves. Empty means all.
	AllowedIDs []int64 `yaml:"allowed_ids"`
}

// LLMConfig selects the summarization provider and model.
type LLMConfig struct {
	// Provider names the active LLM provider: "anthropic", "openai", "google".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	// MaxInputChars caps the joined transcript passed to the provider.
	MaxInputChars int `yaml:"max_input_chars"`
}

// RetentionConfig controls the message retention sweeper.
type RetentionConfig struct {
	Hours                int `yaml:"hours"`
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

// DigestConfig controls recurring and ad-hoc summaries.
type DigestConfig struct {
	// Cron is the recurring broadcast schedule (standard 5-field expression).
	Cron string `yaml:"cron"`
	// SuppressEmpty skips delivery when a conversation had no messages.
	SuppressEmpty bool `yaml:"suppress_empty"`
	// Windows maps selectable labels ("1h", "4h", ...) to a span in seconds.
	Windows map[string]int64 `yaml:"windows"`
}

// CommandsConfig holds API keys for the stateless command wrappers.
type CommandsConfig struct {
	OMDbAPIKey string `yaml:"omdb_api_key"`
}

// TelemetryConfig mirrors the otel package config in yaml form.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	LogLevel string `yaml:"log_level"`

	Telegram  TelegramConfig  `yaml:"telegram"`
	LLM       LLMConfig       `yaml:"llm"`
	Retention RetentionConfig `yaml:"retention"`
	Digest    DigestConfig    `yaml:"digest"`
	Commands  CommandsConfig  `yaml:"commands"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DefaultWindows are the selectable summary spans offered by /summary.
func DefaultWindows() map[string]int64 {
	return map[string]int64{
		"1h":  3600,
		"4h":  4 * 3600,
		"6h":  6 * 3600,
		"12h": 12 * 3600,
		"24h": 24 * 3600,
	}
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		LLM: LLMConfig{
			Provider:      "anthropic",
			Model:         "claude-3-haiku-20240307",
			MaxInputChars: 100000,
		},
		Retention: RetentionConfig{
			Hours:                24,
			SweepIntervalMinutes: 60,
		},
		// Windows stays nil here: yaml.v3 merges mapping nodes into a
		// non-nil map, which would union configured windows with the
		// defaults instead of replacing them. normalize fills the
		// default set when the file configures none.
		Digest: DigestConfig{
			Cron: "0 0 * * *",
		},
	}
}

// HomeDir returns the talbot home directory, honoring TALBOT_HOME.
func HomeDir() string {
	if override := os.Getenv("TALBOT_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".talbot")
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads config.yaml from the talbot home directory, applies env
// overrides, normalizes defaults and validates the result.
func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom is Load with an explicit home directory, for tests.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create talbot home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("TELEGRAM_TOKEN"); raw != "" {
		cfg.Telegram.Token = raw
	}
	if raw := os.Getenv("TALBOT_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("TALBOT_RETENTION_HOURS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Retention.Hours = v
		}
	}
	if raw := os.Getenv("TALBOT_SWEEP_INTERVAL_MINUTES"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Retention.SweepIntervalMinutes = v
		}
	}
	if raw := os.Getenv("TALBOT_DIGEST_CRON"); raw != "" {
		cfg.Digest.Cron = raw
	}
	if raw := os.Getenv("OMDB_API_KEY"); raw != "" {
		cfg.Commands.OMDbAPIKey = raw
	}
	// Provider keys take precedence over the yaml api_key for the
	// matching provider.
	switch cfg.LLM.Provider {
	case "anthropic", "":
		if raw := os.Getenv("ANTHROPIC_API_KEY"); raw != "" {
			cfg.LLM.APIKey = raw
		}
	case "openai":
		if raw := os.Getenv("OPENAI_API_KEY"); raw != "" {
			cfg.LLM.APIKey = raw
		}
	case "google":
		if raw := os.Getenv("GEMINI_API_KEY"); raw != "" {
			cfg.LLM.APIKey = raw
		}
	}
}

func normalize(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-3-haiku-20240307"
	}
	if cfg.LLM.MaxInputChars <= 0 {
		cfg.LLM.MaxInputChars = 100000
	}
	if cfg.Retention.Hours <= 0 {
		cfg.Retention.Hours = 24
	}
	if cfg.Retention.SweepIntervalMinutes <= 0 {
		cfg.Retention.SweepIntervalMinutes = 60
	}
	if strings.TrimSpace(cfg.Digest.Cron) == "" {
		cfg.Digest.Cron = "0 0 * * *"
	}
	if len(cfg.Digest.Windows) == 0 {
		cfg.Digest.Windows = DefaultWindows()
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (set TELEGRAM_TOKEN or config.yaml)")
	}
	for key, seconds := range cfg.Digest.Windows {
		if seconds <= 0 {
			return fmt.Errorf("digest.windows[%s] must be positive, got %d", key, seconds)
		}
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cfg.Digest.Cron); err != nil {
		return fmt.Errorf("digest.cron %q: %w", cfg.Digest.Cron, err)
	}
	return nil
}
