// Package assistant wires the StudyMate daemon together: configuration,
// storage, the Gemini client, the dialogue resolver, channels, and the
// scheduled maintenance jobs.
package assistant

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/studymate-ai/studymate/pkg/studymate/channels/whatsapp"
	"github.com/studymate-ai/studymate/pkg/studymate/gemini"
	"github.com/studymate-ai/studymate/pkg/studymate/resolver"
)

// DefaultConfigPath is where the daemon looks for its config file.
const DefaultConfigPath = "./studymate.yaml"

// Config is the root configuration, loaded from YAML.
type Config struct {
	Logging  LoggingConfig   `yaml:"logging"`
	Database DatabaseConfig  `yaml:"database"`
	API      gemini.Config   `yaml:"api"`
	Channels ChannelsConfig  `yaml:"channels"`
	Resolver resolver.Config `yaml:"resolver"`
	Credits  CreditsConfig   `yaml:"credits"`
	Session  SessionConfig   `yaml:"session"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DatabaseConfig locates the central SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ChannelsConfig enables and configures the communication channels.
type ChannelsConfig struct {
	WhatsApp WhatsAppChannelConfig `yaml:"whatsapp"`
}

// WhatsAppChannelConfig wraps the whatsapp channel config with an enable flag.
type WhatsAppChannelConfig struct {
	whatsapp.Config `yaml:",inline"`

	Enabled bool `yaml:"enabled"`
}

// CreditsConfig tunes the daily study-credit allowance.
type CreditsConfig struct {
	// Daily is the per-student allowance restored by the overnight job.
	Daily int `yaml:"daily"`

	// ExhaustedPolicy is "warn" or "block" (resolver.CreditPolicy).
	ExhaustedPolicy string `yaml:"exhausted_policy"`
}

// SessionConfig tunes the idle-session sweep.
type SessionConfig struct {
	// IdleTimeoutMinutes is how long a student can be silent before their
	// context window is cleared. 0 disables the sweep.
	IdleTimeoutMinutes int `yaml:"idle_timeout_minutes"`

	// SweepIntervalMinutes is how often the sweep runs.
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Path: "./data/studymate.db"},
		API: gemini.Config{
			Model: gemini.DefaultModel,
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppChannelConfig{
				Enabled: true,
				Config:  whatsapp.DefaultConfig(),
			},
		},
		Resolver: resolver.Config{
			TopicThreshold:    resolver.DefaultTopicThreshold,
			GenTimeoutSeconds: 30,
			CreditPolicy:      resolver.CreditWarn,
		},
		Credits: CreditsConfig{Daily: 50, ExhaustedPolicy: string(resolver.CreditWarn)},
		Session: SessionConfig{IdleTimeoutMinutes: 30, SweepIntervalMinutes: 5},
	}
}

// LoadConfig reads the YAML config at path, layered over the defaults. A
// missing file is not an error; the defaults apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

// Save writes the config as YAML, creating the file with 0600 since it can
// carry an API key.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func (c Config) validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	switch resolver.CreditPolicy(c.Credits.ExhaustedPolicy) {
	case "", resolver.CreditWarn, resolver.CreditBlock:
	default:
		return fmt.Errorf("invalid credits exhausted_policy %q (want warn or block)", c.Credits.ExhaustedPolicy)
	}
	if c.Resolver.TopicThreshold < 0 || c.Resolver.TopicThreshold > 1 {
		return fmt.Errorf("resolver topic_threshold must be in [0,1], got %v", c.Resolver.TopicThreshold)
	}
	return nil
}

// IdleTimeout returns the configured idle timeout as a duration.
func (c SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

// SweepInterval returns the sweep interval, defaulting to five minutes.
func (c SessionConfig) SweepInterval() time.Duration {
	if c.SweepIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// NewLogger builds an slog.Logger from the logging config.
func NewLogger(cfg LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
