// Package config provides configuration loading, defaulting, and validation
// for the groupsift service. Values come from a YAML file and from
// GROUPSIFT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration sections for the service.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// ServerConfig controls the inbound HTTP listener.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"      validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
}

// DatabaseConfig controls SQLite storage.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// IngestConfig controls the message ingestion pipeline.
type IngestConfig struct {
	// LimitToGroupJID restricts ingestion of group messages to a single
	// group (canonical JID). Empty means no restriction.
	LimitToGroupJID string `mapstructure:"limit_to_group_jid"`

	// FreshnessWindow rejects payloads older than now minus this duration.
	FreshnessWindow time.Duration `mapstructure:"freshness_window" validate:"min=1m"`

	// MinWords is the minimum whitespace-tokenized word count a message
	// text must exceed to be ingested. 0 disables the length filter.
	MinWords int `mapstructure:"min_words" validate:"min=0"`

	// BackfillGroupNames fills in an empty stored group name when a later
	// payload carries a group subject. Off by default.
	BackfillGroupNames bool `mapstructure:"backfill_group_names"`
}

// GeminiConfig controls the relevance classifier. An empty APIKey disables
// classification entirely.
type GeminiConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	ModelName   string        `mapstructure:"model_name" validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=1s,max=10m"`
}

// NotifierConfig controls the outbound notification channel. When
// WebhookURL is set the HTTP webhook backend is used; otherwise, when both
// Telegram fields are set, the Telegram backend is used. Neither set means
// notifications are disabled.
type NotifierConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url"      validate:"omitempty,url"`
	Timeout        time.Duration `mapstructure:"timeout"          validate:"min=1s,max=5m"`
	TelegramToken  string        `mapstructure:"telegram_token"`
	TelegramChatID int64         `mapstructure:"telegram_chat_id"`
}

// SchedulerConfig holds the scheduled task table, keyed by task name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`

	// Retention is how long messages are kept by the purge_stale task.
	Retention time.Duration `mapstructure:"retention" validate:"min=1h"`
}

// TaskConfig enables a single scheduled task with a cron expression.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// LoadConfig reads configuration from the given YAML file (if it exists),
// applies defaults and environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("GROUPSIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars apply.
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", true)

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.path", "storage.db")

	// Empty defaults register the keys with viper so environment
	// overrides apply even when the key is absent from the config file.
	v.SetDefault("ingest.limit_to_group_jid", "")
	v.SetDefault("ingest.freshness_window", 4*24*time.Hour)
	v.SetDefault("ingest.min_words", 2)
	v.SetDefault("ingest.backfill_group_names", false)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.0)
	v.SetDefault("gemini.timeout", 30*time.Second)

	v.SetDefault("notifier.webhook_url", "")
	v.SetDefault("notifier.timeout", 10*time.Second)
	v.SetDefault("notifier.telegram_token", "")
	v.SetDefault("notifier.telegram_chat_id", 0)

	v.SetDefault("scheduler.retention", 90*24*time.Hour)
}
