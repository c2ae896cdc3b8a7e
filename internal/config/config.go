// Package config loads application configuration from an optional YAML file
// and DIARYMIRROR_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const envPrefix = "DIARYMIRROR"

// Config holds the application configuration.
type Config struct {
	ListenAddr   string             `mapstructure:"listen_addr" validate:"required,hostname_port"`
	DBPath       string             `mapstructure:"db_path" validate:"required"`
	KeyPath      string             `mapstructure:"key_path" validate:"required"`
	Log          LogConfig          `mapstructure:"log"`
	Diary        DiaryConfig        `mapstructure:"diary"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Webhook      WebhookConfig      `mapstructure:"webhook"`
	Conversation ConversationConfig `mapstructure:"conversation"`
}

// LogConfig sets the minimum log level.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
}

// DiaryConfig configures the remote diary client. Timeout bounds every
// interactive remote call: login, verification and a picked day's fetch.
type DiaryConfig struct {
	BaseURL       string        `mapstructure:"base_url" validate:"required,url"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RetryAttempts uint          `mapstructure:"retry_attempts" validate:"lte=10"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

// SyncConfig tunes the recurring fleet sync. UserTimeout also bounds the
// refresh that follows a login.
type SyncConfig struct {
	Interval    time.Duration `mapstructure:"interval" validate:"gt=0"`
	UserTimeout time.Duration `mapstructure:"user_timeout" validate:"gt=0"`
	Parallelism int           `mapstructure:"parallelism" validate:"min=1,max=32"`
}

// WebhookConfig holds the shared secret the chat transport must present. An
// empty secret disables the check.
type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

// ConversationConfig sets how long an idle chat conversation is kept in memory.
type ConversationConfig struct {
	IdleTTL time.Duration `mapstructure:"idle_ttl" validate:"gt=0"`
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configures defaults and env bindings on v. Every key gets a
// default so AutomaticEnv can see it during Unmarshal.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", "127.0.0.1:8080")
	v.SetDefault("db_path", "diarymirror.db")
	v.SetDefault("key_path", "encryption.key")
	v.SetDefault("log.level", "info")
	v.SetDefault("diary.base_url", "")
	v.SetDefault("diary.timeout", 15*time.Second)
	v.SetDefault("diary.retry_attempts", 2)
	v.SetDefault("diary.retry_delay", 500*time.Millisecond)
	v.SetDefault("sync.interval", time.Hour)
	v.SetDefault("sync.user_timeout", 30*time.Second)
	v.SetDefault("sync.parallelism", 2)
	v.SetDefault("webhook.secret", "")
	v.SetDefault("conversation.idle_ttl", 2*time.Hour)
}

// Load reads configFile (if non-empty) into v, unmarshals the result and
// validates it. Environment variables override file values.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	validate, trans, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("create validator: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return nil, fmt.Errorf("validate configuration: %w", err)
		}
		msgs := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			msgs = append(msgs, e.Translate(trans))
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
	}

	return &cfg, nil
}
