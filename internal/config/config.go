// Package config loads application configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Tasks   TasksConfig   `mapstructure:"tasks"`
	Storage StorageConfig `mapstructure:"storage"`
	Media   MediaConfig   `mapstructure:"media"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Port   int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	APIKey string `mapstructure:"api_key"`
}

type PathsConfig struct {
	DataDir string `mapstructure:"data_dir" validate:"required"`
	TempDir string `mapstructure:"temp_dir" validate:"required"`
}

type TasksConfig struct {
	MaxConcurrent  int           `mapstructure:"max_concurrent" validate:"required,gt=0"`
	RetentionHours int           `mapstructure:"retention_hours" validate:"required,gt=0"`
	TiersFile      string        `mapstructure:"tiers_file"`
	SourcesFile    string        `mapstructure:"sources_file"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

type StorageConfig struct {
	QuotaGB      float64 `mapstructure:"quota_gb" validate:"gte=0"`
	CacheHours   int     `mapstructure:"cache_hours" validate:"required,gt=0"`
	RcloneRemote string  `mapstructure:"rclone_remote"`
	EnableRemote bool    `mapstructure:"enable_remote"`
	// Cron spec for the periodic maintenance sweep.
	MaintenanceSchedule string `mapstructure:"maintenance_schedule" validate:"required"`
}

type MediaConfig struct {
	YtdlpPath     string `mapstructure:"ytdlp_path"`
	FFmpegPath    string `mapstructure:"ffmpeg_path"`
	MaxResolution string `mapstructure:"max_resolution" validate:"required,oneof=360p 480p 720p 1080p"`
	DefaultFormat string `mapstructure:"default_format" validate:"required"`
	WhisperModel  string `mapstructure:"whisper_model"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

// QuotaBytes converts the configured quota to bytes.
func (s StorageConfig) QuotaBytes() int64 {
	return int64(s.QuotaGB * 1024 * 1024 * 1024)
}

// CacheTTL returns how long an unaccessed cached artifact is kept.
func (s StorageConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheHours) * time.Hour
}

// RetentionDuration returns the task retention window.
func (t TasksConfig) RetentionDuration() time.Duration {
	return time.Duration(t.RetentionHours) * time.Hour
}

// Load reads configuration from environment variables (NEWSLEARN_ prefix,
// nested keys joined with underscores) with defaults suitable for local use.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("paths.data_dir", "./data")
	v.SetDefault("paths.temp_dir", "./data/temp")
	v.SetDefault("tasks.max_concurrent", 2)
	v.SetDefault("tasks.retention_hours", 24)
	v.SetDefault("tasks.tiers_file", "./config/tiers.json")
	v.SetDefault("tasks.sources_file", "./config/sources.json")
	v.SetDefault("tasks.poll_interval", 2*time.Second)
	v.SetDefault("storage.quota_gb", 10.0)
	v.SetDefault("storage.cache_hours", 24)
	v.SetDefault("storage.rclone_remote", "")
	v.SetDefault("storage.enable_remote", false)
	v.SetDefault("storage.maintenance_schedule", "@hourly")
	v.SetDefault("media.ytdlp_path", "yt-dlp")
	v.SetDefault("media.ffmpeg_path", "ffmpeg")
	v.SetDefault("media.max_resolution", "720p")
	v.SetDefault("media.default_format", "720p")
	v.SetDefault("media.whisper_model", "base")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix("NEWSLEARN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	validate := validator.New()
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		msgs := make([]string, 0, len(errs))
		for _, fe := range errs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return fmt.Errorf("configuration validation failed: %w", err)
}
