package models

import "time"

// APIConfig holds settings for reaching the remote task API.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent string        `yaml:"user_agent,omitempty" mapstructure:"user_agent"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StatsConfig tunes the statistics engine.
type StatsConfig struct {
	DueSoonDays int `yaml:"due_soon_days" mapstructure:"due_soon_days"`
}

// SlackConfig holds the incoming webhook used for alert notifications.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url,omitempty" mapstructure:"webhook_url"`
}

// NotificationsConfig controls alert delivery.
type NotificationsConfig struct {
	Enabled bool        `yaml:"enabled" mapstructure:"enabled"`
	Slack   SlackConfig `yaml:"slack" mapstructure:"slack"`
}

// Config holds client settings read from config.yaml via Viper.
type Config struct {
	API           APIConfig           `yaml:"api" mapstructure:"api"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
	Stats         StatsConfig         `yaml:"stats" mapstructure:"stats"`
	Notifications NotificationsConfig `yaml:"notifications" mapstructure:"notifications"`
}
