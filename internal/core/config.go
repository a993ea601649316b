// Package core contains the client-side state of tasker: the auth store,
// the task store, derived statistics, task mutations and configuration.
package core

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valter-silva-au/tasker/pkg/models"
)

// DefaultBaseURL is used when no API URL is configured.
const DefaultBaseURL = "http://localhost:5000/api"

// ConfigurationManager loads and validates config.yaml.
type ConfigurationManager interface {
	LoadConfig() (*models.Config, error)
	ValidateConfig(cfg *models.Config) error
	ConfigFile() string
}

// viperConfigManager reads config.yaml from basePath with environment
// overrides prefixed TASKER_.
type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager for the data
// directory basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns the configuration used when config.yaml is absent.
func DefaultConfig() *models.Config {
	return &models.Config{
		API: models.APIConfig{
			BaseURL: DefaultBaseURL,
			Timeout: 30 * time.Second,
		},
		Log: models.LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Stats: models.StatsConfig{DueSoonDays: DefaultDueSoonDays},
	}
}

func (cm *viperConfigManager) ConfigFile() string {
	return filepath.Join(cm.basePath, "config.yaml")
}

// LoadConfig reads config.yaml. A missing file yields the defaults with any
// environment overrides applied.
func (cm *viperConfigManager) LoadConfig() (*models.Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	v.SetEnvPrefix("TASKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Short names for the settings most often overridden.
	_ = v.BindEnv("api.base_url", "TASKER_API_URL", "TASKER_API_BASE_URL")
	_ = v.BindEnv("notifications.slack.webhook_url", "TASKER_SLACK_WEBHOOK_URL", "TASKER_NOTIFICATIONS_SLACK_WEBHOOK_URL")

	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.timeout", def.API.Timeout.String())
	v.SetDefault("api.user_agent", "")
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("stats.due_soon_days", def.Stats.DueSoonDays)
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.slack.webhook_url", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config.yaml: %w", err)
		}
	}

	cfg := &models.Config{
		API: models.APIConfig{
			BaseURL:   v.GetString("api.base_url"),
			Timeout:   v.GetDuration("api.timeout"),
			UserAgent: v.GetString("api.user_agent"),
		},
		Log: models.LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Stats: models.StatsConfig{DueSoonDays: v.GetInt("stats.due_soon_days")},
		Notifications: models.NotificationsConfig{
			Enabled: v.GetBool("notifications.enabled"),
			Slack:   models.SlackConfig{WebhookURL: v.GetString("notifications.slack.webhook_url")},
		},
	}
	return cfg, nil
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
)

// ValidateConfig reports every invalid field at once.
func (cm *viperConfigManager) ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.API.BaseURL == "" {
		errs = append(errs, "api.base_url must not be empty")
	} else if u, err := url.Parse(cfg.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("api.base_url %q must be an absolute http or https URL", cfg.API.BaseURL))
	}
	if cfg.API.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("api.timeout must be positive, got %s", cfg.API.Timeout))
	}
	if !validLogLevels[cfg.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid, must be one of: debug, info, warn, error", cfg.Log.Level))
	}
	if !validLogFormats[cfg.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format %q is invalid, must be text or json", cfg.Log.Format))
	}
	if cfg.Stats.DueSoonDays < 1 || cfg.Stats.DueSoonDays > 365 {
		errs = append(errs, fmt.Sprintf("stats.due_soon_days %d is invalid, must be between 1 and 365", cfg.Stats.DueSoonDays))
	}
	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL == "" {
		errs = append(errs, "notifications.slack.webhook_url is required when notifications are enabled")
	}
	if hook := cfg.Notifications.Slack.WebhookURL; hook != "" && !strings.HasPrefix(hook, "https://") {
		errs = append(errs, fmt.Sprintf("notifications.slack.webhook_url %q must use https", hook))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
