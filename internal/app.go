// Package internal provides the App struct that wires the tasker components
// together and hands them to the CLI layer.
package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/valter-silva-au/tasker/internal/apiclient"
	"github.com/valter-silva-au/tasker/internal/cli"
	"github.com/valter-silva-au/tasker/internal/core"
	"github.com/valter-silva-au/tasker/internal/observability"
	"github.com/valter-silva-au/tasker/internal/storage"
	"github.com/valter-silva-au/tasker/pkg/models"
)

// Options carries command-line overrides applied on top of config.yaml.
type Options struct {
	APIURL  string
	Verbose bool
	// LogOutput receives diagnostic logs. Defaults to stderr.
	LogOutput io.Writer
	UserAgent string
}

// App holds every long-lived component. It owns the stores and tears them
// down in Close.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.Config
	Logger    *slog.Logger

	// Storage and transport
	Credentials storage.CredentialStore
	Client      *apiclient.Client

	// State containers
	Auth    *core.AuthStore
	Tasks   *core.TaskStore
	Stats   *core.StatsEngine
	Mutator *core.TaskMutator

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
}

// NewApp loads configuration from basePath, builds every component and
// publishes them to the cli package.
func NewApp(basePath string, opts Options) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if opts.APIURL != "" {
		cfg.API.BaseURL = opts.APIURL
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	if cfg.API.UserAgent == "" {
		cfg.API.UserAgent = opts.UserAgent
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	logOut := opts.LogOutput
	if logOut == nil {
		logOut = os.Stderr
	}
	app.Logger = NewLogger(cfg.Log, logOut)

	// --- Observability ---
	app.EventLog, err = observability.NewJSONLEventLog(filepath.Join(basePath, "events.jsonl"))
	if err != nil {
		// Non-fatal: run without an activity log.
		app.Logger.Warn("event log disabled", "error", err)
		app.EventLog = nil
	}
	var events core.EventLogger
	if app.EventLog != nil {
		events = &eventLogAdapter{log: app.EventLog}
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	thresholds := observability.DefaultAlertThresholds()
	thresholds.DueSoonDays = cfg.Stats.DueSoonDays
	app.AlertEngine = observability.NewAlertEngine(app.EventLog, thresholds)
	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Notifications.Slack.WebhookURL)
	}

	// --- Storage and transport ---
	app.Credentials = storage.NewFileCredentialStore(basePath)
	app.Client, err = apiclient.New(cfg.API.BaseURL,
		apiclient.WithTimeout(cfg.API.Timeout),
		apiclient.WithTokenSource(apiclient.TokenFunc(app.Credentials.Load)),
		apiclient.WithLogger(app.Logger.With("component", "apiclient")),
		apiclient.WithUserAgent(cfg.API.UserAgent),
	)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("creating API client: %w", err)
	}

	// --- State containers ---
	storeOpts := []core.Option{
		core.WithEventLogger(events),
		core.WithLogger(app.Logger.With("component", "store")),
	}
	app.Auth, err = core.NewAuthStore(app.Client, app.Credentials, storeOpts...)
	if err != nil {
		// The store is usable (logged out); surface the problem in the log.
		app.Logger.Warn("stored session could not be read", "error", err)
	}
	app.Tasks = core.NewTaskStore(app.Client, storeOpts...)
	app.Stats = core.NewStatsEngine(app.Tasks, cfg.Stats.DueSoonDays, storeOpts...)
	app.Mutator = core.NewTaskMutator(app.Client, app.Tasks, storeOpts...)

	// --- Wire CLI ---
	cli.BasePath = basePath
	cli.AppConfig = cfg
	cli.ConfigFile = app.ConfigMgr.ConfigFile()
	cli.Logger = app.Logger
	cli.Auth = app.Auth
	cli.Tasks = app.Tasks
	cli.Stats = app.Stats
	cli.Mutator = app.Mutator
	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	return app, nil
}

// Close detaches the stores and releases the event log file handle. It is
// safe to call on a partially built App.
func (a *App) Close() error {
	if a.Stats != nil {
		a.Stats.Close()
	}
	if a.Tasks != nil {
		a.Tasks.Close()
	}
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// NewLogger builds the diagnostic logger described by cfg.
func NewLogger(cfg models.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// ResolveBasePath determines the tasker data directory: TASKER_HOME, then
// $XDG_CONFIG_HOME/tasker, then ~/.tasker.
func ResolveBasePath() string {
	if home := os.Getenv("TASKER_HOME"); home != "" {
		return home
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tasker")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tasker"
	}
	return filepath.Join(home, ".tasker")
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	if a.log == nil {
		return errors.New("event log not available")
	}
	return a.log.Write(observability.NewEvent(eventType, data))
}
