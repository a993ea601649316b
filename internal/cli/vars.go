package cli

import (
	"log/slog"

	"github.com/valter-silva-au/tasker/internal/core"
	"github.com/valter-silva-au/tasker/internal/observability"
	"github.com/valter-silva-au/tasker/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath   string
	ConfigFile string
	AppConfig  *models.Config
	Logger     *slog.Logger

	Auth    *core.AuthStore
	Tasks   *core.TaskStore
	Stats   *core.StatsEngine
	Mutator *core.TaskMutator

	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)
