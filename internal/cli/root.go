package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// GlobalOptions are the persistent flags shared by every command.
type GlobalOptions struct {
	APIURL  string
	Verbose bool
}

// Setup builds the application services before a command runs. It is
// installed by main; when nil, commands use whatever services are already
// assigned to the package variables.
var Setup func(opts GlobalOptions) (io.Closer, error)

var (
	globalOpts GlobalOptions
	appCloser  io.Closer
)

// skipSetup marks commands that run without application services.
const skipSetup = "tasker/skip-setup"

var rootCmd = &cobra.Command{
	Use:   "tasker",
	Short: "Terminal client for the todo task service",
	Long: `tasker signs in to a todo task service and manages your tasks from the
terminal: list, create, change status and delete them, see summary
statistics and deadline alerts, or browse everything in an interactive
dashboard.

Settings are read from config.yaml in the tasker data directory
(TASKER_HOME, else $XDG_CONFIG_HOME/tasker, else ~/.tasker).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if Setup == nil || cmd.Annotations[skipSetup] == "true" {
			return nil
		}
		closer, err := Setup(globalOpts)
		if err != nil {
			return err
		}
		appCloser = closer
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp()
	},
}

// closeApp releases the services opened by Setup. cobra skips post-run
// hooks when a command fails, so executeContext calls it again.
func closeApp() error {
	if appCloser == nil {
		return nil
	}
	err := appCloser.Close()
	appCloser = nil
	return err
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{skipSetup: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "tasker %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalOpts.APIURL, "api-url", "", "Base URL of the task API (overrides api.base_url)")
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.Verbose, "verbose", "v", false, "Log requests and store activity to stderr")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command. Interrupts cancel in-flight requests.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return executeContext(ctx)
}

func executeContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if closeErr := closeApp(); err == nil {
		err = closeErr
	}
	return err
}

// commandContext returns the command's context, or Background when the
// command is invoked directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
