package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	alertsNotify bool
	alertsJSON   bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show overdue and due-soon tasks",
	Long: `Fetch the task list and report overdue tasks, tasks due soon, and repeated
fetch failures recorded in the event log.

With --notify, active alerts are also posted to the configured Slack webhook.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized")
		}
		if err := requireLogin(); err != nil {
			return err
		}
		ctx := commandContext(cmd)

		// A failed fetch is recorded in the event log and can itself raise
		// an alert, so evaluation continues on the cached list.
		fetchErr := Tasks.FetchTasks(ctx)
		if fetchErr != nil && Logger != nil {
			Logger.Warn("fetching tasks for alerts", "error", fetchErr)
		}

		alerts, err := AlertEngine.Evaluate(Tasks.Snapshot().Tasks, nowFunc())
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}

		out := cmd.OutOrStdout()
		if alertsJSON {
			if err := writeJSON(out, alerts); err != nil {
				return err
			}
		} else if len(alerts) == 0 {
			_, _ = fmt.Fprintln(out, "No active alerts.")
		} else {
			_, _ = fmt.Fprintf(out, "%d active alert(s):\n\n", len(alerts))
			for _, alert := range alerts {
				severity := strings.ToUpper(string(alert.Severity))
				_, _ = fmt.Fprintf(out, "  [%s] %s\n", severity, alert.Message)
			}
		}

		if alertsNotify && len(alerts) > 0 {
			if Notifier == nil {
				return fmt.Errorf("notifications are not configured: set notifications.enabled and notifications.slack.webhook_url")
			}
			if err := Notifier.Notify(ctx, alerts); err != nil {
				return fmt.Errorf("sending notification: %w", err)
			}
			if !alertsJSON {
				_, _ = fmt.Fprintln(out, "\nNotification sent.")
			}
		}

		if fetchErr != nil {
			return explainAuth(fetchErr)
		}
		return nil
	},
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsNotify, "notify", false, "Post active alerts to Slack")
	alertsCmd.Flags().BoolVar(&alertsJSON, "json", false, "Output alerts as JSON")
	rootCmd.AddCommand(alertsCmd)
}
