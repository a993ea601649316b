package cli

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	metricsJSON  bool
	metricsSince string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display client activity metrics",
	Long: `Display aggregated metrics derived from the local event log: sign-ins,
fetches and their success rate, and task mutations.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (event log unavailable)")
		}

		sinceTime, err := parseSinceDuration(metricsSince, nowFunc())
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		out := cmd.OutOrStdout()
		if metricsJSON {
			return writeJSON(out, metrics)
		}

		_, _ = fmt.Fprintf(out, "Metrics (since %s)\n\n", sinceTime.Format(time.DateOnly))
		row := func(label string, v any) {
			_, _ = fmt.Fprintf(out, "  %-24s %v\n", label, v)
		}
		row("Events recorded:", metrics.EventCount)
		row("Logins:", metrics.Logins)
		row("Failed logins:", metrics.LoginFailures)
		row("Fetches:", metrics.Fetches)
		row("Failed fetches:", metrics.FetchFailures)
		row("Fetch success rate:", fmt.Sprintf("%d%%", metrics.FetchSuccessRate()))
		row("Tasks created:", metrics.TasksCreated)
		row("Tasks completed:", metrics.TasksCompleted)
		row("Tasks deleted:", metrics.TasksDeleted)
		row("Failed mutations:", metrics.MutationFailures)

		if len(metrics.TasksByStatus) > 0 {
			_, _ = fmt.Fprintln(out, "\n  Status changes:")
			statuses := make([]string, 0, len(metrics.TasksByStatus))
			for status := range metrics.TasksByStatus {
				statuses = append(statuses, status)
			}
			slices.Sort(statuses)
			for _, status := range statuses {
				_, _ = fmt.Fprintf(out, "    %-20s %d\n", status+":", metrics.TasksByStatus[status])
			}
		}

		if metrics.OldestEvent != nil {
			_, _ = fmt.Fprintf(out, "\n  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			_, _ = fmt.Fprintf(out, "  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}
		return nil
	},
}

// parseSinceDuration parses a window like "7d", "2w" or "24h" and returns the
// corresponding time before now.
func parseSinceDuration(s string, now time.Time) (time.Time, error) {
	now = now.UTC()
	s = strings.TrimSpace(s)
	if s == "" {
		return now.AddDate(0, 0, -7), nil
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return time.Time{}, fmt.Errorf("invalid duration %q (use e.g. 7d, 2w, 24h)", s)
	}
	switch s[len(s)-1] {
	case 'd':
		return now.AddDate(0, 0, -n), nil
	case 'w':
		return now.AddDate(0, 0, -7*n), nil
	case 'h':
		return now.Add(-time.Duration(n) * time.Hour), nil
	}
	return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 2w, 24h)", s)
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 2w, 24h)")
	rootCmd.AddCommand(metricsCmd)
}
