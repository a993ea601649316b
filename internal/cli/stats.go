package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task statistics",
	Long: `Fetch the task list and print summary counts: totals per status, overdue
and due-soon tasks, and the completion rate.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLogin(); err != nil {
			return err
		}
		if Stats == nil {
			return fmt.Errorf("statistics engine not initialized")
		}
		if err := Stats.Refresh(commandContext(cmd)); err != nil {
			return explainAuth(err)
		}
		stats := Stats.Recompute()

		out := cmd.OutOrStdout()
		if statsJSON {
			return writeJSON(out, stats)
		}
		_, _ = fmt.Fprintln(out, "Task statistics")
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintf(out, "  %-18s %d\n", "Total:", stats.Total)
		_, _ = fmt.Fprintf(out, "  %-18s %d\n", "Pending:", stats.Pending)
		_, _ = fmt.Fprintf(out, "  %-18s %d\n", "In progress:", stats.InProgress)
		_, _ = fmt.Fprintf(out, "  %-18s %d\n", "Completed:", stats.Completed)
		_, _ = fmt.Fprintf(out, "  %-18s %d\n", "Overdue:", stats.Overdue)
		_, _ = fmt.Fprintf(out, "  %-18s %d\n", fmt.Sprintf("Due in %dd:", Stats.DueSoonDays()), stats.DueSoon)
		_, _ = fmt.Fprintf(out, "  %-18s %d%%\n", "Completion rate:", stats.CompletionRate)
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}
