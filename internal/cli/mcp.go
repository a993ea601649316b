package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	taskermcp "github.com/valter-silva-au/tasker/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the tasker MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tasker MCP server on stdio",
	Long: `Start the tasker MCP server on stdio transport.

The server exposes the signed-in account's tasks as MCP tools that AI
assistants can call: list_tasks, get_task, get_stats, get_alerts,
create_task, update_task_status, delete_task.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLogin(); err != nil {
			return err
		}

		srv := taskermcp.NewServer(taskermcp.Services{
			Tasks:   Tasks,
			Stats:   Stats,
			Mutator: Mutator,
			Alerts:  AlertEngine,
			Now:     nowFunc,
		}, appVersion)

		if err := srv.Run(commandContext(cmd)); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}
		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
