package cli

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tasker/pkg/models"
)

// taskIDCandidates fetches the task list and returns ids matching prefix,
// each described by its status and title. Completion fails quietly when
// signed out or offline.
func taskIDCandidates(cmd *cobra.Command, exclude []string, prefix string) []string {
	if Tasks == nil || Auth == nil || !Auth.IsAuthenticated() {
		return nil
	}
	if err := Tasks.FetchTasks(commandContext(cmd)); err != nil {
		return nil
	}

	var ids []string
	for _, task := range Tasks.Snapshot().Tasks {
		id := string(task.ID)
		if !strings.HasPrefix(id, prefix) || slices.Contains(exclude, id) {
			continue
		}
		ids = append(ids, id+"\t"+task.Status.String()+": "+task.Title)
	}
	return ids
}

// completeTaskIDs completes any number of task ids, skipping ones already
// given.
func completeTaskIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return taskIDCandidates(cmd, args, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeSingleTaskID completes exactly one task id.
func completeSingleTaskID(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return completeTaskIDs(cmd, args, toComplete)
}

// statusCandidates lists every task status with a description.
func statusCandidates(prefix string) []string {
	descriptions := map[models.TaskStatus]string{
		models.StatusPending:    "Not started",
		models.StatusInProgress: "Being worked on",
		models.StatusCompleted:  "Done",
	}
	var out []string
	for _, s := range models.AllStatuses {
		name := s.String()
		if strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix)) {
			out = append(out, name+"\t"+descriptions[s])
		}
	}
	return out
}

func completeStatuses(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return statusCandidates(toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeStatusArgs serves "task status <id>... <status>": ids first, then
// ids or a status.
func completeStatusArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	out := taskIDCandidates(cmd, args, toComplete)
	if len(args) > 0 {
		out = append(out, statusCandidates(toComplete)...)
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// registerTaskCompletions wires completion functions into the task commands.
// It runs after their flags are defined.
func registerTaskCompletions() {
	taskStatusCmd.ValidArgsFunction = completeStatusArgs
	taskDeleteCmd.ValidArgsFunction = completeTaskIDs
	taskShowCmd.ValidArgsFunction = completeSingleTaskID
	_ = taskListCmd.RegisterFlagCompletionFunc("status", completeStatuses)
}
