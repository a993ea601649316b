package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tasker/internal/core"
	"github.com/valter-silva-au/tasker/pkg/models"
)

// nowFunc is the clock used for due-date annotations and relative dates.
var nowFunc = time.Now

var taskCmd = &cobra.Command{
	Use:     "task",
	Aliases: []string{"tasks"},
	Short:   "Manage tasks (list, create, status, delete, show)",
	Long: `Manage the tasks of the signed-in account.

Every command talks to the task API directly; nothing is cached between
invocations.`,
}

var (
	taskListStatus string
	taskListJSON   bool
)

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLogin(); err != nil {
			return err
		}
		var filter *models.TaskStatus
		if taskListStatus != "" {
			status, err := models.ParseTaskStatus(taskListStatus)
			if err != nil {
				return err
			}
			filter = &status
		}

		if err := Tasks.FetchTasks(commandContext(cmd)); err != nil {
			return explainAuth(err)
		}
		var tasks []models.Task
		for _, t := range Tasks.Snapshot().Tasks {
			if filter == nil || t.Status == *filter {
				tasks = append(tasks, t)
			}
		}

		out := cmd.OutOrStdout()
		if taskListJSON {
			return writeJSON(out, tasksOrEmpty(tasks))
		}
		if len(tasks) == 0 {
			_, _ = fmt.Fprintln(out, "No tasks found.")
			return nil
		}
		printTaskTable(out, tasks, nowFunc(), dueSoonDays())
		return nil
	},
}

var (
	taskCreateDescription string
	taskCreateDue         string
)

var taskCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new task",
	Long: `Create a new task. New tasks start as Pending.

--due accepts a date (2026-01-02), an RFC 3339 timestamp, "today",
"tomorrow", or an offset from now such as +3d or +12h.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLogin(); err != nil {
			return err
		}
		in := models.CreateTaskInput{
			Title:       strings.Join(args, " "),
			Description: taskCreateDescription,
		}
		if taskCreateDue != "" {
			due, err := parseDue(taskCreateDue, nowFunc())
			if err != nil {
				return err
			}
			in.DueDate = &due
		}
		if err := Tasks.CreateTask(commandContext(cmd), in); err != nil {
			return explainAuth(err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created task %q.\n", strings.TrimSpace(in.Title))
		return nil
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <id>... <status>",
	Short: "Change the status of one or more tasks",
	Long: `Change the status of one or more tasks. Status is one of Pending,
InProgress or Completed (also accepted: todo, in-progress, done, 0-2).`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLogin(); err != nil {
			return err
		}
		status, err := models.ParseTaskStatus(args[len(args)-1])
		if err != nil {
			return err
		}
		ids := toTaskIDs(args[:len(args)-1])
		ctx := commandContext(cmd)

		if len(ids) == 1 {
			err = Mutator.SetStatusByID(ctx, ids[0], status)
		} else {
			err = Mutator.SetStatusMany(ctx, ids, status)
		}
		if err != nil {
			return explainAuth(err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Set %s to %s.\n", joinIDs(ids), status)
		return nil
	},
}

var taskDeleteForce bool

var taskDeleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Aliases: []string{"rm"},
	Short:   "Delete tasks",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLogin(); err != nil {
			return err
		}
		ids := toTaskIDs(args)
		if !taskDeleteForce {
			ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete %s?", joinIDs(ids)))
			if err != nil {
				return err
			}
			if !ok {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		}

		ctx := commandContext(cmd)
		var err error
		if len(ids) == 1 {
			err = Mutator.Delete(ctx, ids[0])
		} else {
			err = Mutator.DeleteMany(ctx, ids)
		}
		if err != nil {
			return explainAuth(err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", joinIDs(ids))
		return nil
	},
}

var taskShowJSON bool

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLogin(); err != nil {
			return err
		}
		if err := Tasks.FetchTasks(commandContext(cmd)); err != nil {
			return explainAuth(err)
		}
		id := models.TaskID(args[0])
		task, ok := Tasks.Task(id)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrTaskNotFound, id)
		}

		out := cmd.OutOrStdout()
		if taskShowJSON {
			return writeJSON(out, task)
		}
		_, _ = fmt.Fprintf(out, "Task %s\n", task.ID)
		_, _ = fmt.Fprintf(out, "  Title:   %s\n", task.Title)
		_, _ = fmt.Fprintf(out, "  Status:  %s\n", task.Status)
		if task.HasDueDate() {
			_, _ = fmt.Fprintf(out, "  Due:     %s%s\n", task.DueDate.Format(time.DateOnly),
				dueNote(core.Classify(task, nowFunc(), dueSoonDays())))
		}
		if !task.CreatedAt.IsZero() {
			_, _ = fmt.Fprintf(out, "  Created: %s\n", task.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		if task.Description != "" {
			_, _ = fmt.Fprintf(out, "\n%s\n", task.Description)
		}
		return nil
	},
}

// printTaskTable renders tasks with their due state.
func printTaskTable(w io.Writer, tasks []models.Task, now time.Time, days int) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tDUE\tTITLE")
	for _, t := range tasks {
		due := "-"
		if t.HasDueDate() {
			due = t.DueDate.Format(time.DateOnly) + dueNote(core.Classify(t, now, days))
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Status, due, t.Title)
	}
	_ = tw.Flush()
}

func dueNote(state models.DueState) string {
	switch state {
	case models.DueOverdue:
		return " (overdue)"
	case models.DueSoon:
		return " (due soon)"
	}
	return ""
}

func dueSoonDays() int {
	if Stats != nil {
		return Stats.DueSoonDays()
	}
	return core.DefaultDueSoonDays
}

// parseDue resolves a --due value relative to now. Dates without a time are
// taken as the end of that day in the local zone.
func parseDue(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	endOfDay := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
	}

	switch strings.ToLower(s) {
	case "today":
		return endOfDay(now), nil
	case "tomorrow":
		return endOfDay(now.AddDate(0, 0, 1)), nil
	}

	if rest, ok := strings.CutPrefix(s, "+"); ok && len(rest) > 1 {
		unit := rest[len(rest)-1]
		n, err := strconv.Atoi(rest[:len(rest)-1])
		if err != nil || n < 0 {
			return time.Time{}, fmt.Errorf("invalid due offset %q: use +<n>d, +<n>h or +<n>w", s)
		}
		switch unit {
		case 'd':
			return now.AddDate(0, 0, n), nil
		case 'w':
			return now.AddDate(0, 0, 7*n), nil
		case 'h':
			return now.Add(time.Duration(n) * time.Hour), nil
		}
		return time.Time{}, fmt.Errorf("invalid due offset %q: use +<n>d, +<n>h or +<n>w", s)
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, now.Location()); err == nil {
		return endOfDay(t), nil
	}
	return time.Time{}, fmt.Errorf("invalid due date %q: use YYYY-MM-DD, RFC 3339, today, tomorrow or +3d", s)
}

// confirm asks a yes/no question, defaulting to no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	_, _ = fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func toTaskIDs(args []string) []models.TaskID {
	ids := make([]models.TaskID, 0, len(args))
	for _, a := range args {
		ids = append(ids, models.TaskID(a))
	}
	return ids
}

func joinIDs(ids []models.TaskID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	if len(parts) == 1 {
		return "task " + parts[0]
	}
	return "tasks " + strings.Join(parts, ", ")
}

func tasksOrEmpty(tasks []models.Task) []models.Task {
	if tasks == nil {
		return []models.Task{}
	}
	return tasks
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "Only show tasks with this status")
	taskListCmd.Flags().BoolVar(&taskListJSON, "json", false, "Print tasks as JSON")

	taskCreateCmd.Flags().StringVarP(&taskCreateDescription, "description", "d", "", "Task description")
	taskCreateCmd.Flags().StringVar(&taskCreateDue, "due", "", "Due date (YYYY-MM-DD, RFC 3339, today, tomorrow, +3d)")

	taskDeleteCmd.Flags().BoolVarP(&taskDeleteForce, "force", "f", false, "Delete without asking")

	taskShowCmd.Flags().BoolVar(&taskShowJSON, "json", false, "Print the task as JSON")

	registerTaskCompletions()

	taskCmd.AddCommand(taskListCmd, taskCreateCmd, taskStatusCmd, taskDeleteCmd, taskShowCmd)
	rootCmd.AddCommand(taskCmd)
}
