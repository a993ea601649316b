package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/tasker/internal/core"
	"github.com/valter-silva-au/tasker/internal/observability"
	"github.com/valter-silva-au/tasker/pkg/models"
)

// Dashboard panel indices.
const (
	panelTasks = iota
	panelStats
	panelAlerts
	panelCount
)

// dashboardTasks is the task store surface the dashboard drives.
type dashboardTasks interface {
	FetchTasks(ctx context.Context) error
	Snapshot() core.TaskSnapshot
}

// dashboardStats is the statistics engine surface the stats panel reads.
type dashboardStats interface {
	Stats() models.TaskStats
	DueSoonDays() int
}

// dashboardMutator changes the selected task.
type dashboardMutator interface {
	SetStatus(ctx context.Context, task models.Task, status models.TaskStatus) error
	Delete(ctx context.Context, id models.TaskID) error
}

// dashboardDeps are the stores and change feeds the dashboard is built on.
type dashboardDeps struct {
	Tasks   dashboardTasks
	Stats   dashboardStats
	Mutator dashboardMutator
	Alerts  observability.AlertEngine
	// Snapshots and StatsUpdates are optional live feeds.
	Snapshots    <-chan core.TaskSnapshot
	StatsUpdates <-chan models.TaskStats
}

type dashboardModel struct {
	ctx          context.Context
	tasks        dashboardTasks
	mutator      dashboardMutator
	alerter      observability.AlertEngine
	updates      <-chan core.TaskSnapshot
	statsUpdates <-chan models.TaskStats
	days         int
	now          func() time.Time

	activePanel int
	width       int
	height      int
	cursor      int

	// Data.
	seq    uint64
	list   []models.Task
	stats  models.TaskStats
	alerts []observability.Alert

	// State.
	loading       bool
	fetchErr      string
	notice        string
	confirmDelete bool
}

// snapshotMsg carries a task store change to the model.
type snapshotMsg struct {
	snap   core.TaskSnapshot
	alerts []observability.Alert
	err    error
}

// statsMsg carries recomputed statistics from the engine.
type statsMsg struct{ stats models.TaskStats }

// fetchDoneMsg reports the end of a requested fetch.
type fetchDoneMsg struct{ err error }

// mutationDoneMsg reports the outcome of a status change or delete.
type mutationDoneMsg struct {
	notice string
	err    error
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().Reverse(true)

	statusPending    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statusCompleted  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel(ctx context.Context, deps dashboardDeps) dashboardModel {
	m := dashboardModel{
		ctx:          ctx,
		tasks:        deps.Tasks,
		mutator:      deps.Mutator,
		alerter:      deps.Alerts,
		updates:      deps.Snapshots,
		statsUpdates: deps.StatsUpdates,
		days:         core.DefaultDueSoonDays,
		now:          nowFunc,
		activePanel:  panelTasks,
		loading:      true,
	}
	if deps.Stats != nil {
		m.stats = deps.Stats.Stats()
		if d := deps.Stats.DueSoonDays(); d > 0 {
			m.days = d
		}
	}
	return m
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.waitForSnapshot(), m.waitForStats())
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case snapshotMsg:
		m.applySnapshot(msg)
		return m, m.waitForSnapshot()

	case statsMsg:
		m.stats = msg.stats
		return m, m.waitForStats()

	case fetchDoneMsg:
		m.loading = false
		if msg.err != nil {
			m.fetchErr = msg.err.Error()
		}
		return m, nil

	case mutationDoneMsg:
		if msg.err != nil {
			m.notice = "Error: " + msg.err.Error()
		} else {
			m.notice = msg.notice
		}
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.confirmDelete {
		m.confirmDelete = false
		task, ok := m.selected()
		if (key == "y" || key == "Y") && ok {
			m.notice = fmt.Sprintf("Deleting task %s...", task.ID)
			return m, m.deleteTask(task)
		}
		m.notice = "Delete cancelled."
		return m, nil
	}

	switch key {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.activePanel = (m.activePanel + 1) % panelCount
	case "shift+tab":
		m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
	case "r":
		m.loading = true
		return m, m.fetch()
	case "j", "down":
		if m.activePanel == panelTasks && m.cursor < len(m.list)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.activePanel == panelTasks && m.cursor > 0 {
			m.cursor--
		}
	case "p", "i", "c":
		task, ok := m.selected()
		if !ok || m.activePanel != panelTasks {
			return m, nil
		}
		status := map[string]models.TaskStatus{
			"p": models.StatusPending,
			"i": models.StatusInProgress,
			"c": models.StatusCompleted,
		}[key]
		if task.Status == status {
			return m, nil
		}
		return m, m.setStatus(task, status)
	case "d":
		if _, ok := m.selected(); ok && m.activePanel == panelTasks {
			m.confirmDelete = true
		}
	}
	return m, nil
}

func (m *dashboardModel) applySnapshot(msg snapshotMsg) {
	if msg.snap.Seq < m.seq {
		return
	}
	m.seq = msg.snap.Seq
	m.list = msg.snap.Tasks
	m.loading = msg.snap.Loading
	m.fetchErr = msg.snap.Err
	if msg.err == nil {
		m.alerts = msg.alerts
	}
	if m.cursor >= len(m.list) {
		m.cursor = max(len(m.list)-1, 0)
	}
}

func (m dashboardModel) selected() (models.Task, bool) {
	if m.cursor < 0 || m.cursor >= len(m.list) {
		return models.Task{}, false
	}
	return m.list[m.cursor], true
}

// --- Commands ---

func (m dashboardModel) fetch() tea.Cmd {
	return func() tea.Msg {
		return fetchDoneMsg{err: m.tasks.FetchTasks(m.ctx)}
	}
}

// waitForSnapshot blocks until the task store publishes a change.
func (m dashboardModel) waitForSnapshot() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case snap := <-m.updates:
			msg := snapshotMsg{snap: snap}
			if m.alerter != nil {
				msg.alerts, msg.err = m.alerter.Evaluate(snap.Tasks, m.now())
			}
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

// waitForStats blocks until the statistics engine recomputes.
func (m dashboardModel) waitForStats() tea.Cmd {
	if m.statsUpdates == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case stats := <-m.statsUpdates:
			return statsMsg{stats: stats}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m dashboardModel) setStatus(task models.Task, status models.TaskStatus) tea.Cmd {
	return func() tea.Msg {
		err := m.mutator.SetStatus(m.ctx, task, status)
		return mutationDoneMsg{
			notice: fmt.Sprintf("Task %s set to %s.", task.ID, status),
			err:    err,
		}
	}
}

func (m dashboardModel) deleteTask(task models.Task) tea.Cmd {
	return func() tea.Msg {
		err := m.mutator.Delete(m.ctx, task.ID)
		return mutationDoneMsg{
			notice: fmt.Sprintf("Task %s deleted.", task.ID),
			err:    err,
		}
	}
}

// --- View ---

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" tasker ")
	help := helpStyle.Render("tab: panel | j/k: move | p/i/c: pending/in progress/completed | d: delete | r: refresh | q: quit")

	tasksPanel := m.renderTasksPanel()
	statsPanel := m.renderStatsPanel()
	alertsPanel := m.renderAlertsPanel()

	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		colWidth := availableWidth / 3
		tasksPanel = m.applyPanelStyle(panelTasks, tasksPanel, colWidth-4)
		statsPanel = m.applyPanelStyle(panelStats, statsPanel, colWidth-4)
		alertsPanel = m.applyPanelStyle(panelAlerts, alertsPanel, colWidth-4)
		body = lipgloss.JoinHorizontal(lipgloss.Top, tasksPanel, statsPanel, alertsPanel)
	} else {
		panelWidth := max(availableWidth-4, 20)
		tasksPanel = m.applyPanelStyle(panelTasks, tasksPanel, panelWidth)
		statsPanel = m.applyPanelStyle(panelStats, statsPanel, panelWidth)
		alertsPanel = m.applyPanelStyle(panelAlerts, alertsPanel, panelWidth)
		body = lipgloss.JoinVertical(lipgloss.Left, tasksPanel, statsPanel, alertsPanel)
	}

	status := ""
	switch {
	case m.confirmDelete:
		if task, ok := m.selected(); ok {
			status = errorStyle.Render(fmt.Sprintf("Delete task %s %q? (y/N)", task.ID, task.Title))
		}
	case m.fetchErr != "":
		status = errorStyle.Render("Error: " + m.fetchErr)
	case m.loading:
		status = "Loading tasks..."
	case m.notice != "":
		status = m.notice
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s\n%s", title, body, status, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderTasksPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Tasks"))
	b.WriteString("\n")

	if len(m.list) == 0 {
		b.WriteString("  No tasks found.")
		return b.String()
	}

	now := m.now()
	for i, t := range m.list {
		line := fmt.Sprintf("%-4s %-10s %s", t.ID, t.Status, t.Title)
		if t.HasDueDate() {
			line += "  " + t.DueDate.Format("Jan 2") + dueNote(core.Classify(t, now, m.days))
		}
		line = styleForStatus(t.Status).Render(line)
		if i == m.cursor && m.activePanel == panelTasks {
			line = selectedStyle.Render(line)
		}
		b.WriteString("  " + line + "\n")
	}
	return b.String()
}

func (m dashboardModel) renderStatsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Statistics"))
	b.WriteString("\n")

	s := m.stats
	lines := []struct {
		label string
		value string
	}{
		{"Total", fmt.Sprint(s.Total)},
		{"Pending", fmt.Sprint(s.Pending)},
		{"In progress", fmt.Sprint(s.InProgress)},
		{"Completed", fmt.Sprint(s.Completed)},
		{"Overdue", fmt.Sprint(s.Overdue)},
		{fmt.Sprintf("Due in %dd", m.days), fmt.Sprint(s.DueSoon)},
		{"Done", fmt.Sprintf("%d%%", s.CompletionRate)},
	}
	for _, l := range lines {
		b.WriteString(fmt.Sprintf("  %-14s %s\n", l.label, l.value))
	}
	return b.String()
}

func (m dashboardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts {
		sev := styleForSeverity(a.Severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(string(a.Severity))))
		b.WriteString(fmt.Sprintf("  %s %s\n", sev, a.Message))
	}
	b.WriteString(fmt.Sprintf("\n  Total: %d alert(s)", len(m.alerts)))
	return b.String()
}

func styleForStatus(status models.TaskStatus) lipgloss.Style {
	switch status {
	case models.StatusPending:
		return statusPending
	case models.StatusInProgress:
		return statusInProgress
	case models.StatusCompleted:
		return statusCompleted
	default:
		return lipgloss.NewStyle()
	}
}

func styleForSeverity(severity observability.AlertSeverity) lipgloss.Style {
	switch severity {
	case observability.SeverityHigh:
		return severityHigh
	case observability.SeverityMedium:
		return severityMedium
	case observability.SeverityLow:
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

// subscribeLatest forwards published values to a channel, keeping only the
// most recent undelivered one.
func subscribeLatest[T any](subscribe func(func(T)) func()) (<-chan T, func()) {
	ch := make(chan T, 1)
	unsubscribe := subscribe(func(v T) {
		for {
			select {
			case ch <- v:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	return ch, unsubscribe
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for tasks, statistics and alerts",
	Long: `Launch an interactive terminal dashboard showing your tasks, summary
statistics and deadline alerts. The view updates whenever the task list
changes.

Navigate between panels with Tab, move with j/k, set the selected task to
Pending, InProgress or Completed with p, i or c, delete it with d, refresh
with r and quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLogin(); err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(commandContext(cmd))
		defer cancel()

		snapshots, unsubscribe := subscribeLatest(Tasks.Subscribe)
		defer unsubscribe()
		statsUpdates, unsubscribeStats := subscribeLatest(Stats.Subscribe)
		defer unsubscribeStats()

		model := newDashboardModel(ctx, dashboardDeps{
			Tasks:        Tasks,
			Stats:        Stats,
			Mutator:      Mutator,
			Alerts:       AlertEngine,
			Snapshots:    snapshots,
			StatsUpdates: statsUpdates,
		})
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
