// Package tui provides the terminal view for a running plan.
//
// The view is read-only: it follows executor events, shows overall progress
// and each task's status, and keeps a short activity log. 'p' pauses and
// resumes dispatch when a pause controller is attached. 'q' or Ctrl+C cancels
// the run.
//
// Usage:
//
//	emitter := orchestrator.NewEventEmitter(64)
//	model := tui.New(plan, emitter.Events(), tui.WithCancel(cancel))
//	go exec.Run(ctx, plan)
//	final, err := tui.Run(ctx, model)
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/taskgraph/internal/orchestrator"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// maxLogLines bounds the activity log.
const maxLogLines = 8

// EventMsg wraps an executor event.
type EventMsg struct {
	Event orchestrator.Event
}

// DoneMsg reports that the executor returned. It covers runs that end
// without a plan_done event.
type DoneMsg struct {
	Status models.PlanStatus
	Err    error
}

type eventsClosedMsg struct{}

// LogEntry is one line of the activity log.
type LogEntry struct {
	Timestamp time.Time
	Message   string
	Failed    bool
}

type taskRow struct {
	id          string
	depth       int
	description string
	status      models.TaskStatus
	attempt     int
	err         string
}

// Option configures a Model.
type Option func(*Model)

// WithCancel sets the function called when the user quits.
func WithCancel(cancel context.CancelFunc) Option {
	return func(m *Model) { m.cancel = cancel }
}

// WithPauseController lets 'p' toggle dispatch.
func WithPauseController(p *orchestrator.PauseController) Option {
	return func(m *Model) { m.pause = p }
}

// Model is the bubbletea model for a plan run.
type Model struct {
	goal   string
	events <-chan orchestrator.Event
	cancel context.CancelFunc
	pause  *orchestrator.PauseController

	rows  []*taskRow
	index map[string]*taskRow
	logs  []LogEntry

	completed int
	total     int
	phase     int

	spinner  spinner.Model
	progress progress.Model
	width    int

	done     bool
	quitting bool
	status   models.PlanStatus
	err      error
}

// New creates a model showing plan and following events.
func New(plan *models.Plan, events <-chan orchestrator.Event, opts ...Option) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StatusStyle(models.TaskStatusRunning)

	m := &Model{
		goal:     plan.OriginalTask,
		events:   events,
		index:    make(map[string]*taskRow),
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		status:   plan.Status,
	}
	for _, t := range plan.AllTasks() {
		depth := 0
		if t.ParentID != "" {
			depth = 1
		}
		m.addRow(t.ID, depth, t.Description, t.Status)
		if !t.IsContainer() {
			m.total++
			if t.Status == models.TaskStatusCompleted {
				m.completed++
			}
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) addRow(id string, depth int, desc string, status models.TaskStatus) *taskRow {
	r := &taskRow{id: id, depth: depth, description: desc, status: status}
	m.rows = append(m.rows, r)
	m.index[id] = r
	return r
}

// Done reports whether the run finished.
func (m *Model) Done() bool { return m.done }

// Status returns the last plan status seen.
func (m *Model) Status() models.PlanStatus { return m.status }

// Err returns the error the run ended with, if any.
func (m *Model) Err() error { return m.err }

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

// listen waits for the next executor event.
func (m *Model) listen() tea.Cmd {
	if m.events == nil {
		return nil
	}
	ch := m.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case "p":
			if m.pause != nil {
				if m.pause.IsPaused() {
					m.pause.Resume()
					m.log("resumed", false)
				} else {
					m.pause.Pause()
					m.log("paused", false)
				}
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		w := msg.Width - 20
		if w > 60 {
			w = 60
		}
		if w < 10 {
			w = 10
		}
		m.progress.Width = w
		return m, nil

	case EventMsg:
		m.apply(msg.Event)
		if m.done {
			return m, tea.Quit
		}
		return m, m.listen()

	case eventsClosedMsg:
		m.done = true
		return m, tea.Quit

	case DoneMsg:
		m.done = true
		if msg.Status != "" {
			m.status = msg.Status
		}
		if msg.Err != nil {
			m.err = msg.Err
			m.log("run failed: "+msg.Err.Error(), true)
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(ev orchestrator.Event) {
	if ev.Total > 0 {
		m.completed, m.total = ev.Completed, ev.Total
	}

	var r *taskRow
	if ev.TaskID != "" {
		r = m.index[ev.TaskID]
		if r == nil {
			depth := 0
			if ev.ParentID != "" {
				depth = 1
			}
			r = m.addRow(ev.TaskID, depth, ev.Description, models.TaskStatusPending)
		}
		if ev.Status != "" {
			r.status = models.TaskStatus(ev.Status)
		}
		if ev.Attempt > 0 {
			r.attempt = ev.Attempt
		}
		r.err = ev.Error
	}

	switch ev.Type {
	case orchestrator.EventTaskDispatched:
		r.status = models.TaskStatusRunning
		m.log(fmt.Sprintf("%s dispatched (attempt %d)", ev.TaskID, ev.Attempt), false)
	case orchestrator.EventTaskCompleted:
		m.log(ev.TaskID+" completed", false)
	case orchestrator.EventTaskRetry:
		m.log(fmt.Sprintf("%s retrying: %s", ev.TaskID, ev.Error), true)
	case orchestrator.EventTaskFailed:
		m.log(fmt.Sprintf("%s failed: %s", ev.TaskID, ev.Error), true)
	case orchestrator.EventTaskSkipped:
		m.log(fmt.Sprintf("%s skipped: %s", ev.TaskID, ev.Error), false)
	case orchestrator.EventPhaseStarted:
		m.phase = ev.Phase
		m.log(fmt.Sprintf("phase %d started", ev.Phase), false)
	case orchestrator.EventPhaseCompleted:
		m.log(fmt.Sprintf("phase %d completed", ev.Phase), false)
	case orchestrator.EventReplanApplied:
		m.log("replan: "+ev.Message, false)
	case orchestrator.EventPlanDone:
		m.done = true
		if ev.Status != "" {
			m.status = models.PlanStatus(ev.Status)
		}
		m.log("plan "+ev.Status, m.status == models.PlanStatusFailed)
	}
}

func (m *Model) log(msg string, failed bool) {
	m.logs = append(m.logs, LogEntry{Timestamp: time.Now(), Message: msg, Failed: failed})
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("taskgraph  " + m.goal))
	b.WriteString("\n\n")

	frac := 0.0
	if m.total > 0 {
		frac = float64(m.completed) / float64(m.total)
	}
	fmt.Fprintf(&b, "%s  %d/%d", m.progress.ViewAs(frac), m.completed, m.total)
	if m.phase > 0 {
		fmt.Fprintf(&b, "  phase %d", m.phase)
	}
	if m.pause != nil && m.pause.IsPaused() {
		b.WriteString("  " + dimStyle.Render("[paused]"))
	}
	b.WriteString("\n\n")

	for _, r := range m.rows {
		b.WriteString(m.renderRow(r))
		b.WriteByte('\n')
	}

	if len(m.logs) > 0 {
		b.WriteByte('\n')
		for _, e := range m.logs {
			line := e.Timestamp.Format("15:04:05") + " " + e.Message
			if e.Failed {
				line = errorStyle.Render(line)
			} else {
				line = dimStyle.Render(line)
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	b.WriteByte('\n')
	switch {
	case m.done:
		b.WriteString(StatusStyle(statusColor(m.status)).Render("done: " + string(m.status)))
	case m.quitting:
		b.WriteString(dimStyle.Render("cancelling..."))
	default:
		hint := "q quit"
		if m.pause != nil {
			hint = "p pause  " + hint
		}
		b.WriteString(dimStyle.Render(hint))
	}
	b.WriteByte('\n')
	return b.String()
}

func (m *Model) renderRow(r *taskRow) string {
	icon := statusIcons[r.status]
	if r.status == models.TaskStatusRunning && !m.done {
		icon = m.spinner.View()
	} else {
		icon = StatusStyle(r.status).Render(icon)
	}
	line := fmt.Sprintf("%s%s %s %s", strings.Repeat("  ", r.depth), icon, r.id, r.description)
	if r.attempt > 1 {
		line += dimStyle.Render(fmt.Sprintf(" (attempt %d)", r.attempt))
	}
	if r.err != "" && (r.status == models.TaskStatusFailed || r.status == models.TaskStatusSkipped) {
		line += "  " + errorStyle.Render(r.err)
	}
	return line
}

// statusColor maps a plan status onto the task palette.
func statusColor(s models.PlanStatus) models.TaskStatus {
	switch s {
	case models.PlanStatusCompleted:
		return models.TaskStatusCompleted
	case models.PlanStatusFailed:
		return models.TaskStatusFailed
	case models.PlanStatusPartiallyCompleted:
		return models.TaskStatusRunning
	default:
		return models.TaskStatusPending
	}
}

// Run drives m until the run finishes or the user quits.
func Run(ctx context.Context, m *Model, opts ...tea.ProgramOption) (*Model, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(m, opts...).Run()
	if fm, ok := final.(*Model); ok {
		m = fm
	}
	return m, err
}
