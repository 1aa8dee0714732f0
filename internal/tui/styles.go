package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/taskgraph/internal/visualize"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("7")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240"))

	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	statusStyles = map[models.TaskStatus]lipgloss.Style{
		models.TaskStatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		models.TaskStatusReady:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		models.TaskStatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		models.TaskStatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
		models.TaskStatusFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		models.TaskStatusSkipped:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true),
	}

	statusIcons = map[models.TaskStatus]string{
		models.TaskStatusPending:   "○",
		models.TaskStatusReady:     "◌",
		models.TaskStatusRunning:   "●",
		models.TaskStatusCompleted: "✓",
		models.TaskStatusFailed:    "✗",
		models.TaskStatusSkipped:   "-",
	}
)

// StatusStyle returns the style used for a task status.
func StatusStyle(s models.TaskStatus) lipgloss.Style {
	if st, ok := statusStyles[s]; ok {
		return st
	}
	return lipgloss.NewStyle()
}

// StyledGraph renders plan like visualize.RenderWith with colored statuses
// and dimmed dependency arrows.
func StyledGraph(plan *models.Plan, opts visualize.Options) string {
	rows := visualize.Rows(plan)
	if len(rows) == 0 {
		return ""
	}
	width := opts.ColumnWidth()
	idWidth := visualize.IDWidth(rows)

	var b strings.Builder
	for _, r := range rows {
		line := visualize.FormatRow(r, idWidth, width, StatusStyle(r.Status).Render(string(r.Status)))
		if i := strings.LastIndex(line, "  <- "); i >= 0 {
			line = line[:i] + dimStyle.Render(line[i:])
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
