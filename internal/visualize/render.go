// Package visualize renders a plan as a layered text listing.
//
//	L0  t1  [completed]  Research X                                <- -
//	L1  t2  [running  ]  Analyze X findings                        <- t1
//
// Rows are ordered by layer and then position. Subtasks are indented below
// their phase and layered among their siblings.
package visualize

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ShayCichocki/taskgraph/internal/planning"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// DefaultWidth is the description column width in runes.
const DefaultWidth = 40

const statusWidth = len("completed")

// Options controls rendering.
type Options struct {
	// Width is the description column width. Zero means DefaultWidth.
	Width int
}

// Row is one rendered line before formatting.
type Row struct {
	// Layer is the task's layer among its siblings, or -1 when the
	// siblings could not be layered.
	Layer       int
	Depth       int
	ID          string
	Status      models.TaskStatus
	Description string
	// Deps is sorted.
	Deps []string
}

// Render renders plan with default options.
func Render(plan *models.Plan) string {
	return RenderWith(plan, Options{})
}

// RenderWith renders plan. It does not modify the plan.
func RenderWith(plan *models.Plan, opts Options) string {
	rows := Rows(plan)
	if len(rows) == 0 {
		return ""
	}
	width := opts.ColumnWidth()
	idWidth := IDWidth(rows)

	var b strings.Builder
	for _, r := range rows {
		b.WriteString(FormatRow(r, idWidth, width, string(r.Status)))
		b.WriteByte('\n')
	}
	return b.String()
}

// ColumnWidth returns the description width to use.
func (o Options) ColumnWidth() int {
	if o.Width <= 0 {
		return DefaultWidth
	}
	return o.Width
}

// FormatRow formats one row. status is the text placed inside the brackets;
// callers may pass a styled string, which is padded by the plain status
// length.
func FormatRow(r Row, idWidth, width int, status string) string {
	layer := "L?"
	if r.Layer >= 0 {
		layer = fmt.Sprintf("L%d", r.Layer)
	}
	deps := "-"
	if len(r.Deps) > 0 {
		deps = strings.Join(r.Deps, ",")
	}
	pad := statusWidth - len(r.Status)
	if pad < 0 {
		pad = 0
	}
	return fmt.Sprintf("%s%-3s %-*s  [%s%s]  %s  <- %s",
		strings.Repeat("  ", r.Depth),
		layer,
		idWidth, r.ID,
		status, strings.Repeat(" ", pad),
		fit(r.Description, width),
		deps,
	)
}

// IDWidth is the widest ID among rows.
func IDWidth(rows []Row) int {
	w := 0
	for _, r := range rows {
		if n := utf8.RuneCountInString(r.ID); n > w {
			w = n
		}
	}
	return w
}

// fit truncates s to width runes with "..." and pads it to width.
func fit(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	n := utf8.RuneCountInString(s)
	if n > width {
		runes := []rune(s)
		if width <= 3 {
			return string(runes[:width])
		}
		return string(runes[:width-3]) + "..."
	}
	return s + strings.Repeat(" ", width-n)
}

// Rows lays out the plan without formatting it.
func Rows(plan *models.Plan) []Row {
	if plan == nil {
		return nil
	}
	var rows []Row
	var walk func(tasks []*models.Task, depth int)
	walk = func(tasks []*models.Task, depth int) {
		for _, lt := range ordered(tasks) {
			t := lt.task
			deps := append([]string(nil), t.Dependencies...)
			sort.Strings(deps)
			rows = append(rows, Row{
				Layer:       lt.layer,
				Depth:       depth,
				ID:          t.ID,
				Status:      t.Status,
				Description: t.Description,
				Deps:        deps,
			})
			if t.IsContainer() {
				walk(t.Subtasks, depth+1)
			}
		}
	}
	walk(plan.Tasks(), 0)
	return rows
}

type layered struct {
	task  *models.Task
	layer int
}

// ordered sorts siblings by layer and position, falling back to position
// alone when they cannot be layered.
func ordered(tasks []*models.Task) []layered {
	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	layers, err := planning.Layers(tasks)
	if err != nil {
		out := make([]layered, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, layered{task: t, layer: -1})
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].task.Position < out[j].task.Position })
		return out
	}

	out := make([]layered, 0, len(tasks))
	for k, layer := range layers {
		start := len(out)
		for _, id := range layer {
			out = append(out, layered{task: byID[id], layer: k})
		}
		group := out[start:]
		sort.SliceStable(group, func(i, j int) bool { return group[i].task.Position < group[j].task.Position })
	}
	return out
}
