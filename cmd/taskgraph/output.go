package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/ShayCichocki/taskgraph/internal/inference"
	"github.com/ShayCichocki/taskgraph/internal/orchestrator"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// printStatus prints a status line with a colored symbol.
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

func planStatusColor(s models.PlanStatus) color.Attribute {
	switch s {
	case models.PlanStatusCompleted:
		return color.FgGreen
	case models.PlanStatusFailed:
		return color.FgRed
	case models.PlanStatusPartiallyCompleted:
		return color.FgYellow
	default:
		return color.FgCyan
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printWarnings(w io.Writer, warnings []inference.Warning) {
	for _, wr := range warnings {
		printStatus(w, "⚠", wr.String(), color.FgYellow)
	}
}

// printEvent renders one executor event as a progress line.
func printEvent(w io.Writer, ev orchestrator.Event) {
	progress := ""
	if ev.Total > 0 {
		progress = fmt.Sprintf("[%d/%d] ", ev.Completed, ev.Total)
	}
	switch ev.Type {
	case orchestrator.EventTaskDispatched:
		printStatus(w, "▶", fmt.Sprintf("%s%s %s (attempt %d)", progress, ev.TaskID, ev.Description, ev.Attempt), color.FgCyan)
	case orchestrator.EventTaskCompleted:
		printStatus(w, "✓", fmt.Sprintf("%s%s %s", progress, ev.TaskID, ev.Description), color.FgGreen)
	case orchestrator.EventTaskRetry:
		printStatus(w, "↻", fmt.Sprintf("%s%s retrying: %s", progress, ev.TaskID, ev.Error), color.FgYellow)
	case orchestrator.EventTaskFailed:
		printStatus(w, "✗", fmt.Sprintf("%s%s failed: %s", progress, ev.TaskID, ev.Error), color.FgRed)
	case orchestrator.EventTaskSkipped:
		printStatus(w, "-", fmt.Sprintf("%s%s skipped: %s", progress, ev.TaskID, ev.Error), color.FgHiBlack)
	case orchestrator.EventPhaseStarted:
		printStatus(w, "»", fmt.Sprintf("phase %d: %s", ev.Phase, ev.Description), color.FgBlue)
	case orchestrator.EventReplanApplied:
		printStatus(w, "+", "replan: "+ev.Message, color.FgMagenta)
	}
}

// printReport summarizes a finished run.
func printReport(w io.Writer, report *orchestrator.Report) {
	fmt.Fprintln(w)
	printStatus(w, "●", fmt.Sprintf("plan %s %s in %s", report.PlanID, report.Status,
		report.Duration().Round(time.Millisecond)), planStatusColor(report.Status))
	fmt.Fprintf(w, "  dispatched %d attempts over %d ticks", len(report.DispatchOrder), report.Ticks)
	if report.ReplanRounds > 0 {
		fmt.Fprintf(w, ", %d replan rounds", report.ReplanRounds)
	}
	if report.Cancelled {
		fmt.Fprint(w, ", cancelled")
	}
	fmt.Fprintln(w)

	for _, f := range report.Failures {
		if f.Status == models.TaskStatusFailed {
			printStatus(w, "  ✗", fmt.Sprintf("%s %s: %s (%d attempts)", f.ID, f.Description, f.Error, f.Attempts), color.FgRed)
		} else {
			printStatus(w, "  -", fmt.Sprintf("%s %s: %s", f.ID, f.Description, f.Error), color.FgHiBlack)
		}
	}
}
