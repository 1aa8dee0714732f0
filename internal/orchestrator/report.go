package orchestrator

import (
	"time"

	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// TaskError summarizes a task that did not complete.
type TaskError struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Status      models.TaskStatus `json:"status"`
	Error       string            `json:"error"`
	Attempts    int               `json:"attempts"`
}

// Report is the outcome of one run.
type Report struct {
	PlanID    string            `json:"plan_id"`
	Status    models.PlanStatus `json:"status"`
	Cancelled bool              `json:"cancelled"`
	// DispatchOrder lists task IDs in the order attempts were dispatched.
	// A retried task appears once per attempt.
	DispatchOrder []string    `json:"dispatch_order"`
	Ticks         int         `json:"ticks"`
	Failures      []TaskError `json:"failures,omitempty"`
	ReplanRounds  int         `json:"replan_rounds"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    time.Time   `json:"finished_at"`
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed returns the failures with status failed, excluding skips.
func (r *Report) Failed() []TaskError {
	var out []TaskError
	for _, f := range r.Failures {
		if f.Status == models.TaskStatusFailed {
			out = append(out, f)
		}
	}
	return out
}

// collectFailures lists every leaf that failed or was skipped, in plan order.
func collectFailures(plan *models.Plan, attempts map[string]int) []TaskError {
	var out []TaskError
	for _, t := range plan.AllTasks() {
		if t.IsContainer() {
			continue
		}
		if t.Status != models.TaskStatusFailed && t.Status != models.TaskStatusSkipped {
			continue
		}
		out = append(out, TaskError{
			ID:          t.ID,
			Description: t.Description,
			Status:      t.Status,
			Error:       t.Error,
			Attempts:    attempts[t.ID],
		})
	}
	return out
}
