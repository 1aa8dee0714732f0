package orchestrator

import (
	"time"

	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// EventType represents the type of executor event.
type EventType string

const (
	// EventTaskReady indicates every dependency of a task has completed.
	EventTaskReady EventType = "task_ready"
	// EventTaskDispatched indicates a task attempt was handed to the runner.
	EventTaskDispatched EventType = "task_dispatched"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskRetry indicates a failed attempt was requeued.
	EventTaskRetry EventType = "task_retry"
	// EventTaskFailed indicates a task failed with no retries left.
	EventTaskFailed EventType = "task_failed"
	// EventTaskSkipped indicates a task will never run.
	EventTaskSkipped EventType = "task_skipped"
	// EventPhaseStarted indicates a hierarchical phase opened.
	EventPhaseStarted EventType = "phase_started"
	// EventPhaseCompleted indicates every task of a phase is terminal.
	EventPhaseCompleted EventType = "phase_completed"
	// EventReplanApplied indicates replacement tasks were added to the plan.
	EventReplanApplied EventType = "replan_applied"
	// EventPlanDone indicates the run has finished.
	EventPlanDone EventType = "plan_done"
)

// Event is emitted by the executor as a run progresses.
// These events are used to update the TUI and track progress.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// PlanID is the plan being executed.
	PlanID string
	// TaskID is the related task, if applicable.
	TaskID string
	// ParentID is the container of the related task, if any.
	ParentID string
	// Description is the related task's description.
	Description string
	// Status is the task status after the event, or the plan status for
	// plan_done.
	Status string
	// Tick is the scheduler tick that dispatched the task.
	Tick int
	// Attempt is the 1-based attempt number for dispatch, retry and failure
	// events.
	Attempt int
	// Phase is the 1-based phase number for phase events.
	Phase int
	// Message provides additional context about the event.
	Message string
	// Error holds the failure text for failed, retry and skipped events.
	Error string
	// Completed and Total count leaf tasks at the time of the event.
	Completed int
	Total     int
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

func taskEvent(typ EventType, planID string, t *models.Task) Event {
	return Event{
		Type:        typ,
		PlanID:      planID,
		TaskID:      t.ID,
		ParentID:    t.ParentID,
		Description: t.Description,
		Status:      string(t.Status),
		Error:       t.Error,
	}
}
