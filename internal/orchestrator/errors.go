package orchestrator

import (
	"errors"
	"fmt"
)

// ErrPlanBusy is returned by Run when the same plan is already executing.
var ErrPlanBusy = errors.New("plan is already running")

// ErrTimeout is wrapped by the TaskExecutionError of an attempt that ran
// past the task timeout.
var ErrTimeout = errors.New("task timed out")

// TaskExecutionError describes one failed attempt. It is recorded on the
// task and in the report, never returned from Run.
type TaskExecutionError struct {
	PlanID  string
	TaskID  string
	Attempt int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *TaskExecutionError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = "failed without a message"
	}
	return fmt.Sprintf("task %s attempt %d: %s", e.TaskID, e.Attempt, msg)
}

// Unwrap returns the underlying cause, if any.
func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}
