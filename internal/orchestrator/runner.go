package orchestrator

import "context"

// Outcome is what a runner reports for one attempt.
type Outcome struct {
	Success bool
	// Output is stored as the task's result on success.
	Output string
	// Error describes the failure when Success is false.
	Error string
}

// ExecContext carries what a runner may need besides the description.
type ExecContext struct {
	PlanID string
	TaskID string
	Goal   string
	// Attempt is 1 for the first try and grows with each retry.
	Attempt int
	// Upstream maps each dependency ID to its result.
	Upstream map[string]string
}

// TaskRunner executes one task attempt. Implementations must be safe for
// concurrent use and should return promptly once ctx is done.
type TaskRunner interface {
	Execute(ctx context.Context, description string, ec ExecContext) Outcome
}

// RunnerFunc adapts a function to TaskRunner.
type RunnerFunc func(ctx context.Context, description string, ec ExecContext) Outcome

// Execute calls f.
func (f RunnerFunc) Execute(ctx context.Context, description string, ec ExecContext) Outcome {
	return f(ctx, description, ec)
}

// Succeeded is a convenience constructor for a successful Outcome.
func Succeeded(output string) Outcome {
	return Outcome{Success: true, Output: output}
}

// Failed is a convenience constructor for a failed Outcome.
func Failed(msg string) Outcome {
	return Outcome{Error: msg}
}
