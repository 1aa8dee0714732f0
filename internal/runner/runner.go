// Package runner provides task runners that need no external service:
// DryRun echoes each task, Scripted replays outcomes from a script.
package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskgraph/internal/orchestrator"
)

// DryRun succeeds with an echo of the description and its upstream IDs.
type DryRun struct {
	// Delay simulates work.
	Delay  time.Duration
	Logger *zap.Logger
}

// Execute implements orchestrator.TaskRunner.
func (d *DryRun) Execute(ctx context.Context, description string, ec orchestrator.ExecContext) orchestrator.Outcome {
	if err := sleep(ctx, d.Delay); err != nil {
		return orchestrator.Failed(err.Error())
	}
	if d.Logger != nil {
		d.Logger.Debug("dry run", zap.String("task", ec.TaskID), zap.Int("attempt", ec.Attempt))
	}
	return orchestrator.Succeeded(echo(description, ec))
}

func echo(description string, ec orchestrator.ExecContext) string {
	if len(ec.Upstream) == 0 {
		return "done: " + description
	}
	ids := make([]string, 0, len(ec.Upstream))
	for id := range ec.Upstream {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("done: %s (after %s)", description, strings.Join(ids, ", "))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Step scripts the outcome of one task description.
type Step struct {
	// FailTimes is how many attempts fail before one succeeds. A negative
	// value fails every attempt.
	FailTimes int `yaml:"fail_times"`
	// Error is the failure message. Defaults to "scripted failure".
	Error string `yaml:"error"`
	// Output replaces the echoed result on success.
	Output string `yaml:"output"`
	// Delay simulates work before the outcome.
	Delay time.Duration `yaml:"delay"`
	// Panic makes the attempt panic instead of returning.
	Panic bool `yaml:"panic"`
}

// Scripted returns deterministic outcomes keyed by description. Tasks not in
// the script succeed like DryRun. Attempts are counted per task ID so a
// replacement task starts with a fresh count.
type Scripted struct {
	steps map[string]Step

	mu       sync.Mutex
	attempts map[string]int
}

// NewScripted creates a Scripted runner.
func NewScripted(steps map[string]Step) *Scripted {
	s := &Scripted{steps: make(map[string]Step, len(steps)), attempts: make(map[string]int)}
	for desc, st := range steps {
		s.steps[normalize(desc)] = st
	}
	return s
}

// Execute implements orchestrator.TaskRunner.
func (s *Scripted) Execute(ctx context.Context, description string, ec orchestrator.ExecContext) orchestrator.Outcome {
	step, ok := s.steps[normalize(description)]

	s.mu.Lock()
	s.attempts[ec.TaskID]++
	n := s.attempts[ec.TaskID]
	s.mu.Unlock()

	if !ok {
		return orchestrator.Succeeded(echo(description, ec))
	}
	if err := sleep(ctx, step.Delay); err != nil {
		return orchestrator.Failed(err.Error())
	}
	if step.Panic {
		panic(fmt.Sprintf("scripted panic in %s", ec.TaskID))
	}
	if step.FailTimes < 0 || n <= step.FailTimes {
		msg := step.Error
		if msg == "" {
			msg = "scripted failure"
		}
		return orchestrator.Failed(fmt.Sprintf("%s (attempt %d)", msg, n))
	}
	if step.Output != "" {
		return orchestrator.Succeeded(step.Output)
	}
	return orchestrator.Succeeded(echo(description, ec))
}

// Attempts reports how many attempts a task ID has made.
func (s *Scripted) Attempts(taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[taskID]
}

func normalize(desc string) string {
	return strings.ToLower(strings.Join(strings.Fields(desc), " "))
}

var (
	_ orchestrator.TaskRunner = (*DryRun)(nil)
	_ orchestrator.TaskRunner = (*Scripted)(nil)
)
