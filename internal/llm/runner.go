package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskgraph/internal/orchestrator"
)

const runnerSystem = `You carry out one task of a larger plan. Do the task and reply with its result only.
Results of the tasks it depends on are given; build on them rather than repeating them.`

// maxUpstreamChars caps how much of each upstream result goes into a prompt.
const maxUpstreamChars = 4000

// Runner performs each task with one Claude call.
type Runner struct {
	c      Completer
	logger *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(c Completer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{c: c, logger: logger.Named("llm_runner")}
}

// Execute implements orchestrator.TaskRunner.
func (r *Runner) Execute(ctx context.Context, description string, ec orchestrator.ExecContext) orchestrator.Outcome {
	out, err := r.c.Complete(ctx, runnerSystem, taskPrompt(description, ec))
	if err != nil {
		r.logger.Warn("task call failed", zap.String("task", ec.TaskID), zap.Int("attempt", ec.Attempt), zap.Error(err))
		return orchestrator.Failed(err.Error())
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return orchestrator.Failed("empty response")
	}
	return orchestrator.Succeeded(out)
}

func taskPrompt(description string, ec orchestrator.ExecContext) string {
	var b strings.Builder
	if ec.Goal != "" {
		fmt.Fprintf(&b, "Overall goal: %s\n\n", ec.Goal)
	}
	fmt.Fprintf(&b, "Task %s: %s\n", ec.TaskID, description)
	if ec.Attempt > 1 {
		fmt.Fprintf(&b, "This is attempt %d; earlier attempts failed.\n", ec.Attempt)
	}
	if len(ec.Upstream) > 0 {
		ids := make([]string, 0, len(ec.Upstream))
		for id := range ec.Upstream {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		b.WriteString("\nResults of earlier tasks:\n")
		for _, id := range ids {
			fmt.Fprintf(&b, "\n<result task=%q>\n%s\n</result>\n", id, clip(ec.Upstream[id], maxUpstreamChars))
		}
	}
	return b.String()
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ orchestrator.TaskRunner = (*Runner)(nil)
