package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskgraph/internal/replan"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

const proposerSystem = `You repair plans. Some tasks failed or were skipped. Propose the work that should run instead.
Reply with one task per line and nothing else. Start a line with the failed task's id in brackets, like "[t2] ...", when it replaces that task.
Lines without an id are new tasks. List tasks in the order they should run.`

var (
	replacesPrefix = regexp.MustCompile(`^\[([^\]\s]+)\]\s*(.*)$`)
	listMarker     = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s+`)
)

// Proposer asks Claude for replacement work.
type Proposer struct {
	c      Completer
	logger *zap.Logger
}

// NewProposer creates a Proposer.
func NewProposer(c Completer, logger *zap.Logger) *Proposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proposer{c: c, logger: logger.Named("llm_proposer")}
}

// Propose implements replan.Proposer.
func (p *Proposer) Propose(ctx context.Context, req replan.Request) (replan.Proposal, error) {
	reply, err := p.c.Complete(ctx, proposerSystem, proposerPrompt(req))
	if err != nil {
		return replan.Proposal{}, fmt.Errorf("propose replacement work: %w", err)
	}
	failed := make(map[string]bool, len(req.Failures))
	for _, f := range req.Failures {
		failed[f.ID] = true
	}
	items := ParseProposal(reply, failed)
	p.logger.Info("proposal received", zap.Int("items", len(items)), zap.String("reason", req.Reason))
	return replan.Proposal{Items: items}, nil
}

func proposerPrompt(req replan.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", req.Goal)
	if req.Reason != "" {
		fmt.Fprintf(&b, "Why we are replanning: %s\n", req.Reason)
	}
	if req.Plan != nil {
		b.WriteString("\nCompleted tasks:\n")
		for _, t := range req.Plan.Leaves() {
			if t.Status == models.TaskStatusCompleted {
				fmt.Fprintf(&b, "- [%s] %s\n", t.ID, t.Description)
			}
		}
	}
	b.WriteString("\nFailed or skipped tasks:\n")
	for _, f := range req.Failures {
		fmt.Fprintf(&b, "- [%s] %s (%s: %s)\n", f.ID, f.Description, f.Status, f.Error)
	}
	return b.String()
}

// ParseProposal reads one task per line. A bracketed ID prefix marks a
// replacement, and is kept only when it names a task in known. List
// markers and blank lines are ignored.
func ParseProposal(reply string, known map[string]bool) []replan.ProposedTask {
	var out []replan.ProposedTask
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(line), ""))
		if line == "" {
			continue
		}
		item := replan.ProposedTask{Description: line}
		if m := replacesPrefix.FindStringSubmatch(line); m != nil {
			item.Description = strings.TrimSpace(m[2])
			if known[m[1]] {
				item.Replaces = m[1]
			}
		}
		if item.Description != "" {
			out = append(out, item)
		}
	}
	return out
}

var _ replan.Proposer = (*Proposer)(nil)
