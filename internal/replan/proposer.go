package replan

import (
	"context"

	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// ProposedTask is one piece of replacement work.
type ProposedTask struct {
	Description string
	// Replaces is the ID of the failed or skipped task this one supersedes.
	// Empty for genuinely new work.
	Replaces string
}

// Proposal is what a Proposer suggests adding to the plan.
type Proposal struct {
	Items []ProposedTask
	// Narrative, when set, orders the new work for inference. Otherwise the
	// plan's own narrative is used.
	Narrative string
}

// Proposer suggests replacement work for a replan request.
type Proposer interface {
	Propose(ctx context.Context, req Request) (Proposal, error)
}

// ProposerFunc adapts a function to Proposer.
type ProposerFunc func(ctx context.Context, req Request) (Proposal, error)

// Propose calls f.
func (f ProposerFunc) Propose(ctx context.Context, req Request) (Proposal, error) {
	return f(ctx, req)
}

// RetryProposer re-proposes every failed task and each of its skipped
// dependents, unchanged and in plan order.
type RetryProposer struct{}

// Propose implements Proposer.
func (RetryProposer) Propose(_ context.Context, req Request) (Proposal, error) {
	var p Proposal
	for _, f := range req.Failures {
		if f.Status != models.TaskStatusFailed && f.Status != models.TaskStatusSkipped {
			continue
		}
		p.Items = append(p.Items, ProposedTask{Description: f.Description, Replaces: f.ID})
	}
	return p, nil
}
