package replan

import (
	"context"

	"github.com/ShayCichocki/taskgraph/internal/orchestrator"
	"github.com/ShayCichocki/taskgraph/internal/planning"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// ForExecutor adapts r to the executor's Replanner interface. Fragments are
// merged with v.
func (r *Replanner) ForExecutor(v *planning.Validator) orchestrator.Replanner {
	if v == nil {
		v = planning.NewValidator()
	}
	return &executorAdapter{r: r, v: v}
}

type executorAdapter struct {
	r *Replanner
	v *planning.Validator
}

func (a *executorAdapter) Replan(ctx context.Context, req orchestrator.ReplanRequest) (orchestrator.PlanExtension, error) {
	failures := make([]Failure, 0, len(req.Failures))
	for _, f := range req.Failures {
		failures = append(failures, Failure{ID: f.ID, Description: f.Description, Status: f.Status, Error: f.Error})
	}
	frag, err := a.r.Replan(ctx, Request{Goal: req.Goal, Plan: req.Plan, Failures: failures, Reason: req.Reason})
	if err != nil {
		return nil, err
	}
	if frag.Empty() {
		return nil, nil
	}
	return &extension{frag: frag, v: a.v}, nil
}

type extension struct {
	frag *Fragment
	v    *planning.Validator
}

func (x *extension) Apply(plan *models.Plan) error {
	return Apply(plan, x.frag, x.v)
}
