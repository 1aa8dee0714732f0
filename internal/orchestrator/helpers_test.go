package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// node describes a top-level task for buildPlan: id, description and deps.
type node struct {
	id   string
	desc string
	deps []string
	sub  []node
}

func toTask(s node, pos int) *models.Task {
	t := &models.Task{
		ID:           s.id,
		Description:  s.desc,
		Status:       models.TaskStatusPending,
		Dependencies: append([]string(nil), s.deps...),
		Priority:     pos,
		Position:     pos,
	}
	if t.Description == "" {
		t.Description = "do " + s.id
	}
	for i, st := range s.sub {
		t.Subtasks = append(t.Subtasks, toTask(st, i))
	}
	return t
}

func buildPlan(t *testing.T, strategy models.Strategy, maxParallel int, nodes ...node) *models.Plan {
	t.Helper()
	p := models.NewPlan("plan-"+t.Name(), "goal", strategy)
	p.MaxParallel = maxParallel
	for i, s := range nodes {
		require.NoError(t, p.AddTask(toTask(s, i)))
	}
	return p
}

// recorder is a TaskRunner that records every call and answers from a
// per-description script.
type recorder struct {
	mu       sync.Mutex
	calls    []ExecContext
	outcomes map[string][]Outcome
}

func newRecorder() *recorder {
	return &recorder{outcomes: make(map[string][]Outcome)}
}

// script queues outcomes for a description; once used up the task succeeds.
func (r *recorder) script(desc string, outs ...Outcome) *recorder {
	r.outcomes[desc] = append(r.outcomes[desc], outs...)
	return r
}

func (r *recorder) Execute(_ context.Context, description string, ec ExecContext) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ec)
	if q := r.outcomes[description]; len(q) > 0 {
		r.outcomes[description] = q[1:]
		return q[0]
	}
	return Succeeded("done: " + description)
}

func (r *recorder) Calls() []ExecContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ExecContext(nil), r.calls...)
}

// drain collects every event buffered in the emitter.
func drain(e *EventEmitter) []Event {
	var out []Event
	for {
		select {
		case ev := <-e.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventsOf(evs []Event, typ EventType) []Event {
	var out []Event
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// saverFunc adapts a function to PlanSaver.
type saverFunc func(ctx context.Context, plan *models.Plan) error

func (f saverFunc) SavePlan(ctx context.Context, plan *models.Plan) error { return f(ctx, plan) }

// replannerFunc adapts a function to Replanner.
type replannerFunc func(ctx context.Context, req ReplanRequest) (PlanExtension, error)

func (f replannerFunc) Replan(ctx context.Context, req ReplanRequest) (PlanExtension, error) {
	return f(ctx, req)
}

// extensionFunc adapts a function to PlanExtension.
type extensionFunc func(plan *models.Plan) error

func (f extensionFunc) Apply(plan *models.Plan) error { return f(plan) }
