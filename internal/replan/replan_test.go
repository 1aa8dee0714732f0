package replan

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskgraph/internal/inference"
	"github.com/ShayCichocki/taskgraph/internal/orchestrator"
	"github.com/ShayCichocki/taskgraph/internal/planning"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

func newReplanner(t *testing.T, opts ...Option) *Replanner {
	t.Helper()
	e, err := inference.NewEngine(inference.DefaultConfig())
	require.NoError(t, err)
	return New(e, opts...)
}

// failedPlan is fetch -> summarize -> publish where summarize failed.
func failedPlan(t *testing.T) *models.Plan {
	t.Helper()
	p := models.NewPlan("p1", "Publish a summary", models.StrategySequential)
	p.Narrative = "First fetch data, then summarize it, then publish the summary"
	tasks := []*models.Task{
		{ID: "t1", Description: "Fetch data", Status: models.TaskStatusCompleted, Result: "rows", Position: 0, Priority: 0},
		{ID: "t2", Description: "Summarize the fetched data", Status: models.TaskStatusFailed, Error: "timeout", Dependencies: []string{"t1"}, Position: 1, Priority: 1},
		{ID: "t3", Description: "Publish the summary", Status: models.TaskStatusSkipped, Error: "dependency t2 failed", Dependencies: []string{"t2"}, Position: 2, Priority: 2},
	}
	for _, task := range tasks {
		require.NoError(t, p.AddTask(task))
	}
	return p
}

func snapshot(p *models.Plan) []*models.Task {
	var out []*models.Task
	for _, t := range p.AllTasks() {
		out = append(out, t.Clone())
	}
	return out
}

func TestFailuresOf(t *testing.T) {
	p := failedPlan(t)
	assert.Equal(t, []Failure{
		{ID: "t2", Description: "Summarize the fetched data", Status: models.TaskStatusFailed, Error: "timeout"},
		{ID: "t3", Description: "Publish the summary", Status: models.TaskStatusSkipped, Error: "dependency t2 failed"},
	}, FailuresOf(p))

	require.NoError(t, p.AddTask(&models.Task{ID: "r1.1", Description: "again", Replaces: "t2"}))
	p.Task("t3").Error = "cancelled"
	assert.Empty(t, FailuresOf(p))
}

func TestReplan_RetryProposerWiresReplacements(t *testing.T) {
	p := failedPlan(t)
	before := snapshot(p)

	frag, err := newReplanner(t).Replan(context.Background(), Request{Plan: p, Reason: "task t2 failed"})
	require.NoError(t, err)

	// The input plan is never touched.
	if diff := cmp.Diff(before, snapshot(p)); diff != "" {
		t.Fatalf("plan changed (-before +after):\n%s", diff)
	}
	assert.Equal(t, 0, p.Revision)

	assert.Equal(t, 1, frag.Revision)
	assert.Equal(t, []string{"t1"}, frag.Anchors)
	require.Len(t, frag.Tasks, 2)

	r1, r2 := frag.Tasks[0], frag.Tasks[1]
	assert.Equal(t, "r1.1", r1.ID)
	assert.Equal(t, "t2", r1.Replaces)
	assert.Equal(t, 3, r1.Priority)
	assert.Equal(t, models.TaskStatusPending, r1.Status)
	assert.Contains(t, r1.Dependencies, "t1")

	assert.Equal(t, "r1.2", r2.ID)
	assert.Equal(t, "t3", r2.Replaces)
	assert.Equal(t, 4, r2.Position)
	assert.Contains(t, r2.Dependencies, "r1.1")
	assert.NotContains(t, r2.Dependencies, "t2")

	assert.Contains(t, frag.Edges, Edge{From: "t1", To: "r1.1", Carried: true})
	assert.Contains(t, frag.Edges, Edge{From: "r1.1", To: "r1.2", Carried: true})
}

func TestReplan_DropsDependencyOnUnreplacedFailure(t *testing.T) {
	p := failedPlan(t)
	only := ProposerFunc(func(context.Context, Request) (Proposal, error) {
		return Proposal{Items: []ProposedTask{{Description: "Publish the summary", Replaces: "t3"}}}, nil
	})

	frag, err := newReplanner(t, WithProposer(only)).Replan(context.Background(), Request{Plan: p})
	require.NoError(t, err)
	require.Len(t, frag.Tasks, 1)
	assert.NotContains(t, frag.Tasks[0].Dependencies, "t2")
	for _, e := range frag.Edges {
		assert.False(t, e.Carried, "unexpected carried edge %+v", e)
	}
}

func TestReplan_FreshIDsSkipTakenOnes(t *testing.T) {
	p := failedPlan(t)
	require.NoError(t, p.AddTask(&models.Task{ID: "r1.1", Description: "stray", Status: models.TaskStatusCompleted}))

	frag, err := newReplanner(t).Replan(context.Background(), Request{Plan: p, Failures: FailuresOf(p)})
	require.NoError(t, err)
	require.Len(t, frag.Tasks, 2)
	assert.Equal(t, "r1.2", frag.Tasks[0].ID)
	assert.Equal(t, "r1.3", frag.Tasks[1].ID)
}

func TestReplan_EmptyProposal(t *testing.T) {
	none := ProposerFunc(func(context.Context, Request) (Proposal, error) {
		return Proposal{Items: []ProposedTask{{Description: "   "}}}, nil
	})
	frag, err := newReplanner(t, WithProposer(none)).Replan(context.Background(), Request{Plan: failedPlan(t)})
	require.NoError(t, err)
	assert.True(t, frag.Empty())
}

func TestReplan_ProposerError(t *testing.T) {
	boom := errors.New("boom")
	failing := ProposerFunc(func(context.Context, Request) (Proposal, error) { return Proposal{}, boom })
	_, err := newReplanner(t, WithProposer(failing)).Replan(context.Background(), Request{Plan: failedPlan(t)})
	assert.ErrorIs(t, err, boom)
}

func TestMerge_LeavesInputAlone(t *testing.T) {
	p := failedPlan(t)
	frag, err := newReplanner(t).Replan(context.Background(), Request{Plan: p})
	require.NoError(t, err)
	before := snapshot(p)

	merged, err := Merge(p, frag, planning.NewValidator())
	require.NoError(t, err)
	assert.Equal(t, 5, merged.Len())
	assert.Equal(t, 1, merged.Revision)

	if diff := cmp.Diff(before, snapshot(p)); diff != "" {
		t.Fatalf("merge changed its input (-before +after):\n%s", diff)
	}
	assert.Equal(t, 3, p.Len())
}

func TestApply_RejectsStaleFragment(t *testing.T) {
	p := failedPlan(t)
	v := planning.NewValidator()
	frag, err := newReplanner(t).Replan(context.Background(), Request{Plan: p})
	require.NoError(t, err)

	require.NoError(t, Apply(p, frag, v))
	assert.Equal(t, 1, p.Revision)
	assert.Equal(t, 5, p.Len())

	err = Apply(p, frag, v)
	assert.ErrorIs(t, err, ErrStaleFragment)
	assert.Equal(t, 5, p.Len())
}

func TestApply_InvalidFragmentLeavesPlanUntouched(t *testing.T) {
	p := failedPlan(t)
	frag := &Fragment{Revision: 1, Tasks: []*models.Task{
		{ID: "r1.1", Description: "x", Status: models.TaskStatusPending, Dependencies: []string{"missing"}},
	}}
	err := Apply(p, frag, planning.NewValidator())
	assert.ErrorIs(t, err, planning.ErrInvalidPlan)
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, 0, p.Revision)
}

func TestForExecutor_RecoversFromFailure(t *testing.T) {
	p := models.NewPlan("p1", "Publish a summary", models.StrategySequential)
	for _, task := range []*models.Task{
		{ID: "t1", Description: "Fetch data", Status: models.TaskStatusPending, Position: 0, Priority: 0},
		{ID: "t2", Description: "Summarize the fetched data", Status: models.TaskStatusPending, Dependencies: []string{"t1"}, Position: 1, Priority: 1},
		{ID: "t3", Description: "Publish the summary", Status: models.TaskStatusPending, Dependencies: []string{"t2"}, Position: 2, Priority: 2},
	} {
		require.NoError(t, p.AddTask(task))
	}

	runner := orchestrator.RunnerFunc(func(_ context.Context, desc string, ec orchestrator.ExecContext) orchestrator.Outcome {
		if ec.TaskID == "t2" {
			return orchestrator.Failed("flaky upstream")
		}
		return orchestrator.Succeeded(desc)
	})
	v := planning.NewValidator()
	exec := orchestrator.New(runner,
		orchestrator.WithRetryBudget(0),
		orchestrator.WithValidator(v),
		orchestrator.WithReplanner(newReplanner(t).ForExecutor(v), 1),
	)

	report, err := exec.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, []string{"t1", "t2", "r1.1", "r1.2"}, report.DispatchOrder)
	assert.Equal(t, 1, report.ReplanRounds)
	assert.Equal(t, 1, p.Revision)
	assert.Equal(t, models.TaskStatusCompleted, p.Task("r1.1").Status)
	assert.Equal(t, models.TaskStatusCompleted, p.Task("r1.2").Status)
	assert.Equal(t, models.PlanStatusPartiallyCompleted, report.Status)
}

// phasedPlan is p1{p1.t1 fetch} -> p2{p2.t1 write} with the given leaf states.
func phasedPlan(t *testing.T, fetch, write models.TaskStatus) *models.Plan {
	t.Helper()
	p := models.NewPlan("p1", "Publish a post", models.StrategyHierarchical)
	p.MaxParallel = 2
	require.NoError(t, p.AddTask(&models.Task{ID: "p1", Description: "Gather", Status: fetch, Position: 0}))
	require.NoError(t, p.AddTask(&models.Task{ID: "p2", Description: "Publish", Status: write, Dependencies: []string{"p1"}, Position: 1, Priority: 1}))
	require.NoError(t, p.AddSubtask("p1", &models.Task{ID: "p1.t1", Description: "Fetch data", Status: fetch}))
	require.NoError(t, p.AddSubtask("p2", &models.Task{ID: "p2.t1", Description: "Write post", Status: write}))
	return p
}

func TestReplan_ReplacementsKeepPhaseOrder(t *testing.T) {
	p := phasedPlan(t, models.TaskStatusFailed, models.TaskStatusSkipped)
	p.Task("p1.t1").Error = "offline"
	p.Task("p2.t1").Error = "dependency p1 failed"

	frag, err := newReplanner(t).Replan(context.Background(), Request{Plan: p})
	require.NoError(t, err)
	require.Len(t, frag.Tasks, 2)

	fetch, write := frag.Tasks[0], frag.Tasks[1]
	assert.Equal(t, "p1.t1", fetch.Replaces)
	assert.Empty(t, fetch.Dependencies)
	assert.Equal(t, "p2.t1", write.Replaces)
	assert.Equal(t, []string{fetch.ID}, write.Dependencies)
	assert.Contains(t, frag.Edges, Edge{From: fetch.ID, To: write.ID, Carried: true})

	_, err = Merge(p, frag, planning.NewValidator())
	require.NoError(t, err)
}

func TestReplan_ReplacementWaitsOnCompletedPhase(t *testing.T) {
	p := phasedPlan(t, models.TaskStatusCompleted, models.TaskStatusFailed)

	frag, err := newReplanner(t).Replan(context.Background(), Request{Plan: p})
	require.NoError(t, err)
	require.Len(t, frag.Tasks, 1)
	assert.Equal(t, []string{"p1"}, frag.Tasks[0].Dependencies)
}

func TestForExecutor_HierarchicalReplanKeepsPhaseOrder(t *testing.T) {
	p := phasedPlan(t, models.TaskStatusPending, models.TaskStatusPending)

	runner := orchestrator.RunnerFunc(func(_ context.Context, desc string, ec orchestrator.ExecContext) orchestrator.Outcome {
		if ec.TaskID == "p1.t1" {
			return orchestrator.Failed("offline")
		}
		return orchestrator.Succeeded(desc)
	})
	v := planning.NewValidator()
	exec := orchestrator.New(runner,
		orchestrator.WithRetryBudget(0),
		orchestrator.WithValidator(v),
		orchestrator.WithReplanner(newReplanner(t).ForExecutor(v), 1),
	)

	report, err := exec.Run(context.Background(), p)
	require.NoError(t, err)

	order := map[string]int{}
	for i, id := range report.DispatchOrder {
		order[id] = i
	}
	require.Contains(t, order, "r1.1")
	require.Contains(t, order, "r1.2")
	assert.Less(t, order["r1.1"], order["r1.2"], "the re-fetch runs before the post is rewritten")
	assert.Equal(t, models.TaskStatusCompleted, p.Task("r1.2").Status)
}
