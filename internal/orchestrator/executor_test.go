package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskgraph/internal/planning"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

func TestRun_SequentialFollowsDependencies(t *testing.T) {
	plan := buildPlan(t, models.StrategySequential, 1,
		node{id: "t1", desc: "Research X"},
		node{id: "t2", desc: "Analyze X findings", deps: []string{"t1"}},
		node{id: "t3", desc: "Write report on X", deps: []string{"t2"}},
	)
	rec := newRecorder()

	report, err := New(rec).Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []string{"t1", "t2", "t3"}, report.DispatchOrder)
	assert.Equal(t, models.PlanStatusCompleted, report.Status)
	assert.Equal(t, models.PlanStatusCompleted, plan.Status)
	assert.Equal(t, 3, report.Ticks)
	assert.Empty(t, report.Failures)
	assert.False(t, report.Cancelled)

	calls := rec.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, map[string]string{"t2": "done: Analyze X findings"}, calls[2].Upstream)
	assert.Equal(t, "done: Write report on X", plan.Task("t3").Result)
	assert.NotNil(t, plan.Task("t3").CompletedAt)
}

func TestRun_BoundedParallelDispatchesIndependentTasksTogether(t *testing.T) {
	plan := buildPlan(t, models.StrategyBoundedParallel, 2,
		node{id: "t1", desc: "Research topic A"},
		node{id: "t2", desc: "Research topic B"},
	)
	events := NewEventEmitter(64)

	report, err := New(newRecorder(), WithEventEmitter(events)).Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Ticks)
	assert.Equal(t, []string{"t1", "t2"}, report.DispatchOrder)
	dispatched := eventsOf(drain(events), EventTaskDispatched)
	require.Len(t, dispatched, 2)
	assert.Equal(t, 1, dispatched[0].Tick)
	assert.Equal(t, 1, dispatched[1].Tick)
}

func TestRun_FailureSkipsDependentsOnly(t *testing.T) {
	plan := buildPlan(t, models.StrategyBoundedParallel, 2,
		node{id: "t1", desc: "Fetch data"},
		node{id: "t2", desc: "Summarize data", deps: []string{"t1"}},
		node{id: "t3", desc: "Book a venue"},
	)
	rec := newRecorder().script("Fetch data", Failed("connection refused"), Failed("connection refused"))
	events := NewEventEmitter(64)

	report, err := New(rec, WithRetryBudget(1), WithEventEmitter(events)).Run(context.Background(), plan)
	require.NoError(t, err)

	fetch, summarize, venue := plan.Task("t1"), plan.Task("t2"), plan.Task("t3")
	assert.Equal(t, models.TaskStatusFailed, fetch.Status)
	assert.Equal(t, 1, fetch.RetriesUsed)
	assert.Contains(t, fetch.Error, "connection refused")
	assert.Equal(t, models.TaskStatusSkipped, summarize.Status)
	assert.Equal(t, "dependency t1 failed", summarize.Error)
	assert.Nil(t, summarize.StartedAt)
	assert.Equal(t, models.TaskStatusCompleted, venue.Status)

	assert.NotContains(t, report.DispatchOrder, "t2")
	assert.Equal(t, 2, countOf(report.DispatchOrder, "t1"))
	assert.Equal(t, models.PlanStatusPartiallyCompleted, report.Status)

	require.Len(t, report.Failures, 2)
	assert.Equal(t, TaskError{ID: "t1", Description: "Fetch data", Status: models.TaskStatusFailed, Error: fetch.Error, Attempts: 2}, report.Failures[0])
	assert.Equal(t, models.TaskStatusSkipped, report.Failures[1].Status)
	assert.Len(t, report.Failed(), 1)

	evs := drain(events)
	assert.Len(t, eventsOf(evs, EventTaskRetry), 1)
	assert.Len(t, eventsOf(evs, EventTaskFailed), 1)
	skipped := eventsOf(evs, EventTaskSkipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, "t2", skipped[0].TaskID)
	for _, ev := range eventsOf(evs, EventTaskDispatched) {
		assert.NotEqual(t, "t2", ev.TaskID)
	}
}

func countOf(xs []string, x string) int {
	n := 0
	for _, v := range xs {
		if v == x {
			n++
		}
	}
	return n
}

func TestRun_RetryThenSucceed(t *testing.T) {
	plan := buildPlan(t, models.StrategySequential, 1, node{id: "t1", desc: "flaky"})
	rec := newRecorder().script("flaky", Failed("try again"))

	report, err := New(rec).Run(context.Background(), plan)
	require.NoError(t, err)

	task := plan.Task("t1")
	assert.Equal(t, models.TaskStatusCompleted, task.Status)
	assert.Equal(t, 1, task.RetriesUsed)
	assert.Empty(t, task.Error)
	assert.Equal(t, []string{"t1", "t1"}, report.DispatchOrder)

	calls := rec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 1, calls[0].Attempt)
	assert.Equal(t, 2, calls[1].Attempt)
}

func TestRun_ZeroRetryBudget(t *testing.T) {
	plan := buildPlan(t, models.StrategySequential, 1, node{id: "t1", desc: "flaky"})
	rec := newRecorder().script("flaky", Failed("nope"))

	report, err := New(rec, WithRetryBudget(0)).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, plan.Task("t1").Status)
	assert.Equal(t, models.PlanStatusFailed, report.Status)
	assert.Equal(t, "task t1 attempt 1: nope", plan.Task("t1").Error)
}

func TestRun_ConcurrencyBound(t *testing.T) {
	var nodes []node
	for i := 0; i < 9; i++ {
		nodes = append(nodes, node{id: "t" + string(rune('1'+i))})
	}
	plan := buildPlan(t, models.StrategyBoundedParallel, 3, nodes...)

	var running, high atomic.Int32
	var started atomic.Int32
	gate := make(chan struct{})
	var once sync.Once
	runner := RunnerFunc(func(ctx context.Context, _ string, _ ExecContext) Outcome {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			h := high.Load()
			if n <= h || high.CompareAndSwap(h, n) {
				break
			}
		}
		if started.Add(1) == 3 {
			once.Do(func() { close(gate) })
		}
		select {
		case <-gate:
		case <-time.After(2 * time.Second):
		}
		return Succeeded("ok")
	})

	report, err := New(runner).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusCompleted, report.Status)
	assert.Equal(t, int32(3), high.Load())
	assert.Len(t, report.DispatchOrder, 9)
}

func TestRun_NeverDispatchesBeforeDependenciesComplete(t *testing.T) {
	plan := buildPlan(t, models.StrategyBoundedParallel, 4,
		node{id: "a"},
		node{id: "b", deps: []string{"a"}},
		node{id: "c", deps: []string{"a"}},
		node{id: "d", deps: []string{"b", "c"}},
		node{id: "e"},
		node{id: "f", deps: []string{"e", "d"}},
	)
	events := NewEventEmitter(256)

	_, err := New(newRecorder(), WithEventEmitter(events)).Run(context.Background(), plan)
	require.NoError(t, err)

	completed := map[string]bool{}
	for _, ev := range drain(events) {
		switch ev.Type {
		case EventTaskCompleted:
			completed[ev.TaskID] = true
		case EventTaskDispatched:
			for _, dep := range plan.Task(ev.TaskID).Dependencies {
				assert.True(t, completed[dep], "%s dispatched before %s completed", ev.TaskID, dep)
			}
		}
	}
	assert.Len(t, completed, 6)
}

func TestRun_PriorityOrdersDispatch(t *testing.T) {
	plan := buildPlan(t, models.StrategySequential, 1,
		node{id: "t1"}, node{id: "t2"}, node{id: "t3"},
	)
	plan.Task("t1").Priority = 5
	plan.Task("t3").Priority = -1

	report, err := New(newRecorder()).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"t3", "t2", "t1"}, report.DispatchOrder)
}

func TestRun_DeterministicDispatchOrder(t *testing.T) {
	nodes := []node{
		{id: "t1"},
		{id: "t2"},
		{id: "t3", deps: []string{"t1"}},
		{id: "t4", deps: []string{"t2"}},
		{id: "t5", deps: []string{"t3", "t4"}},
	}
	var first []string
	for i := 0; i < 10; i++ {
		plan := buildPlan(t, models.StrategySequential, 1, nodes...)
		report, err := New(newRecorder()).Run(context.Background(), plan)
		require.NoError(t, err)
		if first == nil {
			first = report.DispatchOrder
			continue
		}
		assert.Equal(t, first, report.DispatchOrder)
	}
	assert.Equal(t, []string{"t1", "t2", "t3", "t4", "t5"}, first)
}

func TestRun_TimeoutCountsAsFailedAttempt(t *testing.T) {
	plan := buildPlan(t, models.StrategySequential, 1, node{id: "t1", desc: "slow"})
	runner := RunnerFunc(func(ctx context.Context, _ string, _ ExecContext) Outcome {
		<-ctx.Done()
		return Succeeded("too late")
	})

	report, err := New(runner, WithTaskTimeout(20*time.Millisecond), WithRetryBudget(0)).Run(context.Background(), plan)
	require.NoError(t, err)

	task := plan.Task("t1")
	assert.Equal(t, models.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "timed out after 20ms")
	assert.Empty(t, task.Result)
	assert.Equal(t, models.PlanStatusFailed, report.Status)
}

func TestRun_RunnerPanicIsAFailure(t *testing.T) {
	plan := buildPlan(t, models.StrategySequential, 1, node{id: "t1"})
	runner := RunnerFunc(func(context.Context, string, ExecContext) Outcome {
		panic("boom")
	})

	_, err := New(runner, WithRetryBudget(0)).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Contains(t, plan.Task("t1").Error, "runner panicked: boom")
}

func TestRun_CancelLetsRunningWorkFinish(t *testing.T) {
	plan := buildPlan(t, models.StrategySequential, 1,
		node{id: "t1", desc: "long"},
		node{id: "t2", deps: []string{"t1"}},
		node{id: "t3"},
	)
	started := make(chan struct{})
	release := make(chan struct{})
	runner := RunnerFunc(func(ctx context.Context, desc string, _ ExecContext) Outcome {
		if desc == "long" {
			close(started)
			<-release
		}
		return Succeeded(desc)
	})
	exec := New(runner)

	type result struct {
		report *Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		r, err := exec.Run(context.Background(), plan)
		done <- result{r, err}
	}()

	<-started
	assert.Equal(t, []string{plan.ID}, exec.Active())
	assert.True(t, exec.Cancel(plan.ID))
	close(release)

	res := <-done
	require.NoError(t, res.err)
	assert.True(t, res.report.Cancelled)
	assert.Equal(t, models.TaskStatusCompleted, plan.Task("t1").Status)
	assert.Equal(t, models.TaskStatusSkipped, plan.Task("t2").Status)
	assert.Equal(t, "cancelled", plan.Task("t2").Error)
	assert.Equal(t, models.TaskStatusSkipped, plan.Task("t3").Status)
	assert.Equal(t, models.PlanStatusPartiallyCompleted, res.report.Status)
	assert.Equal(t, []string{"t1"}, res.report.DispatchOrder)
	assert.Empty(t, exec.Active())
	assert.False(t, exec.Cancel(plan.ID))
}

func TestRun_CancelledContextDispatchesNothing(t *testing.T) {
	plan := buildPlan(t, models.StrategyBoundedParallel, 2, node{id: "t1"}, node{id: "t2"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := newRecorder()
	report, err := New(rec).Run(ctx, plan)
	require.NoError(t, err)
	assert.True(t, report.Cancelled)
	assert.Empty(t, rec.Calls())
	assert.Equal(t, models.PlanStatusFailed, report.Status)
}

func TestRun_RejectsConcurrentRunOfSamePlan(t *testing.T) {
	plan := buildPlan(t, models.StrategySequential, 1, node{id: "t1"})
	started := make(chan struct{})
	release := make(chan struct{})
	runner := RunnerFunc(func(context.Context, string, ExecContext) Outcome {
		close(started)
		<-release
		return Succeeded("ok")
	})
	exec := New(runner)

	done := make(chan error, 1)
	go func() {
		_, err := exec.Run(context.Background(), plan)
		done <- err
	}()
	<-started

	_, err := exec.Run(context.Background(), plan)
	assert.ErrorIs(t, err, ErrPlanBusy)

	close(release)
	require.NoError(t, <-done)
}

func TestRun_InvalidPlan(t *testing.T) {
	plan := buildPlan(t, models.StrategySequential, 1,
		node{id: "t1", deps: []string{"t2"}},
		node{id: "t2", deps: []string{"t1"}},
	)
	report, err := New(newRecorder()).Run(context.Background(), plan)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, planning.ErrInvalidPlan)

	var verr *planning.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has(planning.IssueCycle))
}

func TestRun_HierarchicalPhases(t *testing.T) {
	plan := buildPlan(t, models.StrategyHierarchical, 2,
		node{id: "p1", desc: "Gather", sub: []node{
			{id: "p1.t1", desc: "Fetch data"},
			{id: "p1.t2", desc: "Summarize data", deps: []string{"p1.t1"}},
		}},
		node{id: "p2", desc: "Publish", deps: []string{"p1"}, sub: []node{
			{id: "p2.t1", desc: "Write post"},
			{id: "p2.t2", desc: "Send newsletter"},
		}},
	)
	events := NewEventEmitter(256)

	report, err := New(newRecorder(), WithEventEmitter(events)).Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusCompleted, report.Status)
	assert.Equal(t, []string{"p1.t1", "p1.t2", "p2.t1", "p2.t2"}, report.DispatchOrder)
	assert.Equal(t, models.TaskStatusCompleted, plan.Task("p1").Status)
	assert.Equal(t, models.TaskStatusCompleted, plan.Task("p2").Status)

	evs := drain(events)
	var phases []string
	for _, ev := range evs {
		if ev.Type == EventPhaseStarted || ev.Type == EventPhaseCompleted {
			phases = append(phases, string(ev.Type)+string(rune('0'+ev.Phase)))
		}
	}
	assert.Equal(t, []string{"phase_started1", "phase_completed1", "phase_started2", "phase_completed2"}, phases)
	assert.Equal(t, EventPlanDone, evs[len(evs)-1].Type)
}

func TestRun_HierarchicalFailureSkipsLaterPhase(t *testing.T) {
	plan := buildPlan(t, models.StrategyHierarchical, 2,
		node{id: "p1", desc: "Gather", sub: []node{
			{id: "p1.t1", desc: "Fetch data"},
			{id: "p1.t2", desc: "Summarize data", deps: []string{"p1.t1"}},
		}},
		node{id: "p2", desc: "Publish", deps: []string{"p1"}, sub: []node{
			{id: "p2.t1", desc: "Write post"},
		}},
	)
	rec := newRecorder().script("Fetch data", Failed("offline"))

	report, err := New(rec, WithRetryBudget(0)).Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusFailed, plan.Task("p1").Status)
	assert.Equal(t, models.TaskStatusSkipped, plan.Task("p1.t2").Status)
	assert.Equal(t, models.TaskStatusSkipped, plan.Task("p2").Status)
	assert.Equal(t, models.TaskStatusSkipped, plan.Task("p2.t1").Status)
	assert.Equal(t, "dependency p1 failed", plan.Task("p2.t1").Error)
	assert.Equal(t, []string{"p1.t1"}, report.DispatchOrder)
	assert.Equal(t, models.PlanStatusFailed, report.Status)
}

func TestRun_HierarchicalFlatPlanWaitsForWholeLayer(t *testing.T) {
	plan := buildPlan(t, models.StrategyHierarchical, 2,
		node{id: "a", desc: "quick"},
		node{id: "b", desc: "slow"},
		node{id: "c", desc: "after a", deps: []string{"a"}},
	)
	var bDone atomic.Bool
	var cSawB atomic.Bool
	runner := RunnerFunc(func(_ context.Context, desc string, _ ExecContext) Outcome {
		switch desc {
		case "slow":
			time.Sleep(30 * time.Millisecond)
			bDone.Store(true)
		case "after a":
			cSawB.Store(bDone.Load())
		}
		return Succeeded(desc)
	})

	report, err := New(runner).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, report.DispatchOrder)
	assert.True(t, cSawB.Load(), "c must wait for the whole first layer")
}

func TestRun_CheckpointsSnapshots(t *testing.T) {
	plan := buildPlan(t, models.StrategySequential, 1, node{id: "t1"}, node{id: "t2", deps: []string{"t1"}})

	var mu sync.Mutex
	var snapshots []*models.Plan
	saver := saverFunc(func(_ context.Context, p *models.Plan) error {
		mu.Lock()
		defer mu.Unlock()
		snapshots = append(snapshots, p)
		return errors.New("disk full")
	})

	report, err := New(newRecorder(), WithCheckpoint(saver)).Run(context.Background(), plan)
	require.NoError(t, err, "save failures are not fatal")
	assert.Equal(t, models.PlanStatusCompleted, report.Status)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, snapshots)
	last := snapshots[len(snapshots)-1]
	assert.Equal(t, models.PlanStatusCompleted, last.Status)
	assert.NotSame(t, plan.Task("t1"), last.Task("t1"))
	last.Task("t1").Result = "changed"
	assert.NotEqual(t, "changed", plan.Task("t1").Result)
}

func TestRun_ReplanAddsReplacementWork(t *testing.T) {
	plan := buildPlan(t, models.StrategyBoundedParallel, 2,
		node{id: "t1", desc: "Fetch data"},
		node{id: "t2", desc: "Summarize data", deps: []string{"t1"}},
	)
	rec := newRecorder().script("Fetch data", Failed("offline"))

	var got ReplanRequest
	replanner := replannerFunc(func(_ context.Context, req ReplanRequest) (PlanExtension, error) {
		got = req
		return extensionFunc(func(p *models.Plan) error {
			p.Revision++
			if err := p.AddTask(&models.Task{ID: "r1.1", Description: "Fetch data from mirror", Replaces: "t1", Status: models.TaskStatusPending, Priority: 2, Position: 2}); err != nil {
				return err
			}
			return p.AddTask(&models.Task{ID: "r1.2", Description: "Summarize data", Replaces: "t2", Dependencies: []string{"r1.1"}, Status: models.TaskStatusPending, Priority: 3, Position: 3})
		}), nil
	})
	events := NewEventEmitter(256)

	report, err := New(rec, WithRetryBudget(0), WithReplanner(replanner, 2), WithEventEmitter(events)).Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, "task t1 failed", got.Reason)
	require.Len(t, got.Failures, 2)
	assert.Equal(t, "t1", got.Failures[0].ID)
	assert.NotSame(t, plan, got.Plan)

	assert.Equal(t, 1, report.ReplanRounds)
	assert.Equal(t, 1, plan.Revision)
	assert.Equal(t, []string{"t1", "r1.1", "r1.2"}, report.DispatchOrder)
	assert.Equal(t, models.TaskStatusCompleted, plan.Task("r1.2").Status)
	assert.Equal(t, models.PlanStatusPartiallyCompleted, report.Status)
	assert.Len(t, eventsOf(drain(events), EventReplanApplied), 1)
}

func TestRun_ReplanBudget(t *testing.T) {
	plan := buildPlan(t, models.StrategyBoundedParallel, 2, node{id: "t1", desc: "a"}, node{id: "t2", desc: "b"})
	rec := newRecorder().script("a", Failed("x")).script("b", Failed("y"))

	var calls atomic.Int32
	replanner := replannerFunc(func(context.Context, ReplanRequest) (PlanExtension, error) {
		calls.Add(1)
		return nil, nil
	})

	report, err := New(rec, WithRetryBudget(0), WithReplanner(replanner, 1)).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, report.ReplanRounds)
}

func TestRun_RequestReplanMidRun(t *testing.T) {
	plan := buildPlan(t, models.StrategySequential, 1, node{id: "t1", desc: "long"})
	started := make(chan struct{})
	release := make(chan struct{})
	runner := RunnerFunc(func(_ context.Context, desc string, _ ExecContext) Outcome {
		if desc == "long" {
			close(started)
			<-release
		}
		return Succeeded(desc)
	})
	reasons := make(chan string, 1)
	replanner := replannerFunc(func(_ context.Context, req ReplanRequest) (PlanExtension, error) {
		reasons <- req.Reason
		return extensionFunc(func(p *models.Plan) error {
			p.Revision++
			return p.AddTask(&models.Task{ID: "r1.1", Description: "extra", Status: models.TaskStatusPending, Position: 1, Priority: 1})
		}), nil
	})
	exec := New(runner, WithReplanner(replanner, 1))

	done := make(chan *Report, 1)
	go func() {
		r, _ := exec.Run(context.Background(), plan)
		done <- r
	}()
	<-started
	assert.True(t, exec.RequestReplan(plan.ID))
	assert.Equal(t, "requested", <-reasons)
	close(release)

	report := <-done
	require.NotNil(t, report)
	assert.Equal(t, []string{"t1", "r1.1"}, report.DispatchOrder)
	assert.Equal(t, models.PlanStatusCompleted, report.Status)
	assert.False(t, exec.RequestReplan(plan.ID))
}

func TestRun_PauseHoldsDispatch(t *testing.T) {
	plan := buildPlan(t, models.StrategySequential, 1, node{id: "t1"})
	pause := NewPauseController(nil)
	pause.Pause()

	var calls atomic.Int32
	runner := RunnerFunc(func(context.Context, string, ExecContext) Outcome {
		calls.Add(1)
		return Succeeded("ok")
	})

	done := make(chan *Report, 1)
	go func() {
		r, _ := New(runner, WithPauseController(pause)).Run(context.Background(), plan)
		done <- r
	}()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	pause.Resume()

	report := <-done
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, models.PlanStatusCompleted, report.Status)
}

func TestRun_ResumesInterruptedPlan(t *testing.T) {
	plan := buildPlan(t, models.StrategySequential, 1, node{id: "t1"}, node{id: "t2", deps: []string{"t1"}})
	plan.Task("t1").Status = models.TaskStatusCompleted
	plan.Task("t1").Result = "cached"
	plan.Task("t2").Status = models.TaskStatusRunning

	rec := newRecorder()
	report, err := New(rec).Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []string{"t2"}, report.DispatchOrder)
	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]string{"t1": "cached"}, calls[0].Upstream)
	assert.Equal(t, models.PlanStatusCompleted, report.Status)
}

func TestRun_EmptyPlanCompletes(t *testing.T) {
	plan := buildPlan(t, models.StrategyBoundedParallel, 2)
	report, err := New(newRecorder()).Run(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusCompleted, report.Status)
	assert.Zero(t, report.Ticks)
}

func TestTaskExecutionError(t *testing.T) {
	err := &TaskExecutionError{TaskID: "t1", Attempt: 2, Message: "timed out after 1s", Err: ErrTimeout}
	assert.Equal(t, "task t1 attempt 2: timed out after 1s", err.Error())
	assert.ErrorIs(t, err, ErrTimeout)
}
