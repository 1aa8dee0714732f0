package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskgraph/internal/logging"
	"github.com/ShayCichocki/taskgraph/internal/planning"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

const reasonCancelled = "cancelled"

// attemptResult is what a dispatch goroutine sends back to the coordinator.
type attemptResult struct {
	taskID   string
	attempt  int
	outcome  Outcome
	timedOut bool
	elapsed  time.Duration
}

type replanResult struct {
	ext PlanExtension
	err error
}

// run is the state of one plan execution. Every field is owned by the
// coordinator goroutine except ticking.
type run struct {
	e        *Executor
	ctx      context.Context
	plan     *models.Plan
	strategy models.Strategy
	sched    *Scheduler
	logger   *zap.Logger
	debug    *logging.DebugLog
	report   *Report

	completions chan attemptResult
	inflight    map[string]bool
	attempts    map[string]int

	ticking atomic.Bool
	tick    int

	phases    [][]string
	phase     int
	phaseOpen bool

	cancelled bool

	replanReq      <-chan string
	replanReason   string
	replanInflight bool
	replanResults  chan replanResult
	rounds         int
}

func newRun(e *Executor, plan *models.Plan, ctl *control) (*run, error) {
	strategy := plan.Strategy
	if e.opts.strategy != "" {
		strategy = e.opts.strategy
	}
	maxParallel := plan.MaxParallel
	if e.opts.maxParallel > 0 {
		maxParallel = e.opts.maxParallel
	}
	bound := maxParallel
	if strategy == models.StrategySequential {
		bound = 1
	}

	sched, err := NewScheduler(plan, bound)
	if err != nil {
		return nil, err
	}

	r := &run{
		e:             e,
		plan:          plan,
		strategy:      strategy,
		sched:         sched,
		logger:        e.logger.With(zap.String("plan", plan.ID)),
		debug:         e.opts.debugLog,
		completions:   make(chan attemptResult, sched.Bound()),
		inflight:      make(map[string]bool),
		attempts:      make(map[string]int),
		replanReq:     ctl.replan,
		replanResults: make(chan replanResult, 1),
	}
	if r.debug != nil {
		sched.SetDebugLog(r.debug.Log)
	}

	if strategy == models.StrategyHierarchical {
		phases, err := hierarchicalPhases(plan)
		if err != nil {
			return nil, err
		}
		r.phases = phases
		sched.SetScope([]string{})
	}
	return r, nil
}

// hierarchicalPhases returns one phase per top-level task in layer order
// when the plan has containers, otherwise the topological layers.
func hierarchicalPhases(plan *models.Plan) ([][]string, error) {
	if !plan.HasPhases() {
		return planning.PlanLayers(plan)
	}
	layers, err := planning.TopLevelLayers(plan)
	if err != nil {
		return nil, err
	}
	var phases [][]string
	for _, layer := range layers {
		for _, id := range layer {
			phases = append(phases, []string{id})
		}
	}
	return phases, nil
}

func (r *run) now() time.Time {
	return r.e.opts.now()
}

func (r *run) loop(ctx context.Context) *Report {
	r.ctx = ctx
	r.start()

	done := ctx.Done()
	for {
		if done != nil && ctx.Err() != nil {
			done = nil
			r.cancel()
		}
		r.settle()
		if !r.cancelled {
			r.maybeReplan()
			if !r.e.opts.pause.IsPaused() {
				r.runTick()
			}
		}

		if len(r.inflight) == 0 && !r.replanInflight {
			if r.cancelled || !r.e.opts.pause.IsPaused() {
				break
			}
		}

		select {
		case res := <-r.completions:
			r.apply(res)
		case rr := <-r.replanResults:
			r.applyReplan(rr)
		case reason := <-r.replanReq:
			r.requestReplan(reason)
		case <-r.e.opts.pause.Changed():
		case <-done:
			done = nil
			r.cancel()
		}
	}

	return r.finish()
}

func (r *run) start() {
	now := r.now()
	r.report = &Report{PlanID: r.plan.ID, StartedAt: now}
	r.plan.Status = models.PlanStatusRunning
	if r.plan.StartedAt == nil {
		r.plan.StartedAt = &now
	}
	r.plan.UpdatedAt = now

	// Attempts interrupted by an earlier run are requeued.
	for _, t := range r.plan.AllTasks() {
		if !t.IsContainer() && t.Status == models.TaskStatusRunning {
			r.transition(t, models.TaskStatusReady)
		}
	}

	r.logger.Info("run started",
		zap.String("strategy", string(r.strategy)),
		zap.Int("bound", r.sched.Bound()),
		zap.Int("tasks", len(r.plan.AllTasks())),
	)
	r.debug.Log("[run] plan %s started: strategy=%s bound=%d", r.plan.ID, r.strategy, r.sched.Bound())
}

// runTick is one scheduler pass. The guard keeps ticks from overlapping.
func (r *run) runTick() {
	if !r.ticking.CompareAndSwap(false, true) {
		return
	}
	defer r.ticking.Store(false)

	for _, t := range r.sched.Promote() {
		r.emit(taskEvent(EventTaskReady, r.plan.ID, t))
	}

	batch := r.sched.Schedule()
	if len(batch) == 0 {
		return
	}
	r.tick++
	for _, t := range batch {
		r.dispatch(t)
	}
}

func (r *run) dispatch(t *models.Task) {
	now := r.now()
	r.transition(t, models.TaskStatusRunning)
	t.StartedAt = &now
	for p := r.plan.Task(t.ParentID); p != nil; p = r.plan.Task(p.ParentID) {
		if p.Status == models.TaskStatusReady {
			p.Status = models.TaskStatusRunning
			p.StartedAt = &now
		}
	}

	attempt := t.RetriesUsed + 1
	r.attempts[t.ID] = attempt
	r.inflight[t.ID] = true
	r.report.DispatchOrder = append(r.report.DispatchOrder, t.ID)
	r.sched.OnDispatch(t)

	ec := ExecContext{
		PlanID:   r.plan.ID,
		TaskID:   t.ID,
		Goal:     r.plan.OriginalTask,
		Attempt:  attempt,
		Upstream: r.upstream(t),
	}

	ev := taskEvent(EventTaskDispatched, r.plan.ID, t)
	ev.Tick = r.tick
	ev.Attempt = attempt
	r.emit(ev)
	r.logger.Debug("task dispatched",
		zap.String("task", t.ID),
		zap.Int("tick", r.tick),
		zap.Int("attempt", attempt),
	)
	r.debug.Log("[run] tick %d: dispatch %s (attempt %d): %s", r.tick, t.ID, attempt, t.Description)

	go r.execute(t.ID, t.Description, ec)
}

func (r *run) upstream(t *models.Task) map[string]string {
	up := make(map[string]string, len(t.Dependencies))
	for _, dep := range t.Dependencies {
		if d := r.plan.Task(dep); d != nil && d.Status == models.TaskStatusCompleted {
			up[dep] = d.Result
		}
	}
	return up
}

// execute runs one attempt off the coordinator. The attempt context ignores
// plan cancellation so running work can finish; only the task timeout ends
// it early, and a result arriving after that is discarded.
func (r *run) execute(id, description string, ec ExecContext) {
	start := time.Now()
	actx := context.WithoutCancel(r.ctx)
	cancel := context.CancelFunc(func() {})
	if r.e.opts.taskTimeout > 0 {
		actx, cancel = context.WithTimeout(actx, r.e.opts.taskTimeout)
	}
	defer cancel()

	out := make(chan Outcome, 1)
	go func() {
		out <- safeExecute(actx, r.e.runner, description, ec)
	}()

	res := attemptResult{taskID: id, attempt: ec.Attempt}
	select {
	case res.outcome = <-out:
	case <-actx.Done():
	}
	// A result racing the deadline still counts as late.
	res.timedOut = errors.Is(actx.Err(), context.DeadlineExceeded)
	res.elapsed = time.Since(start)
	r.completions <- res
}

func safeExecute(ctx context.Context, runner TaskRunner, description string, ec ExecContext) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = Outcome{Error: fmt.Sprintf("runner panicked: %v", p)}
		}
	}()
	return runner.Execute(ctx, description, ec)
}

// apply records one attempt result. It is the only place a running task
// changes status.
func (r *run) apply(res attemptResult) {
	t := r.plan.Task(res.taskID)
	delete(r.inflight, res.taskID)
	if t == nil {
		return
	}

	now := r.now()
	if res.outcome.Success && !res.timedOut {
		r.transition(t, models.TaskStatusCompleted)
		t.Result = res.outcome.Output
		t.Error = ""
		t.CompletedAt = &now
		r.sched.OnFinish(t)
		r.emit(taskEvent(EventTaskCompleted, r.plan.ID, t))
		r.logger.Debug("task completed", zap.String("task", t.ID), zap.Duration("elapsed", res.elapsed))
		r.debug.Log("[run] %s completed in %s", t.ID, res.elapsed)
		r.checkpoint()
		return
	}

	terr := &TaskExecutionError{
		PlanID:  r.plan.ID,
		TaskID:  t.ID,
		Attempt: res.attempt,
		Message: res.outcome.Error,
	}
	if res.timedOut {
		terr.Message = fmt.Sprintf("timed out after %s", r.e.opts.taskTimeout)
		terr.Err = ErrTimeout
	}
	t.Error = terr.Error()

	if t.RetriesUsed < r.e.opts.retryBudget && !r.cancelled {
		t.RetriesUsed++
		r.transition(t, models.TaskStatusReady)
		r.sched.OnFinish(t)
		ev := taskEvent(EventTaskRetry, r.plan.ID, t)
		ev.Attempt = res.attempt
		r.emit(ev)
		r.logger.Info("task attempt failed, retrying",
			zap.String("task", t.ID),
			zap.Int("attempt", res.attempt),
			zap.Error(terr),
		)
		r.debug.Log("[run] %s attempt %d failed, requeued: %s", t.ID, res.attempt, terr.Message)
		r.checkpoint()
		return
	}

	r.transition(t, models.TaskStatusFailed)
	t.CompletedAt = &now
	r.sched.OnFinish(t)
	ev := taskEvent(EventTaskFailed, r.plan.ID, t)
	ev.Attempt = res.attempt
	r.emit(ev)
	r.logger.Warn("task failed", zap.String("task", t.ID), zap.Int("attempts", res.attempt), zap.Error(terr))
	r.debug.Log("[run] %s failed after %d attempts: %s", t.ID, res.attempt, terr.Message)

	r.skipDependents(t.ID, fmt.Sprintf("dependency %s failed", t.ID))
	if r.e.opts.replanner != nil && !r.cancelled {
		r.replanReason = fmt.Sprintf("task %s failed", t.ID)
	}
	r.checkpoint()
}

// cancel stops dispatching and skips everything not yet running.
func (r *run) cancel() {
	if r.cancelled {
		return
	}
	r.cancelled = true
	r.report.Cancelled = true
	r.replanReason = ""
	for _, t := range r.plan.AllTasks() {
		if t.IsContainer() {
			continue
		}
		if t.Status == models.TaskStatusPending || t.Status == models.TaskStatusReady {
			r.skip(t, reasonCancelled)
		}
	}
	r.logger.Info("run cancelled", zap.Int("running", len(r.inflight)))
	r.debug.Log("[run] cancelled with %d attempts still running", len(r.inflight))
	r.checkpoint()
}

func (r *run) skipDependents(id, reason string) {
	for _, depID := range r.sched.Dependents(id) {
		if t := r.plan.Task(depID); t != nil {
			r.skip(t, reason)
		}
	}
}

// skip marks a non-terminal task skipped. Skipping a container skips its
// whole subtree.
func (r *run) skip(t *models.Task, reason string) {
	if t.Status.Terminal() {
		return
	}
	for _, st := range t.Subtasks {
		r.skip(st, reason)
	}
	if t.IsContainer() {
		t.Status = models.TaskStatusSkipped
	} else {
		r.transition(t, models.TaskStatusSkipped)
	}
	t.Error = reason
	now := r.now()
	t.CompletedAt = &now
	r.emit(taskEvent(EventTaskSkipped, r.plan.ID, t))
	r.debug.Log("[run] %s skipped: %s", t.ID, reason)
}

// settle resolves containers whose children are all terminal and advances
// hierarchical phases until one has open work.
func (r *run) settle() {
	for r.resolveContainers() {
	}
	if r.strategy != models.StrategyHierarchical {
		return
	}

	for r.phase < len(r.phases) {
		if !r.phaseOpen {
			r.openPhase()
			for r.resolveContainers() {
			}
		}
		if !r.phaseTerminal(r.phases[r.phase]) {
			return
		}
		r.emit(Event{
			Type:    EventPhaseCompleted,
			PlanID:  r.plan.ID,
			Phase:   r.phase + 1,
			Message: fmt.Sprintf("phase %d complete", r.phase+1),
		})
		r.debug.Log("[run] phase %d complete", r.phase+1)
		r.phase++
		r.phaseOpen = false
	}
	r.sched.SetScope([]string{})
}

func (r *run) openPhase() {
	ids := r.phases[r.phase]
	r.phaseOpen = true
	r.sched.SetScope(ids)
	r.emit(Event{
		Type:    EventPhaseStarted,
		PlanID:  r.plan.ID,
		Phase:   r.phase + 1,
		Message: fmt.Sprintf("phase %d: %v", r.phase+1, ids),
	})
	r.logger.Debug("phase started", zap.Int("phase", r.phase+1), zap.Strings("tasks", ids))
	r.debug.Log("[run] phase %d started: %v", r.phase+1, ids)

	for _, id := range ids {
		t := r.plan.Task(id)
		if t == nil || t.Status.Terminal() {
			continue
		}
		for _, dep := range t.Dependencies {
			d := r.plan.Task(dep)
			if d != nil && d.Status != models.TaskStatusCompleted {
				r.skip(t, fmt.Sprintf("dependency %s %s", dep, d.Status))
				break
			}
		}
	}
}

func (r *run) phaseTerminal(ids []string) bool {
	for _, id := range ids {
		t := r.plan.Task(id)
		if t == nil {
			continue
		}
		if !t.Status.Terminal() {
			return false
		}
	}
	return true
}

// resolveContainers derives container status from children, deepest first.
// It reports whether anything changed.
func (r *run) resolveContainers() bool {
	all := r.plan.AllTasks()
	changed := false
	for i := len(all) - 1; i >= 0; i-- {
		c := all[i]
		if !c.IsContainer() || c.Status.Terminal() {
			continue
		}
		status, ok := containerStatus(c)
		if !ok {
			continue
		}
		changed = true
		c.Status = status
		now := r.now()
		c.CompletedAt = &now

		switch status {
		case models.TaskStatusCompleted:
			r.sched.MarkComplete(c.ID)
			r.emit(taskEvent(EventTaskCompleted, r.plan.ID, c))
		case models.TaskStatusSkipped:
			c.Error = "every subtask skipped"
			r.emit(taskEvent(EventTaskSkipped, r.plan.ID, c))
			r.skipDependents(c.ID, fmt.Sprintf("dependency %s skipped", c.ID))
		default:
			c.Error = "one or more subtasks did not complete"
			r.emit(taskEvent(EventTaskFailed, r.plan.ID, c))
			r.skipDependents(c.ID, fmt.Sprintf("dependency %s failed", c.ID))
		}
		r.debug.Log("[run] container %s resolved as %s", c.ID, status)
	}
	return changed
}

// containerStatus returns the derived status once every child is terminal.
func containerStatus(c *models.Task) (models.TaskStatus, bool) {
	completed, skipped := 0, 0
	for _, st := range c.Subtasks {
		if !st.Status.Terminal() {
			return "", false
		}
		switch st.Status {
		case models.TaskStatusCompleted:
			completed++
		case models.TaskStatusSkipped:
			skipped++
		}
	}
	switch {
	case completed == len(c.Subtasks):
		return models.TaskStatusCompleted, true
	case skipped == len(c.Subtasks):
		return models.TaskStatusSkipped, true
	default:
		return models.TaskStatusFailed, true
	}
}

func (r *run) requestReplan(reason string) {
	if r.cancelled || r.e.opts.replanner == nil {
		r.logger.Debug("replan request ignored", zap.String("reason", reason))
		return
	}
	r.replanReason = reason
}

// maybeReplan starts one replan in the background when one is wanted.
func (r *run) maybeReplan() {
	if r.replanReason == "" || r.replanInflight || r.e.opts.replanner == nil {
		return
	}
	reason := r.replanReason
	r.replanReason = ""
	if r.rounds >= r.e.opts.replanRounds {
		r.logger.Info("replan budget exhausted", zap.Int("rounds", r.rounds), zap.String("reason", reason))
		return
	}

	r.rounds++
	r.replanInflight = true
	req := ReplanRequest{
		Goal:     r.plan.OriginalTask,
		Plan:     r.plan.Clone(),
		Failures: r.openFailures(),
		Reason:   reason,
	}
	r.logger.Info("replanning", zap.Int("round", r.rounds), zap.String("reason", reason), zap.Int("failures", len(req.Failures)))
	r.debug.Log("[run] replan round %d: %s", r.rounds, reason)

	replanner := r.e.opts.replanner
	ctx := r.ctx
	go func() {
		ext, err := replanner.Replan(ctx, req)
		r.replanResults <- replanResult{ext: ext, err: err}
	}()
}

// openFailures lists failed or skipped tasks that nothing replaces yet.
func (r *run) openFailures() []TaskError {
	replaced := make(map[string]bool)
	for _, t := range r.plan.AllTasks() {
		if t.Replaces != "" {
			replaced[t.Replaces] = true
		}
	}
	var out []TaskError
	for _, f := range collectFailures(r.plan, r.attempts) {
		if replaced[f.ID] || f.Error == reasonCancelled {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (r *run) applyReplan(rr replanResult) {
	r.replanInflight = false
	if rr.err != nil {
		r.logger.Warn("replan failed", zap.Error(rr.err))
		return
	}
	if rr.ext == nil || r.cancelled {
		return
	}

	before := make(map[string]bool)
	for _, t := range r.plan.AllTasks() {
		before[t.ID] = true
	}
	if err := rr.ext.Apply(r.plan); err != nil {
		r.logger.Warn("replan rejected", zap.Error(err))
		return
	}

	var added []*models.Task
	for _, t := range r.plan.Tasks() {
		if !before[t.ID] {
			added = append(added, t)
		}
	}
	if len(added) == 0 {
		return
	}
	if err := r.sched.Rebuild(); err != nil {
		r.logger.Error("rebuild schedule after replan", zap.Error(err))
		return
	}
	if r.strategy == models.StrategyHierarchical {
		layers, err := planning.Layers(added)
		if err != nil {
			r.logger.Error("layer replanned tasks", zap.Error(err))
			return
		}
		r.phases = append(r.phases, layers...)
	}

	ids := make([]string, len(added))
	for i, t := range added {
		ids[i] = t.ID
	}
	r.plan.UpdatedAt = r.now()
	r.emit(Event{
		Type:    EventReplanApplied,
		PlanID:  r.plan.ID,
		Message: fmt.Sprintf("revision %d added %v", r.plan.Revision, ids),
	})
	r.logger.Info("replan applied", zap.Int("revision", r.plan.Revision), zap.Strings("tasks", ids))
	r.debug.Log("[run] replan applied, revision %d: %v", r.plan.Revision, ids)
	r.checkpoint()
}

func (r *run) finish() *Report {
	for _, t := range r.plan.AllTasks() {
		if !t.IsContainer() && !t.Status.Terminal() {
			r.skip(t, "not reachable")
		}
	}
	for r.resolveContainers() {
	}

	now := r.now()
	r.plan.Status = r.plan.ComputeStatus()
	r.plan.CompletedAt = &now
	r.plan.UpdatedAt = now

	r.report.Status = r.plan.Status
	r.report.Ticks = r.tick
	r.report.ReplanRounds = r.rounds
	r.report.Failures = collectFailures(r.plan, r.attempts)
	r.report.FinishedAt = now

	r.emit(Event{
		Type:    EventPlanDone,
		PlanID:  r.plan.ID,
		Status:  string(r.plan.Status),
		Message: fmt.Sprintf("%d failed or skipped", len(r.report.Failures)),
	})
	r.logger.Info("run finished",
		zap.String("status", string(r.plan.Status)),
		zap.Bool("cancelled", r.report.Cancelled),
		zap.Int("ticks", r.tick),
		zap.Int("failures", len(r.report.Failures)),
	)
	r.debug.Log("[run] plan %s finished as %s", r.plan.ID, r.plan.Status)
	r.checkpoint()
	return r.report
}

// transition applies a leaf status change allowed by the task state machine.
func (r *run) transition(t *models.Task, to models.TaskStatus) {
	if !models.CanTransition(t.Status, to) {
		r.logger.Error("illegal status transition",
			zap.String("task", t.ID),
			zap.String("from", string(t.Status)),
			zap.String("to", string(to)),
		)
	}
	t.Status = to
}

func (r *run) checkpoint() {
	if r.e.opts.saver == nil {
		return
	}
	if err := r.e.opts.saver.SavePlan(context.WithoutCancel(r.ctx), r.plan.Clone()); err != nil {
		r.logger.Warn("checkpoint failed", zap.Error(err))
	}
}

func (r *run) emit(ev Event) {
	if r.e.opts.events == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}
	for _, t := range r.plan.Leaves() {
		ev.Total++
		if t.Status == models.TaskStatusCompleted {
			ev.Completed++
		}
	}
	r.e.opts.events.Emit(ev)
}
