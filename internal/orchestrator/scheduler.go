package orchestrator

import (
	"fmt"
	"sort"

	"github.com/ShayCichocki/taskgraph/internal/graph"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// Scheduler decides which tasks of a plan are ready and which of them to
// dispatch next. It belongs to the coordinator goroutine of one run and is
// not safe for concurrent use.
type Scheduler struct {
	// plan is the live plan; the scheduler reads task status from it.
	plan *models.Plan
	// graph covers every task of the plan, subtasks included.
	graph *graph.DependencyGraph
	// layer maps task ID to its topological layer.
	layer map[string]int
	// order maps task ID to its pre-order index in the plan.
	order map[string]int
	// scope restricts eligibility to these top-level tasks; nil means all.
	scope map[string]bool
	// bound is the maximum number of running attempts.
	bound int
	// running counts attempts dispatched and not yet finished.
	running int
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// NewScheduler creates a Scheduler for plan with the given concurrency bound.
func NewScheduler(plan *models.Plan, bound int) (*Scheduler, error) {
	if bound < 1 {
		bound = 1
	}
	s := &Scheduler{
		plan:     plan,
		bound:    bound,
		debugLog: func(format string, args ...interface{}) {},
	}
	if err := s.Rebuild(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetDebugLog sets the debug logging function.
func (s *Scheduler) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		s.debugLog = fn
		s.graph.SetDebugLog(fn)
	}
}

// Rebuild recomputes the graph and layers after tasks were added.
func (s *Scheduler) Rebuild() error {
	all := s.plan.AllTasks()
	g := graph.New()
	g.SetDebugLog(s.debugLog)
	if err := g.Build(all); err != nil {
		return fmt.Errorf("build dependency graph: %w", err)
	}
	layers, err := g.Layers()
	if err != nil {
		return fmt.Errorf("layer dependency graph: %w", err)
	}

	s.graph = g
	s.layer = make(map[string]int, len(all))
	for k, ids := range layers {
		for _, id := range ids {
			s.layer[id] = k
		}
	}
	s.order = make(map[string]int, len(all))
	for i, t := range all {
		s.order[t.ID] = i
	}
	return nil
}

// SetScope limits eligibility to the given top-level tasks and their
// subtasks. A nil slice lifts the restriction; an empty one blocks
// everything.
func (s *Scheduler) SetScope(ids []string) {
	if ids == nil {
		s.scope = nil
		return
	}
	s.scope = make(map[string]bool, len(ids))
	for _, id := range ids {
		s.scope[id] = true
	}
}

func (s *Scheduler) inScope(t *models.Task) bool {
	if s.scope == nil {
		return true
	}
	return s.scope[s.plan.TopLevelOf(t.ID)]
}

// Promote moves every pending task whose dependencies are completed to
// Ready and returns those tasks in plan order. A subtask is only promoted
// once its container has been opened.
func (s *Scheduler) Promote() []*models.Task {
	var promoted []*models.Task
	for _, id := range s.graph.GetReady() {
		t := s.plan.Task(id)
		if t == nil || t.Status != models.TaskStatusPending || !s.inScope(t) {
			continue
		}
		if t.ParentID != "" {
			parent := s.plan.Task(t.ParentID)
			if parent == nil || (parent.Status != models.TaskStatusReady && parent.Status != models.TaskStatusRunning) {
				continue
			}
		}
		t.Status = models.TaskStatusReady
		promoted = append(promoted, t)
	}
	if len(promoted) > 0 {
		s.debugLog("[scheduler] promoted %d tasks to ready", len(promoted))
	}
	return promoted
}

// Schedule returns the ready leaf tasks to dispatch now, ordered by
// priority, then layer, then plan order, and capped at the free slots.
func (s *Scheduler) Schedule() []*models.Task {
	free := s.bound - s.running
	if free <= 0 {
		s.debugLog("[scheduler] no free slots: bound=%d running=%d", s.bound, s.running)
		return nil
	}

	var candidates []*models.Task
	for _, t := range s.plan.AllTasks() {
		if t.IsContainer() || t.Status != models.TaskStatusReady || !s.inScope(t) {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if s.layer[a.ID] != s.layer[b.ID] {
			return s.layer[a.ID] < s.layer[b.ID]
		}
		return s.order[a.ID] < s.order[b.ID]
	})

	if len(candidates) > free {
		candidates = candidates[:free]
	}
	s.debugLog("[scheduler] scheduling %d tasks (free slots %d)", len(candidates), free)
	return candidates
}

// OnDispatch records a dispatched attempt.
func (s *Scheduler) OnDispatch(t *models.Task) {
	s.running++
	s.debugLog("[scheduler] dispatched %s, running=%d", t.ID, s.running)
}

// OnFinish records a finished attempt. Completed tasks unblock their
// dependents.
func (s *Scheduler) OnFinish(t *models.Task) {
	s.running--
	if t.Status == models.TaskStatusCompleted {
		s.graph.MarkComplete(t.ID)
	}
	s.debugLog("[scheduler] %s finished as %s, running=%d", t.ID, t.Status, s.running)
}

// MarkComplete records a task completed outside of an attempt, such as a
// container whose children all completed.
func (s *Scheduler) MarkComplete(id string) {
	s.graph.MarkComplete(id)
}

// Running returns the number of attempts in flight.
func (s *Scheduler) Running() int {
	return s.running
}

// Bound returns the concurrency bound.
func (s *Scheduler) Bound() int {
	return s.bound
}

// Layer returns the topological layer of a task.
func (s *Scheduler) Layer(id string) int {
	return s.layer[id]
}

// Dependents returns every task downstream of id, in plan order.
func (s *Scheduler) Dependents(id string) []string {
	return s.graph.TransitiveDependents(id)
}
