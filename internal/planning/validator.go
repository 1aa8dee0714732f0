// Package planning turns an inferred candidate graph into a Plan and
// guarantees the plan's structural invariants before anything executes.
package planning

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/taskgraph/internal/graph"
	"github.com/ShayCichocki/taskgraph/internal/inference"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// Validator builds plans from inference output and checks plan structure.
type Validator struct {
	logger *zap.Logger
	newID  func() string
	now    func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the validator's logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithIDGenerator overrides how plan IDs are generated.
func WithIDGenerator(fn func() string) Option {
	return func(v *Validator) {
		if fn != nil {
			v.newID = fn
		}
	}
}

// WithClock overrides the time source used for plan timestamps.
func WithClock(fn func() time.Time) Option {
	return func(v *Validator) {
		if fn != nil {
			v.now = fn
		}
	}
}

// NewValidator creates a Validator.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		logger: zap.NewNop(),
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.Named("planning")
	return v
}

// BuildRequest is the input to Build.
type BuildRequest struct {
	Goal        string
	Narrative   string
	Graph       *inference.Graph
	Strategy    models.Strategy
	MaxParallel int
}

// TaskID returns the stable ID for the task at list position i.
func TaskID(i int) string {
	return fmt.Sprintf("t%d", i+1)
}

// Build assigns IDs t1..tn by list position, constructs the plan and
// validates it. On error no plan is returned.
func (v *Validator) Build(req BuildRequest) (*models.Plan, error) {
	if req.Graph == nil {
		return nil, errors.New("build plan: nil graph")
	}
	plan := v.newPlan(req.Goal, req.Strategy, req.MaxParallel)
	plan.Narrative = req.Narrative

	for _, t := range tasksFromGraph(req.Graph, TaskID) {
		if err := plan.AddTask(t); err != nil {
			return nil, fmt.Errorf("build plan: %w", err)
		}
	}

	if err := v.Validate(plan); err != nil {
		return nil, err
	}
	v.logger.Debug("plan built",
		zap.String("plan", plan.ID),
		zap.Int("tasks", plan.Len()),
		zap.Int("edges", len(req.Graph.Edges)),
		zap.String("strategy", string(plan.Strategy)),
	)
	return plan, nil
}

// PhaseGraph is one phase of a hierarchical plan.
type PhaseGraph struct {
	Name      string
	Narrative string
	Graph     *inference.Graph
	// DependsOn lists indices of earlier phases this phase requires.
	DependsOn []int
}

// PhaseID returns the container ID of phase k.
func PhaseID(k int) string {
	return fmt.Sprintf("p%d", k+1)
}

// BuildPhased builds a hierarchical plan: phase k becomes container pK whose
// subtasks pK.tN come from that phase's own graph.
func (v *Validator) BuildPhased(goal string, phases []PhaseGraph, maxParallel int) (*models.Plan, error) {
	plan := v.newPlan(goal, models.StrategyHierarchical, maxParallel)

	var narratives []string
	for k, ph := range phases {
		if ph.Graph == nil {
			return nil, fmt.Errorf("build plan: phase %d has nil graph", k+1)
		}
		name := strings.TrimSpace(ph.Name)
		if name == "" {
			name = fmt.Sprintf("Phase %d", k+1)
		}
		container := &models.Task{
			ID:          PhaseID(k),
			Description: name,
			Status:      models.TaskStatusPending,
			Category:    models.CategoryUnknown,
			Priority:    k,
			Position:    k,
		}
		for _, d := range ph.DependsOn {
			container.AddDependency(PhaseID(d))
		}
		prefix := container.ID + "."
		container.Subtasks = tasksFromGraph(ph.Graph, func(i int) string { return prefix + TaskID(i) })
		if err := plan.AddTask(container); err != nil {
			return nil, fmt.Errorf("build plan: %w", err)
		}
		if ph.Narrative != "" {
			narratives = append(narratives, ph.Narrative)
		}
	}
	plan.Narrative = strings.Join(narratives, "\n")

	if err := v.Validate(plan); err != nil {
		return nil, err
	}
	v.logger.Debug("phased plan built",
		zap.String("plan", plan.ID),
		zap.Int("phases", len(phases)),
		zap.Int("tasks", plan.Len()),
	)
	return plan, nil
}

func (v *Validator) newPlan(goal string, strategy models.Strategy, maxParallel int) *models.Plan {
	if strategy == "" {
		strategy = models.StrategySequential
	}
	plan := models.NewPlan(v.newID(), goal, strategy)
	if maxParallel > 0 {
		plan.MaxParallel = maxParallel
	}
	now := v.now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	return plan
}

// tasksFromGraph converts graph nodes into pending tasks with dependencies.
func tasksFromGraph(g *inference.Graph, id func(int) string) []*models.Task {
	tasks := make([]*models.Task, len(g.Nodes))
	for i, n := range g.Nodes {
		tasks[i] = &models.Task{
			ID:          id(i),
			Description: n.Description,
			Status:      models.TaskStatusPending,
			Category:    n.Category,
			Priority:    i,
			Position:    i,
		}
	}
	for _, e := range g.Edges {
		tasks[e.To].AddDependency(id(e.From))
	}
	return tasks
}

// Validate checks IDs, references, subtree locality and acyclicity. It
// returns a *ValidationError listing every problem found.
func (v *Validator) Validate(plan *models.Plan) error {
	verr := &ValidationError{PlanID: plan.ID}

	if !plan.Strategy.Valid() {
		verr.add(IssueSetting, "", "", "unknown strategy %q", plan.Strategy)
	}
	if plan.MaxParallel < 1 {
		verr.add(IssueSetting, "", "", "max parallel must be at least 1, got %d", plan.MaxParallel)
	}

	all := plan.AllTasks()
	seen := make(map[string]bool, len(all))
	for _, t := range all {
		if t.ID == "" {
			verr.add(IssueEmptyID, "", "", "task at position %d has no id", t.Position)
			continue
		}
		if seen[t.ID] {
			verr.add(IssueDuplicateID, t.ID, "", "id used more than once")
		}
		seen[t.ID] = true
		if strings.TrimSpace(t.Description) == "" {
			verr.add(IssueEmptyDescription, t.ID, "", "description is empty")
		}
	}

	for _, t := range all {
		for _, dep := range t.Dependencies {
			v.checkReference(plan, t, dep, verr)
		}
	}

	// Only look for cycles once every reference resolves.
	if len(verr.Issues) == 0 {
		g := graph.New()
		if err := g.Build(all); err != nil {
			if errors.Is(err, graph.ErrCycleDetected) {
				cycle := g.FindCycle()
				verr.add(IssueCycle, firstOr(cycle, ""), "", "dependency cycle %s", strings.Join(cycle, " -> "))
			} else {
				verr.add(IssueDanglingReference, "", "", "%v", err)
			}
		}
	}

	if len(verr.Issues) > 0 {
		v.logger.Warn("plan failed validation",
			zap.String("plan", plan.ID),
			zap.Int("issues", len(verr.Issues)),
			zap.String("first", verr.Issues[0].String()),
		)
		return verr
	}
	return nil
}

func (v *Validator) checkReference(plan *models.Plan, t *models.Task, dep string, verr *ValidationError) {
	if dep == t.ID {
		verr.add(IssueSelfDependency, t.ID, dep, "task depends on itself")
		return
	}
	target := plan.Task(dep)
	if target == nil {
		verr.add(IssueDanglingReference, t.ID, dep, "depends on unknown task %s", dep)
		return
	}
	if isAncestor(plan, dep, t.ID) {
		verr.add(IssueLocality, t.ID, dep, "subtask depends on its own phase %s", dep)
		return
	}
	if isAncestor(plan, t.ID, dep) {
		verr.add(IssueLocality, t.ID, dep, "phase depends on its own subtask %s", dep)
		return
	}
	if t.ParentID != "" && !t.Promoted && target.ParentID != t.ParentID {
		verr.add(IssueLocality, t.ID, dep, "depends on %s outside phase %s", dep, t.ParentID)
	}
}

// isAncestor reports whether ancestor contains id somewhere below it.
func isAncestor(plan *models.Plan, ancestor, id string) bool {
	t := plan.Task(id)
	for t != nil && t.ParentID != "" {
		if t.ParentID == ancestor {
			return true
		}
		t = plan.Task(t.ParentID)
	}
	return false
}

func firstOr(xs []string, def string) string {
	if len(xs) == 0 {
		return def
	}
	return xs[0]
}
