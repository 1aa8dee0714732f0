// Package pipeline turns task files into validated plans and runs them.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/taskgraph/internal/inference"
	"github.com/ShayCichocki/taskgraph/internal/planning"
	"github.com/ShayCichocki/taskgraph/internal/taskfile"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// Result is a built plan together with the graphs it came from. Graphs has
// one entry for a flat plan and one per phase for a hierarchical plan.
type Result struct {
	Plan   *models.Plan
	Graphs []*inference.Graph
}

// Warnings collects the inference warnings of every graph.
func (r *Result) Warnings() []inference.Warning {
	var out []inference.Warning
	for _, g := range r.Graphs {
		out = append(out, g.Warnings...)
	}
	return out
}

// Planner builds plans from task files.
type Planner struct {
	engine      *inference.Engine
	validator   *planning.Validator
	strategy    models.Strategy
	maxParallel int
	logger      *zap.Logger
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithPlannerLogger sets the structured logger.
func WithPlannerLogger(l *zap.Logger) PlannerOption {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithDefaults sets the strategy and concurrency bound used when a task
// file names none.
func WithDefaults(s models.Strategy, maxParallel int) PlannerOption {
	return func(p *Planner) {
		p.strategy = s
		p.maxParallel = maxParallel
	}
}

// NewPlanner creates a Planner.
func NewPlanner(engine *inference.Engine, validator *planning.Validator, opts ...PlannerOption) *Planner {
	p := &Planner{
		engine:    engine,
		validator: validator,
		strategy:  models.StrategySequential,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("planner")
	return p
}

// Validator returns the validator plans are built with.
func (p *Planner) Validator() *planning.Validator { return p.validator }

// Engine returns the inference engine.
func (p *Planner) Engine() *inference.Engine { return p.engine }

// Plan infers dependencies for f and builds a validated plan. Explicit
// priorities in the file replace the positional defaults.
func (p *Planner) Plan(ctx context.Context, f *taskfile.File) (*Result, error) {
	if f == nil {
		return nil, fmt.Errorf("plan: nil task file")
	}
	maxParallel := f.MaxParallel
	if maxParallel == 0 {
		maxParallel = p.maxParallel
	}
	strategy, ok := f.ParsedStrategy()
	if !ok {
		strategy = p.strategy
	}

	if f.Hierarchical() {
		return p.planPhased(ctx, f, maxParallel)
	}

	g, err := p.engine.Infer(ctx, inference.Input{
		Descriptions: taskfile.Descriptions(f.Tasks),
		Narrative:    f.Narrative,
	})
	if err != nil {
		return nil, fmt.Errorf("infer dependencies: %w", err)
	}
	plan, err := p.validator.Build(planning.BuildRequest{
		Goal:        f.Goal,
		Narrative:   f.Narrative,
		Graph:       g,
		Strategy:    strategy,
		MaxParallel: maxParallel,
	})
	if err != nil {
		return nil, err
	}
	applyPriorities(plan, f.Tasks, planning.TaskID)

	p.logger.Info("plan built",
		zap.String("plan", plan.ID),
		zap.Int("tasks", plan.Len()),
		zap.Int("edges", len(g.Edges)),
		zap.Int("warnings", len(g.Warnings)),
	)
	return &Result{Plan: plan, Graphs: []*inference.Graph{g}}, nil
}

// planPhased infers every phase concurrently. Phases share no tasks, so
// each graph is independent of the others.
func (p *Planner) planPhased(ctx context.Context, f *taskfile.File, maxParallel int) (*Result, error) {
	graphs := make([]*inference.Graph, len(f.Phases))
	g, gctx := errgroup.WithContext(ctx)
	for k := range f.Phases {
		ph := f.Phases[k]
		g.Go(func() error {
			graph, err := p.engine.Infer(gctx, inference.Input{
				Descriptions: taskfile.Descriptions(ph.Tasks),
				Narrative:    ph.Narrative,
			})
			if err != nil {
				return fmt.Errorf("infer phase %q: %w", ph.Name, err)
			}
			graphs[k] = graph
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	phases := make([]planning.PhaseGraph, len(f.Phases))
	for k, ph := range f.Phases {
		phases[k] = planning.PhaseGraph{
			Name:      ph.Name,
			Narrative: ph.Narrative,
			Graph:     graphs[k],
			DependsOn: f.PhaseDependencies(k),
		}
	}
	plan, err := p.validator.BuildPhased(f.Goal, phases, maxParallel)
	if err != nil {
		return nil, err
	}
	for k, ph := range f.Phases {
		prefix := planning.PhaseID(k) + "."
		applyPriorities(plan, ph.Tasks, func(i int) string { return prefix + planning.TaskID(i) })
	}

	p.logger.Info("phased plan built",
		zap.String("plan", plan.ID),
		zap.Int("phases", len(phases)),
		zap.Int("tasks", len(plan.Leaves())),
	)
	return &Result{Plan: plan, Graphs: graphs}, nil
}

func applyPriorities(plan *models.Plan, items []taskfile.Item, id func(int) string) {
	for i, prio := range taskfile.Priorities(items) {
		if t := plan.Task(id(i)); t != nil {
			t.Priority = prio
		}
	}
}
