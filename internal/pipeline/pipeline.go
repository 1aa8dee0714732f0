package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskgraph/internal/logging"
	"github.com/ShayCichocki/taskgraph/internal/orchestrator"
	"github.com/ShayCichocki/taskgraph/internal/replan"
	"github.com/ShayCichocki/taskgraph/internal/state"
	"github.com/ShayCichocki/taskgraph/internal/taskfile"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// Pipeline plans task files and executes the plans.
type Pipeline struct {
	planner      *Planner
	runner       orchestrator.TaskRunner
	replanner    *replan.Replanner
	replanRounds int
	store        state.Store
	events       *orchestrator.EventEmitter
	pause        *orchestrator.PauseController
	debugDir     string
	execOpts     []orchestrator.Option
	logger       *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithReplanner enables replanning, at most rounds times per run.
func WithReplanner(r *replan.Replanner, rounds int) Option {
	return func(p *Pipeline) {
		p.replanner = r
		p.replanRounds = rounds
	}
}

// WithStore persists plans, checkpoints and run records.
func WithStore(s state.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithEventEmitter publishes executor events.
func WithEventEmitter(e *orchestrator.EventEmitter) Option {
	return func(p *Pipeline) { p.events = e }
}

// WithPauseController lets the caller pause dispatching.
func WithPauseController(c *orchestrator.PauseController) Option {
	return func(p *Pipeline) { p.pause = c }
}

// WithDebugDir writes a debug log per run under dir/runs.
func WithDebugDir(dir string) Option {
	return func(p *Pipeline) { p.debugDir = dir }
}

// WithExecutorOptions appends options passed to every executor.
func WithExecutorOptions(opts ...orchestrator.Option) Option {
	return func(p *Pipeline) { p.execOpts = append(p.execOpts, opts...) }
}

// New creates a Pipeline.
func New(planner *Planner, runner orchestrator.TaskRunner, opts ...Option) *Pipeline {
	p := &Pipeline{
		planner: planner,
		runner:  runner,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("pipeline")
	return p
}

// Planner returns the planner.
func (p *Pipeline) Planner() *Planner { return p.planner }

// Run plans f and executes the result.
func (p *Pipeline) Run(ctx context.Context, f *taskfile.File) (*Result, *orchestrator.Report, error) {
	res, err := p.planner.Plan(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	report, err := p.Execute(ctx, res.Plan)
	if err != nil {
		return res, nil, err
	}
	return res, report, nil
}

// Execute drives plan to a terminal status. With a store the plan is saved
// before the run, checkpointed as results arrive, saved again at the end and
// the run is recorded.
func (p *Pipeline) Execute(ctx context.Context, plan *models.Plan) (*orchestrator.Report, error) {
	debug := logging.NopDebugLog()
	if p.debugDir != "" {
		debug = logging.DebugLogForRun(p.debugDir, plan.ID)
	}
	defer debug.Close()

	opts := []orchestrator.Option{
		orchestrator.WithLogger(p.logger),
		orchestrator.WithDebugLog(debug),
		orchestrator.WithValidator(p.planner.Validator()),
	}
	opts = append(opts, p.execOpts...)
	if p.events != nil {
		opts = append(opts, orchestrator.WithEventEmitter(p.events))
	}
	if p.pause != nil {
		opts = append(opts, orchestrator.WithPauseController(p.pause))
	}
	if p.replanner != nil && p.replanRounds > 0 {
		opts = append(opts, orchestrator.WithReplanner(p.replanner.ForExecutor(p.planner.Validator()), p.replanRounds))
	}
	if p.store != nil {
		if err := p.store.SavePlan(ctx, plan); err != nil {
			return nil, fmt.Errorf("save plan: %w", err)
		}
		opts = append(opts, orchestrator.WithCheckpoint(p.store))
	}

	report, err := orchestrator.New(p.runner, opts...).Run(ctx, plan)
	if err != nil {
		return nil, err
	}

	if p.store != nil {
		// The run context may be cancelled; the final state is saved anyway.
		saveCtx := context.WithoutCancel(ctx)
		if err := p.store.SavePlan(saveCtx, plan); err != nil {
			return report, fmt.Errorf("save plan: %w", err)
		}
		runID, err := p.store.RecordRun(saveCtx, report)
		if err != nil {
			return report, err
		}
		p.logger.Debug("run recorded", zap.String("plan", plan.ID), zap.String("run", runID))
	}

	p.logger.Info("run finished",
		zap.String("plan", plan.ID),
		zap.String("status", string(report.Status)),
		zap.Int("dispatched", len(report.DispatchOrder)),
		zap.Int("failures", len(report.Failures)),
		zap.Int("replan_rounds", report.ReplanRounds),
		zap.Duration("duration", report.Duration()),
	)
	return report, nil
}
