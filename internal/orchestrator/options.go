package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskgraph/internal/logging"
	"github.com/ShayCichocki/taskgraph/internal/planning"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// DefaultRetryBudget is the number of retries a task gets after its first
// failed attempt.
const DefaultRetryBudget = 1

// PlanSaver persists plan snapshots while a run progresses.
type PlanSaver interface {
	SavePlan(ctx context.Context, plan *models.Plan) error
}

// ReplanRequest is handed to a Replanner. Plan is a snapshot the replanner
// may read freely; the live plan stays with the executor.
type ReplanRequest struct {
	Goal     string
	Plan     *models.Plan
	Failures []TaskError
	Reason   string
}

// PlanExtension adds tasks to the live plan. The executor calls Apply from
// its coordinator goroutine; an error leaves the plan untouched.
type PlanExtension interface {
	Apply(plan *models.Plan) error
}

// Replanner proposes replacement work after failures. A nil extension means
// there is nothing to add.
type Replanner interface {
	Replan(ctx context.Context, req ReplanRequest) (PlanExtension, error)
}

// Option configures an Executor. Use With* functions to create Options.
type Option func(*executorOptions)

type executorOptions struct {
	strategy     models.Strategy
	maxParallel  int
	retryBudget  int
	taskTimeout  time.Duration
	logger       *zap.Logger
	debugLog     *logging.DebugLog
	events       *EventEmitter
	saver        PlanSaver
	replanner    Replanner
	replanRounds int
	now          func() time.Time
	pause        *PauseController
	validator    *planning.Validator
}

func defaultOptions() executorOptions {
	return executorOptions{
		retryBudget: DefaultRetryBudget,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
}

// WithStrategy overrides the plan's strategy.
func WithStrategy(s models.Strategy) Option {
	return func(o *executorOptions) { o.strategy = s }
}

// WithMaxParallel overrides the plan's concurrency bound.
func WithMaxParallel(n int) Option {
	return func(o *executorOptions) { o.maxParallel = n }
}

// WithRetryBudget sets how many times a failed task is requeued.
func WithRetryBudget(n int) Option {
	return func(o *executorOptions) {
		if n >= 0 {
			o.retryBudget = n
		}
	}
}

// WithTaskTimeout bounds every attempt. Zero disables the timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *executorOptions) { o.taskTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *executorOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDebugLog sets the per-run debug log that records every scheduling
// decision.
func WithDebugLog(d *logging.DebugLog) Option {
	return func(o *executorOptions) { o.debugLog = d }
}

// WithEventEmitter sets where events are published.
func WithEventEmitter(e *EventEmitter) Option {
	return func(o *executorOptions) { o.events = e }
}

// WithCheckpoint saves a snapshot of the plan after every applied result.
func WithCheckpoint(s PlanSaver) Option {
	return func(o *executorOptions) { o.saver = s }
}

// WithReplanner enables replanning, at most maxRounds times per run.
func WithReplanner(r Replanner, maxRounds int) Option {
	return func(o *executorOptions) {
		o.replanner = r
		o.replanRounds = maxRounds
	}
}

// WithClock sets the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *executorOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPauseController lets the caller pause and resume dispatching.
func WithPauseController(p *PauseController) Option {
	return func(o *executorOptions) { o.pause = p }
}

// WithValidator sets the validator used before a run starts.
func WithValidator(v *planning.Validator) Option {
	return func(o *executorOptions) { o.validator = v }
}
