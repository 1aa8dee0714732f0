package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskgraph/internal/planning"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// Executor runs plans against a TaskRunner. One Executor may run several
// different plans at once; a given plan ID runs at most once at a time.
type Executor struct {
	runner    TaskRunner
	opts      executorOptions
	logger    *zap.Logger
	validator *planning.Validator

	mu     sync.Mutex
	active map[string]*control
}

// control is how callers reach a run in progress.
type control struct {
	cancel context.CancelFunc
	replan chan string
}

// New creates an Executor.
func New(runner TaskRunner, opts ...Option) *Executor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.Named("executor")
	if o.events != nil {
		o.events.SetLogger(logger)
	}
	v := o.validator
	if v == nil {
		v = planning.NewValidator(planning.WithLogger(o.logger))
	}
	return &Executor{
		runner:    runner,
		opts:      o,
		logger:    logger,
		validator: v,
		active:    make(map[string]*control),
	}
}

// Run validates plan and drives it to a terminal status. The only errors
// are a *planning.ValidationError and ErrPlanBusy; task failures and
// cancellation are reported in the Report.
func (e *Executor) Run(ctx context.Context, plan *models.Plan) (*Report, error) {
	if plan == nil {
		return nil, errors.New("run plan: nil plan")
	}
	// Register first: a second run of the same plan must not read it.
	runCtx, ctl, err := e.register(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	defer e.unregister(plan.ID)
	defer ctl.cancel()

	if err := e.validator.Validate(plan); err != nil {
		return nil, err
	}

	r, err := newRun(e, plan, ctl)
	if err != nil {
		return nil, err
	}
	return r.loop(runCtx), nil
}

// Cancel stops dispatching for a running plan. Attempts already running
// finish; everything not yet started is skipped. It reports whether the
// plan was running.
func (e *Executor) Cancel(planID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctl, ok := e.active[planID]
	if ok {
		ctl.cancel()
	}
	return ok
}

// RequestReplan asks a running plan to consult its Replanner at the next
// opportunity. It reports whether the request was delivered.
func (e *Executor) RequestReplan(planID string) bool {
	e.mu.Lock()
	ctl, ok := e.active[planID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ctl.replan <- "requested":
	default:
	}
	return true
}

// Active returns the IDs of plans currently running, sorted.
func (e *Executor) Active() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Executor) register(ctx context.Context, planID string) (context.Context, *control, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.active[planID]; busy {
		return nil, nil, ErrPlanBusy
	}
	runCtx, cancel := context.WithCancel(ctx)
	ctl := &control{cancel: cancel, replan: make(chan string, 1)}
	e.active[planID] = ctl
	return runCtx, ctl, nil
}

func (e *Executor) unregister(planID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, planID)
}
