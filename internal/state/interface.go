package state

import (
	"context"
	"io"

	"github.com/ShayCichocki/taskgraph/internal/orchestrator"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// PlanStore persists plans.
type PlanStore interface {
	SavePlan(ctx context.Context, plan *models.Plan) error
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	ListPlans(ctx context.Context, limit int) ([]PlanSummary, error)
	DeletePlan(ctx context.Context, id string) error
}

// RunStore records finished runs.
type RunStore interface {
	RecordRun(ctx context.Context, report *orchestrator.Report) (string, error)
	ListRuns(ctx context.Context, planID string) ([]Run, error)
}

// Migrator applies schema migrations.
type Migrator interface {
	Migrate() error
}

// Store is everything the CLI and pipeline need from persistence.
type Store interface {
	io.Closer
	Migrator
	PlanStore
	RunStore
}

var (
	_ Store                  = (*DB)(nil)
	_ orchestrator.PlanSaver = (*DB)(nil)
)
