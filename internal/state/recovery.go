package state

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// RecoveryManager finds plans whose run stopped without finishing, such as
// after a crash, and prepares them to run again.
type RecoveryManager struct {
	db     *DB
	logger *zap.Logger
}

// NewRecoveryManager creates a RecoveryManager.
func NewRecoveryManager(db *DB, logger *zap.Logger) *RecoveryManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecoveryManager{db: db, logger: logger.Named("recovery")}
}

// Interrupted lists plans still marked running, newest first.
func (rm *RecoveryManager) Interrupted(ctx context.Context) ([]PlanSummary, error) {
	plans, err := rm.db.listPlans(ctx, models.PlanStatusRunning, 0)
	if err != nil {
		return nil, fmt.Errorf("check interrupted plans: %w", err)
	}
	return plans, nil
}

// Resume loads an interrupted plan ready to hand back to the executor.
// Tasks left running are requeued by the executor itself; completed work is
// kept.
func (rm *RecoveryManager) Resume(ctx context.Context, planID string) (*models.Plan, error) {
	plan, err := rm.db.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status.Terminal() {
		return nil, fmt.Errorf("plan %s already finished with status %s", planID, plan.Status)
	}
	rm.logger.Info("resuming plan",
		zap.String("plan", planID),
		zap.Int("completed", len(plan.CompletedIDs())),
		zap.Int("revision", plan.Revision),
	)
	return plan, nil
}

// Abandon marks an interrupted plan as failed without running it again.
// Unfinished tasks are skipped.
func (rm *RecoveryManager) Abandon(ctx context.Context, planID string) error {
	plan, err := rm.db.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	for _, t := range plan.Leaves() {
		if !t.Status.Terminal() {
			t.Status = models.TaskStatusSkipped
			t.Error = "abandoned"
		}
	}
	plan.Status = plan.ComputeStatus()
	if err := rm.db.SavePlan(ctx, plan); err != nil {
		return fmt.Errorf("abandon plan %s: %w", planID, err)
	}
	rm.logger.Info("abandoned plan", zap.String("plan", planID), zap.String("status", string(plan.Status)))
	return nil
}
