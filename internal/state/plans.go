package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// PlanSummary is a plan row without its task graph.
type PlanSummary struct {
	ID        string            `json:"id"`
	Goal      string            `json:"goal"`
	Strategy  models.Strategy   `json:"strategy"`
	Status    models.PlanStatus `json:"status"`
	Revision  int               `json:"revision"`
	Tasks     int               `json:"tasks"`
	Completed int               `json:"completed"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SavePlan inserts or replaces a plan. It satisfies the executor's
// checkpoint interface, so a running plan is saved after every transition
// batch.
func (db *DB) SavePlan(ctx context.Context, plan *models.Plan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", plan.ID, err)
	}
	leaves := plan.Leaves()
	completed := 0
	for _, t := range leaves {
		if t.Status == models.TaskStatusCompleted {
			completed++
		}
	}
	updated := plan.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err = db.exec(ctx, `
		INSERT INTO plans (id, goal, strategy, status, revision, task_count, completed_count, created_at, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			goal = excluded.goal,
			strategy = excluded.strategy,
			status = excluded.status,
			revision = excluded.revision,
			task_count = excluded.task_count,
			completed_count = excluded.completed_count,
			updated_at = excluded.updated_at,
			data = excluded.data
	`, plan.ID, plan.OriginalTask, string(plan.Strategy), string(plan.Status), plan.Revision,
		len(leaves), completed, formatTime(plan.CreatedAt), formatTime(updated), string(data))
	if err != nil {
		return fmt.Errorf("save plan %s: %w", plan.ID, err)
	}
	return nil
}

// GetPlan loads a plan with its full task graph.
func (db *DB) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	var data string
	err := db.queryRow(ctx, "SELECT data FROM plans WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get plan %s: %w", id, err)
	}
	plan := &models.Plan{}
	if err := json.Unmarshal([]byte(data), plan); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", id, err)
	}
	return plan, nil
}

// ListPlans returns the most recently updated plans first. A limit of zero
// or less returns every plan.
func (db *DB) ListPlans(ctx context.Context, limit int) ([]PlanSummary, error) {
	return db.listPlans(ctx, "", limit)
}

func (db *DB) listPlans(ctx context.Context, status models.PlanStatus, limit int) ([]PlanSummary, error) {
	query := `
		SELECT id, goal, strategy, status, revision, task_count, completed_count, created_at, updated_at
		FROM plans`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY updated_at DESC, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []PlanSummary
	for rows.Next() {
		var s PlanSummary
		var created, updated string
		if err := rows.Scan(&s.ID, &s.Goal, &s.Strategy, &s.Status, &s.Revision, &s.Tasks, &s.Completed, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		s.CreatedAt, _ = parseTime(created)
		s.UpdatedAt, _ = parseTime(updated)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return out, nil
}

// DeletePlan removes a plan and its runs.
func (db *DB) DeletePlan(ctx context.Context, id string) error {
	res, err := db.exec(ctx, "DELETE FROM plans WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete plan %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete plan %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	return nil
}
