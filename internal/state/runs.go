package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/taskgraph/internal/orchestrator"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

// Run is one recorded execution of a plan.
type Run struct {
	ID           string              `json:"id"`
	PlanID       string              `json:"plan_id"`
	Status       models.PlanStatus   `json:"status"`
	Cancelled    bool                `json:"cancelled"`
	Ticks        int                 `json:"ticks"`
	Dispatched   int                 `json:"dispatched"`
	Failures     int                 `json:"failures"`
	ReplanRounds int                 `json:"replan_rounds"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	Report       orchestrator.Report `json:"report"`
}

// Duration is how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RecordRun stores a finished run and returns its ID. The plan must already
// be saved.
func (db *DB) RecordRun(ctx context.Context, report *orchestrator.Report) (string, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	id := uuid.NewString()
	_, err = db.exec(ctx, `
		INSERT INTO runs (id, plan_id, status, cancelled, ticks, dispatched, failures, replan_rounds, started_at, finished_at, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, report.PlanID, string(report.Status), report.Cancelled, report.Ticks, len(report.DispatchOrder),
		len(report.Failures), report.ReplanRounds, formatTime(report.StartedAt), formatTime(report.FinishedAt), string(data))
	if err != nil {
		return "", fmt.Errorf("record run of plan %s: %w", report.PlanID, err)
	}
	return id, nil
}

// ListRuns returns the runs of a plan, newest first.
func (db *DB) ListRuns(ctx context.Context, planID string) ([]Run, error) {
	rows, err := db.query(ctx, `
		SELECT id, plan_id, status, cancelled, ticks, dispatched, failures, replan_rounds, started_at, finished_at, report
		FROM runs WHERE plan_id = ?
		ORDER BY started_at DESC, id
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("list runs of plan %s: %w", planID, err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs of plan %s: %w", planID, err)
	}
	return out, nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var r Run
	var started, finished, report string
	err := rows.Scan(&r.ID, &r.PlanID, &r.Status, &r.Cancelled, &r.Ticks, &r.Dispatched, &r.Failures,
		&r.ReplanRounds, &started, &finished, &report)
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.StartedAt, _ = parseTime(started)
	r.FinishedAt, _ = parseTime(finished)
	if err := json.Unmarshal([]byte(report), &r.Report); err != nil {
		return Run{}, fmt.Errorf("decode report of run %s: %w", r.ID, err)
	}
	return r, nil
}
