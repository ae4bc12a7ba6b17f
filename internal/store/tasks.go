package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/DmytroIE/Monapps-v5/internal/apperrors"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

// TaskRepo persists model.PeriodicTask rows — the "periodic task trigger"
// spec.md §1 treats as an out-of-scope external timer is backed here by a
// plain due-time poll so the rest of C6's scheduling has a real store to
// read its catching-up toggle from (spec.md §4.6 step 2).
type TaskRepo struct{ db *sqlx.DB }

type taskRow struct {
	ID                int64 `db:"id"`
	ApplicationID     int64 `db:"application_id"`
	InvocIntervalMs   int64 `db:"invoc_interval_ms"`
	CatchUpIntervalMs int64 `db:"catch_up_interval_ms"`
	NextRunTs         int64 `db:"next_run_ts"`
}

func (r taskRow) toModel() *model.PeriodicTask {
	return &model.PeriodicTask{
		ID: r.ID, ApplicationID: r.ApplicationID,
		InvocIntervalMs: r.InvocIntervalMs, CatchUpIntervalMs: r.CatchUpIntervalMs, NextRunTs: r.NextRunTs,
	}
}

// LockForApplication takes the exclusive lock on applicationID's task row.
func (r *TaskRepo) LockForApplication(ctx context.Context, tx *sqlx.Tx, applicationID int64) (*model.PeriodicTask, error) {
	var row taskRow
	err := tx.GetContext(ctx, &row,
		`SELECT id, application_id, invoc_interval_ms, catch_up_interval_ms, next_run_ts
		 FROM periodic_tasks WHERE application_id = $1 FOR UPDATE`, applicationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("periodic task")
	}
	if err != nil {
		return nil, apperrors.NewIOError("lock periodic task", err)
	}
	return row.toModel(), nil
}

// Due returns the ids of tasks whose next_run_ts has elapsed — the
// scheduler's (internal/scheduler) per-application trigger feed.
func (r *TaskRepo) Due(ctx context.Context, now int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT application_id FROM periodic_tasks WHERE next_run_ts <= $1 ORDER BY next_run_ts ASC LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, apperrors.NewIOError("list due tasks", err)
	}
	return ids, nil
}

// Save writes back t's interval/schedule after one executor tick.
func (r *TaskRepo) Save(ctx context.Context, tx *sqlx.Tx, t *model.PeriodicTask) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE periodic_tasks SET next_run_ts = $1 WHERE id = $2`, t.NextRunTs, t.ID)
	if err != nil {
		return apperrors.NewIOError("save periodic task", err)
	}
	return nil
}
