package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/DmytroIE/Monapps-v5/internal/apperrors"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

// ApplicationRepo persists model.Application rows — the executor's (C6)
// storage.
type ApplicationRepo struct{ db *sqlx.DB }

type applicationRow struct {
	ID                    int64             `db:"id"`
	Type                  string            `db:"type"`
	TimeResampleMs        int64             `db:"time_resample_ms"`
	Settings              settingsJSON      `db:"settings"`
	State                 settingsJSON      `db:"state"`
	CursorTs              int64             `db:"cursor_ts"`
	IsEnabled             bool              `db:"is_enabled"`
	IsCatchingUp          bool              `db:"is_catching_up"`
	Status                sql.NullInt64     `db:"status"`
	CurrState             sql.NullInt64     `db:"curr_state"`
	LastStatusUpdateTs    int64             `db:"last_status_update_ts"`
	LastCurrStateUpdateTs int64             `db:"last_curr_state_update_ts"`
	IsStatusStale         bool              `db:"is_status_stale"`
	IsCurrStateStale      bool              `db:"is_curr_state_stale"`
	TimeStatusStaleMs     int64             `db:"time_status_stale_ms"`
	TimeCurrStateStaleMs  int64             `db:"time_curr_state_stale_ms"`
	Health                model.HealthGrade `db:"health"`
	TimeHealthErrorMs     int64             `db:"time_health_error_ms"`
	StatusUse             model.UsePolicy   `db:"status_use"`
	CurrStateUse          model.UsePolicy   `db:"curr_state_use"`
	Errors                alarmMapJSON      `db:"errors"`
	Warnings              alarmMapJSON      `db:"warnings"`
	ParentAssetID         int64             `db:"parent_asset_id"`
	CreatedTs             int64             `db:"created_ts"`
	ReevalFields          stringSetJSON     `db:"reeval_fields"`
	NextUpdTs             int64             `db:"next_upd_ts"`
}

func (r applicationRow) toModel() *model.Application {
	a := &model.Application{
		ID: r.ID, Type: r.Type, TimeResampleMs: r.TimeResampleMs,
		Settings: map[string]any(r.Settings), State: map[string]any(r.State),
		CursorTs: r.CursorTs, IsEnabled: r.IsEnabled, IsCatchingUp: r.IsCatchingUp,
		LastStatusUpdateTs: r.LastStatusUpdateTs, LastCurrStateUpdateTs: r.LastCurrStateUpdateTs,
		IsStatusStale: r.IsStatusStale, IsCurrStateStale: r.IsCurrStateStale,
		TimeStatusStaleMs: r.TimeStatusStaleMs, TimeCurrStateStaleMs: r.TimeCurrStateStaleMs,
		Health: r.Health, TimeHealthErrorMs: r.TimeHealthErrorMs,
		StatusUse: r.StatusUse, CurrStateUse: r.CurrStateUse,
		Errors: model.AlarmMap(r.Errors), Warnings: model.AlarmMap(r.Warnings),
		ParentAssetID: r.ParentAssetID, CreatedTs: r.CreatedTs,
		ReevalFields: map[string]struct{}(r.ReevalFields), NextUpdTs: r.NextUpdTs,
	}
	if r.Status.Valid {
		g := model.HealthGrade(r.Status.Int64)
		a.Status = &g
	}
	if r.CurrState.Valid {
		g := model.HealthGrade(r.CurrState.Int64)
		a.CurrState = &g
	}
	return a
}

// ByParentAsset lists the ids of every application directly owned by
// assetID — the other leaf source for the asset tree updater (C8).
func (r *ApplicationRepo) ByParentAsset(ctx context.Context, assetID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM applications WHERE parent_asset_id = $1`, assetID)
	if err != nil {
		return nil, apperrors.NewIOError("list applications by parent asset", err)
	}
	return ids, nil
}

// Get reads a's current committed row without taking a lock, for the
// asset tree updater's read-only leaf gather.
func (r *ApplicationRepo) Get(ctx context.Context, id int64) (*model.Application, error) {
	var row applicationRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, type, time_resample_ms, settings, state, cursor_ts, is_enabled, is_catching_up,
		       status, curr_state, last_status_update_ts, last_curr_state_update_ts,
		       is_status_stale, is_curr_state_stale, time_status_stale_ms, time_curr_state_stale_ms,
		       health, time_health_error_ms, status_use, curr_state_use, errors, warnings,
		       parent_asset_id, created_ts, reeval_fields, next_upd_ts
		FROM applications WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("application")
	}
	if err != nil {
		return nil, apperrors.NewIOError("get application", err)
	}
	return row.toModel(), nil
}

// LockForUpdate takes the application row's exclusive lock (spec.md §5,
// §4.6 step 3).
func (r *ApplicationRepo) LockForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*model.Application, error) {
	var row applicationRow
	err := tx.GetContext(ctx, &row, `
		SELECT id, type, time_resample_ms, settings, state, cursor_ts, is_enabled, is_catching_up,
		       status, curr_state, last_status_update_ts, last_curr_state_update_ts,
		       is_status_stale, is_curr_state_stale, time_status_stale_ms, time_curr_state_stale_ms,
		       health, time_health_error_ms, status_use, curr_state_use, errors, warnings,
		       parent_asset_id, created_ts, reeval_fields, next_upd_ts
		FROM applications WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("application")
	}
	if err != nil {
		return nil, apperrors.NewIOError("lock application", err)
	}
	return row.toModel(), nil
}

// Save writes back a's full mutable state after one executor tick.
func (r *ApplicationRepo) Save(ctx context.Context, tx *sqlx.Tx, a *model.Application) error {
	var status, currState sql.NullInt64
	if a.Status != nil {
		status = sql.NullInt64{Int64: int64(*a.Status), Valid: true}
	}
	if a.CurrState != nil {
		currState = sql.NullInt64{Int64: int64(*a.CurrState), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE applications SET
		  state=$1, cursor_ts=$2, is_enabled=$3, is_catching_up=$4, status=$5, curr_state=$6,
		  last_status_update_ts=$7, last_curr_state_update_ts=$8, is_status_stale=$9,
		  is_curr_state_stale=$10, health=$11, errors=$12, warnings=$13, reeval_fields=$14,
		  next_upd_ts=$15
		WHERE id=$16`,
		settingsJSON(a.State), a.CursorTs, a.IsEnabled, a.IsCatchingUp, status, currState,
		a.LastStatusUpdateTs, a.LastCurrStateUpdateTs, a.IsStatusStale, a.IsCurrStateStale,
		a.Health, alarmMapJSON(a.Errors), alarmMapJSON(a.Warnings), stringSetJSON(a.ReevalFields),
		a.NextUpdTs, a.ID)
	if err != nil {
		return apperrors.NewIOError("save application", err)
	}
	return nil
}

// Enabled lists the ids of every enabled application, the scheduler's
// (internal/scheduler) per-application worker fan-out seed.
func (r *ApplicationRepo) Enabled(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM applications WHERE is_enabled`); err != nil {
		return nil, apperrors.NewIOError("list enabled applications", err)
	}
	return ids, nil
}
