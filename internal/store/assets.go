package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/DmytroIE/Monapps-v5/internal/apperrors"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

// AssetRepo persists model.Asset rows — the tree updater's (C8) storage.
type AssetRepo struct{ db *sqlx.DB }

type assetRow struct {
	ID                    int64              `db:"id"`
	ParentID              sql.NullInt64      `db:"parent_id"`
	Status                sql.NullInt64      `db:"status"`
	CurrState             sql.NullInt64      `db:"curr_state"`
	Health                model.HealthGrade  `db:"health"`
	LastStatusUpdateTs    int64              `db:"last_status_update_ts"`
	LastCurrStateUpdateTs int64              `db:"last_curr_state_update_ts"`
	StatusUse             model.UsePolicy    `db:"status_use"`
	CurrStateUse          model.UsePolicy    `db:"curr_state_use"`
	NextUpdTs             int64              `db:"next_upd_ts"`
	ReevalFields          stringSetJSON      `db:"reeval_fields"`
}

func (r assetRow) toModel() *model.Asset {
	a := &model.Asset{
		ID: r.ID, Health: r.Health,
		LastStatusUpdateTs: r.LastStatusUpdateTs, LastCurrStateUpdateTs: r.LastCurrStateUpdateTs,
		StatusUse: r.StatusUse, CurrStateUse: r.CurrStateUse, NextUpdTs: r.NextUpdTs,
		ReevalFields: map[string]struct{}(r.ReevalFields),
	}
	if r.ParentID.Valid {
		id := r.ParentID.Int64
		a.ParentID = &id
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

// LockForUpdate takes the asset row's exclusive lock.
func (r *AssetRepo) LockForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*model.Asset, error) {
	var row assetRow
	err := tx.GetContext(ctx, &row,
		`SELECT id, parent_id, status, curr_state, health, last_status_update_ts,
		        last_curr_state_update_ts, status_use, curr_state_use, next_upd_ts, reeval_fields
		 FROM assets WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("asset")
	}
	if err != nil {
		return nil, apperrors.NewIOError("lock asset", err)
	}
	return row.toModel(), nil
}

// Get reads a's current committed row without taking a lock, for the
// asset tree updater's read-only tree gather.
func (r *AssetRepo) Get(ctx context.Context, id int64) (*model.Asset, error) {
	var row assetRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, parent_id, status, curr_state, health, last_status_update_ts,
		        last_curr_state_update_ts, status_use, curr_state_use, next_upd_ts, reeval_fields
		 FROM assets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("asset")
	}
	if err != nil {
		return nil, apperrors.NewIOError("get asset", err)
	}
	return row.toModel(), nil
}

// Children returns the ids of assets directly parented under id, for
// building the in-memory AssetNode tree one level of the updater pass
// walks at a time (pkg/updater.AssetNode).
func (r *AssetRepo) Children(ctx context.Context, id int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM assets WHERE parent_id = $1`, id)
	if err != nil {
		return nil, apperrors.NewIOError("list asset children", err)
	}
	return ids, nil
}

// DueForUpdate mirrors DeviceRepo.DueForUpdate for the asset tree walker.
func (r *AssetRepo) DueForUpdate(ctx context.Context, now int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM assets WHERE next_upd_ts <= $1 ORDER BY next_upd_ts ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, apperrors.NewIOError("list due assets", err)
	}
	return ids, nil
}

// Save writes back a's mutable fields.
func (r *AssetRepo) Save(ctx context.Context, tx *sqlx.Tx, a *model.Asset) error {
	var status, currState sql.NullInt64
	if a.Status != nil {
		status = sql.NullInt64{Int64: int64(*a.Status), Valid: true}
	}
	if a.CurrState != nil {
		currState = sql.NullInt64{Int64: int64(*a.CurrState), Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE assets SET status=$1, curr_state=$2, health=$3, last_status_update_ts=$4,
		        last_curr_state_update_ts=$5, next_upd_ts=$6, reeval_fields=$7
		 WHERE id=$8`,
		status, currState, a.Health, a.LastStatusUpdateTs, a.LastCurrStateUpdateTs, a.NextUpdTs,
		stringSetJSON(a.ReevalFields), a.ID)
	if err != nil {
		return apperrors.NewIOError("save asset", err)
	}
	return nil
}
