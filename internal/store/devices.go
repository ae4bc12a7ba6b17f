package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/DmytroIE/Monapps-v5/internal/apperrors"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

// DeviceRepo persists model.Device rows.
type DeviceRepo struct{ db *sqlx.DB }

type deviceRow struct {
	ID            int64           `db:"id"`
	DevUi         string          `db:"dev_ui"`
	Errors        alarmMapJSON    `db:"errors"`
	Warnings      alarmMapJSON    `db:"warnings"`
	MsgHealth     model.HealthGrade `db:"msg_health"`
	ChldHealth    model.HealthGrade `db:"chld_health"`
	NextUpdTs     int64           `db:"next_upd_ts"`
	ParentAssetID int64           `db:"parent_asset_id"`
}

func (r deviceRow) toModel() *model.Device {
	return &model.Device{
		ID: r.ID, DevUi: r.DevUi,
		Errors: model.AlarmMap(r.Errors), Warnings: model.AlarmMap(r.Warnings),
		MsgHealth: r.MsgHealth, ChldHealth: r.ChldHealth,
		NextUpdTs: r.NextUpdTs, ParentAssetID: r.ParentAssetID,
	}
}

// FindIDByDevUi resolves the ingress payload's dev_ui key to a device id,
// the lookup the raw-data handler needs before it can take the row's lock
// (spec.md §6: ingress is keyed by dev_ui, everything else by numeric id).
func (r *DeviceRepo) FindIDByDevUi(ctx context.Context, devUi string) (int64, error) {
	var id int64
	err := r.db.GetContext(ctx, &id, `SELECT id FROM devices WHERE dev_ui = $1`, devUi)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.NewNotFoundError("device")
	}
	if err != nil {
		return 0, apperrors.NewIOError("find device by dev_ui", err)
	}
	return id, nil
}

// ByParentAsset lists the ids of every device directly owned by assetID —
// one of the asset tree updater's (C8) leaf sources.
func (r *DeviceRepo) ByParentAsset(ctx context.Context, assetID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM devices WHERE parent_asset_id = $1`, assetID)
	if err != nil {
		return nil, apperrors.NewIOError("list devices by parent asset", err)
	}
	return ids, nil
}

// Get reads d's current committed row without taking a lock — the asset
// tree updater (C8) only needs a device's already-updated health, never
// writes through this path.
func (r *DeviceRepo) Get(ctx context.Context, id int64) (*model.Device, error) {
	var row deviceRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, dev_ui, errors, warnings, msg_health, chld_health, next_upd_ts, parent_asset_id
		 FROM devices WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("device")
	}
	if err != nil {
		return nil, apperrors.NewIOError("get device", err)
	}
	return row.toModel(), nil
}

// LockForUpdate takes the row's exclusive lock (spec.md §5 shared-resource
// policy step 1) and returns the current row, or a KindNotFound AppError.
func (r *DeviceRepo) LockForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*model.Device, error) {
	var row deviceRow
	err := tx.GetContext(ctx, &row,
		`SELECT id, dev_ui, errors, warnings, msg_health, chld_health, next_upd_ts, parent_asset_id
		 FROM devices WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("device")
	}
	if err != nil {
		return nil, apperrors.NewIOError("lock device", err)
	}
	return row.toModel(), nil
}

// DueForUpdate returns devices whose next_upd_ts has elapsed, oldest
// first — the feed for the device updater's periodic worker (§4.8, §5).
func (r *DeviceRepo) DueForUpdate(ctx context.Context, now int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM devices WHERE next_upd_ts <= $1 ORDER BY next_upd_ts ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, apperrors.NewIOError("list due devices", err)
	}
	return ids, nil
}

// Save writes back the mutable fields of d inside tx, matching §5's
// set_attr_if_cond discipline: callers are expected to have already
// compared before/after and only call Save when something changed.
func (r *DeviceRepo) Save(ctx context.Context, tx *sqlx.Tx, d *model.Device) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE devices SET errors=$1, warnings=$2, msg_health=$3, chld_health=$4, next_upd_ts=$5
		 WHERE id=$6`,
		alarmMapJSON(d.Errors), alarmMapJSON(d.Warnings), d.MsgHealth, d.ChldHealth, d.NextUpdTs, d.ID)
	if err != nil {
		return apperrors.NewIOError("save device", err)
	}
	return nil
}
