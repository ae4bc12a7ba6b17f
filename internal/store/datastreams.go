package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/DmytroIE/Monapps-v5/internal/apperrors"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

// DatastreamRepo persists model.Datastream rows.
type DatastreamRepo struct{ db *sqlx.DB }

type datastreamRow struct {
	ID                 int64                `db:"id"`
	DeviceID           int64                `db:"device_id"`
	Name               string               `db:"name"`
	DataTypeName       string               `db:"data_type_name"`
	Aggregation        model.Aggregation    `db:"aggregation"`
	Variable           model.Variable       `db:"variable"`
	IsTotalizer        bool                 `db:"is_totalizer"`
	IsRbe              bool                 `db:"is_rbe"`
	TimeUpdateMs       sql.NullInt64     `db:"time_update_ms"`
	TimeChangeMs       sql.NullInt64     `db:"time_change_ms"`
	TillNowMarginMs    int64             `db:"till_now_margin_ms"`
	PlausibilityMin    float64           `db:"plausibility_min"`
	PlausibilityMax    float64           `db:"plausibility_max"`
	MaxRateOfChange    float64           `db:"max_rate_of_change"`
	IsEnabled          bool              `db:"is_enabled"`
	Errors             alarmMapJSON      `db:"errors"`
	Warnings           alarmMapJSON      `db:"warnings"`
	MsgHealth          model.HealthGrade `db:"msg_health"`
	NdHealth           model.HealthGrade `db:"nd_health"`
	LastValidReadingTs int64             `db:"last_valid_reading_ts"`
	TsToStartWith      int64             `db:"ts_to_start_with"`
	CreatedTs          int64             `db:"created_ts"`
	HealthNextEvalTs   int64             `db:"health_next_eval_ts"`
	TimeNdHealthErrorMs int64            `db:"time_nd_health_error_ms"`
}

func (r datastreamRow) toModel() *model.Datastream {
	d := &model.Datastream{
		ID: r.ID, DeviceID: r.DeviceID, Name: r.Name, IsRbe: r.IsRbe,
		DataType: model.DataType{
			Name: r.DataTypeName, Aggregation: r.Aggregation, Variable: r.Variable, IsTotalizer: r.IsTotalizer,
		},
		TillNowMarginMs: r.TillNowMarginMs, PlausibilityMin: r.PlausibilityMin,
		PlausibilityMax: r.PlausibilityMax, MaxRateOfChange: r.MaxRateOfChange, IsEnabled: r.IsEnabled,
		Errors: model.AlarmMap(r.Errors), Warnings: model.AlarmMap(r.Warnings),
		MsgHealth: r.MsgHealth, NdHealth: r.NdHealth, LastValidReadingTs: r.LastValidReadingTs,
		TsToStartWith: r.TsToStartWith, CreatedTs: r.CreatedTs, HealthNextEvalTs: r.HealthNextEvalTs,
		TimeNdHealthErrorMs: r.TimeNdHealthErrorMs,
	}
	if r.TimeUpdateMs.Valid {
		v := r.TimeUpdateMs.Int64
		d.TimeUpdateMs = &v
	}
	if r.TimeChangeMs.Valid {
		v := r.TimeChangeMs.Int64
		d.TimeChangeMs = &v
	}
	return d
}

// LockForUpdate takes the datastream row's exclusive lock (raw-data
// processor's per-message routine, §4.4).
func (r *DatastreamRepo) LockForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*model.Datastream, error) {
	var row datastreamRow
	err := tx.GetContext(ctx, &row, `
		SELECT id, device_id, name, data_type_name, aggregation, variable, is_totalizer, is_rbe, time_update_ms, time_change_ms,
		       till_now_margin_ms, plausibility_min, plausibility_max, max_rate_of_change,
		       is_enabled, errors, warnings, msg_health, nd_health, last_valid_reading_ts,
		       ts_to_start_with, created_ts, health_next_eval_ts, time_nd_health_error_ms
		FROM datastreams WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("datastream")
	}
	if err != nil {
		return nil, apperrors.NewIOError("lock datastream", err)
	}
	return row.toModel(), nil
}

// ByDevice lists every datastream owned by deviceID (the device updater's
// child health gather, §4.8).
func (r *DatastreamRepo) ByDevice(ctx context.Context, deviceID int64) ([]*model.Datastream, error) {
	var rows []datastreamRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, device_id, name, data_type_name, aggregation, variable, is_totalizer, is_rbe, time_update_ms, time_change_ms,
		       till_now_margin_ms, plausibility_min, plausibility_max, max_rate_of_change,
		       is_enabled, errors, warnings, msg_health, nd_health, last_valid_reading_ts,
		       ts_to_start_with, created_ts, health_next_eval_ts, time_nd_health_error_ms
		FROM datastreams WHERE device_id = $1`, deviceID)
	if err != nil {
		return nil, apperrors.NewIOError("list datastreams by device", err)
	}
	out := make([]*model.Datastream, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// DueForHealthEval returns enabled datastreams whose health_next_eval_ts
// has elapsed, oldest first — the feed for the periodic nd_health
// re-evaluation worker (pkg/dshealth).
func (r *DatastreamRepo) DueForHealthEval(ctx context.Context, now int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM datastreams WHERE is_enabled AND health_next_eval_ts <= $1
		ORDER BY health_next_eval_ts ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, apperrors.NewIOError("list datastreams due for health eval", err)
	}
	return ids, nil
}

// Save writes back d's mutable fields.
func (r *DatastreamRepo) Save(ctx context.Context, tx *sqlx.Tx, d *model.Datastream) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE datastreams SET errors=$1, warnings=$2, msg_health=$3, nd_health=$4,
		       last_valid_reading_ts=$5, health_next_eval_ts=$6
		WHERE id=$7`,
		alarmMapJSON(d.Errors), alarmMapJSON(d.Warnings), d.MsgHealth, d.NdHealth,
		d.LastValidReadingTs, d.HealthNextEvalTs, d.ID)
	if err != nil {
		return apperrors.NewIOError("save datastream", err)
	}
	return nil
}
