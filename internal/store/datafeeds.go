package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/DmytroIE/Monapps-v5/internal/apperrors"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

// DatafeedRepo persists model.Datafeed rows.
type DatafeedRepo struct{ db *sqlx.DB }

type datafeedRow struct {
	ID            int64            `db:"id"`
	ApplicationID int64            `db:"application_id"`
	Name          string           `db:"name"`
	DataTypeName  string           `db:"data_type_name"`
	Aggregation   model.Aggregation `db:"aggregation"`
	Variable      model.Variable    `db:"variable"`
	IsTotalizer   bool             `db:"is_totalizer"`
	DfType        model.DfType     `db:"df_type"`
	DatastreamID  sql.NullInt64    `db:"datastream_id"`
	IsRestOn      bool             `db:"is_rest_on"`
	IsAugOn       bool             `db:"is_aug_on"`
	AugPolicy     model.AugPolicy  `db:"aug_policy"`
	TsToStartWith int64            `db:"ts_to_start_with"`
	LastReadingTs int64            `db:"last_reading_ts"`
}

func (r datafeedRow) toModel() *model.Datafeed {
	df := &model.Datafeed{
		ID: r.ID, ApplicationID: r.ApplicationID, Name: r.Name,
		DataType: model.DataType{
			Name: r.DataTypeName, Aggregation: r.Aggregation, Variable: r.Variable, IsTotalizer: r.IsTotalizer,
		},
		DfType: r.DfType, IsRestOn: r.IsRestOn, IsAugOn: r.IsAugOn, AugPolicy: r.AugPolicy,
		TsToStartWith: r.TsToStartWith, LastReadingTs: r.LastReadingTs,
	}
	if r.DatastreamID.Valid {
		id := r.DatastreamID.Int64
		df.DatastreamID = &id
	}
	return df
}

const datafeedColumns = `id, application_id, name, data_type_name, aggregation, variable, is_totalizer,
	df_type, datastream_id, is_rest_on, is_aug_on, aug_policy, ts_to_start_with, last_reading_ts`

// LockForUpdate takes the datafeed row's exclusive lock.
func (r *DatafeedRepo) LockForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*model.Datafeed, error) {
	var row datafeedRow
	err := tx.GetContext(ctx, &row,
		`SELECT `+datafeedColumns+` FROM datafeeds WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("datafeed")
	}
	if err != nil {
		return nil, apperrors.NewIOError("lock datafeed", err)
	}
	return row.toModel(), nil
}

// ByApplication lists every datafeed (native and derived) owned by
// applicationID — the executor's (C6) native_df_map/derived_df_map seed.
func (r *DatafeedRepo) ByApplication(ctx context.Context, applicationID int64) ([]*model.Datafeed, error) {
	var rows []datafeedRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+datafeedColumns+` FROM datafeeds WHERE application_id = $1`, applicationID)
	if err != nil {
		return nil, apperrors.NewIOError("list datafeeds by application", err)
	}
	out := make([]*model.Datafeed, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// AdvanceLastReadingTs persists the watermark a synthesizer run reached, so
// the next invocation resumes instead of recomputing from ts_to_start_with.
func (r *DatafeedRepo) AdvanceLastReadingTs(ctx context.Context, tx *sqlx.Tx, id, ts int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE datafeeds SET last_reading_ts = $1 WHERE id = $2 AND last_reading_ts < $1`, ts, id)
	if err != nil {
		return apperrors.NewIOError("advance datafeed watermark", err)
	}
	return nil
}
