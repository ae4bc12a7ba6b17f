package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/DmytroIE/Monapps-v5/internal/apperrors"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

// insertBatchSize matches spec.md §4.4's "persist in batches of 100".
const insertBatchSize = 100

// DsReadingRepo persists model.DsReading rows, composite key
// (datastream_id, time) per spec.md §3.
type DsReadingRepo struct{ db *sqlx.DB }

// InsertBatch writes readings in chunks of insertBatchSize, using
// ON CONFLICT DO NOTHING so the composite primary key enforces de-dup
// without the caller having to pre-filter (spec.md §3, §4.4).
func (r *DsReadingRepo) InsertBatch(ctx context.Context, tx *sqlx.Tx, readings []model.DsReading) error {
	for start := 0; start < len(readings); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(readings) {
			end = len(readings)
		}
		if err := insertDsReadingChunk(ctx, tx, readings[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func insertDsReadingChunk(ctx context.Context, tx *sqlx.Tx, chunk []model.DsReading) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ds_readings (datastream_id, time, value, kind) VALUES ")
	args := make([]any, 0, len(chunk)*4)
	for i, rd := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, rd.DatastreamID, rd.Ts, rd.Value, rd.Kind)
	}
	sb.WriteString(" ON CONFLICT (datastream_id, time) DO NOTHING")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return apperrors.NewIntegrityError("insert ds_readings batch", err)
	}
	return nil
}

type dsReadingRow struct {
	DatastreamID int64             `db:"datastream_id"`
	Ts           int64             `db:"ts"`
	Value        float64           `db:"value"`
	Kind         model.ReadingKind `db:"kind"`
}

func (r dsReadingRow) toModel() model.DsReading {
	return model.DsReading{DatastreamID: r.DatastreamID, Ts: r.Ts, Value: r.Value, Kind: r.Kind}
}

// Range fetches readings for datastreamID with fromTs <= time < toTs,
// ascending — the synthesizer's (C5) raw-material query.
func (r *DsReadingRepo) Range(ctx context.Context, datastreamID, fromTs, toTs int64) ([]model.DsReading, error) {
	var rows []dsReadingRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT datastream_id, time AS ts, value, kind
		FROM ds_readings WHERE datastream_id = $1 AND time >= $2 AND time < $3
		ORDER BY time ASC`, datastreamID, fromTs, toTs)
	if err != nil {
		return nil, apperrors.NewIOError("range ds_readings", err)
	}
	out := make([]model.DsReading, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// LastBefore returns the last persisted reading strictly before ts, used
// as the rate-of-change filter's base point (spec.md §4.4 step 3).
func (r *DsReadingRepo) LastBefore(ctx context.Context, datastreamID, ts int64) (*model.DsReading, bool, error) {
	var rows []dsReadingRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT datastream_id, time AS ts, value, kind FROM ds_readings
		WHERE datastream_id = $1 AND time < $2 ORDER BY time DESC LIMIT 1`, datastreamID, ts)
	if err != nil {
		return nil, false, apperrors.NewIOError("last ds_reading before", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	reading := rows[0].toModel()
	return &reading, true, nil
}

// NoDataMarkerRepo persists model.NoDataMarker rows, sharing ds_readings'
// (datastream_id, time) composite key space conceptually but stored in
// their own table since they carry no value (spec.md §3).
type NoDataMarkerRepo struct{ db *sqlx.DB }

// InsertBatch writes markers in chunks of insertBatchSize with the same
// duplicate-key-ignored insert discipline as DsReadingRepo.
func (r *NoDataMarkerRepo) InsertBatch(ctx context.Context, tx *sqlx.Tx, markers []model.NoDataMarker) error {
	for start := 0; start < len(markers); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(markers) {
			end = len(markers)
		}
		if err := insertNoDataMarkerChunk(ctx, tx, markers[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func insertNoDataMarkerChunk(ctx context.Context, tx *sqlx.Tx, chunk []model.NoDataMarker) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO nodata_markers (datastream_id, time, unused) VALUES ")
	args := make([]any, 0, len(chunk)*3)
	for i, m := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 3
		fmt.Fprintf(&sb, "($%d, $%d, $%d)", n+1, n+2, n+3)
		args = append(args, m.DatastreamID, m.Ts, m.Unused)
	}
	sb.WriteString(" ON CONFLICT (datastream_id, time) DO NOTHING")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return apperrors.NewIntegrityError("insert nodata_markers batch", err)
	}
	return nil
}

type noDataMarkerRow struct {
	DatastreamID int64 `db:"datastream_id"`
	Ts           int64 `db:"ts"`
	Unused       bool  `db:"unused"`
}

func (r noDataMarkerRow) toModel() model.NoDataMarker {
	return model.NoDataMarker{DatastreamID: r.DatastreamID, Ts: r.Ts, Unused: r.Unused}
}

// Range fetches markers for datastreamID with fromTs <= time < toTs,
// ascending — the synthesizer's (C5) RBE+aug merge input.
func (r *NoDataMarkerRepo) Range(ctx context.Context, datastreamID, fromTs, toTs int64) ([]model.NoDataMarker, error) {
	var rows []noDataMarkerRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT datastream_id, time AS ts, unused
		FROM nodata_markers WHERE datastream_id = $1 AND time >= $2 AND time < $3
		ORDER BY time ASC`, datastreamID, fromTs, toTs)
	if err != nil {
		return nil, apperrors.NewIOError("range nodata_markers", err)
	}
	out := make([]model.NoDataMarker, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

// DfReadingRepo persists model.DfReading rows, composite key
// (datafeed_id, time) per spec.md §3. Invariant I4: callers must filter
// out !Persistable() readings before calling InsertBatch.
type DfReadingRepo struct{ db *sqlx.DB }

// InsertBatch writes readings in chunks of insertBatchSize. Non-persistable
// readings (NotToUse != TagNone) are silently skipped rather than erroring,
// since the synthesizer routinely produces trailing unclosed/spline-tagged
// candidates that are never meant to reach the store (I4).
func (r *DfReadingRepo) InsertBatch(ctx context.Context, tx *sqlx.Tx, readings []model.DfReading) error {
	persistable := make([]model.DfReading, 0, len(readings))
	for _, rd := range readings {
		if rd.Persistable() {
			persistable = append(persistable, rd)
		}
	}
	for start := 0; start < len(persistable); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(persistable) {
			end = len(persistable)
		}
		if err := insertDfReadingChunk(ctx, tx, persistable[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func insertDfReadingChunk(ctx context.Context, tx *sqlx.Tx, chunk []model.DfReading) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO df_readings (datafeed_id, time, value, restored) VALUES ")
	args := make([]any, 0, len(chunk)*4)
	for i, rd := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, rd.DatafeedID, rd.Ts, rd.Value, rd.Restored)
	}
	sb.WriteString(" ON CONFLICT (datafeed_id, time) DO NOTHING")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return apperrors.NewIntegrityError("insert df_readings batch", err)
	}
	return nil
}

type dfReadingRow struct {
	DatafeedID int64   `db:"datafeed_id"`
	Ts         int64   `db:"ts"`
	Value      float64 `db:"value"`
	Restored   bool    `db:"restored"`
}

func (r dfReadingRow) toModel() model.DfReading {
	return model.DfReading{DatafeedID: r.DatafeedID, Ts: r.Ts, Value: r.Value, Restored: r.Restored}
}

// Range fetches readings for datafeedID with fromTs <= time <= toTs,
// ascending — the restoration path's (§4.5) existing-batch fetcher.
func (r *DfReadingRepo) Range(ctx context.Context, datafeedID, fromTs, toTs int64) ([]model.DfReading, error) {
	var rows []dfReadingRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT datafeed_id, time AS ts, value, restored
		FROM df_readings WHERE datafeed_id = $1 AND time >= $2 AND time <= $3
		ORDER BY time ASC`, datafeedID, fromTs, toTs)
	if err != nil {
		return nil, apperrors.NewIOError("range df_readings", err)
	}
	out := make([]model.DfReading, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}
