// Package timegrid implements the integer-millisecond grid primitives of
// spec.md §4.1, grounded on
// original_source/monapps/utils/ts_utils.py (ceil_timestamp,
// floor_timestamp, create_grid).
package timegrid

import "github.com/DmytroIE/Monapps-v5/internal/apperrors"

// Ceil rounds ts up to the nearest multiple of interval: integer-only
// arithmetic, ((ts + interval - 1) / interval) * interval.
func Ceil(ts, interval int64) int64 {
	if interval <= 0 {
		return ts
	}
	return ((ts + interval - 1) / interval) * interval
}

// Floor rounds ts down to the nearest multiple of interval.
func Floor(ts, interval int64) int64 {
	if interval <= 0 {
		return ts
	}
	q := ts / interval
	if ts%interval != 0 && ts < 0 {
		q--
	}
	return q * interval
}

// CreateGrid yields [start, start+step, ..., end]. Fails with
// KindValidation ("InvalidGrid" in spec terms) if end < start or
// (end-start) mod step != 0.
func CreateGrid(start, end, step int64) ([]int64, error) {
	if step <= 0 {
		return nil, apperrors.NewValidationErrorf("invalid grid: step must be positive, got %d", step)
	}
	if end < start {
		return nil, apperrors.NewValidationErrorf("invalid grid: end (%d) < start (%d)", end, start)
	}
	if (end-start)%step != 0 {
		return nil, apperrors.NewValidationErrorf(
			"invalid grid: (end-start)=%d not divisible by step=%d", end-start, step)
	}
	n := (end-start)/step + 1
	grid := make([]int64, 0, n)
	for ts := start; ts <= end; ts += step {
		grid = append(grid, ts)
	}
	return grid, nil
}

// CreateNowTs returns the current wall-clock time quantized as the engine
// expects it supplied (milliseconds since epoch); callers own obtaining
// "now" and pass it down explicitly everywhere else in this module so that
// every other function here stays pure and deterministic for testing.
func CreateNowTs(nowMs int64) int64 { return nowMs }
