// Package classifier implements the datastream reading classifier (C2,
// spec.md §4.2): window split, plausibility check, rate-of-change filter,
// and nodata-marker classification. Grounded on
// original_source/monapps/utils/dsr_utils.py (create_ds_readings,
// create_nodata_markers, sort_unused_ds_readings, validate_ds_readings,
// roc_filter_ds_readings).
package classifier

import (
	"sort"

	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

// Input is one DS's batch of incoming readings and nodata-marker
// candidates for one raw-data processing pass.
type Input struct {
	// Readings maps timestamp -> raw value, as received in the payload.
	Readings map[int64]float64
	// NodataTimestamps are candidate nodata-marker timestamps signalled by
	// the alarm-map merge (C3) for this datastream.
	NodataTimestamps []int64
	// BasePoint is the last persisted DS reading strictly before the
	// earliest new timestamp, used to seed the ROC filter (§4.2 step 3).
	// Nil if no such reading exists.
	BasePoint *model.DsReading
}

// Result collects every classifier output bucket.
type Result struct {
	Used                []model.DsReading
	Unused              []model.DsReading
	Invalid             []model.DsReading
	NonRoc              []model.DsReading
	NodataMarkers       []model.NoDataMarker
	UnusedNodataMarkers []model.NoDataMarker

	// NewTsToStartWith / NewLastValidReadingTs are the DS fields' updated
	// values (§4.2 step 5); the caller writes these back to the DS.
	NewTsToStartWith     int64
	NewLastValidReadingTs int64
}

const rocEpsilon = 1e-9

// Classify runs the full C2 pipeline for one datastream against one batch
// of incoming readings and candidate nodata-marker timestamps.
func Classify(ds *model.Datastream, in Input, now int64) *Result {
	res := &Result{
		NewTsToStartWith:      ds.TsToStartWith,
		NewLastValidReadingTs: ds.LastValidReadingTs,
	}

	// Step 1: window split into used vs unused readings.
	var usedTs []int64
	for ts, v := range in.Readings {
		r := model.DsReading{DatastreamID: ds.ID, Ts: ts, Value: v}
		if isInWindow(ds.TsToStartWith, ts, now) {
			r.Kind = model.KindNormal
			res.Used = append(res.Used, r)
			usedTs = append(usedTs, ts)
		} else {
			r.Kind = model.KindUnused
			res.Unused = append(res.Unused, r)
		}
	}
	sort.Slice(res.Used, func(i, j int) bool { return res.Used[i].Ts < res.Used[j].Ts })
	sort.Slice(res.Unused, func(i, j int) bool { return res.Unused[i].Ts < res.Unused[j].Ts })

	// Step 2: plausibility check on used readings; invalid ones are moved
	// out of Used into Invalid (they do not participate in the ROC filter).
	var plausible []model.DsReading
	for _, r := range res.Used {
		if r.Value < ds.PlausibilityMin || r.Value > ds.PlausibilityMax {
			r.Kind = model.KindInvalid
			res.Invalid = append(res.Invalid, r)
			continue
		}
		plausible = append(plausible, r)
	}
	res.Used = plausible

	// Step 3: rate-of-change filter, only for CONTINUOUS+AVG.
	if ds.DataType.IsContinuousAvg() {
		res.Used, res.NonRoc = rocFilter(res.Used, in.BasePoint, ds.MaxRateOfChange)
	}

	// Step 4: nodata markers, window-split the same way; produced only
	// when DS is RBE and not CONTINUOUS+AVG.
	produceNodata := ds.IsRbe && !ds.DataType.IsContinuousAvg()
	var nodataTsForAdvance []int64
	if produceNodata {
		for _, ts := range in.NodataTimestamps {
			if isInWindow(ds.TsToStartWith, ts, now) {
				res.NodataMarkers = append(res.NodataMarkers, model.NoDataMarker{DatastreamID: ds.ID, Ts: ts})
				nodataTsForAdvance = append(nodataTsForAdvance, ts)
			} else {
				res.UnusedNodataMarkers = append(res.UnusedNodataMarkers,
					model.NoDataMarker{DatastreamID: ds.ID, Ts: ts, Unused: true})
			}
		}
	}

	// Step 5: advance ts_to_start_with / last_valid_reading_ts.
	maxAdvance := ds.TsToStartWith
	for _, ts := range usedTs {
		if ts > maxAdvance {
			maxAdvance = ts
		}
	}
	for _, ts := range nodataTsForAdvance {
		if ts > maxAdvance {
			maxAdvance = ts
		}
	}
	res.NewTsToStartWith = maxAdvance

	maxUsed := ds.LastValidReadingTs
	for _, r := range res.Used {
		if r.Ts > maxUsed {
			maxUsed = r.Ts
		}
	}
	res.NewLastValidReadingTs = maxUsed

	return res
}

// isInWindow implements §4.2 step 1: ts is used iff
// ds.ts_to_start_with < ts < now.
func isInWindow(tsToStartWith, ts, now int64) bool {
	return ts > tsToStartWith && ts < now
}

// rocFilter implements §4.2 step 3. readings must already be window- and
// plausibility-filtered; it returns the (possibly clamped) normal stream
// and the NonRoc copies (holding the original, pre-clamp values).
func rocFilter(readings []model.DsReading, basePoint *model.DsReading, maxRoc float64) (normal, nonRoc []model.DsReading) {
	if len(readings) == 0 {
		return nil, nil
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].Ts < readings[j].Ts })

	var prevV float64
	var prevTs int64
	if basePoint != nil {
		prevV, prevTs = basePoint.Value, basePoint.Ts
	} else {
		prevV, prevTs = readings[0].Value, readings[0].Ts
	}

	normal = make([]model.DsReading, 0, len(readings))
	for _, r := range readings {
		sign := sgn(r.Value - prevV)
		limit := prevV + sign*maxRoc*float64(r.Ts-prevTs)/1000.0

		overshoot := (sign > 0 && r.Value > limit+rocEpsilon) || (sign < 0 && r.Value < limit-rocEpsilon)
		clamped := r
		if overshoot {
			orig := r
			orig.Kind = model.KindNonRoc
			nonRoc = append(nonRoc, orig)
			clamped.Value = limit
		}
		clamped.Kind = model.KindNormal
		normal = append(normal, clamped)

		prevV, prevTs = clamped.Value, clamped.Ts
	}
	return normal, nonRoc
}

func sgn(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
