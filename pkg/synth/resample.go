package synth

import (
	"sort"

	"github.com/DmytroIE/Monapps-v5/internal/apperrors"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
	"github.com/DmytroIE/Monapps-v5/pkg/timegrid"
)

// Aggregator reduces a bin's DS reading values to one DF reading value,
// matching the original's agg_map dispatch (find_average, find_sum,
// find_last_value).
type Aggregator func(values []float64) float64

// FindAverage is the AVG aggregator.
func FindAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// FindSum is the SUM aggregator.
func FindSum(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum
}

// FindLastValue is the LAST aggregator: the value of the chronologically
// last reading in the bin.
func FindLastValue(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

// AggregatorFor dispatches on a data type's Aggregation, matching the
// original's agg_map; returns KindUnknownAggregation if agg is not one of
// the three known kinds.
func AggregatorFor(agg model.Aggregation) (Aggregator, error) {
	switch agg {
	case model.AggAvg:
		return FindAverage, nil
	case model.AggSum:
		return FindSum, nil
	case model.AggLast:
		return FindLastValue, nil
	default:
		return nil, apperrors.NewUnknownAggregationError(string(agg))
	}
}

// ResampleDsReadings implements §4.5's "resample by binning DS readings to
// their ceil-ts; compute per-bin value; tag the maximum bin UNCLOSED." It
// assumes readings are already classifier-"used" (normal) readings in
// [startRts, endRts].
func ResampleDsReadings(readings []model.DsReading, datafeedID int64, resample int64, agg Aggregator) []model.DfReading {
	bins := map[int64][]float64{}
	for _, r := range readings {
		binTs := timegrid.Ceil(r.Ts, resample)
		bins[binTs] = append(bins[binTs], r.Value)
	}
	if len(bins) == 0 {
		return nil
	}

	binTimestamps := make([]int64, 0, len(bins))
	for ts := range bins {
		binTimestamps = append(binTimestamps, ts)
	}
	sort.Slice(binTimestamps, func(i, j int) bool { return binTimestamps[i] < binTimestamps[j] })

	maxBinTs := binTimestamps[len(binTimestamps)-1]

	out := make([]model.DfReading, 0, len(binTimestamps))
	for _, ts := range binTimestamps {
		r := model.DfReading{DatafeedID: datafeedID, Ts: ts, Value: agg(bins[ts])}
		if ts == maxBinTs {
			r.NotToUse = model.TagUnclosed
		}
		out = append(out, r)
	}
	return out
}

// mergedItem is one element of the stable-sorted merge of DS readings and
// nodata markers used by ResampleAndAugmentDsReadings.
type mergedItem struct {
	ts       int64
	value    float64
	isMarker bool
}

// ResampleAndAugmentDsReadings implements §4.5's resample-and-augment
// (RBE+aug) path: merge DS readings and nodata markers; seed the existing
// DF reading at startRts so augmentation can continue the series; walk the
// grid (startRts, endRts]; open/close the nodata period per bin; augment
// empty, nodata-closed bins (SUM->0, LAST->carry previous); finally drop
// the startRts seed and the endRts bin (always unclosed in this path).
func ResampleAndAugmentDsReadings(
	readings []model.DsReading,
	markers []model.NoDataMarker,
	datafeedID int64,
	startRts, endRts, resample int64,
	agg model.Aggregation,
	aggFn Aggregator,
	seed *model.DfReading,
) ([]model.DfReading, error) {
	grid, err := timegrid.CreateGrid(startRts, endRts, resample)
	if err != nil {
		return nil, err
	}

	merged := make([]mergedItem, 0, len(readings)+len(markers))
	for _, r := range readings {
		merged = append(merged, mergedItem{ts: r.Ts, value: r.Value})
	}
	for _, m := range markers {
		merged = append(merged, mergedItem{ts: m.Ts, isMarker: true})
	}
	// Stable sort by ts; on tie, nodata marker comes after the reading.
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].ts != merged[j].ts {
			return merged[i].ts < merged[j].ts
		}
		return !merged[i].isMarker && merged[j].isMarker
	})

	dfMap := map[int64]*model.DfReading{}
	if seed != nil {
		s := *seed
		dfMap[startRts] = &s
	}

	// Bin the merged items by their ceil-ts grid point.
	bins := map[int64][]mergedItem{}
	for _, item := range merged {
		binTs := timegrid.Ceil(item.ts, resample)
		if binTs <= startRts || binTs > endRts {
			continue
		}
		bins[binTs] = append(bins[binTs], item)
	}

	var prevValue float64
	if seed != nil {
		prevValue = seed.Value
	}
	ndOpen := false

	for _, gridTs := range grid {
		if gridTs <= startRts {
			continue
		}
		items, hasItems := bins[gridTs]

		if hasItems {
			last := items[len(items)-1]
			ndOpen = last.isMarker

			var values []float64
			for _, it := range items {
				if !it.isMarker {
					values = append(values, it.value)
				}
			}
			if len(values) == 0 {
				// Bin has items but none is a usable reading (markers
				// only): delete the bin, nodata period state already set.
				continue
			}
			v := aggFn(values)
			dfMap[gridTs] = &model.DfReading{DatafeedID: datafeedID, Ts: gridTs, Value: v}
			prevValue = v
			continue
		}

		if ndOpen {
			continue // empty bin, nodata period open: no augmentation
		}

		// Empty bin, nodata period closed: augment.
		var v float64
		switch agg {
		case model.AggSum:
			v = 0
		default: // LAST (and any other, conservatively carried forward)
			v = prevValue
		}
		dfMap[gridTs] = &model.DfReading{DatafeedID: datafeedID, Ts: gridTs, Value: v, Restored: true}
	}

	delete(dfMap, startRts)
	delete(dfMap, endRts) // always unclosed in the RBE+aug path

	out := make([]model.DfReading, 0, len(dfMap))
	for _, r := range dfMap {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ts < out[j].Ts })

	// The final grid point before endRts is the unclosed boundary of this
	// batch; tag it so the output policy stops there.
	if n := len(out); n > 0 {
		out[n-1].NotToUse = model.TagUnclosed
	}

	return out, nil
}
