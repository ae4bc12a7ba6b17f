package classifier

import (
	"testing"

	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

func continuousAvgDs() *model.Datastream {
	return &model.Datastream{
		ID:              1,
		DataType:        model.DataType{Aggregation: model.AggAvg, Variable: model.VarContinuous},
		MaxRateOfChange: 1.0,
		PlausibilityMin: -1e6,
		PlausibilityMax: 1e6,
		TsToStartWith:   -1,
	}
}

// Scenario 1 (spec.md §8): ROC clamp.
func TestRocClampScenario(t *testing.T) {
	ds := continuousAvgDs()
	res := Classify(ds, Input{
		Readings: map[int64]float64{0: 10.0, 2000: 20.0},
	}, 3000)

	if len(res.Used) != 2 {
		t.Fatalf("expected 2 used readings, got %d: %+v", len(res.Used), res.Used)
	}
	if res.Used[0].Ts != 0 || res.Used[0].Value != 10.0 {
		t.Errorf("reading[0] = %+v, want (0, 10.0)", res.Used[0])
	}
	if res.Used[1].Ts != 2000 || res.Used[1].Value != 12.0 {
		t.Errorf("reading[1] = %+v, want (2000, 12.0)", res.Used[1])
	}

	if len(res.NonRoc) != 1 {
		t.Fatalf("expected 1 non-roc reading, got %d: %+v", len(res.NonRoc), res.NonRoc)
	}
	if res.NonRoc[0].Ts != 2000 || res.NonRoc[0].Value != 20.0 {
		t.Errorf("non-roc reading = %+v, want (2000, 20.0)", res.NonRoc[0])
	}
}

// TestRocClampUsesBasePointAcrossBatches: a batch's first reading must be
// clamped against the prior batch's last persisted reading, not against
// itself, so the filter stays bounded across message boundaries (spec.md
// §4.2 step 3, roc_filter_ds_readings).
func TestRocClampUsesBasePointAcrossBatches(t *testing.T) {
	ds := continuousAvgDs()
	base := &model.DsReading{DatastreamID: ds.ID, Ts: -1000, Value: 10.0}

	res := Classify(ds, Input{
		Readings:  map[int64]float64{0: 20.0},
		BasePoint: base,
	}, 3000)

	if len(res.Used) != 1 {
		t.Fatalf("expected 1 used reading, got %d: %+v", len(res.Used), res.Used)
	}
	if res.Used[0].Value != 11.0 {
		t.Errorf("first reading should clamp against BasePoint: got %v, want 11.0", res.Used[0].Value)
	}
	if len(res.NonRoc) != 1 {
		t.Fatalf("expected 1 non-roc reading, got %d: %+v", len(res.NonRoc), res.NonRoc)
	}

	// Without a BasePoint the same reading is its own reference and never
	// overshoots, so the clamp would be skipped entirely.
	resNoBase := Classify(ds, Input{
		Readings: map[int64]float64{0: 20.0},
	}, 3000)
	if len(resNoBase.NonRoc) != 0 {
		t.Errorf("without a BasePoint the sole reading should not clamp against itself, got %+v", resNoBase.NonRoc)
	}
}

func TestWindowSplit(t *testing.T) {
	ds := &model.Datastream{
		ID:              1,
		DataType:        model.DataType{Aggregation: model.AggLast, Variable: model.VarDiscrete},
		PlausibilityMin: -1e6,
		PlausibilityMax: 1e6,
		TsToStartWith:   1000,
	}
	res := Classify(ds, Input{
		Readings: map[int64]float64{500: 1, 1500: 2, 5000: 3},
	}, 4000)

	if len(res.Used) != 1 || res.Used[0].Ts != 1500 {
		t.Fatalf("expected only ts=1500 used, got %+v", res.Used)
	}
	if len(res.Unused) != 2 {
		t.Fatalf("expected 2 unused readings (ts<=1000 and ts>=now), got %+v", res.Unused)
	}
}

func TestPlausibilityFiltersInvalid(t *testing.T) {
	ds := &model.Datastream{
		ID:              1,
		DataType:        model.DataType{Aggregation: model.AggLast, Variable: model.VarDiscrete},
		PlausibilityMin: 0,
		PlausibilityMax: 100,
		TsToStartWith:   -1,
	}
	res := Classify(ds, Input{Readings: map[int64]float64{10: 50, 20: 500}}, 1000)

	if len(res.Used) != 1 || res.Used[0].Value != 50 {
		t.Fatalf("expected one valid reading (50), got %+v", res.Used)
	}
	if len(res.Invalid) != 1 || res.Invalid[0].Value != 500 {
		t.Fatalf("expected one invalid reading (500), got %+v", res.Invalid)
	}
}

func TestNodataMarkersOnlyForRbeNonContinuousAvg(t *testing.T) {
	rbeDs := &model.Datastream{
		ID:              1,
		DataType:        model.DataType{Aggregation: model.AggLast, Variable: model.VarDiscrete},
		IsRbe:           true,
		PlausibilityMin: -1e6,
		PlausibilityMax: 1e6,
		TsToStartWith:   -1,
	}
	res := Classify(rbeDs, Input{NodataTimestamps: []int64{10, 20}}, 1000)
	if len(res.NodataMarkers) != 2 {
		t.Fatalf("expected 2 nodata markers, got %+v", res.NodataMarkers)
	}

	contAvgDs := continuousAvgDs()
	contAvgDs.IsRbe = true
	res2 := Classify(contAvgDs, Input{NodataTimestamps: []int64{10, 20}}, 1000)
	if len(res2.NodataMarkers) != 0 {
		t.Fatalf("expected no nodata markers for CONTINUOUS+AVG, got %+v", res2.NodataMarkers)
	}
}

func TestAdvancesTsToStartWithAndLastValidReadingTs(t *testing.T) {
	ds := &model.Datastream{
		ID:              1,
		DataType:        model.DataType{Aggregation: model.AggLast, Variable: model.VarDiscrete},
		IsRbe:           true,
		PlausibilityMin: -1e6,
		PlausibilityMax: 1e6,
		TsToStartWith:   0,
		LastValidReadingTs: 0,
	}
	res := Classify(ds, Input{
		Readings:         map[int64]float64{100: 1, 200: 2},
		NodataTimestamps: []int64{300},
	}, 1000)

	if res.NewTsToStartWith != 300 {
		t.Fatalf("NewTsToStartWith = %d, want 300", res.NewTsToStartWith)
	}
	if res.NewLastValidReadingTs != 200 {
		t.Fatalf("NewLastValidReadingTs = %d, want 200", res.NewLastValidReadingTs)
	}
}
