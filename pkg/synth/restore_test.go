package synth

import (
	"math"
	"testing"

	"github.com/DmytroIE/Monapps-v5/pkg/model"
	"github.com/DmytroIE/Monapps-v5/pkg/timegrid"
)

// Scenario 2 (spec.md §8): CONTINUOUS+AVG resample + spline. Four knots
// form one cluster (gap 60_000 <= time_change 180_000); since it is the
// only (and therefore last) cluster of length 4, only the final point is
// tagged SPLINE_UNCLOSED.
func TestRestoreContinuousAvgScenario(t *testing.T) {
	existing := []model.DfReading{
		{DatafeedID: 1, Ts: 60_000, Value: 10},
		{DatafeedID: 1, Ts: 120_000, Value: 12},
		{DatafeedID: 1, Ts: 180_000, Value: 14},
		{DatafeedID: 1, Ts: 240_000, Value: 20},
	}
	grid, err := timegrid.CreateGrid(60_000, 240_000, 60_000)
	if err != nil {
		t.Fatal(err)
	}

	fetch := func(attempt int) ([]model.DfReading, []int64, error) {
		return existing, grid, nil
	}

	out, err := RestoreContinuousAvg(grid, 1, 180_000, fetch)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 readings, got %d: %+v", len(out), out)
	}
	wantValues := []float64{10, 12, 14, 20}
	for i, r := range out {
		if math.Abs(r.Value-wantValues[i]) > 1e-9 {
			t.Errorf("reading %d: got value %v, want %v", i, r.Value, wantValues[i])
		}
		if i < 3 {
			if r.NotToUse != model.TagNone {
				t.Errorf("reading %d (ts=%d) should be persistable, got tag %q", i, r.Ts, r.NotToUse)
			}
		} else {
			if r.NotToUse != model.TagSplineUnclosed {
				t.Errorf("last reading should be tagged SPLINE_UNCLOSED, got %q", r.NotToUse)
			}
		}
	}
	if out[0].Persistable() == false {
		t.Error("first reading must be persistable (rts_to_start_with_next_time = 60_000 commits only this one)")
	}
}

// Scenario 3 (spec.md §8): totalizer restore with an interior gap
// interpolated normally, and the series' final gap (same size) left
// un-interpolated with its last native reading tagged SPLINE_UNCLOSED
// instead.
func TestRestoreTotalizerScenario(t *testing.T) {
	existing := []model.DfReading{
		{DatafeedID: 2, Ts: 60_000, Value: 100},
		{DatafeedID: 2, Ts: 180_000, Value: 130},
		{DatafeedID: 2, Ts: 300_000, Value: 160},
	}

	out := RestoreTotalizer(existing, 2, 60_000, 300_000)
	if len(out) != 4 {
		t.Fatalf("expected 4 readings (native, restored, native, native), got %d: %+v", len(out), out)
	}
	if out[0].Ts != 60_000 || out[0].Value != 100 || out[0].NotToUse != model.TagNone {
		t.Errorf("first reading wrong: %+v", out[0])
	}
	if out[1].Ts != 120_000 {
		t.Fatalf("expected restored reading at 120_000, got %+v", out[1])
	}
	if math.Abs(out[1].Value-115) > 1e-9 {
		t.Errorf("restored value = %v, want 115", out[1].Value)
	}
	if !out[1].Restored || out[1].NotToUse != model.TagNone {
		t.Errorf("interior interpolated reading must be Restored and untagged, got %+v", out[1])
	}
	if out[2].Ts != 180_000 || out[2].Value != 130 || out[2].NotToUse != model.TagNone {
		t.Errorf("middle native reading wrong: %+v", out[2])
	}
	if out[3].Ts != 300_000 || out[3].Value != 160 {
		t.Errorf("last native reading wrong: %+v", out[3])
	}
	if out[3].NotToUse != model.TagSplineUnclosed {
		t.Errorf("last native reading should be tagged SPLINE_UNCLOSED, got %q", out[3].NotToUse)
	}
	if out[3].Restored {
		t.Error("the final gap must never be interpolated, so the last reading stays the native one")
	}
}

// TestRestoreTotalizerSkipsGapsAboveTimeChange covers a final gap beyond
// time_change: no interpolation, and the tag must land on the series'
// last native reading (not the first), since advanceWatermarks in
// cmd/monapps/appeval.go scans ascending for the first tagged reading to
// decide what to commit.
func TestRestoreTotalizerSkipsGapsAboveTimeChange(t *testing.T) {
	existing := []model.DfReading{
		{DatafeedID: 3, Ts: 60_000, Value: 100},
		{DatafeedID: 3, Ts: 500_000, Value: 900},
	}
	out := RestoreTotalizer(existing, 3, 60_000, 300_000)
	if len(out) != 2 {
		t.Fatalf("gap exceeds time_change, expected no interpolation, got %+v", out)
	}
	if out[0].Ts != 60_000 || out[0].NotToUse != model.TagNone {
		t.Errorf("first (earliest) native reading must stay untagged, got %+v", out[0])
	}
	if out[1].Ts != 500_000 || out[1].NotToUse != model.TagSplineNotToUse {
		t.Errorf("last native reading should be tagged SPLINE_NOT_TO_USE, got %+v", out[1])
	}
}

// TestRestoreTotalizerFinalGapUnclosed covers the final-gap-within-resample
// case, which yields the UNCLOSED tag rather than SPLINE_UNCLOSED.
func TestRestoreTotalizerFinalGapUnclosed(t *testing.T) {
	existing := []model.DfReading{
		{DatafeedID: 4, Ts: 60_000, Value: 100},
		{DatafeedID: 4, Ts: 90_000, Value: 110},
	}
	out := RestoreTotalizer(existing, 4, 60_000, 300_000)
	if len(out) != 2 {
		t.Fatalf("gap within resample interval, expected no interpolation, got %+v", out)
	}
	if out[1].NotToUse != model.TagUnclosed {
		t.Errorf("last native reading should be tagged UNCLOSED, got %q", out[1].NotToUse)
	}
}
