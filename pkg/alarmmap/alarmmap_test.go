package alarmmap

import (
	"testing"

	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

func stPtr(s model.AlarmState) *model.AlarmState { return &s }

// Scenario 4 (spec.md §8): persistent alarm state machine.
func TestPersistentAlarmScenario(t *testing.T) {
	var m model.AlarmMap

	r1 := Merge(m, map[string]Event{"E1": {St: stPtr(model.AlarmIn)}}, 1, false, model.AlarmLevelError)
	e1 := r1.Map["E1"]
	if e1.St != model.AlarmIn || e1.LastTransTs != 1 {
		t.Fatalf("after ts=1: got %+v, want st=in, lastTransTs=1", e1)
	}
	if !r1.NdMarkerNeeded {
		t.Fatal("expected nd marker needed after transition to in")
	}

	r2 := Merge(r1.Map, map[string]Event{}, 2, true, model.AlarmLevelError)
	e2 := r2.Map["E1"]
	if e2.St != model.AlarmOut || e2.LastTransTs != 2 {
		t.Fatalf("after ts=2: got %+v, want st=out, lastTransTs=2", e2)
	}

	r3 := Merge(r2.Map, map[string]Event{"E1": {St: stPtr(model.AlarmIn)}}, 3, true, model.AlarmLevelError)
	e3 := r3.Map["E1"]
	if e3.St != model.AlarmIn || e3.LastTransTs != 3 {
		t.Fatalf("after ts=3: got %+v, want st=in, lastTransTs=3", e3)
	}
	if !r3.NdMarkerNeeded {
		t.Fatal("expected nd marker needed after re-transition to in")
	}
}

func TestNonPersistentAlarmForcedInThenSweptOut(t *testing.T) {
	var m model.AlarmMap

	r1 := Merge(m, map[string]Event{"W1": {}}, 1, false, model.AlarmLevelWarning)
	if r1.Map["W1"].St != model.AlarmIn {
		t.Fatalf("non-persistent alarm should be forced in, got %+v", r1.Map["W1"])
	}

	// Absent from the next incoming dict -> swept to out.
	r2 := Merge(r1.Map, map[string]Event{}, 2, false, model.AlarmLevelWarning)
	if r2.Map["W1"].St != model.AlarmOut {
		t.Fatalf("expected non-persistent alarm swept to out, got %+v", r2.Map["W1"])
	}
}

func TestAtLeastOneAlarmIn(t *testing.T) {
	m := model.AlarmMap{
		"A": {St: model.AlarmOut},
		"B": {St: model.AlarmIn},
	}
	if !AtLeastOneAlarmIn(m) {
		t.Fatal("expected true")
	}
	m2 := model.AlarmMap{"A": {St: model.AlarmOut}}
	if AtLeastOneAlarmIn(m2) {
		t.Fatal("expected false")
	}
}

// I8: no two consecutive "in" transitions without an intervening "out".
func TestNoDoubleInTransition(t *testing.T) {
	var m model.AlarmMap
	var sawIn bool

	r := Merge(m, map[string]Event{"E": {St: stPtr(model.AlarmIn)}}, 1, false, model.AlarmLevelError)
	for _, tr := range r.Transitions {
		if tr.To == model.AlarmIn {
			if sawIn {
				t.Fatal("consecutive in transitions without intervening out")
			}
			sawIn = true
		}
		if tr.To == model.AlarmOut {
			sawIn = false
		}
	}
}
