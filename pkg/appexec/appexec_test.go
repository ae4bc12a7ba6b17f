package appexec

import (
	"errors"
	"testing"

	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

func newApp() *model.Application {
	return &model.Application{
		ID:                1,
		IsEnabled:         true,
		TimeStatusStaleMs: 1_000_000,
		TimeCurrStateStaleMs: 1_000_000,
		TimeHealthErrorMs: 1_000_000,
		CreatedTs:         0,
		CursorTs:          500,
	}
}

func noopSynth(readings map[string][]model.DfReading, catchingUp bool) SynthesizeFunc {
	return func(name string) ([]model.DfReading, bool, error) {
		return readings[name], catchingUp, nil
	}
}

func TestRunDisabledAppIsNoop(t *testing.T) {
	app := newApp()
	app.IsEnabled = false
	task := &model.PeriodicTask{InvocIntervalMs: 1000}
	res, err := Run(app, task, nil, noopSynth(nil, false), nil, nil, nil, 100)
	if err != nil {
		t.Fatal(err)
	}
	if res != (Result{}) {
		t.Fatalf("expected a zero Result, got %+v", res)
	}
}

func TestRunCatchingUpSwitchesTaskIntervalAndFreezes(t *testing.T) {
	app := newApp()
	task := &model.PeriodicTask{InvocIntervalMs: 60_000, CatchUpIntervalMs: 5_000}
	fnCalled := false
	fn := func(app *model.Application, native, derived map[string][]model.DfReading) (UpdateMap, error) {
		fnCalled = true
		return UpdateMap{}, nil
	}

	res, err := Run(app, task, []string{"Temperature"}, noopSynth(nil, true), fn, map[string][]model.DfReading{}, map[string][]model.DfReading{}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsCatchingUp {
		t.Fatal("expected IsCatchingUp=true")
	}
	if fnCalled {
		t.Fatal("app function must not run while still catching up")
	}
	if task.NextRunTs != 1000+5_000 {
		t.Fatalf("task.NextRunTs = %d, want catch-up schedule", task.NextRunTs)
	}
	if !app.IsCatchingUp {
		t.Fatal("app.IsCatchingUp should be set")
	}
}

func TestRunHealthIsMaxOfCursorAppAndExcepHealth(t *testing.T) {
	app := newApp()
	app.CursorTs = 0
	app.TimeHealthErrorMs = 100 // now(1000) - cursor(0) > 100 -> cursor health ERROR
	task := &model.PeriodicTask{InvocIntervalMs: 60_000}
	fn := func(app *model.Application, native, derived map[string][]model.DfReading) (UpdateMap, error) {
		return UpdateMap{}, nil
	}

	res, err := Run(app, task, nil, noopSynth(nil, false), fn, map[string][]model.DfReading{}, map[string][]model.DfReading{}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if res.Health != model.GradeError {
		t.Fatalf("health = %v, want ERROR from the stale cursor", res.Health)
	}
}

func TestRunHealthFromAppOkIsDemotedToUndefined(t *testing.T) {
	app := newApp()
	app.TimeHealthErrorMs = 1_000_000
	task := &model.PeriodicTask{InvocIntervalMs: 60_000}
	ok := model.GradeOK
	fn := func(app *model.Application, native, derived map[string][]model.DfReading) (UpdateMap, error) {
		return UpdateMap{Health: &ok}, nil
	}

	res, err := Run(app, task, nil, noopSynth(nil, false), fn, map[string][]model.DfReading{}, map[string][]model.DfReading{}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	// cursor health is OK (fresh cursor), health_from_app OK is demoted to
	// UNDEFINED, no exception -> overall max is OK.
	if res.Health != model.GradeOK {
		t.Fatalf("health = %v, want OK", res.Health)
	}
}

func TestRunHealthFromAppWarningIsHonored(t *testing.T) {
	app := newApp()
	app.TimeHealthErrorMs = 1_000_000
	task := &model.PeriodicTask{InvocIntervalMs: 60_000}
	warn := model.GradeWarning
	fn := func(app *model.Application, native, derived map[string][]model.DfReading) (UpdateMap, error) {
		return UpdateMap{Health: &warn}, nil
	}

	res, err := Run(app, task, nil, noopSynth(nil, false), fn, map[string][]model.DfReading{}, map[string][]model.DfReading{}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if res.Health != model.GradeWarning {
		t.Fatalf("health = %v, want WARNING", res.Health)
	}
}

func TestRunAppFunctionErrorForcesExcepHealthError(t *testing.T) {
	app := newApp()
	app.TimeHealthErrorMs = 1_000_000
	task := &model.PeriodicTask{InvocIntervalMs: 60_000}
	boom := errors.New("boom")
	fn := func(app *model.Application, native, derived map[string][]model.DfReading) (UpdateMap, error) {
		return UpdateMap{}, boom
	}

	res, err := Run(app, task, nil, noopSynth(nil, false), fn, map[string][]model.DfReading{}, map[string][]model.DfReading{}, 1000)
	if err != boom {
		t.Fatalf("expected the app function's error to propagate, got %v", err)
	}
	if res.ExcepHealth != model.GradeError {
		t.Fatalf("excep health = %v, want ERROR", res.ExcepHealth)
	}
	if res.Health != model.GradeError {
		t.Fatalf("overall health = %v, want ERROR", res.Health)
	}
}

func TestRunAlarmPayloadOpensAndClosesAcrossTwoTicks(t *testing.T) {
	app := newApp()
	app.TimeHealthErrorMs = 1_000_000
	task := &model.PeriodicTask{InvocIntervalMs: 60_000}

	open := func(app *model.Application, native, derived map[string][]model.DfReading) (UpdateMap, error) {
		return UpdateMap{AlarmPayload: []model.AlarmPayloadEntry{
			{Name: "Bad input data", Ts: 1000, Level: model.AlarmLevelError},
		}}, nil
	}
	res1, err := Run(app, task, nil, noopSynth(nil, false), open, map[string][]model.DfReading{}, map[string][]model.DfReading{}, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(res1.ErrorTransitions) != 1 || res1.ErrorTransitions[0].To != model.AlarmIn {
		t.Fatalf("expected one opening transition, got %+v", res1.ErrorTransitions)
	}
	if app.Errors["Bad input data"].St != model.AlarmIn {
		t.Fatal("expected the alarm to be open in app.Errors")
	}

	closeFn := func(app *model.Application, native, derived map[string][]model.DfReading) (UpdateMap, error) {
		return UpdateMap{}, nil
	}
	res2, err := Run(app, task, nil, noopSynth(nil, false), closeFn, map[string][]model.DfReading{}, map[string][]model.DfReading{}, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if len(res2.ErrorTransitions) != 1 || res2.ErrorTransitions[0].To != model.AlarmOut {
		t.Fatalf("expected a closing transition on the next tick with no payload, got %+v", res2.ErrorTransitions)
	}
}

func TestRunCursorOnlyAdvancesForward(t *testing.T) {
	app := newApp()
	app.CursorTs = 5000
	app.TimeHealthErrorMs = 1_000_000
	task := &model.PeriodicTask{InvocIntervalMs: 60_000}

	backwards := int64(1000)
	fn := func(app *model.Application, native, derived map[string][]model.DfReading) (UpdateMap, error) {
		return UpdateMap{CursorTs: &backwards}, nil
	}
	if _, err := Run(app, task, nil, noopSynth(nil, false), fn, map[string][]model.DfReading{}, map[string][]model.DfReading{}, 6000); err != nil {
		t.Fatal(err)
	}
	if app.CursorTs != 5000 {
		t.Fatalf("cursor_ts must not move backwards, got %d", app.CursorTs)
	}
}

func TestApplyDerivedReadingsGatesOnTsThenValue(t *testing.T) {
	app := newApp()
	update := UpdateMap{DerivedReadings: map[string][]model.DfReading{
		"Status": {{Ts: 1000, Value: float64(model.GradeOK)}},
	}}
	applyDerivedReadings(app, update, 1000)
	if app.Status == nil || *app.Status != model.GradeOK {
		t.Fatalf("expected Status=OK after first write, got %+v", app.Status)
	}
	firstUpdateTs := app.LastStatusUpdateTs

	// Same ts, same value again: both gates reject, nothing should change.
	applyDerivedReadings(app, update, 2000)
	if app.LastStatusUpdateTs != firstUpdateTs {
		t.Fatal("a repeat of the same (ts, value) must not rewrite last_status_update_ts")
	}

	// Older ts: rejected by the ">" gate even though the value differs.
	stale := UpdateMap{DerivedReadings: map[string][]model.DfReading{
		"Status": {{Ts: 500, Value: float64(model.GradeError)}},
	}}
	applyDerivedReadings(app, stale, 3000)
	if *app.Status != model.GradeOK {
		t.Fatal("an older-ts reading must not override a newer status")
	}
}
