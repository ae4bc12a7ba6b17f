// Package appexec implements the Application executor (C6, spec.md §4.6):
// it drives the datafeed synthesizer for every native datafeed, invokes the
// application's user-supplied evaluation function, and writes back derived
// readings, cursor, alarm payload, state, staleness, and health. Grounded
// on original_source/monapps/services/app_func_executor.py.
package appexec

import (
	"sort"

	"github.com/DmytroIE/Monapps-v5/pkg/alarmmap"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
	"github.com/DmytroIE/Monapps-v5/pkg/updater"
)

// AppFunc is the user-supplied evaluation function signature (§4.6 step 4):
// f(app, native_df_map, derived_df_map) -> (update_map, error). It may
// return an error; the executor maps that to excep_health=ERROR and rolls
// back any writes the function attempted, but still runs the post-exec
// routine (staleness, health, parent fan-out) per §7's propagation policy.
type AppFunc func(app *model.Application, nativeDf, derivedDf map[string][]model.DfReading) (UpdateMap, error)

// UpdateMap is the app function's return payload (§4.6 step 4).
type UpdateMap struct {
	DerivedReadings map[string][]model.DfReading // keyed by datafeed name
	CursorTs        *int64
	AlarmPayload    []model.AlarmPayloadEntry // ts-ascending; Level selects errors vs warnings map
	State           map[string]any
	Health          *model.HealthGrade // health_from_app; nil if the function reported nothing
}

// SynthesizeFunc runs the datafeed synthesizer (C5) for one native datafeed
// and reports whether the application is still catching up on it (§4.6
// step 2). Defined as a function type so this package does not import
// pkg/synth's storage-shaped signature directly; callers wire pkg/synth.
type SynthesizeFunc func(datafeedName string) (readings []model.DfReading, isCatchingUp bool, err error)

// Result is the outcome of one Run call, useful for logging/testing.
type Result struct {
	IsCatchingUp    bool
	ExcepHealth     model.HealthGrade
	Health          model.HealthGrade
	DerivedReadings map[string][]model.DfReading // the app function's own output, for the caller to bulk-insert (§4.6 step 6)
	ErrorTransitions, WarningTransitions []alarmmap.Transition
}

// Run implements §4.6's full per-tick routine for one enabled application.
// The caller is responsible for resolving the task/application/app
// function and for holding SELECT-FOR-UPDATE locks on the application,
// its task, and its datafeeds for the duration (§4.6 step 3, §5).
func Run(
	app *model.Application,
	task *model.PeriodicTask,
	nativeDfNames []string,
	synth SynthesizeFunc,
	fn AppFunc,
	nativeDf, derivedDf map[string][]model.DfReading,
	now int64,
) (Result, error) {
	if !app.IsEnabled {
		return Result{}, nil
	}

	catchingUp := false
	for _, name := range nativeDfNames {
		readings, isCatchingUp, err := synth(name)
		if err != nil {
			return Result{}, err
		}
		nativeDf[name] = readings
		if isCatchingUp {
			catchingUp = true
		}
	}

	if catchingUp {
		app.IsCatchingUp = true
		task.NextRunTs = now + task.CatchUpIntervalMs
		return Result{IsCatchingUp: true}, nil
	}

	app.IsCatchingUp = false
	task.NextRunTs = now + task.InvocIntervalMs

	update, excepErr := fn(app, nativeDf, derivedDf)
	excepHealth := model.GradeUndefined
	if excepErr != nil {
		excepHealth = model.GradeError
	}

	var errTransitions, warnTransitions []alarmmap.Transition
	var derivedReadings map[string][]model.DfReading
	if excepErr == nil {
		applyDerivedReadings(app, update, now)
		derivedReadings = update.DerivedReadings

		// Group the payload into one incoming batch per (ts, map) pair so
		// Merge's post-merge sweep sees every name reported at that
		// timestamp at once — calling Merge per-entry would make it treat
		// every other open alarm as absent and incorrectly close it.
		errByTs := map[int64]map[string]alarmmap.Event{}
		warnByTs := map[int64]map[string]alarmmap.Event{}
		for _, entry := range update.AlarmPayload {
			dst := warnByTs
			if entry.Level == model.AlarmLevelError {
				dst = errByTs
			}
			if dst[entry.Ts] == nil {
				dst[entry.Ts] = map[string]alarmmap.Event{}
			}
			dst[entry.Ts][entry.Name] = alarmFromEntry(entry)
		}
		for _, ts := range sortedKeys(errByTs) {
			res := alarmmap.Merge(app.Errors, errByTs[ts], ts, true, model.AlarmLevelError)
			app.Errors = res.Map
			errTransitions = append(errTransitions, res.Transitions...)
		}
		for _, ts := range sortedKeys(warnByTs) {
			res := alarmmap.Merge(app.Warnings, warnByTs[ts], ts, true, model.AlarmLevelWarning)
			app.Warnings = res.Map
			warnTransitions = append(warnTransitions, res.Transitions...)
		}

		if update.CursorTs != nil {
			cur := float64(app.CursorTs)
			if ok, _ := model.SetAttrIfCond(float64(*update.CursorTs), model.CondGreater, &cur); ok {
				app.CursorTs = *update.CursorTs
			}
		}

		if update.State != nil {
			app.State = update.State
		}
	}

	app.IsStatusStale = staleness(now, app.LastStatusUpdateTs, app.CreatedTs, app.TimeStatusStaleMs)
	app.IsCurrStateStale = staleness(now, app.LastCurrStateUpdateTs, app.CreatedTs, app.TimeCurrStateStaleMs)

	cursorHealth := model.GradeOK
	if app.IsEnabled && !app.IsCatchingUp && now-app.CursorTs > app.TimeHealthErrorMs {
		cursorHealth = model.GradeError
	}

	healthFromApp := model.GradeUndefined
	if update.Health != nil {
		if *update.Health == model.GradeOK {
			// §9 Open Question #1: OK from the app function is
			// intentionally demoted to UNDEFINED, per the original.
			healthFromApp = model.GradeUndefined
		} else {
			healthFromApp = *update.Health
		}
	}

	newHealth := model.MaxGrade(model.MaxGrade(cursorHealth, healthFromApp), excepHealth)
	healthChanged := newHealth != app.Health
	app.Health = newHealth

	var changedFields []string
	if healthChanged {
		changedFields = append(changedFields, model.FieldHealth)
	}
	if app.IsStatusStale {
		changedFields = append(changedFields, model.FieldStatus)
	}
	if app.IsCurrStateStale {
		changedFields = append(changedFields, model.FieldCurrState)
	}
	if len(changedFields) > 0 {
		model.UpdateReevalFields(app, changedFields...)
	}

	return Result{
		Health:             newHealth,
		ExcepHealth:        excepHealth,
		DerivedReadings:    derivedReadings,
		ErrorTransitions:   errTransitions,
		WarningTransitions: warnTransitions,
	}, excepErr
}

// RunWithParent is Run plus the parent asset fan-out (§4.6 step 12), for
// callers that have the parent Asset loaded (the scheduler, per §5, row-
// locks the application and task but not necessarily the parent asset
// slice in the same pass as the asset updater).
func RunWithParent(
	app *model.Application,
	task *model.PeriodicTask,
	nativeDfNames []string,
	synth SynthesizeFunc,
	fn AppFunc,
	nativeDf, derivedDf map[string][]model.DfReading,
	now int64,
	parent *model.Asset,
) (Result, error) {
	res, err := Run(app, task, nativeDfNames, synth, fn, nativeDf, derivedDf, now)

	// §4.6 step 12: fan out the union of fields Run just marked dirty,
	// restricted to the three an Asset aggregates.
	var changedFields []string
	for _, f := range []string{model.FieldHealth, model.FieldStatus, model.FieldCurrState} {
		if _, ok := app.ReevalFieldSet()[f]; ok {
			changedFields = append(changedFields, f)
		}
	}
	updater.PropagateToParent(parent, now, changedFields...)
	app.ReevalFields = map[string]struct{}{}

	return res, err
}

// applyDerivedReadings implements §4.6 step 6: bulk-write each derived
// datafeed's new readings, and update the app's status/curr_state from the
// "Status"/"Current state" datafeed's latest reading, gated by
// set_attr_if_cond(">",ts) and ("!=",value). Only called once Run has
// already confirmed the app is not catching up (I6's freeze happens
// earlier, by returning before this point).
func applyDerivedReadings(app *model.Application, update UpdateMap, now int64) {
	for name, readings := range update.DerivedReadings {
		if len(readings) == 0 {
			continue
		}
		latest := readings[len(readings)-1]
		switch name {
		case "Status":
			assignLatestGrade(&app.Status, latest, &app.LastStatusUpdateTs, now)
		case "Current state":
			assignLatestGrade(&app.CurrState, latest, &app.LastCurrStateUpdateTs, now)
		}
	}
}

// assignLatestGrade applies set_attr_if_cond(ts, ">") then ("!=", value) to
// one status-like HealthGrade field (§4.6 step 6).
func assignLatestGrade(field **model.HealthGrade, latest model.DfReading, lastUpdateTs *int64, now int64) {
	var curTs *float64
	if *field != nil {
		t := float64(*lastUpdateTs)
		curTs = &t
	}
	tsOk, _ := model.SetAttrIfCond(float64(latest.Ts), model.CondGreater, curTs)
	if !tsOk {
		return
	}

	var curVal *float64
	if *field != nil {
		v := float64(**field)
		curVal = &v
	}
	valOk, _ := model.SetAttrIfCond(latest.Value, model.CondNotEq, curVal)
	if !valOk {
		return
	}

	grade := model.HealthGrade(int(latest.Value))
	*field = &grade
	*lastUpdateTs = now
}

// staleness implements §4.6 step 10.
func staleness(now, lastUpdateTs, createdTs, staleMs int64) bool {
	ref := lastUpdateTs
	if ref == 0 {
		ref = createdTs
	}
	return now-ref > staleMs
}

// sortedKeys returns m's timestamp keys in ascending order, so Merge sees
// same-map events in chronological order when a payload spans several ts.
func sortedKeys(m map[int64]map[string]alarmmap.Event) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// alarmFromEntry adapts one AlarmPayloadEntry into the alarmmap.Event shape
// expected by Merge: a payload carrying an explicit "st" key is persistent,
// otherwise it is forced-"in" non-persistent (§4.3).
func alarmFromEntry(entry model.AlarmPayloadEntry) alarmmap.Event {
	if st, ok := entry.State["st"]; ok {
		if s, ok := st.(string); ok {
			state := model.AlarmState(s)
			return alarmmap.Event{St: &state}
		}
	}
	return alarmmap.Event{}
}
