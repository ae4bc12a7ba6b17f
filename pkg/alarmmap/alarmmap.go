// Package alarmmap implements the alarm-map state machine (C3, spec.md
// §4.3): merging an incoming per-timestamp alarm event dict into an
// entity's persistent/non-persistent alarm map, emitting transition log
// entries and signalling when a nodata marker is needed. Grounded on
// original_source/monapps/utils/alarm_utils.py (update_alarm_map,
// add_to_alarm_payload, at_least_one_alarm_in).
package alarmmap

import "github.com/DmytroIE/Monapps-v5/pkg/model"

// Event is one incoming alarm's per-timestamp payload: {st?: "in"|"out"}
// (persistent, explicit state) or {} (non-persistent, forced "in").
type Event struct {
	St *model.AlarmState
}

// Transition is one logged state change, to be forwarded to the entity's
// log/alarm sink (an append-only observer per spec.md §1).
type Transition struct {
	Name  string
	From  model.AlarmState
	To    model.AlarmState
	Ts    int64
	Level model.AlarmLevel
}

// Result is the outcome of one Merge call.
type Result struct {
	Map             model.AlarmMap
	NdMarkerNeeded  bool
	Transitions     []Transition
}

// Merge implements §4.3's update_alarm_map. current may be nil (treated as
// an empty map, e.g. a brand-new entity). level is the log level to use
// for transitions on this map ("e" for the errors map, "w" for warnings).
func Merge(current model.AlarmMap, incoming map[string]Event, ts int64, hasValue bool, level model.AlarmLevel) Result {
	newMap := cloneMap(current)
	var transitions []Transition
	ndNeeded := false

	for name, ev := range incoming {
		rec, exists := newMap[name]
		if !exists {
			rec = &model.AlarmRecord{St: model.AlarmOut}
			newMap[name] = rec
		}

		persistent := ev.St != nil
		priorSt := rec.St

		var newSt model.AlarmState
		if persistent {
			rec.LastInPayloadTs = ts
			newSt = *ev.St
		} else {
			newSt = model.AlarmIn
		}

		rec.Persist = persistent
		if priorSt != newSt {
			rec.St = newSt
			rec.LastTransTs = ts
			transitions = append(transitions, Transition{
				Name: name, From: priorSt, To: newSt, Ts: ts, Level: level,
			})
		}

		// Nodata-marker trigger (errors only — the caller decides whether
		// to honor ndNeeded based on which map this is): transitioned to
		// "in", OR already "in" with has_value and persistent repeating,
		// OR non-persistent with has_value.
		transitionedToIn := priorSt != newSt && newSt == model.AlarmIn
		persistentRepeatIn := persistent && priorSt == model.AlarmIn && newSt == model.AlarmIn && hasValue
		nonPersistentWithValue := !persistent && hasValue
		if transitionedToIn || persistentRepeatIn || nonPersistentWithValue {
			ndNeeded = true
		}
	}

	// Post-merge sweep.
	for name, rec := range newMap {
		if rec.St != model.AlarmIn {
			continue
		}
		if rec.Persist {
			if rec.LastInPayloadTs < ts && hasValue {
				transitions = append(transitions, Transition{
					Name: name, From: model.AlarmIn, To: model.AlarmOut, Ts: ts, Level: level,
				})
				rec.St = model.AlarmOut
				rec.LastTransTs = ts
			}
			continue
		}
		// Non-persistent "in" not present in the incoming dict -> out.
		if _, present := incoming[name]; !present {
			transitions = append(transitions, Transition{
				Name: name, From: model.AlarmIn, To: model.AlarmOut, Ts: ts, Level: level,
			})
			rec.St = model.AlarmOut
			rec.LastTransTs = ts
		}
	}

	return Result{Map: newMap, NdMarkerNeeded: ndNeeded, Transitions: transitions}
}

func cloneMap(m model.AlarmMap) model.AlarmMap {
	out := make(model.AlarmMap, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

// AtLeastOneAlarmIn reports whether any alarm in the map is currently "in"
// (at_least_one_alarm_in), used by the raw-data processor (C4) to compute
// msg_health from an alarm map.
func AtLeastOneAlarmIn(m model.AlarmMap) bool {
	for _, rec := range m {
		if rec.St == model.AlarmIn {
			return true
		}
	}
	return false
}

// AddToAlarmPayload appends one alarm-payload entry to an application's
// pending payload list, matching add_to_alarm_payload's signature used by
// app functions and the automata (§4.6, §4.7).
func AddToAlarmPayload(payload []model.AlarmPayloadEntry, name string, state map[string]any, ts int64, level model.AlarmLevel) []model.AlarmPayloadEntry {
	return append(payload, model.AlarmPayloadEntry{Name: name, State: state, Ts: ts, Level: level})
}
