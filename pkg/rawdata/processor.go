// Package rawdata implements the raw-data processor (C4, spec.md §4.4):
// the per-device atomic routine that classifies incoming readings, merges
// alarm-map transitions, derives msg_health, and decides when to enqueue a
// device update. Grounded on
// original_source/monapps/services/raw_data_processor.py.
package rawdata

import (
	"sort"

	"github.com/DmytroIE/Monapps-v5/internal/apperrors"
	"github.com/DmytroIE/Monapps-v5/pkg/alarmmap"
	"github.com/DmytroIE/Monapps-v5/pkg/classifier"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

// DsRowInput is one datastream's row within one timestamp's device payload.
type DsRowInput struct {
	Value    *float64
	Errors   map[string]alarmmap.Event
	Warnings map[string]alarmmap.Event
	Infos    []string
}

// DeviceRowInput is one timestamp's full device payload row, §6's ingress
// shape after JSON decoding (device-level e/w/i plus per-ds rows).
type DeviceRowInput struct {
	Errors      map[string]alarmmap.Event
	Warnings    map[string]alarmmap.Event
	Infos       []string
	Datastreams map[string]DsRowInput // keyed by datastream name
}

// Payload is the full coerced, ts-keyed device payload (§4.4 step 2 is the
// caller's job: coerce string keys to ints, drop non-numeric keys — this
// package only requires that the keys already be int64 timestamps).
type Payload map[int64]DeviceRowInput

// DsOutcome is one datastream's processing result: the classifier output,
// logged alarm transitions, and whether its health changed.
type DsOutcome struct {
	Ds                 *model.Datastream
	Classify           *classifier.Result
	ErrorTransitions   []alarmmap.Transition
	WarningTransitions []alarmmap.Transition
	HealthChanged      bool
	NdMarkerTimestamps []int64
}

// Result is the outcome of one Process call for one device payload.
type Result struct {
	Device                   *model.Device
	DsOutcomes               map[string]*DsOutcome
	DeviceErrorTransitions   []alarmmap.Transition
	DeviceWarningTransitions []alarmmap.Transition
	DeviceHealthChanged      bool
	EnqueueDeviceUpdate      bool
}

// Process runs §4.4's full per-device routine. datastreams must contain
// only the device's *enabled* datastreams, keyed by name. basePoints holds,
// per datastream name, the last persisted DS reading strictly before this
// payload's earliest new timestamp (nil/absent if none exists) — it seeds
// the ROC filter (§4.2 step 3, classifier.Input.BasePoint) so the filter
// stays bounded across message boundaries instead of resetting at the
// start of every batch. The caller is expected to run this inside one
// transaction with the device and its datastreams row-locked (§5), and to
// persist DsOutcome.Classify's Used/NonRoc/etc. batches plus the markers
// afterward with duplicate-insert-ignored semantics (§4.4 step 3 "batches
// of 100").
func Process(device *model.Device, datastreams map[string]*model.Datastream, payload Payload, basePoints map[string]*model.DsReading, now int64) (*Result, error) {
	if device == nil {
		return nil, apperrors.NewNotFoundError("device")
	}

	outcomes := make(map[string]*DsOutcome, len(datastreams))
	for name, ds := range datastreams {
		outcomes[name] = &DsOutcome{Ds: ds}
	}

	// Per-ds accumulated reading batches and nodata-marker timestamps,
	// built up across the ts loop (§4.4 step 3) and classified once the
	// loop completes (§4.4 step 4).
	dsReadings := make(map[string]map[int64]float64, len(datastreams))
	for name := range datastreams {
		dsReadings[name] = map[int64]float64{}
	}

	var deviceErrTransitions, deviceWarnTransitions []alarmmap.Transition

	for _, ts := range sortedTimestamps(payload) {
		row := payload[ts]

		atLeastOneNoErrAndValue := false

		for name, ds := range datastreams {
			dsRow := row.Datastreams[name]
			outcome := outcomes[name]

			hasValue := dsRow.Value != nil

			errRes := alarmmap.Merge(ds.Errors, dsRow.Errors, ts, hasValue, model.AlarmLevelError)
			ds.Errors = errRes.Map
			outcome.ErrorTransitions = append(outcome.ErrorTransitions, errRes.Transitions...)

			warnRes := alarmmap.Merge(ds.Warnings, dsRow.Warnings, ts, hasValue, model.AlarmLevelWarning)
			ds.Warnings = warnRes.Map
			outcome.WarningTransitions = append(outcome.WarningTransitions, warnRes.Transitions...)

			if hasValue {
				dsReadings[name][ts] = *dsRow.Value
			}
			if errRes.NdMarkerNeeded {
				outcome.NdMarkerTimestamps = append(outcome.NdMarkerTimestamps, ts)
			}

			if !alarmmap.AtLeastOneAlarmIn(errRes.Map) && hasValue {
				atLeastOneNoErrAndValue = true
			}
		}

		deviceErrRes := alarmmap.Merge(device.Errors, row.Errors, ts, atLeastOneNoErrAndValue, model.AlarmLevelError)
		device.Errors = deviceErrRes.Map
		deviceErrTransitions = append(deviceErrTransitions, deviceErrRes.Transitions...)

		deviceWarnRes := alarmmap.Merge(device.Warnings, row.Warnings, ts, atLeastOneNoErrAndValue, model.AlarmLevelWarning)
		device.Warnings = deviceWarnRes.Map
		deviceWarnTransitions = append(deviceWarnTransitions, deviceWarnRes.Transitions...)

		// A device-level error nodata marker fans out to EVERY datastream
		// of the device, not just the one that produced the payload row
		// (§4.4 step 3, DESIGN.md supplemented feature).
		if deviceErrRes.NdMarkerNeeded {
			for name := range datastreams {
				outcomes[name].NdMarkerTimestamps = append(outcomes[name].NdMarkerTimestamps, ts)
			}
		}
	}

	enqueueDevice := false

	for name, ds := range datastreams {
		outcome := outcomes[name]
		outcome.Classify = classifier.Classify(ds, classifier.Input{
			Readings:         dsReadings[name],
			NodataTimestamps: outcome.NdMarkerTimestamps,
			BasePoint:        basePoints[name],
		}, now)

		ds.TsToStartWith = outcome.Classify.NewTsToStartWith
		ds.LastValidReadingTs = outcome.Classify.NewLastValidReadingTs

		newMsgHealth := msgHealthFromMaps(ds.Errors, ds.Warnings)
		if newMsgHealth != ds.MsgHealth {
			ds.MsgHealth = newMsgHealth
			outcome.HealthChanged = true
			model.EnqueueUpdate(device, now, model.DefaultEnqueueCoef)
			enqueueDevice = true
		}

		if ds.TimeUpdateMs != nil {
			ds.HealthNextEvalTs = now + model.TimeDsHealthEvalMs
		}
	}

	newDeviceMsgHealth := msgHealthFromMaps(device.Errors, device.Warnings)
	deviceHealthChanged := newDeviceMsgHealth != device.MsgHealth
	if deviceHealthChanged {
		device.MsgHealth = newDeviceMsgHealth
		model.EnqueueUpdate(device, now, model.DefaultEnqueueCoef)
		enqueueDevice = true
	}

	return &Result{
		Device:                   device,
		DsOutcomes:               outcomes,
		DeviceErrorTransitions:   deviceErrTransitions,
		DeviceWarningTransitions: deviceWarnTransitions,
		DeviceHealthChanged:      deviceHealthChanged,
		EnqueueDeviceUpdate:      enqueueDevice,
	}, nil
}

// msgHealthFromMaps implements the msg_health recompute rule used for both
// datastreams and devices (§4.4): ERROR if any error "in", WARNING else if
// any warning "in", UNDEFINED otherwise.
func msgHealthFromMaps(errors, warnings model.AlarmMap) model.HealthGrade {
	if alarmmap.AtLeastOneAlarmIn(errors) {
		return model.GradeError
	}
	if alarmmap.AtLeastOneAlarmIn(warnings) {
		return model.GradeWarning
	}
	return model.GradeUndefined
}

func sortedTimestamps(p Payload) []int64 {
	ts := make([]int64, 0, len(p))
	for t := range p {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	return ts
}

// CoerceTimestampKeys implements §4.4 step 2: string ts keys are coerced to
// integers, non-numeric keys dropped. Intended for use by the MQTT decoder
// (internal/transport/mqtt) before constructing a Payload.
func CoerceTimestampKeys(raw map[string]DeviceRowInput) Payload {
	out := make(Payload, len(raw))
	for k, v := range raw {
		ts, ok := parseInt64(k)
		if !ok {
			continue
		}
		out[ts] = v
	}
	return out
}

func parseInt64(s string) (int64, bool) {
	var n int64
	if s == "" {
		return 0, false
	}
	neg := false
	i := 0
	if s[0] == '-' {
		neg = true
		i = 1
	}
	if i == len(s) {
		return 0, false
	}
	for ; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}
