// Package alarmsink forwards alarm-map transitions (pkg/alarmmap) and
// device-level info/error/warning lines to the append-only observers
// spec.md §1 carves out of scope: a log sink (always on) and an optional
// Slack sink for ops-channel escalation. Grounded on
// original_source/monapps/services/alarm_log.py's console line shape.
package alarmsink

import (
	"context"
	"errors"
	"time"

	"github.com/DmytroIE/Monapps-v5/pkg/alarmmap"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

// Severity mirrors alarm_log.py's type literal ("ERROR"/"WARNING"/"INFO").
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// SeverityFromAlarmLevel maps an alarm map's level ("e"/"w") to a Severity.
// There's no AlarmLevel for info lines — those come from a device's free
// Infos list and are built with SeverityInfo directly.
func SeverityFromAlarmLevel(l model.AlarmLevel) Severity {
	switch l {
	case model.AlarmLevelError:
		return SeverityError
	case model.AlarmLevelWarning:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Record is one alarm log line: severity, current in/out status, the
// timestamp of the transition, the owning entity's full id (e.g.
// "device:42", "application:7"), and a human-readable message.
type Record struct {
	Severity   Severity
	Status     model.AlarmState
	Ts         int64
	InstanceID string
	Msg        string
}

// FromTransition builds a Record from one alarmmap.Merge transition.
func FromTransition(instanceID string, t alarmmap.Transition) Record {
	return Record{
		Severity:   SeverityFromAlarmLevel(t.Level),
		Status:     t.To,
		Ts:         t.Ts,
		InstanceID: instanceID,
		Msg:        t.Name,
	}
}

// AlarmSink is the observer seam: a destination a Record gets forwarded
// to. Implementations must not block the caller on a slow or unreachable
// backend for longer than their own internal timeout.
type AlarmSink interface {
	Notify(ctx context.Context, rec Record) error
}

// MultiSink fans a Record out to every wrapped sink, continuing past
// individual failures so one broken sink (e.g. an unreachable Slack
// workspace) never silences the others.
type MultiSink struct {
	sinks []AlarmSink
}

// NewMultiSink wires sinks into one fan-out AlarmSink.
func NewMultiSink(sinks ...AlarmSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Notify(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func formatTs(ts int64) string {
	if ts == 0 {
		return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	return time.UnixMilli(ts).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
