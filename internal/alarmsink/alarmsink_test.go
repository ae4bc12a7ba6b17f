package alarmsink

import (
	"context"
	"errors"
	"testing"

	"github.com/DmytroIE/Monapps-v5/pkg/alarmmap"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

type recordingSink struct {
	records []Record
	fail    error
}

func (s *recordingSink) Notify(_ context.Context, rec Record) error {
	s.records = append(s.records, rec)
	return s.fail
}

func TestSeverityFromAlarmLevel(t *testing.T) {
	cases := []struct {
		level model.AlarmLevel
		want  Severity
	}{
		{model.AlarmLevelError, SeverityError},
		{model.AlarmLevelWarning, SeverityWarning},
	}
	for _, c := range cases {
		if got := SeverityFromAlarmLevel(c.level); got != c.want {
			t.Fatalf("SeverityFromAlarmLevel(%q) = %q, want %q", c.level, got, c.want)
		}
	}
}

func TestFromTransitionCopiesFields(t *testing.T) {
	tr := alarmmap.Transition{
		Name:  "comm_fail",
		From:  model.AlarmOut,
		To:    model.AlarmIn,
		Ts:    1000,
		Level: model.AlarmLevelError,
	}
	rec := FromTransition("device:42", tr)
	if rec.Severity != SeverityError || rec.Status != model.AlarmIn || rec.Ts != 1000 ||
		rec.InstanceID != "device:42" || rec.Msg != "comm_fail" {
		t.Fatalf("FromTransition = %+v, unexpected fields", rec)
	}
}

func TestMultiSinkFansOutToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	multi := NewMultiSink(a, b)
	rec := Record{Severity: SeverityWarning, Status: model.AlarmIn, InstanceID: "asset:1", Msg: "x"}

	if err := multi.Notify(context.Background(), rec); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(a.records) != 1 || len(b.records) != 1 {
		t.Fatalf("expected both sinks notified, got a=%d b=%d", len(a.records), len(b.records))
	}
}

func TestMultiSinkContinuesPastOneSinkFailure(t *testing.T) {
	broken := &recordingSink{fail: errors.New("unreachable")}
	ok := &recordingSink{}
	multi := NewMultiSink(broken, ok)
	rec := Record{Severity: SeverityError, Status: model.AlarmIn, InstanceID: "application:7", Msg: "y"}

	err := multi.Notify(context.Background(), rec)
	if err == nil {
		t.Fatal("expected a joined error from the broken sink")
	}
	if len(ok.records) != 1 {
		t.Fatalf("expected the healthy sink to still be notified, got %d records", len(ok.records))
	}
}
