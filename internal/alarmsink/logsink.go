package alarmsink

import (
	"context"

	"github.com/go-logr/logr"
)

// LogSink is the default, always-on sink: every Record is written through
// the root logger, one line per alarm transition, matching
// alarm_log.py's "[ALARM LOG]\t[type]\t[status]\t..." console line but as
// structured fields rather than a hand-built string.
type LogSink struct {
	log logr.Logger
}

// NewLogSink wraps log for alarm-line output.
func NewLogSink(log logr.Logger) *LogSink {
	return &LogSink{log: log.WithName("alarmlog")}
}

func (s *LogSink) Notify(_ context.Context, rec Record) error {
	s.log.Info("alarm log",
		"type", string(rec.Severity),
		"status", string(rec.Status),
		"ts", formatTs(rec.Ts),
		"instance", rec.InstanceID,
		"msg", rec.Msg,
	)
	return nil
}
