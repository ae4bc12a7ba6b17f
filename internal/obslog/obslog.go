// Package obslog builds the root logr.Logger for the engine, backed by
// zap via zapr — the same decoupling layer the teacher uses to keep
// internal packages dependent on logr.Logger rather than zap directly.
package obslog

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config mirrors internal/config.LoggingConfig's two knobs.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// New builds a logr.Logger from cfg. "json" is intended for production,
// "console" for local development — the same split the teacher's
// logging.format config key drives.
func New(cfg Config) (logr.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return logr.Discard(), err
	}

	var encCfg zapcore.EncoderConfig
	var encoder zapcore.Encoder
	switch cfg.Format {
	case "", "json":
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "console":
		encCfg = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return logr.Discard(), fmt.Errorf("obslog: unknown log format %q", cfg.Format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(zapStdout())), level)
	zl := zap.New(core, zap.AddCaller())
	return zapr.NewLogger(zl), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("obslog: unknown log level %q", level)
	}
}
