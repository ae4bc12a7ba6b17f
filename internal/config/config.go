// Package config loads the engine's system-level configuration, mirroring
// the teacher's internal/config (YAML + env-var overrides +
// validator.v10 struct tags), adapted from the teacher's
// SLM/Kubernetes/Actions knobs to this system's MQTT/database/scheduling
// knobs. Per-entity business settings (datastream plausibility bounds,
// application settings JSON, etc.) are NOT configured here — those live in
// the persistent store and are validated by the out-of-scope JSON-schema
// settings layer (spec.md §1).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MQTTConfig configures the transport client (internal/transport/mqtt).
type MQTTConfig struct {
	BrokerURL      string        `yaml:"broker_url" validate:"required"`
	ClientID       string        `yaml:"client_id" validate:"required"`
	IngressTopic   string        `yaml:"ingress_topic" validate:"required"`
	InstanceID     string        `yaml:"instance_id" validate:"required"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DatabaseConfig configures internal/store's connection pool.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" validate:"required"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig configures internal/pubdispatch's deferred publish queue.
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"required"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Password string `yaml:"password"`
}

// SchedulingConfig configures internal/scheduler's periodic workers and
// the synthesizer/executor batch knobs spec.md §5 names.
type SchedulingConfig struct {
	ResampleIntervalMs     int64         `yaml:"resample_interval_ms" validate:"gte=1000"`
	CatchUpIntervalMs      int64         `yaml:"catch_up_interval_ms" validate:"gte=1000"`
	InvocIntervalMs        int64         `yaml:"invoc_interval_ms" validate:"gte=1000"`
	DeviceUpdaterPeriod    time.Duration `yaml:"device_updater_period"`
	AssetUpdaterPeriod     time.Duration `yaml:"asset_updater_period"`
	DsHealthUpdaterPeriod  time.Duration `yaml:"ds_health_updater_period"`
	MaxConcurrentApps      int           `yaml:"max_concurrent_apps" validate:"gte=1"`
	MaxConcurrentDevices   int           `yaml:"max_concurrent_devices" validate:"gte=1"`
	NumMaxDsReadingsBatch  int           `yaml:"num_max_ds_readings_batch" validate:"gte=1"`
	NumMaxDfReadingsBatch  int           `yaml:"num_max_df_readings_batch" validate:"gte=1"`
}

// AlarmSinkConfig configures internal/alarmsink's Slack observer.
type AlarmSinkConfig struct {
	SlackEnabled   bool   `yaml:"slack_enabled"`
	SlackToken     string `yaml:"slack_token"`
	SlackChannel   string `yaml:"slack_channel"`
}

// LoggingConfig mirrors the teacher's logging.level/logging.format keys.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures internal/telemetry/metrics' exposition port.
type MetricsConfig struct {
	Port string `yaml:"port"`
}

// Config is the root configuration document.
type Config struct {
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	AlarmSink  AlarmSinkConfig  `yaml:"alarm_sink"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

var validate_ = validator.New()

// Load reads, parses, defaults, env-overrides, and validates a YAML config
// file at path, following the same four-step shape as the teacher's
// internal/config.Load.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			IngressTopic:   "rawdata/#",
			ConnectTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{
			DB: 0,
		},
		Scheduling: SchedulingConfig{
			ResampleIntervalMs:    60_000, // spec.md §1 default resample interval
			CatchUpIntervalMs:     1_000,
			InvocIntervalMs:       60_000,
			DeviceUpdaterPeriod:   30 * time.Second,
			AssetUpdaterPeriod:    30 * time.Second,
			DsHealthUpdaterPeriod: 5 * time.Second,
			MaxConcurrentApps:     16,
			MaxConcurrentDevices:  16,
			NumMaxDsReadingsBatch: 100_000,
			NumMaxDfReadingsBatch: 50_000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Port: "9090",
		},
	}
}

// loadFromEnv mirrors the teacher's loadFromEnv: a small whitelist of
// environment variables that can override the YAML-loaded config without a
// restart-requiring redeploy.
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("MQTT_BROKER_URL"); v != "" {
		cfg.MQTT.BrokerURL = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		cfg.Metrics.Port = v
	}
	if v := os.Getenv("RESAMPLE_INTERVAL_MS"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("RESAMPLE_INTERVAL_MS: %w", err)
		}
		cfg.Scheduling.ResampleIntervalMs = ms
	}
	return nil
}

// validateConfig runs struct-tag validation plus the one cross-field rule
// spec.md §1 calls out explicitly: the resample interval floor.
func validateConfig(cfg *Config) error {
	if err := validate_.Struct(cfg); err != nil {
		return err
	}
	if cfg.Scheduling.ResampleIntervalMs < 1000 {
		return fmt.Errorf("resample interval must be >= 1000ms (spec floor), got %d",
			cfg.Scheduling.ResampleIntervalMs)
	}
	return nil
}

// HotReloadableFields is the small set of knobs safe to change without a
// restart: log level, batch caps, health-error thresholds. Everything else
// (MQTT broker, database DSN, redis address) requires a process restart.
type HotReloadableFields struct {
	LogLevel              string
	NumMaxDsReadingsBatch int
	NumMaxDfReadingsBatch int
}

// Watcher watches path for changes and invokes onChange with the reloaded
// hot-reloadable fields whenever the file is rewritten. It never reloads
// per-entity business settings — those are out of scope per spec.md §1.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// NewWatcher starts watching path.
func NewWatcher(path string, onChange func(HotReloadableFields)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config watcher: watch %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					continue // keep the last known-good config; the caller logs elsewhere
				}
				onChange(HotReloadableFields{
					LogLevel:              cfg.Logging.Level,
					NumMaxDsReadingsBatch: cfg.Scheduling.NumMaxDsReadingsBatch,
					NumMaxDfReadingsBatch: cfg.Scheduling.NumMaxDfReadingsBatch,
				})
			case _, ok := <-fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return &Watcher{fsw: fsw}, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }
