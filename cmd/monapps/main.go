// Command monapps runs the monitoring engine: MQTT ingestion, the
// per-message raw-data processor, the periodic application executor,
// device/asset tree updaters, and the datastream no-data health check, all
// wired against one Postgres store and one redis-backed publish-dispatch
// queue (spec.md §1, §5, §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DmytroIE/Monapps-v5/internal/alarmsink"
	"github.com/DmytroIE/Monapps-v5/internal/config"
	"github.com/DmytroIE/Monapps-v5/internal/obslog"
	"github.com/DmytroIE/Monapps-v5/internal/pubdispatch"
	"github.com/DmytroIE/Monapps-v5/internal/scheduler"
	"github.com/DmytroIE/Monapps-v5/internal/store"
	"github.com/DmytroIE/Monapps-v5/internal/telemetry/metrics"
	"github.com/DmytroIE/Monapps-v5/internal/telemetry/tracing"
	"github.com/DmytroIE/Monapps-v5/internal/transport/mqtt"
	"github.com/DmytroIE/Monapps-v5/pkg/appexec"
	"github.com/DmytroIE/Monapps-v5/pkg/appfuncs/monitoring"
	"github.com/DmytroIE/Monapps-v5/pkg/rawdata"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to the engine's YAML config file")
	flag.Parse()

	if err := run(configPath); err != nil {
		log.Fatalf("monapps: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := obslog.New(obslog.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg := store.DefaultConfig()
	dbCfg.LoadFromEnv()
	dbCfg.MaxOpenConns = cfg.Database.MaxOpenConns
	dbCfg.MaxIdleConns = cfg.Database.MaxIdleConns
	dbCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime

	db, err := store.Open(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if err := store.Migrate(db.DB.DB); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	reg := metrics.New("monapps")
	tracer := tracing.New("monapps", "production")

	sinks := []alarmsink.AlarmSink{alarmsink.NewLogSink(logger)}
	if cfg.AlarmSink.SlackEnabled {
		sinks = append(sinks, alarmsink.NewSlackSink(cfg.AlarmSink.SlackToken, cfg.AlarmSink.SlackChannel, logger))
	}
	sink := alarmsink.NewMultiSink(sinks...)

	now := func() int64 { return time.Now().UnixMilli() }

	// mqttClient and ingest need each other (the client dispatches into
	// ingest.handle, ingest publishes through a dispatcher built on the
	// client) — route the handler through a forwarding closure so both
	// can be constructed as one each, rather than building two clients.
	var ingest *ingestPipeline
	mqttClient := mqtt.New(cfg.MQTT, logger, func(devUi string, rows map[string]rawdata.DeviceRowInput) {
		ingest.handle(devUi, rows)
	})

	dispatcher := pubdispatch.New(pubdispatch.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, mqttClient, cfg.MQTT.InstanceID, logger)
	defer dispatcher.Close()

	ingest = &ingestPipeline{db: db, sink: sink, publisher: dispatcher, metrics: reg, log: logger, now: now}

	if err := mqttClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect mqtt: %w", err)
	}
	defer mqttClient.Disconnect()

	funcs := map[string]appexec.AppFunc{
		"monitoring": monitoring.Func,
	}

	evalWorker := &appEvalWorker{
		db:                 db,
		limit:              cfg.Scheduling.MaxConcurrentApps,
		maxDsReadingsBatch: int64(cfg.Scheduling.NumMaxDsReadingsBatch),
		funcs:              funcs,
		tracer:             tracer,
		now:                now,
	}
	deviceWorker := &deviceUpdaterWorker{db: db, limit: cfg.Scheduling.MaxConcurrentDevices, now: now}
	assetWorker := &assetUpdaterWorker{db: db, limit: cfg.Scheduling.MaxConcurrentDevices, now: now}
	healthWorker := &dsHealthWorker{db: db, limit: cfg.Scheduling.MaxConcurrentDevices, now: now}

	sched := scheduler.New(logger, reg,
		scheduler.Worker{Name: "app_eval", Interval: durationFromMs(cfg.Scheduling.InvocIntervalMs), Run: evalWorker.run},
		scheduler.Worker{Name: "device_updater", Interval: cfg.Scheduling.DeviceUpdaterPeriod, Run: deviceWorker.run},
		scheduler.Worker{Name: "asset_updater", Interval: cfg.Scheduling.AssetUpdaterPeriod, Run: assetWorker.run},
		scheduler.Worker{Name: "ds_health_updater", Interval: cfg.Scheduling.DsHealthUpdaterPeriod, Run: healthWorker.run},
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	httpServer := &http.Server{Addr: ":" + cfg.Metrics.Port, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "metrics server stopped")
		}
	}()

	go dispatcher.Run(ctx, 100*time.Millisecond)

	schedErr := make(chan error, 1)
	go func() { schedErr <- sched.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining in-flight work")
	case err := <-schedErr:
		if err != nil {
			logger.Error(err, "scheduler stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	return nil
}

func durationFromMs(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
