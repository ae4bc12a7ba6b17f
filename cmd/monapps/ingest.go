package main

import (
	"context"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"

	"github.com/DmytroIE/Monapps-v5/internal/alarmsink"
	"github.com/DmytroIE/Monapps-v5/internal/pubdispatch"
	"github.com/DmytroIE/Monapps-v5/internal/store"
	"github.com/DmytroIE/Monapps-v5/internal/telemetry/metrics"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
	"github.com/DmytroIE/Monapps-v5/pkg/rawdata"
)

// ingestPipeline wires one decoded MQTT payload into pkg/rawdata.Process
// and back out to the store, the alarm sinks, and the publish dispatcher
// (spec.md §4.4, §6). Built as a type rather than a bare closure so it can
// hold its collaborators without a long func literal in main().
type ingestPipeline struct {
	db        *store.Store
	sink      alarmsink.AlarmSink
	publisher *pubdispatch.Dispatcher
	metrics   *metrics.Registry
	log       logr.Logger
	now       func() int64
}

// handle implements internal/transport/mqtt.MessageHandler.
func (p *ingestPipeline) handle(devUi string, rows map[string]rawdata.DeviceRowInput) {
	ctx := context.Background()
	payload := rawdata.CoerceTimestampKeys(rows)
	now := p.now()

	deviceID, err := p.db.Devices.FindIDByDevUi(ctx, devUi)
	if err != nil {
		p.logAndAlarm(ctx, "ingest: unknown device", devUi, err)
		return
	}

	var result *rawdata.Result
	err = p.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		device, err := p.db.Devices.LockForUpdate(ctx, tx, deviceID)
		if err != nil {
			return err
		}

		all, err := p.db.Datastreams.ByDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		firstTs, hasRows := earliestTimestamp(payload)

		datastreams := make(map[string]*model.Datastream, len(all))
		basePoints := make(map[string]*model.DsReading, len(all))
		for _, ds := range all {
			if !ds.IsEnabled {
				continue
			}
			locked, err := p.db.Datastreams.LockForUpdate(ctx, tx, ds.ID)
			if err != nil {
				return err
			}
			datastreams[locked.Name] = locked

			if !hasRows {
				continue
			}
			base, ok, err := p.db.DsReadings.LastBefore(ctx, locked.ID, firstTs)
			if err != nil {
				return err
			}
			if ok {
				basePoints[locked.Name] = base
			}
		}

		result, err = rawdata.Process(device, datastreams, payload, basePoints, now)
		if err != nil {
			return err
		}

		var readings []model.DsReading
		var markers []model.NoDataMarker
		for _, outcome := range result.DsOutcomes {
			if outcome.Classify == nil {
				continue
			}
			readings = append(readings, outcome.Classify.Used...)
			readings = append(readings, outcome.Classify.Unused...)
			readings = append(readings, outcome.Classify.Invalid...)
			readings = append(readings, outcome.Classify.NonRoc...)
			markers = append(markers, outcome.Classify.NodataMarkers...)
			markers = append(markers, outcome.Classify.UnusedNodataMarkers...)

			if err := p.db.Datastreams.Save(ctx, tx, outcome.Ds); err != nil {
				return err
			}
		}
		if err := p.db.DsReadings.InsertBatch(ctx, tx, readings); err != nil {
			return err
		}
		if err := p.db.NoDataMarkers.InsertBatch(ctx, tx, markers); err != nil {
			return err
		}
		return p.db.Devices.Save(ctx, tx, result.Device)
	})
	if err != nil {
		p.logAndAlarm(ctx, "ingest: process failed", devUi, err)
		return
	}

	if p.metrics != nil {
		p.metrics.IngestMessagesTotal.WithLabelValues("generic", "ok").Inc()
	}

	p.notifyTransitions(ctx, devUi, result)

	if result.EnqueueDeviceUpdate && p.publisher != nil {
		_ = p.publisher.Enqueue(ctx, "Device", strconv.FormatInt(deviceID, 10), model.MsgUpdate, nil)
	}
}

// earliestTimestamp returns the smallest key in payload, used to seed the
// ROC filter's base point (spec.md §4.2 step 3, roc_filter_ds_readings's
// `DsReading.objects.filter(time__lt=first).last()`): the base point must
// be the last persisted reading strictly before this batch's first ts.
func earliestTimestamp(payload rawdata.Payload) (int64, bool) {
	first := int64(0)
	found := false
	for ts := range payload {
		if !found || ts < first {
			first = ts
			found = true
		}
	}
	return first, found
}

func (p *ingestPipeline) notifyTransitions(ctx context.Context, devUi string, result *rawdata.Result) {
	for _, t := range result.DeviceErrorTransitions {
		_ = p.sink.Notify(ctx, alarmsink.FromTransition(devUi, t))
	}
	for _, t := range result.DeviceWarningTransitions {
		_ = p.sink.Notify(ctx, alarmsink.FromTransition(devUi, t))
	}
	for _, outcome := range result.DsOutcomes {
		for _, t := range outcome.ErrorTransitions {
			_ = p.sink.Notify(ctx, alarmsink.FromTransition(devUi, t))
		}
		for _, t := range outcome.WarningTransitions {
			_ = p.sink.Notify(ctx, alarmsink.FromTransition(devUi, t))
		}
	}
}

func (p *ingestPipeline) logAndAlarm(ctx context.Context, msg, devUi string, err error) {
	p.log.Error(err, msg, "dev_ui", devUi)
	rec := alarmsink.Record{
		Severity:   alarmsink.SeverityError,
		InstanceID: devUi,
		Msg:        msg + ": " + err.Error(),
	}
	_ = p.sink.Notify(ctx, rec)
}
