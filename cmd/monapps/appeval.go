package main

import (
	"context"

	"github.com/jmoiron/sqlx"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/DmytroIE/Monapps-v5/internal/apperrors"
	"github.com/DmytroIE/Monapps-v5/internal/store"
	"github.com/DmytroIE/Monapps-v5/internal/telemetry/tracing"
	"github.com/DmytroIE/Monapps-v5/pkg/appexec"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
	"github.com/DmytroIE/Monapps-v5/pkg/synth"
	"github.com/DmytroIE/Monapps-v5/pkg/timegrid"
)

// appEvalWorker implements §4.6's per-application executor tick: resolve
// the fired task's application, run the synthesizer (C5) for every native
// datafeed, then the application function, under one transaction holding
// the application/task/datafeed/datastream locks for the run's duration
// (§4.6 step 3, §5).
type appEvalWorker struct {
	db                 *store.Store
	limit              int
	maxDsReadingsBatch int64 // NUM_MAX_DSREADINGS_TO_PROCESS (§4.5 batching)
	funcs              map[string]appexec.AppFunc
	tracer             *tracing.Tracer // nil-safe: tracing is optional
	now                func() int64
}

func (w *appEvalWorker) run(ctx context.Context) error {
	ids, err := w.db.Tasks.Due(ctx, w.now(), w.limit)
	if err != nil {
		return err
	}
	for _, applicationID := range ids {
		if err := w.evalOne(ctx, applicationID); err != nil {
			return err
		}
	}
	return nil
}

func (w *appEvalWorker) evalOne(ctx context.Context, applicationID int64) error {
	if w.tracer != nil {
		var span oteltrace.Span
		ctx, span = w.tracer.StartOperation(ctx, "app_execution", map[string]any{"application_id": applicationID})
		var ok bool
		defer func() { tracing.FinishOperation(span, ok) }()
		err := w.evalOneTraced(ctx, applicationID)
		ok = err == nil
		return err
	}
	return w.evalOneTraced(ctx, applicationID)
}

func (w *appEvalWorker) evalOneTraced(ctx context.Context, applicationID int64) error {
	return w.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		task, err := w.db.Tasks.LockForApplication(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		app, err := w.db.Applications.LockForUpdate(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		if !app.IsEnabled {
			return nil
		}

		fn, ok := w.funcs[app.Type]
		if !ok {
			return apperrors.NewValidationErrorf("unknown application type %q", app.Type)
		}

		unlocked, err := w.db.Datafeeds.ByApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		datafeeds := make(map[string]*model.Datafeed, len(unlocked))
		var nativeDfNames []string
		nativeDf := map[string][]model.DfReading{}
		derivedDf := map[string][]model.DfReading{}
		for _, df0 := range unlocked {
			df, err := w.db.Datafeeds.LockForUpdate(ctx, tx, df0.ID)
			if err != nil {
				return err
			}
			datafeeds[df.Name] = df
			if df.IsNative() {
				nativeDfNames = append(nativeDfNames, df.Name)
			}
		}

		synthFn := func(datafeedName string) ([]model.DfReading, bool, error) {
			return w.synthesize(ctx, tx, app, datafeeds[datafeedName])
		}

		parent, err := w.db.Assets.LockForUpdate(ctx, tx, app.ParentAssetID)
		if err != nil {
			return err
		}

		result, _ := appexec.RunWithParent(app, task, nativeDfNames, synthFn, fn, nativeDf, derivedDf, w.now(), parent)
		// A non-nil error here is already folded into app.Health as
		// excep_health by RunWithParent (§4.6 step 4); the transaction
		// still commits the post-exec routine's writes, matching "the
		// transaction rolls back writes but the post-exec routine still
		// runs" for the app function's own side effects, not the whole
		// tick.

		for name, readings := range nativeDf {
			if len(readings) == 0 {
				continue
			}
			if err := w.commitSynthesized(ctx, tx, datafeeds[name], readings); err != nil {
				return err
			}
		}
		for name, readings := range result.DerivedReadings {
			if len(readings) == 0 {
				continue
			}
			if err := w.commitSynthesized(ctx, tx, datafeeds[name], readings); err != nil {
				return err
			}
		}

		for _, df := range datafeeds {
			if err := w.db.Datafeeds.Save(ctx, tx, df); err != nil {
				return err
			}
		}
		if err := w.db.Tasks.Save(ctx, tx, task); err != nil {
			return err
		}
		if err := w.db.Assets.Save(ctx, tx, parent); err != nil {
			return err
		}
		return w.db.Applications.Save(ctx, tx, app)
	})
}

// synthesize implements §4.5's window resolution and the synthesizer's
// output-policy bookkeeping for one native datafeed: it resolves
// [start_rts, end_rts), caps the batch at maxDsReadingsBatch DS readings
// (reporting is_catching_up when capped), runs pkg/synth.CreateDfReadings,
// then advances df/ds ts_to_start_with and df.last_reading_ts up to the
// last committed (non-tagged) reading.
func (w *appEvalWorker) synthesize(ctx context.Context, tx *sqlx.Tx, app *model.Application, df *model.Datafeed) ([]model.DfReading, bool, error) {
	if df == nil || !df.IsNative() {
		return nil, false, nil
	}
	ds, err := w.db.Datastreams.LockForUpdate(ctx, tx, *df.DatastreamID)
	if err != nil {
		return nil, false, err
	}

	fromTs := app.CursorTs
	if df.TsToStartWith > fromTs {
		fromTs = df.TsToStartWith
	}
	win := synth.ResolveWindow(fromTs, w.now(), app.TimeResampleMs)
	if win.StartRts >= win.EndRts {
		return nil, false, nil
	}

	readings, err := w.db.DsReadings.Range(ctx, ds.ID, win.StartRts, win.EndRts)
	if err != nil {
		return nil, false, err
	}

	isCatchingUp := false
	if int64(len(readings)) > w.maxDsReadingsBatch {
		readings = readings[:w.maxDsReadingsBatch]
		win.EndRts = timegrid.Ceil(readings[len(readings)-1].Ts, app.TimeResampleMs)
		isCatchingUp = true
	}

	markers, err := w.db.NoDataMarkers.Range(ctx, ds.ID, win.StartRts, win.EndRts)
	if err != nil {
		return nil, false, err
	}

	var fetchExisting synth.ExistingFetcher
	if df.IsRestOn {
		fetchExisting = func(attempt int) ([]model.DfReading, []int64, error) {
			lookback := (int64(512) << uint(attempt)) * app.TimeResampleMs
			existing, ferr := w.db.DfReadings.Range(ctx, df.ID, win.StartRts-lookback, win.EndRts)
			if ferr != nil {
				return nil, nil, ferr
			}
			grid, gerr := timegrid.CreateGrid(win.StartRts, win.EndRts, app.TimeResampleMs)
			if gerr != nil {
				return nil, nil, gerr
			}
			return existing, grid, nil
		}
	}

	out, err := synth.CreateDfReadings(df, ds, win, app.TimeResampleMs, readings, markers, nil, fetchExisting)
	if err != nil {
		return nil, false, err
	}

	committed := advanceWatermarks(df, ds, out)
	if len(committed) < len(out) {
		isCatchingUp = true
	}
	return committed, isCatchingUp, nil
}

// advanceWatermarks implements §4.5's output policy: append readings
// ascending until the first tagged (not_to_use) one, then stop and move
// df/ds's ts_to_start_with and df.last_reading_ts up to that point.
func advanceWatermarks(df *model.Datafeed, ds *model.Datastream, out []model.DfReading) []model.DfReading {
	cut := len(out)
	for i, r := range out {
		if r.NotToUse != model.TagNone {
			cut = i
			break
		}
	}
	committed := out[:cut]
	if len(committed) == 0 {
		return committed
	}
	lastTs := committed[len(committed)-1].Ts
	if lastTs > df.TsToStartWith {
		df.TsToStartWith = lastTs
	}
	if lastTs > df.LastReadingTs {
		df.LastReadingTs = lastTs
	}
	if lastTs > ds.TsToStartWith {
		ds.TsToStartWith = lastTs
	}
	return committed
}

func (w *appEvalWorker) commitSynthesized(ctx context.Context, tx *sqlx.Tx, df *model.Datafeed, readings []model.DfReading) error {
	if df == nil {
		return nil
	}
	stamped := make([]model.DfReading, len(readings))
	for i, r := range readings {
		r.DatafeedID = df.ID
		stamped[i] = r
	}
	return w.db.DfReadings.InsertBatch(ctx, tx, stamped)
}
