package main

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/DmytroIE/Monapps-v5/internal/store"
	"github.com/DmytroIE/Monapps-v5/pkg/dshealth"
)

// dsHealthWorker implements §5 worker (e): the periodic no-data check that
// catches a datastream which never reports at all, independent of the
// per-message path pkg/rawdata drives.
type dsHealthWorker struct {
	db    *store.Store
	limit int
	now   func() int64
}

func (w *dsHealthWorker) run(ctx context.Context) error {
	ids, err := w.db.Datastreams.DueForHealthEval(ctx, w.now(), w.limit)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := w.evalOne(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (w *dsHealthWorker) evalOne(ctx context.Context, id int64) error {
	return w.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		ds, err := w.db.Datastreams.LockForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		dshealth.Evaluate(ds, w.now())
		// A health change would normally enqueue the parent device's
		// update, but the device updater already re-derives chld_health
		// from every enabled datastream's Health() on its own period
		// (§4.8), so no explicit fan-out is needed here.
		return w.db.Datastreams.Save(ctx, tx, ds)
	})
}
