package main

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/DmytroIE/Monapps-v5/internal/store"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
	"github.com/DmytroIE/Monapps-v5/pkg/updater"
)

// deviceUpdaterWorker implements §4.8's device updater pass: every device
// whose next_upd_ts has elapsed gets its chld_health recomputed from its
// enabled datastreams' healths, with the parent asset re-enqueued on
// change.
type deviceUpdaterWorker struct {
	db    *store.Store
	limit int
	now   func() int64
}

func (w *deviceUpdaterWorker) run(ctx context.Context) error {
	ids, err := w.db.Devices.DueForUpdate(ctx, w.now(), w.limit)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := w.updateOne(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (w *deviceUpdaterWorker) updateOne(ctx context.Context, id int64) error {
	return w.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		device, err := w.db.Devices.LockForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		datastreams, err := w.db.Datastreams.ByDevice(ctx, device.ID)
		if err != nil {
			return err
		}

		healths := make([]model.HealthGrade, 0, len(datastreams))
		for _, ds := range datastreams {
			if ds.IsEnabled {
				healths = append(healths, ds.Health())
			}
		}

		parent, err := w.db.Assets.LockForUpdate(ctx, tx, device.ParentAssetID)
		if err != nil {
			return err
		}

		updater.UpdateDevice(device, healths, w.now(), parent)

		if err := w.db.Assets.Save(ctx, tx, parent); err != nil {
			return err
		}
		return w.db.Devices.Save(ctx, tx, device)
	})
}
