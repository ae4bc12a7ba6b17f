package main

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/DmytroIE/Monapps-v5/internal/store"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
	"github.com/DmytroIE/Monapps-v5/pkg/updater"
)

// assetUpdaterWorker implements §4.8's asset tree updater pass: every
// asset whose next_upd_ts has elapsed is re-aggregated leaf-first from its
// devices, applications, and sub-assets (pkg/updater.UpdateAssetTree).
type assetUpdaterWorker struct {
	db    *store.Store
	limit int
	now   func() int64
}

func (w *assetUpdaterWorker) run(ctx context.Context) error {
	ids, err := w.db.Assets.DueForUpdate(ctx, w.now(), w.limit)
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

// updateOne loads id's full subtree read-only, recomputes it leaf-first,
// then writes back every asset the pass touched inside one transaction —
// the whole subtree is locked up front to keep the leaf-first recompute
// consistent with concurrent device/application updaters racing the same
// assets (spec.md §5).
func (w *assetUpdaterWorker) updateOne(ctx context.Context, id int64) error {
	node, err := w.loadNode(ctx, id, nil)
	if err != nil {
		return err
	}

	return w.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := w.relockTree(ctx, tx, node); err != nil {
			return err
		}
		// UpdateAssetTree walks node.Children itself (leaf-first), so the
		// whole subtree is recomputed in one call once every node's Asset
		// points at its locked row.
		updater.UpdateAssetTree(node, w.now())
		return w.saveTree(ctx, tx, node)
	})
}

// loadNode builds the read-only AssetNode tree rooted at assetID,
// gathering its device/application leaves and recursing into sub-assets.
func (w *assetUpdaterWorker) loadNode(ctx context.Context, assetID int64, parent *updater.AssetNode) (*updater.AssetNode, error) {
	asset, err := w.db.Assets.Get(ctx, assetID)
	if err != nil {
		return nil, err
	}
	node := &updater.AssetNode{Asset: asset, Parent: parent}

	deviceIDs, err := w.db.Devices.ByParentAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	for _, did := range deviceIDs {
		device, err := w.db.Devices.Get(ctx, did)
		if err != nil {
			return nil, err
		}
		node.Leaves = append(node.Leaves, updater.ChildSummary{
			Health:    device.Health(),
			Status:    updater.StatusChild{Use: model.UseDontUse, IsNil: true},
			CurrState: updater.StatusChild{Use: model.UseDontUse, IsNil: true},
		})
	}

	appIDs, err := w.db.Applications.ByParentAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	for _, aid := range appIDs {
		app, err := w.db.Applications.Get(ctx, aid)
		if err != nil {
			return nil, err
		}
		node.Leaves = append(node.Leaves, updater.ChildSummary{
			Health:      app.Health,
			Status:      statusChildFrom(app.Status, app.StatusUse, app.IsStatusStale),
			CurrState:   statusChildFrom(app.CurrState, app.CurrStateUse, app.IsCurrStateStale),
			ChangedAll3: len(app.ReevalFields) == 3,
		})
	}

	childIDs, err := w.db.Assets.Children(ctx, assetID)
	if err != nil {
		return nil, err
	}
	for _, cid := range childIDs {
		child, err := w.loadNode(ctx, cid, node)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}

	return node, nil
}

func statusChildFrom(v *model.HealthGrade, use model.UsePolicy, stale bool) updater.StatusChild {
	c := updater.StatusChild{Use: use, IsNil: v == nil, Stale: stale}
	if v != nil {
		c.Value = *v
	}
	return c
}

// relockTree re-resolves every node's Asset row under tx's lock (the
// read-only load above may be stale by the time the transaction starts),
// recursively over the whole subtree.
func (w *assetUpdaterWorker) relockTree(ctx context.Context, tx *sqlx.Tx, node *updater.AssetNode) error {
	locked, err := w.db.Assets.LockForUpdate(ctx, tx, node.Asset.ID)
	if err != nil {
		return err
	}
	locked.ReevalFields = node.Asset.ReevalFields
	node.Asset = locked

	for _, child := range node.Children {
		if err := w.relockTree(ctx, tx, child); err != nil {
			return err
		}
	}
	return nil
}

// saveTree persists every asset in the subtree UpdateAssetTree touched.
func (w *assetUpdaterWorker) saveTree(ctx context.Context, tx *sqlx.Tx, node *updater.AssetNode) error {
	if err := w.db.Assets.Save(ctx, tx, node.Asset); err != nil {
		return err
	}
	for _, child := range node.Children {
		if err := w.saveTree(ctx, tx, child); err != nil {
			return err
		}
	}
	return nil
}
