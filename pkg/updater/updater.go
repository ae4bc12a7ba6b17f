package updater

import "github.com/DmytroIE/Monapps-v5/pkg/model"

// UpdateDevice implements §4.8's device updater body for one device: it
// gathers enabled-datastream healths as children, recomputes chld_health
// and health, and enqueues the parent asset update on change. Callers are
// expected to hold the device (and its datastreams) row-locked for the
// duration, and to set next_upd_ts to the mandatory keep-alive afterward
// regardless of whether health changed (§4.8).
func UpdateDevice(device *model.Device, datastreamHealths []model.HealthGrade, now int64, parent model.Updatable) (changed bool) {
	newChldHealth := DeriveHealthFromChildren(datastreamHealths)
	before := device.Health()
	device.ChldHealth = newChldHealth
	changed = device.Health() != before
	if changed && parent != nil {
		model.EnqueueUpdate(parent, now, model.DefaultEnqueueCoef)
	}
	device.NextUpdTs = now + model.TimeDelayAssetMandatoryMs
	return changed
}

// AssetNode is one node of the in-memory tree built for one asset-updater
// pass (§9: "in-memory trees built during an updater pass live for the
// duration of that pass"). Leaves holds the non-asset children (devices,
// applications) already summarized; Children holds sub-asset nodes, which
// must be processed before this node (leaf-first).
type AssetNode struct {
	Asset    *model.Asset
	Parent   *AssetNode // nil at the root of the loaded slice
	Leaves   []ChildSummary
	Children []*AssetNode
}

// ChildSummary is one child's post-update contribution to its parent
// asset's aggregation, whether that child is a Device, an Application, or
// an already-processed sub-Asset.
type ChildSummary struct {
	Health       model.HealthGrade
	Status       StatusChild
	CurrState    StatusChild
	ChangedAll3  bool // true iff this child's own reeval_fields held all 3
}

// UpdateAssetTree recomputes node and every descendant leaf-first (§4.8),
// returning this node's own post-update summary so a caller one level up
// can fold it into its own Leaves slice.
func UpdateAssetTree(node *AssetNode, now int64) ChildSummary {
	for _, child := range node.Children {
		summary := UpdateAssetTree(child, now)
		node.Leaves = append(node.Leaves, summary)
		if summary.ChangedAll3 {
			// Chain-reaction rule (§4.8, §9 Open Question #2): a child
			// whose reeval_fields held all three forces this node to
			// re-evaluate all three too.
			for _, f := range model.AllReevalFields {
				node.Asset.ReevalFieldSet()[f] = struct{}{}
			}
		}
	}

	asset := node.Asset
	fields := asset.ReevalFieldSet()
	changedAll3 := len(fields) == 3
	var changedFields []string

	if _, ok := fields[model.FieldHealth]; ok {
		healths := make([]model.HealthGrade, 0, len(node.Leaves))
		for _, l := range node.Leaves {
			healths = append(healths, l.Health)
		}
		newHealth := DeriveHealthFromChildren(healths)
		if newHealth != asset.Health {
			asset.Health = newHealth
			changedFields = append(changedFields, model.FieldHealth)
		}
	}

	if _, ok := fields[model.FieldStatus]; ok {
		children := make([]StatusChild, 0, len(node.Leaves))
		for _, l := range node.Leaves {
			children = append(children, l.Status)
		}
		newStatus, isNil := DeriveStatusFromChildren(children)
		changed := (asset.Status == nil) != isNil || (asset.Status != nil && !isNil && *asset.Status != newStatus)
		if isNil {
			asset.Status = nil
		} else {
			asset.Status = &newStatus
		}
		if changed {
			asset.LastStatusUpdateTs = now
			changedFields = append(changedFields, model.FieldStatus)
		}
	}

	if _, ok := fields[model.FieldCurrState]; ok {
		children := make([]StatusChild, 0, len(node.Leaves))
		for _, l := range node.Leaves {
			children = append(children, l.CurrState)
		}
		newCurrState, isNil := DeriveStatusFromChildren(children)
		changed := (asset.CurrState == nil) != isNil || (asset.CurrState != nil && !isNil && *asset.CurrState != newCurrState)
		if isNil {
			asset.CurrState = nil
		} else {
			asset.CurrState = &newCurrState
		}
		if changed {
			asset.LastCurrStateUpdateTs = now
			changedFields = append(changedFields, model.FieldCurrState)
		}
	}

	if node.Parent != nil {
		PropagateToParent(node.Parent.Asset, now, changedFields...)
	}

	// Clear reeval_fields and park next_upd_ts at infinity until a child
	// re-enqueues it (§4.8).
	asset.ReevalFields = map[string]struct{}{}
	asset.NextUpdTs = model.MaxTsMs

	selfStatus := StatusChild{Use: asset.StatusUse, IsNil: asset.Status == nil}
	if asset.Status != nil {
		selfStatus.Value = *asset.Status
	}
	selfCurrState := StatusChild{Use: asset.CurrStateUse, IsNil: asset.CurrState == nil}
	if asset.CurrState != nil {
		selfCurrState.Value = *asset.CurrState
	}

	return ChildSummary{
		Health:      asset.Health,
		Status:      selfStatus,
		CurrState:   selfCurrState,
		ChangedAll3: changedAll3,
	}
}

// PropagateToParent implements §4.8's on-change rule: a changed
// status/curr_state/health marks the corresponding field on the parent's
// reeval_fields and enqueues its update. Called by UpdateAssetTree for
// in-tree parents; exported so the device updater and the Application
// executor's parent fan-out (§4.6 step 12) can reuse the same rule.
func PropagateToParent(parent *model.Asset, now int64, changedFields ...string) {
	if parent == nil || len(changedFields) == 0 {
		return
	}
	model.UpdateReevalFields(parent, changedFields...)
	model.EnqueueUpdate(parent, now, model.DefaultEnqueueCoef)
}
