package model

import "fmt"

// Updatable is anything carrying a next_upd_ts scheduling field: Device,
// Application, Asset.
type Updatable interface {
	GetNextUpdTs() int64
	SetNextUpdTs(int64)
}

func (d *Device) GetNextUpdTs() int64      { return d.NextUpdTs }
func (d *Device) SetNextUpdTs(ts int64)    { d.NextUpdTs = ts }
func (a *Application) GetNextUpdTs() int64 { return a.NextUpdTs }
func (a *Application) SetNextUpdTs(ts int64) { a.NextUpdTs = ts }
func (a *Asset) GetNextUpdTs() int64       { return a.NextUpdTs }
func (a *Asset) SetNextUpdTs(ts int64)     { a.NextUpdTs = ts }

// DefaultEnqueueCoef is the default `coef` argument to EnqueueUpdate (§4.9).
const DefaultEnqueueCoef = 0.8

// EnqueueUpdate implements §4.9's enqueue_update: time_margin =
// TIME_ASSET_UPD_MS * coef; if target.next_upd_ts > now + time_margin, it
// is moved to now + time_margin. It never moves next_upd_ts later — this is
// invariant I10 and the monotonicity relied on by §5's idempotent-trigger
// guarantee (duplicate triggers racing on the same entity are harmless).
func EnqueueUpdate(target Updatable, now int64, coef float64) {
	timeMargin := int64(float64(TimeAssetUpdMs) * coef)
	candidate := now + timeMargin
	if target.GetNextUpdTs() > candidate {
		target.SetNextUpdTs(candidate)
	}
}

// ReevalFieldsOwner is anything carrying a reeval_fields set: Asset,
// Application.
type ReevalFieldsOwner interface {
	ReevalFieldSet() map[string]struct{}
}

func (a *Asset) ReevalFieldSet() map[string]struct{}       { return ensureSet(&a.ReevalFields) }
func (a *Application) ReevalFieldSet() map[string]struct{} { return ensureSet(&a.ReevalFields) }

func ensureSet(m *map[string]struct{}) map[string]struct{} {
	if *m == nil {
		*m = make(map[string]struct{})
	}
	return *m
}

// UpdateReevalFields implements §4.9's update_reeval_fields: an idempotent
// union-add of fields into the target's reeval_fields set.
func UpdateReevalFields(target ReevalFieldsOwner, fields ...string) {
	set := target.ReevalFieldSet()
	for _, f := range fields {
		set[f] = struct{}{}
	}
}

// SetCond is the comparator set_attr_if_cond accepts (§4.9).
type SetCond string

const (
	CondGreater SetCond = ">"
	CondLess    SetCond = "<"
	CondNotEq   SetCond = "!="
)

// SetAttrIfCond implements §4.9's set_attr_if_cond: a conditional setter.
// Null (represented by a nil *float64 current value) is treated as 0 for
// ">"/"<". Returns whether the write occurred, so the caller can track
// which fields were actually written into a per-instance change set (the
// publish-on-save whitelist, §5).
func SetAttrIfCond(newValue float64, cond SetCond, current *float64) (shouldWrite bool, err error) {
	cur := 0.0
	if current != nil {
		cur = *current
	}
	switch cond {
	case CondGreater:
		return newValue > cur, nil
	case CondLess:
		return newValue < cur, nil
	case CondNotEq:
		if current == nil {
			return true, nil
		}
		return newValue != cur, nil
	default:
		return false, fmt.Errorf("set_attr_if_cond: unknown cond %q", cond)
	}
}

// ChangeSet tracks which fields were actually written on an entity during
// one update pass, driving the publish-on-save whitelist of §5/§4.9: "emit
// a publish iff any field in the model's published_fields whitelist was
// written." An empty change set after a bulk/admin save means "publish the
// whole snapshot and trigger a parent total re-eval" per §4.9.
type ChangeSet map[string]any

// NewChangeSet returns an empty change set.
func NewChangeSet() ChangeSet { return ChangeSet{} }

// Mark records that field was written with value.
func (c ChangeSet) Mark(field string, value any) { c[field] = value }

// IsEmpty reports whether nothing was recorded ("bulk/admin save").
func (c ChangeSet) IsEmpty() bool { return len(c) == 0 }
