// Package updater implements the Asset/Device updaters (C8, spec.md §4.8):
// leaf-first bottom-up re-evaluation of health/status/current-state and
// propagation of reeval requests up the asset tree. Grounded on
// original_source/monapps/services/asset_updater.py,
// utils/update_utils.py.
package updater

import "github.com/DmytroIE/Monapps-v5/pkg/model"

// DeriveHealthFromChildren implements §4.8's derive_health_from_children:
// UNDEFINED children are skipped; empty input yields UNDEFINED (I9); if at
// least one considered child is ERROR and none is OK/WARNING, the result is
// ERROR; otherwise the result is the highest child health, with ERROR
// demoted to WARNING whenever any non-ERROR child exists.
func DeriveHealthFromChildren(children []model.HealthGrade) model.HealthGrade {
	considered := make([]model.HealthGrade, 0, len(children))
	for _, h := range children {
		if h != model.GradeUndefined {
			considered = append(considered, h)
		}
	}
	if len(considered) == 0 {
		return model.GradeUndefined
	}

	hasError, hasOk, hasWarning := false, false, false
	for _, h := range considered {
		switch h {
		case model.GradeError:
			hasError = true
		case model.GradeOK:
			hasOk = true
		case model.GradeWarning:
			hasWarning = true
		}
	}

	if hasError && !hasOk && !hasWarning {
		return model.GradeError
	}

	var max model.HealthGrade
	for _, h := range considered {
		if h == model.GradeError {
			h = model.GradeWarning // demoted: a non-ERROR child exists
		}
		max = model.MaxGrade(max, h)
	}
	return max
}

// StatusChild is one child's contribution to derive_status_from_children /
// derive_curr_state_from_children (§4.8): Value is nil when the child's
// status/curr_state is null, Use gates how ERROR is interpreted, and Stale
// excludes the child from the value computation while still preventing the
// parent from collapsing to null.
type StatusChild struct {
	Value model.HealthGrade
	IsNil bool
	Use   model.UsePolicy
	Stale bool
}

// DeriveStatusFromChildren implements §4.8's derive_status_from_children
// (identical algorithm reused for curr_state, §4.8): children with
// use=DONT_USE are always skipped entirely; status=nil or stale children
// are skipped from the value computation but still count toward "not every
// child is null" so the parent does not collapse to null. If every
// considered child has ERROR, the result is ERROR only when every one of
// those children uses AS_ERROR_IF_ALL; otherwise ERROR demotes to WARNING.
// Result is (nil, true) iff every non-DONT_USE child is null/stale-missing.
func DeriveStatusFromChildren(children []StatusChild) (value model.HealthGrade, isNil bool) {
	anyParticipant := false
	var considered []StatusChild

	for _, c := range children {
		if c.Use == model.UseDontUse {
			continue
		}
		if c.IsNil {
			continue
		}
		anyParticipant = true
		if c.Stale {
			continue
		}
		considered = append(considered, c)
	}

	if !anyParticipant {
		return model.GradeUndefined, true
	}
	if len(considered) == 0 {
		// Every participating child is stale: parent does not collapse to
		// null, but there is nothing fresh to compute from; hold UNDEFINED.
		return model.GradeUndefined, false
	}

	allError := true
	allAsErrorIfAll := true
	var max model.HealthGrade
	for _, c := range considered {
		if c.Value != model.GradeError {
			allError = false
		}
		if c.Use != model.UseErrorIfAll {
			allAsErrorIfAll = false
		}
		v := c.Value
		if v == model.GradeError && c.Use != model.UseErrorIfAll {
			v = model.GradeWarning
		}
		max = model.MaxGrade(max, v)
	}

	if allError && allAsErrorIfAll {
		return model.GradeError, false
	}
	if allError {
		return model.GradeWarning, false
	}
	return max, false
}
