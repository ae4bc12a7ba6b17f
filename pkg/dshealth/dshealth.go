// Package dshealth implements the periodic DS-health updater (spec.md §5
// worker (e)): the no-data check that runs even when a datastream never
// reports at all, independent of the per-message path in pkg/rawdata.
// Grounded on
// original_source/monapps/services/periodic_ds_health_updater.py.
package dshealth

import "github.com/DmytroIE/Monapps-v5/pkg/model"

// Result is one datastream's outcome from Evaluate.
type Result struct {
	HealthChanged bool
	NextEvalTs    int64
}

// Evaluate implements update_health + the health_next_eval_ts reschedule
// from periodic_ds_health_updater.py's update_ds, for one already row-locked
// datastream. The caller is responsible for persisting ds (mutated in
// place) and, if HealthChanged, enqueueing the parent device's update.
func Evaluate(ds *model.Datastream, now int64) Result {
	var sinceLastData int64
	noDataEver := ds.LastValidReadingTs == 0
	if noDataEver {
		sinceLastData = now - ds.CreatedTs
	} else {
		sinceLastData = now - ds.LastValidReadingTs
	}

	var ndHealth model.HealthGrade
	switch {
	case sinceLastData > ds.TimeNdHealthErrorMs:
		ndHealth = model.GradeError
	case noDataEver:
		ndHealth = model.GradeUndefined
	default:
		ndHealth = model.GradeOK
	}

	before := ds.Health()
	ds.NdHealth = ndHealth
	healthChanged := ds.Health() != before

	margin := ds.TimeUpdateMs
	evalDelay := model.TimeDsHealthEvalMs
	if margin != nil {
		if scaled := int64(float64(*margin) * model.NextEvalMarginCoef); scaled > evalDelay {
			evalDelay = scaled
		}
	}
	ds.HealthNextEvalTs = now + evalDelay

	return Result{HealthChanged: healthChanged, NextEvalTs: ds.HealthNextEvalTs}
}
