// Package monitoring is the sample application function: pure
// monitoring, no calculation or insight generation, just enough
// evaluation to exercise an application's health/staleness machinery.
// Grounded on
// original_source/monapps/app_functions/monitoring/ver_1_0_0.py.
//
// The original computed its own end_rts/is_catching_up pair from the
// native datafeeds' ts_to_start_with fields (utils/app_func_utils.py's
// get_end_rts) before deciding how far it could safely advance the
// cursor. That catch-up/window resolution is now generic executor
// behavior (pkg/appexec.Run calls the injected SynthesizeFunc per native
// datafeed and freezes the whole tick if any of them report
// isCatchingUp), so by the time Func runs, nativeDf already holds a
// caught-up window for every native datafeed. Func's only job is what
// the name says: move the cursor.
package monitoring

import (
	"github.com/DmytroIE/Monapps-v5/pkg/appexec"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

// Func advances app's cursor to the oldest last-reading timestamp across
// its native datafeeds — the conservative bound that never runs the
// cursor ahead of the datafeed furthest behind — and returns no derived
// readings, alarm payload, state, or health (excep_health/cursor health
// still apply via the executor's own post-exec routine).
func Func(_ *model.Application, nativeDf, _ map[string][]model.DfReading) (appexec.UpdateMap, error) {
	var minLastTs int64
	found := false
	for _, readings := range nativeDf {
		if len(readings) == 0 {
			continue
		}
		lastTs := readings[len(readings)-1].Ts
		if !found || lastTs < minLastTs {
			minLastTs = lastTs
			found = true
		}
	}
	if !found {
		return appexec.UpdateMap{}, nil
	}

	cursor := minLastTs
	return appexec.UpdateMap{CursorTs: &cursor}, nil
}
