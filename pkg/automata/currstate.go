// Package automata implements the current-state and status finite automata
// (C7, spec.md §4.7): PLC-style on-delay counters drive state transitions,
// re-evaluated until quiescent, each emitting an alarm-payload entry and a
// curr_state/status value plus (for the current-state automaton) a
// health_from_app override. Grounded on
// original_source/monapps/app_functions/helpers/automatas/{curr_state_automata_type1,status_automata_type1,automata_conditions}.py.
package automata

import (
	"github.com/DmytroIE/Monapps-v5/pkg/model"
	"github.com/DmytroIE/Monapps-v5/pkg/plc"
)

// CurrState is the current-state automaton's 5-state enum (§4.7). Off is
// kept distinct from Undefined internally so the off on-delay counter can
// be driven by its own flag, but the emitted curr_state value maps Off to
// Undefined.
type CurrState int

const (
	CsOff CurrState = iota
	CsUndefined
	CsOk
	CsWarning
	CsError
)

// CurrStateFlags is one tick's input flags (§4.7): exactly the flag whose
// on-delay counter saturates first (in Err, Off, Ok, Warn priority order)
// drives the next transition.
type CurrStateFlags struct {
	Err, Off, Ok, Warn bool
}

// CurrStateOutcome is one tick's emitted effects.
type CurrStateOutcome struct {
	CurrState     model.HealthGrade
	HealthFromApp *model.HealthGrade // set only on ERROR (§4.7)
	AlarmPayload  []model.AlarmPayloadEntry
}

// CurrStateAutomata is the current-state automaton (§4.7): 5 states, 4
// on-delay counters sharing one preset (cs_trans_counts), re-evaluated
// until quiescent on every tick.
type CurrStateAutomata struct {
	state   CurrState
	errCnt  *plc.Counter
	offCnt  *plc.Counter
	okCnt   *plc.Counter
	warnCnt *plc.Counter
}

// NewCurrStateAutomata builds the automaton starting in CsUndefined, with
// all four on-delay counters sharing the given preset tick count.
func NewCurrStateAutomata(preset int) *CurrStateAutomata {
	return &CurrStateAutomata{
		state:   CsUndefined,
		errCnt:  plc.NewCounter(preset, 0),
		offCnt:  plc.NewCounter(preset, 0),
		okCnt:   plc.NewCounter(preset, 0),
		warnCnt: plc.NewCounter(preset, 0),
	}
}

// Execute ticks all four counters with the given flags, then re-evaluates
// the state transition table until no further transition fires in this
// call (quiescent), returning the final tick's outcome.
func (a *CurrStateAutomata) Execute(ts int64, flags CurrStateFlags) CurrStateOutcome {
	errOut := a.errCnt.Tick(flags.Err)
	offOut := a.offCnt.Tick(flags.Off)
	okOut := a.okCnt.Tick(flags.Ok)
	warnOut := a.warnCnt.Tick(flags.Warn)

	for {
		next := a.transition(errOut, offOut, okOut, warnOut)
		if next == a.state {
			break
		}
		a.state = next
	}

	return a.permanentAction(ts)
}

// transition implements §4.7's state table. ERROR takes priority, then
// OFF, then the current state's own holding condition, then OK/WARNING.
func (a *CurrStateAutomata) transition(errOut, offOut, okOut, warnOut bool) CurrState {
	switch {
	case errOut:
		return CsError
	case offOut:
		return CsOff
	case okOut:
		return CsOk
	case warnOut:
		return CsWarning
	default:
		return CsUndefined
	}
}

// permanentAction implements §4.7's per-state emitted effects.
func (a *CurrStateAutomata) permanentAction(ts int64) CurrStateOutcome {
	switch a.state {
	case CsError:
		errGrade := model.GradeError
		return CurrStateOutcome{
			CurrState:     model.GradeUndefined,
			HealthFromApp: &errGrade,
			AlarmPayload: []model.AlarmPayloadEntry{{
				Name: "Bad input data", Ts: ts, Level: model.AlarmLevelError,
				State: map[string]any{"st": "in"},
			}},
		}
	case CsWarning:
		return CurrStateOutcome{
			CurrState: model.GradeWarning,
			AlarmPayload: []model.AlarmPayloadEntry{{
				Name: "Stall detected", Ts: ts, Level: model.AlarmLevelWarning,
				State: map[string]any{"st": "in"},
			}},
		}
	case CsOk:
		return CurrStateOutcome{CurrState: model.GradeOK}
	case CsOff, CsUndefined:
		return CurrStateOutcome{CurrState: model.GradeUndefined}
	default:
		return CurrStateOutcome{CurrState: model.GradeUndefined}
	}
}
