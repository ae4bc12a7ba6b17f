package automata

import (
	"github.com/DmytroIE/Monapps-v5/internal/apperrors"
	"github.com/DmytroIE/Monapps-v5/pkg/model"
	"github.com/DmytroIE/Monapps-v5/pkg/occlist"
)

// Comparator is one of ConditionType1's six comparison operators.
type Comparator string

const (
	CmpEq Comparator = "=="
	CmpNe Comparator = "!="
	CmpGt Comparator = ">"
	CmpLt Comparator = "<"
	CmpGe Comparator = ">="
	CmpLe Comparator = "<="
)

func (c Comparator) apply(actual, want int) bool {
	switch c {
	case CmpEq:
		return actual == want
	case CmpNe:
		return actual != want
	case CmpGt:
		return actual > want
	case CmpLt:
		return actual < want
	case CmpGe:
		return actual >= want
	case CmpLe:
		return actual <= want
	default:
		return false
	}
}

// Condition is one ConditionType1 check against the last TotalOccs curr_state
// occurrences: it matches iff each of the ok/warn/undef comparisons holds
// simultaneously over that window (§4.7).
type Condition struct {
	TotalOccs    int
	OkCmp        Comparator
	OkNum        int
	WarnCmp      Comparator
	WarnNum      int
	UndefCmp     Comparator
	UndefNum     int
	TargetStatus model.HealthGrade
}

// Validate enforces §4.7's num_of_ok + num_of_warn + num_of_undef <=
// total_occs sanity bound (an over-specified condition can never match).
func (c Condition) Validate() error {
	if c.OkNum+c.WarnNum+c.UndefNum > c.TotalOccs {
		return apperrors.NewValidationErrorf(
			"condition: ok(%d)+warn(%d)+undef(%d) exceeds total_occs(%d)",
			c.OkNum, c.WarnNum, c.UndefNum, c.TotalOccs)
	}
	return nil
}

// Matches reports whether the condition holds against hist, the full
// curr_state occurrence history (oldest-first).
func (c Condition) Matches(hist occlist.List[model.HealthGrade]) bool {
	window := hist.LastN(c.TotalOccs)
	if window.TotalOccurrences() < c.TotalOccs {
		return false
	}
	okCount := window.CountOf(model.GradeOK)
	warnCount := window.CountOf(model.GradeWarning)
	undefCount := window.CountOf(model.GradeUndefined)
	return c.OkCmp.apply(okCount, c.OkNum) &&
		c.WarnCmp.apply(warnCount, c.WarnNum) &&
		c.UndefCmp.apply(undefCount, c.UndefNum)
}

// StatusAutomata is the status automaton (§4.7): 4 states (UNDEFINED, OK,
// WARNING, ERROR), driven by ConditionType1 checks over the recent
// curr_state history. Error has no transition rule in the grounding
// source; see DESIGN.md's Open Question #5 — the state constant exists so
// status round-trips through the shared HealthGrade enum, but Execute
// never produces it, mirroring the gap in the original automaton.
type StatusAutomata struct {
	state      model.HealthGrade
	history    occlist.List[model.HealthGrade]
	conditions []Condition
}

// NewStatusAutomata builds the automaton starting UNDEFINED, evaluated
// against the supplied ordered conditions (first match wins, except the
// UNDEFINED-to-OK-over-WARNING optimistic preference below).
func NewStatusAutomata(conditions []Condition) (*StatusAutomata, error) {
	for _, c := range conditions {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return &StatusAutomata{state: model.GradeUndefined, conditions: conditions}, nil
}

// Execute appends currState to the occurrence history and re-evaluates the
// condition list, applying the optimistic OK-over-WARNING preference when
// starting from UNDEFINED (§4.7).
func (a *StatusAutomata) Execute(currState model.HealthGrade) model.HealthGrade {
	a.history = a.history.Append(currState)

	var okMatched, warnMatched bool
	next := a.state

	for _, c := range a.conditions {
		if !c.Matches(a.history) {
			continue
		}
		if c.TargetStatus == model.GradeOK {
			okMatched = true
		}
		if c.TargetStatus == model.GradeWarning {
			warnMatched = true
		}
		next = c.TargetStatus
	}

	if a.state == model.GradeUndefined && okMatched && warnMatched {
		next = model.GradeOK
	}

	a.state = next
	return a.state
}

// State returns the automaton's current status without ticking it.
func (a *StatusAutomata) State() model.HealthGrade { return a.state }
