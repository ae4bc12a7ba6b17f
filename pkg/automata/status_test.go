package automata

import (
	"testing"

	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

func TestConditionValidateRejectsOverspecified(t *testing.T) {
	c := Condition{TotalOccs: 2, OkCmp: CmpEq, OkNum: 2, WarnCmp: CmpEq, WarnNum: 2, UndefCmp: CmpEq, UndefNum: 0}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error: ok+warn+undef exceeds total_occs")
	}
}

func TestStatusAutomataOkPriorityOverWarningFromUndefined(t *testing.T) {
	conds := []Condition{
		{TotalOccs: 1, OkCmp: CmpEq, OkNum: 1, WarnCmp: CmpEq, WarnNum: 0, UndefCmp: CmpEq, UndefNum: 0, TargetStatus: model.GradeOK},
		{TotalOccs: 1, OkCmp: CmpEq, OkNum: 0, WarnCmp: CmpEq, WarnNum: 0, UndefCmp: CmpEq, UndefNum: 0, TargetStatus: model.GradeWarning},
	}
	a, err := NewStatusAutomata(conds)
	if err != nil {
		t.Fatal(err)
	}
	got := a.Execute(model.GradeOK)
	if got != model.GradeOK {
		t.Fatalf("expected OK, got %v", got)
	}
}

func TestStatusAutomataTransitionsToErrorCondition(t *testing.T) {
	conds := []Condition{
		{TotalOccs: 2, OkCmp: CmpEq, OkNum: 0, WarnCmp: CmpEq, WarnNum: 0, UndefCmp: CmpEq, UndefNum: 0, TargetStatus: model.GradeError},
	}
	a, err := NewStatusAutomata(conds)
	if err != nil {
		t.Fatal(err)
	}
	a.Execute(model.GradeError)
	got := a.Execute(model.GradeError)
	if got != model.GradeError {
		t.Fatalf("expected condition over last 2 occurrences to fire ERROR, got %v", got)
	}
}

func TestStatusAutomataNoMatchKeepsState(t *testing.T) {
	conds := []Condition{
		{TotalOccs: 5, OkCmp: CmpEq, OkNum: 5, WarnCmp: CmpEq, WarnNum: 0, UndefCmp: CmpEq, UndefNum: 0, TargetStatus: model.GradeOK},
	}
	a, err := NewStatusAutomata(conds)
	if err != nil {
		t.Fatal(err)
	}
	got := a.Execute(model.GradeWarning)
	if got != model.GradeUndefined {
		t.Fatalf("expected to remain UNDEFINED absent a matching condition, got %v", got)
	}
}
