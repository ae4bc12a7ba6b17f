package automata

import (
	"testing"

	"github.com/DmytroIE/Monapps-v5/pkg/model"
)

func TestCurrStateAutomataReachesOkAfterPreset(t *testing.T) {
	a := NewCurrStateAutomata(2)

	out := a.Execute(1, CurrStateFlags{Ok: true})
	if out.CurrState != model.GradeUndefined {
		t.Fatalf("on-delay should not have saturated yet: %+v", out)
	}
	out = a.Execute(2, CurrStateFlags{Ok: true})
	if out.CurrState != model.GradeOK {
		t.Fatalf("expected OK after on-delay saturates, got %+v", out)
	}
}

func TestCurrStateAutomataErrorEmitsAlarmAndHealthOverride(t *testing.T) {
	a := NewCurrStateAutomata(1)
	out := a.Execute(10, CurrStateFlags{Err: true})
	if out.CurrState != model.GradeUndefined {
		t.Fatalf("ERROR state emits curr_state=UNDEFINED, got %v", out.CurrState)
	}
	if out.HealthFromApp == nil || *out.HealthFromApp != model.GradeError {
		t.Fatalf("expected health_from_app=ERROR, got %+v", out.HealthFromApp)
	}
	if len(out.AlarmPayload) != 1 || out.AlarmPayload[0].Name != "Bad input data" {
		t.Fatalf("expected Bad input data alarm, got %+v", out.AlarmPayload)
	}
}

func TestCurrStateAutomataWarningEmitsStallAlarm(t *testing.T) {
	a := NewCurrStateAutomata(1)
	out := a.Execute(5, CurrStateFlags{Warn: true})
	if out.CurrState != model.GradeWarning {
		t.Fatalf("expected WARNING, got %v", out.CurrState)
	}
	if len(out.AlarmPayload) != 1 || out.AlarmPayload[0].Name != "Stall detected" {
		t.Fatalf("expected Stall detected alarm, got %+v", out.AlarmPayload)
	}
}

func TestCurrStateAutomataErrorPriorityOverOthers(t *testing.T) {
	a := NewCurrStateAutomata(1)
	out := a.Execute(1, CurrStateFlags{Err: true, Ok: true, Warn: true})
	if out.HealthFromApp == nil || *out.HealthFromApp != model.GradeError {
		t.Fatalf("ERROR must take priority, got %+v", out)
	}
}
