package plc

import "testing"

func TestCounterSaturatesAndResets(t *testing.T) {
	c := NewCounter(3, 0)

	for i, want := range []bool{false, false, true, true} {
		got := c.Tick(true)
		if got != want {
			t.Fatalf("tick %d: Tick(true) = %v, want %v", i, got, want)
		}
	}
	if c.Count() != 3 {
		t.Fatalf("count should saturate at preset, got %d", c.Count())
	}

	if got := c.Tick(false); got != false {
		t.Fatalf("Tick(false) = %v, want false", got)
	}
	if c.Count() != 0 {
		t.Fatalf("count should reset to 0, got %d", c.Count())
	}
}

func TestNewCounterWithInitial(t *testing.T) {
	c := NewCounter(2, 2)
	if !c.Out() {
		t.Fatal("expected Out=true when initial count already meets preset")
	}
}
