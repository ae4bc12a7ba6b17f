package synth

import (
	"math"
	"testing"
)

func TestPCHIPPassesThroughKnots(t *testing.T) {
	x := []float64{0, 1, 2, 3}
	y := []float64{10, 12, 14, 20}
	p, err := NewPCHIP(x, y)
	if err != nil {
		t.Fatal(err)
	}
	for i, xi := range x {
		got := p.Eval(xi)
		if math.Abs(got-y[i]) > 1e-9 {
			t.Errorf("Eval(%v) = %v, want %v", xi, got, y[i])
		}
	}
}

func TestPCHIPMonotone(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4}
	y := []float64{0, 1, 1, 1, 5}
	p, err := NewPCHIP(x, y)
	if err != nil {
		t.Fatal(err)
	}
	// Between consecutive knots with equal y, the interpolant must stay
	// monotone non-decreasing (flat), never overshooting.
	prev := p.Eval(1.0)
	for xi := 1.0; xi <= 3.0; xi += 0.1 {
		v := p.Eval(xi)
		if v < prev-1e-9 {
			t.Fatalf("non-monotone dip at %v: %v < %v", xi, v, prev)
		}
		prev = v
	}
}

func TestPCHIPRejectsBadInput(t *testing.T) {
	if _, err := NewPCHIP([]float64{1}, []float64{1}); err == nil {
		t.Fatal("expected error for too few knots")
	}
	if _, err := NewPCHIP([]float64{1, 1}, []float64{1, 2}); err == nil {
		t.Fatal("expected error for non-increasing x")
	}
}
