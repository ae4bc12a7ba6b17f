package synth

import "github.com/DmytroIE/Monapps-v5/internal/apperrors"

// PCHIP is a monotone cubic Hermite interpolant (Fritsch-Carlson
// derivative estimator), required by the CONTINUOUS+AVG restoration path
// (§4.5) to reproduce the original's scipy-based spline restoration to
// within 1e-9 (§9 "Scientific dependency"). Hand-rolled: no library in the
// retrieval pack offers PCHIP with scipy's specific derivative estimator —
// see DESIGN.md's justified stdlib exception.
type PCHIP struct {
	x, y, d []float64
}

// NewPCHIP builds a PCHIP interpolant over knots (x, y), which must be
// strictly increasing in x and have matching lengths >= 2.
func NewPCHIP(x, y []float64) (*PCHIP, error) {
	n := len(x)
	if n != len(y) {
		return nil, apperrors.NewValidationErrorf("pchip: x and y length mismatch (%d vs %d)", n, len(y))
	}
	if n < 2 {
		return nil, apperrors.NewValidationErrorf("pchip: need at least 2 knots, got %d", n)
	}
	for i := 1; i < n; i++ {
		if x[i] <= x[i-1] {
			return nil, apperrors.NewValidationErrorf("pchip: x must be strictly increasing at index %d", i)
		}
	}

	h := make([]float64, n-1)
	delta := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		h[i] = x[i+1] - x[i]
		delta[i] = (y[i+1] - y[i]) / h[i]
	}

	d := make([]float64, n)
	if n == 2 {
		d[0] = delta[0]
		d[1] = delta[0]
		return &PCHIP{x: x, y: y, d: d}, nil
	}

	for i := 1; i < n-1; i++ {
		if sign(delta[i-1]) != sign(delta[i]) || delta[i-1] == 0 || delta[i] == 0 {
			d[i] = 0
			continue
		}
		w1 := 2*h[i] + h[i-1]
		w2 := h[i] + 2*h[i-1]
		d[i] = (w1 + w2) / (w1/delta[i-1] + w2/delta[i])
	}

	d[0] = edgeDerivative(h[0], h[1], delta[0], delta[1])
	d[n-1] = edgeDerivative(h[n-2], h[n-3], delta[n-2], delta[n-3])

	return &PCHIP{x: x, y: y, d: d}, nil
}

// edgeDerivative implements scipy's non-centered, shape-preserving
// three-point estimate for the first (or, by symmetry, last) derivative.
func edgeDerivative(h0, h1, delta0, delta1 float64) float64 {
	d := ((2*h0 + h1) * delta0 - h0*delta1) / (h0 + h1)
	if sign(d) != sign(delta0) {
		d = 0
	} else if sign(delta0) != sign(delta1) && absf(d) > 3*absf(delta0) {
		d = 3 * delta0
	}
	return d
}

// Eval evaluates the interpolant at xi, which must lie within [x[0], x[n-1]].
func (p *PCHIP) Eval(xi float64) float64 {
	n := len(p.x)
	// Binary search for the interval containing xi.
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if p.x[mid] <= xi {
			lo = mid
		} else {
			hi = mid
		}
	}
	h := p.x[hi] - p.x[lo]
	t := (xi - p.x[lo]) / h

	h00 := 2*t*t*t - 3*t*t + 1
	h10 := t*t*t - 2*t*t + t
	h01 := -2*t*t*t + 3*t*t
	h11 := t*t*t - t*t

	return h00*p.y[lo] + h10*h*p.d[lo] + h01*p.y[hi] + h11*h*p.d[hi]
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
