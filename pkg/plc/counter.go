// Package plc implements the PLC-style on-delay counter used by both
// automata (§4.7, §9), grounded on
// original_source/monapps/app_functions/helpers/utils/counters.go.
package plc

// Counter is an on-delay counter: it increments while Tick is called with
// cond=true, saturating at Preset and reporting Out=true once it reaches
// it; any cond=false tick resets it to zero and Out=false.
type Counter struct {
	Preset int
	count  int
	out    bool
}

// NewCounter returns a counter with the given preset (the tick count at
// which Out becomes true) and initial count.
func NewCounter(preset, initial int) *Counter {
	c := &Counter{Preset: preset, count: initial}
	c.out = c.count >= c.Preset
	return c
}

// Reset zeroes the counter and clears Out.
func (c *Counter) Reset() {
	c.count = 0
	c.out = false
}

// Tick advances the on-delay counter per cond and returns the new Out value.
func (c *Counter) Tick(cond bool) bool {
	if !cond {
		c.Reset()
		return c.out
	}
	if c.count < c.Preset {
		c.count++
	}
	c.out = c.count >= c.Preset
	return c.out
}

// Count returns the current internal count.
func (c *Counter) Count() int { return c.count }

// Out returns the counter's last computed output without ticking it.
func (c *Counter) Out() bool { return c.out }
