package monitor

import "time"

// Gate lets a cycle through once at least Interval has elapsed since the
// previous one. The first cycle is due one interval after the start time.
type Gate struct {
	interval time.Duration
	last     time.Time
}

// NewGate creates a Gate whose clock starts at start.
func NewGate(interval time.Duration, start time.Time) *Gate {
	return &Gate{interval: interval, last: start}
}

// Due reports whether a cycle should run at now and, if so, records now as
// the last run.
func (g *Gate) Due(now time.Time) bool {
	if now.Sub(g.last) < g.interval {
		return false
	}
	g.last = now
	return true
}
