// Package alert implements the NORMAL/FULL state machine that drives the
// indicators and decides when a notification is due.
package alert

import "binwatch/internal/types"

// Snapshot is the state carried from one cycle to the next.
//
// AlertSent records whether a notification has been attempted for the current
// above-threshold episode. It is only ever true while State is FULL.
type Snapshot struct {
	State     types.BinState `json:"state"`
	AlertSent bool           `json:"alert_sent"`
	Fill      int            `json:"fill_percent"`
}

// Initial is the state before the first valid reading.
func Initial() Snapshot {
	return Snapshot{State: types.BinStateNormal}
}

// Decide computes the next snapshot for a fill percentage and reports whether
// a notification must be attempted.
//
// A fill at or above threshold is FULL; the first FULL cycle of an episode
// asks for exactly one notification and latches AlertSent whatever the
// outcome of that attempt. The first cycle below threshold ends the episode
// and clears AlertSent.
func Decide(prev Snapshot, fill, threshold int) (next Snapshot, notify bool) {
	if fill >= threshold {
		return Snapshot{State: types.BinStateFull, AlertSent: true, Fill: fill}, !prev.AlertSent
	}
	return Snapshot{State: types.BinStateNormal, AlertSent: false, Fill: fill}, false
}
