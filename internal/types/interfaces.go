package types

import "time"

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time.
//
// The monotonic reading is kept so interval gating is immune to wall-clock
// steps (NTP sync after WiFi association is common on boards without an RTC).
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }
