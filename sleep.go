package sop

import "time"

// Now returns the current time. It exists as a single indirection point so a
// future test can substitute a fixed clock without touching every caller
// that stamps a Handle's WorkInProgressTimestamp or measures elapsed time.
func Now() time.Time {
	return time.Now()
}
