// Package clock provides the wall-clock source used across the service and
// the presentation timezone for API responses.
package clock

import "time"

// IST is the presentation timezone (Asia/Kolkata) used when serializing
// timestamps to API clients. Storage always keeps zone-aware instants.
var IST = loadIST()

func loadIST() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback for environments without tzdata installed.
		return time.FixedZone("IST", 5*3600+30*60)
	}
	return loc
}

// Clock supplies the current wall-clock time. Injecting it keeps the
// ingest and processing paths deterministic under test.
type Clock interface {
	Now() time.Time
}

// System is the production clock. It returns UTC instants.
type System struct{}

// Now returns the current time in UTC.
func (System) Now() time.Time { return time.Now().UTC() }

// Fixed is a clock frozen at a single instant, for tests.
type Fixed time.Time

// Now returns the frozen instant.
func (f Fixed) Now() time.Time { return time.Time(f) }

// InIST converts t to the presentation timezone.
func InIST(t time.Time) time.Time { return t.In(IST) }
