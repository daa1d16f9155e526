package emmer

import "time"

// clockFunc is injected into conversations and the maintainer so tests can
// control the passage of time instead of sleeping real seconds. The reactor
// always hands defaultClock to the conversations it creates.
type clockFunc func() time.Time

func defaultClock() time.Time {
	return time.Now()
}
