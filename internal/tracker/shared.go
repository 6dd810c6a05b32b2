package tracker

import "sync"

var (
	sharedOnce sync.Once
	shared     *Tracker
)

// Shared returns the process-wide tracker, calling build only the first time.
// Every view of the agent attaches to this one instance so that remounting a view
// never opens a second watch.
func Shared(build func() *Tracker) *Tracker {
	sharedOnce.Do(func() {
		shared = build()
	})
	return shared
}
