package usage

import "time"

// cleanupInterval is how often the retention sweep removes expired entries
// from backends that cannot expire rows on their own.
const cleanupInterval = 1 * time.Hour

// runCleanupLoop calls sweep once right away, so stale rows left by a
// previous run are purged at startup, and then on every tick until stop
// is closed. SQLite and PostgreSQL stores run this in a goroutine; the
// MongoDB store relies on its TTL index instead.
func runCleanupLoop(stop <-chan struct{}, sweep func()) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	sweep()

	for {
		select {
		case <-ticker.C:
			sweep()
		case <-stop:
			return
		}
	}
}
