package api

import (
	"sync"
	"time"

	"github.com/JakeFAU/siteingest/internal/crawler"
)

// maxCachedSnapshots triggers a sweep of expired entries.
const maxCachedSnapshots = 4096

type servedSnapshot struct {
	task     crawler.Task
	servedAt time.Time
}

// snapshotCache debounces progress polls: a running task polled again within
// window gets the snapshot it was last served. Terminal tasks always pass
// through fresh.
type snapshotCache struct {
	mu      sync.Mutex
	now     func() time.Time
	window  time.Duration
	entries map[string]servedSnapshot
}

func newSnapshotCache(clock crawler.Clock, window time.Duration) *snapshotCache {
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &snapshotCache{
		now:     now,
		window:  window,
		entries: make(map[string]servedSnapshot),
	}
}

func (c *snapshotCache) serve(userID string, current crawler.Task) crawler.Task {
	key := userID + "/" + current.ID
	c.mu.Lock()
	defer c.mu.Unlock()

	if current.State.Terminal() || c.window <= 0 {
		delete(c.entries, key)
		return current
	}
	now := c.now()
	if prev, ok := c.entries[key]; ok && now.Sub(prev.servedAt) < c.window {
		return prev.task
	}
	if len(c.entries) >= maxCachedSnapshots {
		c.sweep(now)
	}
	c.entries[key] = servedSnapshot{task: current, servedAt: now}
	return current
}

// sweep drops expired entries. Callers hold c.mu.
func (c *snapshotCache) sweep(now time.Time) {
	for key, entry := range c.entries {
		if now.Sub(entry.servedAt) >= c.window {
			delete(c.entries, key)
		}
	}
}
