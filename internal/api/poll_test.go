package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/siteingest/internal/crawler"
)

func TestSnapshotCache(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	cache := newSnapshotCache(clock, 2*time.Second)

	first := crawler.Task{ID: "t", State: crawler.TaskStateCrawling, PagesScraped: 1}
	require.Equal(t, first, cache.serve("alice", first))

	newer := crawler.Task{ID: "t", State: crawler.TaskStateProcessing, PagesScraped: 5}
	clock.Advance(time.Second)
	require.Equal(t, first, cache.serve("alice", newer))
	require.Equal(t, newer, cache.serve("bob", newer), "entries are per user")

	clock.Advance(time.Second)
	require.Equal(t, newer, cache.serve("alice", newer))

	done := crawler.Task{ID: "t", State: crawler.TaskStateCompleted, IsCompleted: true}
	require.Equal(t, done, cache.serve("alice", done))
	require.NotContains(t, cache.entries, "alice/t")
}

func TestSnapshotCache_Disabled(t *testing.T) {
	t.Parallel()

	cache := newSnapshotCache(nil, 0)
	a := crawler.Task{ID: "t", State: crawler.TaskStateCrawling, PagesScraped: 1}
	b := crawler.Task{ID: "t", State: crawler.TaskStateCrawling, PagesScraped: 2}
	require.Equal(t, a, cache.serve("alice", a))
	require.Equal(t, b, cache.serve("alice", b))
	require.Empty(t, cache.entries)
}

func TestSnapshotCache_Sweep(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	cache := newSnapshotCache(clock, time.Second)
	cache.entries["old/t"] = servedSnapshot{servedAt: clock.Now()}
	clock.Advance(2 * time.Second)
	cache.sweep(clock.Now())
	require.Empty(t, cache.entries)
}
