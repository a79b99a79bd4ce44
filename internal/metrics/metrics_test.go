package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if crawlerPagesTotal == nil || crawlerBytesTotal == nil || crawlerRateLimitDelaySeconds == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil ||
		ingestTasksTotal == nil || ingestActiveTasks == nil || ingestChunksTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetch(t *testing.T) {
	Init()

	ok := crawlerPagesTotal.WithLabelValues("fetch.test", "ok")
	before := testutil.ToFloat64(ok)
	beforeBytes := testutil.ToFloat64(crawlerBytesTotal.WithLabelValues("fetch.test"))

	ObserveFetch("https://Fetch.test/a", "ok", 128)
	ObserveFetch("https://fetch.test/b", "error", 0)

	if got := testutil.ToFloat64(ok) - before; got != 1 {
		t.Errorf("expected one ok page, got %f", got)
	}
	if got := testutil.ToFloat64(crawlerBytesTotal.WithLabelValues("fetch.test")) - beforeBytes; got != 128 {
		t.Errorf("expected 128 bytes, got %f", got)
	}
}

func TestTaskMetrics(t *testing.T) {
	Init()

	completed := ingestTasksTotal.WithLabelValues("completed")
	before := testutil.ToFloat64(completed)
	activeBefore := testutil.ToFloat64(ingestActiveTasks)
	chunksBefore := testutil.ToFloat64(ingestChunksTotal)

	IncActiveTasks()
	if got := testutil.ToFloat64(ingestActiveTasks) - activeBefore; got != 1 {
		t.Errorf("expected active tasks to grow by 1, got %f", got)
	}
	DecActiveTasks()
	ObserveTask("completed")
	AddChunks(7)
	AddChunks(-1)

	if got := testutil.ToFloat64(completed) - before; got != 1 {
		t.Errorf("expected one completed task, got %f", got)
	}
	if got := testutil.ToFloat64(ingestActiveTasks); got != activeBefore {
		t.Errorf("expected active tasks to return to %f, got %f", activeBefore, got)
	}
	if got := testutil.ToFloat64(ingestChunksTotal) - chunksBefore; got != 7 {
		t.Errorf("expected 7 chunks, got %f", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
