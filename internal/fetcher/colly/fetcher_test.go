package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/siteingest/internal/crawler"
	"github.com/JakeFAU/siteingest/internal/metrics"
	"github.com/JakeFAU/siteingest/internal/policy/ratelimit"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>" + r.UserAgent() + "</p></body></html>"))
	})
	mux.HandleFunc("/accepted", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("<p>accepted body</p>"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<p>not here</p>"))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte("<p>too late</p>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	f := New(Config{}, nil, nil)
	page := f.Fetch(context.Background(), srv.URL+"/ok")
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, page.Body, DefaultUserAgent)
	require.Equal(t, srv.URL+"/ok", page.URL)
}

func TestFetch_AcceptsAny2xx(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	page := New(Config{}, nil, nil).Fetch(context.Background(), srv.URL+"/accepted")
	require.Equal(t, http.StatusAccepted, page.StatusCode)
	require.Contains(t, page.Body, "accepted body")
}

func TestFetch_FailuresYieldEmptyPage(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	f := New(Config{Timeout: 100 * time.Millisecond}, nil, nil)
	for _, path := range []string{"/missing", "/broken", "/slow"} {
		page := f.Fetch(context.Background(), srv.URL+path)
		require.True(t, page.Empty(), path)
		require.Equal(t, srv.URL+path, page.URL)
	}
	require.True(t, f.Fetch(context.Background(), "http://127.0.0.1:1/unreachable").Empty())
	require.True(t, f.Fetch(context.Background(), "::not a url").Empty())
}

func TestFetch_SameURLTwice(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	f := New(Config{UserAgent: "test-agent"}, nil, nil)
	for i := 0; i < 2; i++ {
		page := f.Fetch(context.Background(), srv.URL+"/ok")
		require.Contains(t, page.Body, "test-agent")
	}
}

func TestFetch_CanceledContext(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	page := New(Config{}, ratelimit.New(ratelimit.Config{RequestsPerSecond: 1}), nil).Fetch(ctx, srv.URL+"/ok")
	require.True(t, page.Empty())
}

type countingWaiter struct {
	calls atomic.Int32
	err   error
}

func (w *countingWaiter) Wait(context.Context) error {
	w.calls.Add(1)
	return w.err
}

func TestFetch_WaitsOnLimiter(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	w := &countingWaiter{}
	f := New(Config{}, w, nil)
	require.False(t, f.Fetch(context.Background(), srv.URL+"/ok").Empty())
	require.EqualValues(t, 1, w.calls.Load())

	w.err = errors.New("limiter closed")
	require.True(t, f.Fetch(context.Background(), srv.URL+"/ok").Empty())
}

func TestFetch_SharedLimiterSpacesRequests(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		hits []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		mu.Unlock()
		_, _ = w.Write([]byte("<p>hello there</p>"))
	}))
	t.Cleanup(srv.Close)

	limiter := ratelimit.New(ratelimit.Config{RequestsPerSecond: 10})
	a := New(Config{}, limiter, nil)
	b := New(Config{}, limiter, nil)

	done := make(chan crawler.Page, 4)
	for i := 0; i < 2; i++ {
		go func() { done <- a.Fetch(context.Background(), srv.URL+"/a") }()
		go func() { done <- b.Fetch(context.Background(), srv.URL+"/b") }()
	}
	for i := 0; i < 4; i++ {
		require.False(t, (<-done).Empty())
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, hits, 4)
	first, last := hits[0], hits[0]
	for _, h := range hits {
		if h.Before(first) {
			first = h
		}
		if h.After(last) {
			last = h
		}
	}
	require.GreaterOrEqual(t, last.Sub(first), 250*time.Millisecond)
}

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: true, Timeout: time.Second, MaxBodyBytes: 1024}, nil, nil)
	collector := f.buildCollector(context.Background(), &crawler.Page{}, new(error))
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.False(t, collector.IgnoreRobotsTxt)
	require.True(t, collector.AllowURLRevisit)
	require.Equal(t, 1024, collector.MaxBodySize)
	require.NotSame(t, f.baseCollector, collector)

	f = New(Config{}, nil, nil)
	collector = f.buildCollector(context.Background(), &crawler.Page{}, new(error))
	require.True(t, collector.IgnoreRobotsTxt)
}

// newLinkedSite serves an index linking to n leaf pages plus a robots.txt
// that allows everything.
func newLinkedSite(t *testing.T, n int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nAllow: /\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			_, _ = fmt.Fprintf(w, "<html><body><p>Leaf page %s has some text.</p></body></html>", r.URL.Path)
			return
		}
		var b strings.Builder
		b.WriteString("<html><body>")
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, `<a href="/page-%d">page %d</a>`, i, i)
		}
		b.WriteString("</body></html>")
		_, _ = w.Write([]byte(b.String()))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_ConcurrentCallsShareOneFetcher(t *testing.T) {
	t.Parallel()

	for _, respectRobots := range []bool{false, true} {
		srv := newLinkedSite(t, 5)
		f := New(Config{RespectRobots: respectRobots, Timeout: 2 * time.Second}, nil, nil)

		var wg sync.WaitGroup
		pages := make([]crawler.Page, 5)
		for i := range pages {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pages[i] = f.Fetch(context.Background(), fmt.Sprintf("%s/page-%d", srv.URL, i))
			}()
		}
		wg.Wait()
		for i, page := range pages {
			require.False(t, page.Empty(), "robots=%v page %d", respectRobots, i)
			require.Contains(t, page.Body, fmt.Sprintf("/page-%d", i))
		}
	}
}

func TestCrawlerOverCollyFetcher(t *testing.T) {
	t.Parallel()

	srv := newLinkedSite(t, 6)
	c := crawler.New(New(Config{RespectRobots: true, Timeout: 2 * time.Second}, nil, nil), crawler.Config{}, nil)

	pages, err := c.Crawl(context.Background(), srv.URL+"/", 0)
	require.NoError(t, err)
	require.Len(t, pages, 7)
	for i := 0; i < 6; i++ {
		require.Contains(t, pages[fmt.Sprintf("%s/page-%d", srv.URL, i)], "has some text")
	}
}

func TestNewRegistersMetrics(t *testing.T) {
	t.Parallel()

	srv := newLinkedSite(t, 1)
	f := New(Config{}, nil, nil)
	require.NotPanics(t, func() {
		require.False(t, f.Fetch(context.Background(), srv.URL+"/page-0").Empty())
	})
	require.NotPanics(t, func() { metrics.ObserveRobotsFallback() })
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil, nil)
	var result crawler.Page
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.NotEmpty(t, collyReq.Headers.Get("Accept"))
	require.NotEmpty(t, collyReq.Headers.Get("Accept-Language"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.com"),
		},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", result.Body)

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
	require.Equal(t, http.StatusBadGateway, result.StatusCode)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
