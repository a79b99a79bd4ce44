package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/siteingest/internal/metrics"
)

const allowAllRobots = "User-agent: *\nAllow: /"

var robotsBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsHosts remembers hosts whose robots.txt could not be read. A crawl
// hits one authority many times, so the retry cost is paid once per host.
type robotsHosts struct {
	mu      sync.Mutex
	reasons map[string]string
}

func newRobotsHosts() *robotsHosts {
	return &robotsHosts{reasons: make(map[string]string)}
}

func (h *robotsHosts) lookup(host string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	reason, ok := h.reasons[host]
	return reason, ok
}

// fallbackFor reports whether rawURL's host is fetched under allow-all.
func (h *robotsHosts) fallbackFor(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	return h.lookup(u.Host)
}

func (h *robotsHosts) remember(host, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.reasons[host]; ok {
		return
	}
	h.reasons[host] = reason
	metrics.ObserveRobotsFallback()
}

// robotsTransport retries robots.txt on timeouts and serves allow-all when the
// file stays unreachable or the server errors. Other requests pass through.
// One instance serves every fetch of a Fetcher concurrently.
type robotsTransport struct {
	base    http.RoundTripper
	hosts   *robotsHosts
	backoff []time.Duration
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots transport: nil request")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		return t.base.RoundTrip(req)
	}

	host := req.URL.Host
	if _, ok := t.hosts.lookup(host); ok {
		return allowAll(req), nil
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			if resp.StatusCode >= http.StatusInternalServerError {
				reason := fmt.Sprintf("robots.txt status %d", resp.StatusCode)
				_ = resp.Body.Close()
				return t.fallBack(req, reason), nil
			}
			return resp, nil
		}
		if !isTimeout(err) {
			return nil, fmt.Errorf("fetch robots.txt: %w", err)
		}
		lastErr = err
		if attempt >= len(t.backoff) {
			break
		}
		if err := sleepContext(req.Context(), t.backoff[attempt]); err != nil {
			return nil, fmt.Errorf("fetch robots.txt: %w", err)
		}
	}
	return t.fallBack(req, "robots.txt timeout: "+lastErr.Error()), nil
}

func (t *robotsTransport) fallBack(req *http.Request, reason string) *http.Response {
	t.hosts.remember(req.URL.Host, reason)
	return allowAll(req)
}

func allowAll(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
