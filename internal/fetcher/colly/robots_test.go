package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/siteingest/internal/metrics"
)

type scriptedTransport struct {
	steps []func() (*http.Response, error)
	calls int
}

func (s *scriptedTransport) RoundTrip(*http.Request) (*http.Response, error) {
	i := min(s.calls, len(s.steps)-1)
	s.calls++
	return s.steps[i]()
}

func timeoutStep() (*http.Response, error) { return nil, context.DeadlineExceeded }

func statusStep(code int) func() (*http.Response, error) {
	return func() (*http.Response, error) {
		return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader("Disallow: /"))}, nil
	}
}

func newRobotsTransport(base http.RoundTripper) *robotsTransport {
	metrics.Init()
	return &robotsTransport{
		base:    base,
		hosts:   newRobotsHosts(),
		backoff: []time.Duration{time.Millisecond, time.Millisecond},
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRobotsTransport_TimeoutsFallBackToAllowAll(t *testing.T) {
	t.Parallel()

	base := &scriptedTransport{steps: []func() (*http.Response, error){timeoutStep}}
	rt := newRobotsTransport(base)

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://docs.example/robots.txt", nil))
	require.NoError(t, err)
	require.Equal(t, allowAllRobots, readBody(t, resp))
	require.Equal(t, 3, base.calls)

	reason, fell := rt.hosts.fallbackFor("https://docs.example/guide")
	require.True(t, fell)
	require.Contains(t, reason, "timeout")

	// The host is remembered; later fetches skip the network.
	resp, err = rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://docs.example/robots.txt", nil))
	require.NoError(t, err)
	require.Equal(t, allowAllRobots, readBody(t, resp))
	require.Equal(t, 3, base.calls)

	_, fell = rt.hosts.fallbackFor("https://other.example/")
	require.False(t, fell)
}

func TestRobotsTransport_RetrySucceeds(t *testing.T) {
	t.Parallel()

	base := &scriptedTransport{steps: []func() (*http.Response, error){timeoutStep, statusStep(http.StatusOK)}}
	rt := newRobotsTransport(base)

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://docs.example/robots.txt", nil))
	require.NoError(t, err)
	require.Equal(t, "Disallow: /", readBody(t, resp))
	require.Equal(t, 2, base.calls)
	_, fell := rt.hosts.fallbackFor("https://docs.example/")
	require.False(t, fell)
}

func TestRobotsTransport_ServerErrorAllowsAll(t *testing.T) {
	t.Parallel()

	base := &scriptedTransport{steps: []func() (*http.Response, error){statusStep(http.StatusServiceUnavailable)}}
	rt := newRobotsTransport(base)

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://docs.example/robots.txt", nil))
	require.NoError(t, err)
	require.Equal(t, allowAllRobots, readBody(t, resp))
	reason, fell := rt.hosts.fallbackFor("https://docs.example/")
	require.True(t, fell)
	require.Equal(t, "robots.txt status 503", reason)
}

func TestRobotsTransport_PassesThroughOtherRequests(t *testing.T) {
	t.Parallel()

	refused := errors.New("connection refused")
	base := &scriptedTransport{steps: []func() (*http.Response, error){
		func() (*http.Response, error) { return nil, refused },
	}}
	rt := newRobotsTransport(base)

	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://docs.example/guide", nil))
	require.ErrorIs(t, err, refused)

	_, err = rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://docs.example/robots.txt", nil))
	require.ErrorIs(t, err, refused)
	require.Equal(t, 2, base.calls)
	_, fell := rt.hosts.fallbackFor("https://docs.example/")
	require.False(t, fell)
}
