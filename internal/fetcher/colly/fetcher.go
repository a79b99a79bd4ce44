// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/siteingest/internal/crawler"
	"github.com/JakeFAU/siteingest/internal/metrics"
)

// DefaultUserAgent is a realistic desktop browser string; some sites refuse
// obvious bot agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// DefaultTimeout bounds a single fetch end to end.
const DefaultTimeout = 10 * time.Second

var errStatus = errors.New("unexpected status")

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxBodyBytes  int
}

// Waiter gates every dispatch. *ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Fetcher implements crawler.Fetcher using the Colly collector. Fetch failures
// are logged and reported as empty pages.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	robots        *robotsHosts
	limiter       Waiter
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. limiter may be nil to disable throttling.
func New(cfg Config, limiter Waiter, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	metrics.Init()

	c := colly.NewCollector(colly.Async(false))
	transport := newHTTPTransport()
	robots := newRobotsHosts()
	// Clones share the base collector's http.Client, so the transport and
	// timeout are fixed here and never touched per fetch.
	if cfg.RespectRobots {
		c.WithTransport(&robotsTransport{
			base:    transport,
			hosts:   robots,
			backoff: robotsBackoff,
		})
	} else {
		c.WithTransport(transport)
	}
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		robots:        robots,
		limiter:       limiter,
		logger:        logger.Named("fetcher"),
	}
}

// Fetch waits on the shared limiter, then executes a single HTTP GET. Only
// 2xx responses produce a body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) crawler.Page {
	page, err := f.fetch(ctx, rawURL)
	if err != nil {
		f.logger.Warn("fetch failed", zap.String("url", rawURL), zap.Int("status", page.StatusCode), zap.Error(err))
		metrics.ObserveFetch(rawURL, "error", 0)
		return crawler.Page{URL: rawURL, StatusCode: page.StatusCode}
	}
	metrics.ObserveFetch(rawURL, "ok", len(page.Body))
	return page
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (crawler.Page, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return crawler.Page{}, err
		}
	}

	var (
		result   crawler.Page
		fetchErr error
	)
	collector := f.buildCollector(ctx, &result, &fetchErr)
	err := f.runCollector(ctx, collector, rawURL, &fetchErr)
	if f.cfg.RespectRobots {
		if reason, ok := f.robots.fallbackFor(rawURL); ok {
			f.logger.Debug("robots.txt unavailable, allowing fetch", zap.String("url", rawURL), zap.String("reason", reason))
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			// The visit goroutine may still be writing result.
			return crawler.Page{}, err
		}
		return result, err
	}
	if result.StatusCode < http.StatusOK || result.StatusCode >= http.StatusMultipleChoices {
		return result, fmt.Errorf("%w %d", errStatus, result.StatusCode)
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	result *crawler.Page,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	collector.UserAgent = f.cfg.UserAgent
	// Deduplication belongs to the frontier; clones share visit storage.
	collector.AllowURLRevisit = true
	// Non-2xx responses are surfaced through OnResponse and judged in fetch.
	collector.ParseHTTPErrorResponse = true
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	if f.cfg.MaxBodyBytes > 0 {
		collector.MaxBodySize = f.cfg.MaxBodyBytes
	}

	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	result *crawler.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.5")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = crawler.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       string(r.Body),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
