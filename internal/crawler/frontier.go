package crawler

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/siteingest/internal/extract"
)

// DefaultBatchWidth is the number of URLs fetched concurrently per batch.
const DefaultBatchWidth = 5

// Config controls the frontier crawler.
type Config struct {
	BatchWidth int
}

// Crawler walks a single site breadth-first starting at one URL.
type Crawler struct {
	fetcher Fetcher
	width   int
	logger  *zap.Logger
}

// New builds a Crawler around fetcher.
func New(fetcher Fetcher, cfg Config, logger *zap.Logger) *Crawler {
	width := cfg.BatchWidth
	if width <= 0 {
		width = DefaultBatchWidth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		fetcher: fetcher,
		width:   width,
		logger:  logger.Named("crawler"),
	}
}

// frontier holds the per-run queue state. It is owned by the Crawl goroutine.
type frontier struct {
	queue   []*url.URL
	queued  map[string]struct{}
	visited map[string]struct{}
}

func newFrontier(start *url.URL) *frontier {
	return &frontier{
		queue:   []*url.URL{start},
		queued:  map[string]struct{}{start.String(): {}},
		visited: make(map[string]struct{}),
	}
}

func (f *frontier) next(n int) []*url.URL {
	batch := make([]*url.URL, 0, n)
	for len(f.queue) > 0 && len(batch) < n {
		u := f.queue[0]
		f.queue = f.queue[1:]
		if _, seen := f.visited[u.String()]; seen {
			continue
		}
		batch = append(batch, u)
	}
	return batch
}

func (f *frontier) push(u *url.URL) {
	key := u.String()
	if _, ok := f.visited[key]; ok {
		return
	}
	if _, ok := f.queued[key]; ok {
		return
	}
	f.queued[key] = struct{}{}
	f.queue = append(f.queue, u)
}

// Crawl fetches pages reachable from startURL on the same authority and
// returns their bodies keyed by URL. maxPages <= 0 disables the cap.
//
// An error is returned only for an invalid start URL, or when ctx is done
// before any page was recorded.
func (c *Crawler) Crawl(ctx context.Context, startURL string, maxPages int) (map[string]string, error) {
	return c.CrawlWithProgress(ctx, startURL, maxPages, nil)
}

// CrawlWithProgress is Crawl with onPage called, from the crawling goroutine,
// with the visited count after every recorded page.
func (c *Crawler) CrawlWithProgress(
	ctx context.Context,
	startURL string,
	maxPages int,
	onPage func(visited int),
) (map[string]string, error) {
	start, err := ParseStartURL(startURL)
	if err != nil {
		return nil, fmt.Errorf("crawl start url: %w", err)
	}
	logger := c.logger.With(zap.String("url", start.String()), zap.Int("max_pages", maxPages))
	logger.Info("crawl started")

	f := newFrontier(start)
	pages := make(map[string]string)
	for len(f.queue) > 0 {
		if ctx.Err() != nil {
			break
		}
		width := c.width
		if maxPages > 0 {
			remaining := maxPages - len(f.visited)
			if remaining <= 0 {
				break
			}
			width = min(width, remaining)
		}
		batch := f.next(width)
		if len(batch) == 0 {
			continue
		}

		for i, page := range c.fetchBatch(ctx, batch) {
			if page.Empty() {
				continue
			}
			if maxPages > 0 && len(f.visited) >= maxPages {
				break
			}
			key := batch[i].String()
			f.visited[key] = struct{}{}
			pages[key] = page.Body
			if onPage != nil {
				onPage(len(f.visited))
			}
			c.enqueueLinks(f, start, batch[i], page.Body)
		}
	}

	if len(pages) == 0 && ctx.Err() != nil {
		return nil, fmt.Errorf("crawl canceled: %w", ctx.Err())
	}
	logger.Info("crawl finished", zap.Int("pages", len(pages)), zap.Int("pending", len(f.queue)))
	return pages, nil
}

func (c *Crawler) fetchBatch(ctx context.Context, batch []*url.URL) []Page {
	results := make([]Page, len(batch))
	var g errgroup.Group
	g.SetLimit(len(batch))
	for i, u := range batch {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					c.logger.Error("fetch panicked", zap.String("url", u.String()), zap.Any("panic", rec))
					results[i] = Page{URL: u.String()}
				}
			}()
			results[i] = c.fetcher.Fetch(ctx, u.String())
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Crawler) enqueueLinks(f *frontier, start, base *url.URL, body string) {
	for _, href := range extract.Links(body) {
		if ShouldSkip(href) {
			continue
		}
		link, ok := ResolveLink(base, href)
		if !ok || !SameAuthority(start, link) {
			continue
		}
		if ShouldSkip(link.String()) {
			continue
		}
		f.push(link)
	}
}
