package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsCache fetches and caches robots.txt per origin. Lookups for the
// same origin are single-flighted so concurrent crawls of one host issue
// at most one robots fetch.
//
// Failure policy: a missing robots.txt (404) or a transient fetch error
// both mean "allow everything". Only an explicit Disallow blocks a URL.
type RobotsCache struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string]*robotsEntry
}

type robotsEntry struct {
	once     sync.Once
	data     *robotstxt.RobotsData
	sitemaps []string
}

// NewRobotsCache creates a cache that fetches robots.txt with the given
// identity and timeout.
func NewRobotsCache(userAgent string, timeout time.Duration, logger *slog.Logger) *RobotsCache {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &RobotsCache{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger.With("component", "robots"),
		entries:   make(map[string]*robotsEntry),
	}
}

// Allowed reports whether the crawler may fetch rawURL.
func (c *RobotsCache) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	entry := c.lookup(ctx, u)
	if entry.data == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return entry.data.FindGroup(c.userAgent).Test(path)
}

// CrawlDelay returns the Crawl-delay directive for our agent on the
// URL's origin, or zero when none is declared.
func (c *RobotsCache) CrawlDelay(ctx context.Context, rawURL string) time.Duration {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}

	entry := c.lookup(ctx, u)
	if entry.data == nil {
		return 0
	}
	return entry.data.FindGroup(c.userAgent).CrawlDelay
}

// Sitemaps returns the sitemap URLs declared in the origin's robots.txt.
func (c *RobotsCache) Sitemaps(ctx context.Context, rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return c.lookup(ctx, u).sitemaps
}

func (c *RobotsCache) lookup(ctx context.Context, u *url.URL) *robotsEntry {
	origin := u.Scheme + "://" + u.Host

	c.mu.Lock()
	entry, ok := c.entries[origin]
	if !ok {
		entry = &robotsEntry{}
		c.entries[origin] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		data, err := c.fetch(ctx, origin)
		if err != nil {
			// Treat fetch failure as permissive. The entry stays cached
			// so a flaky host is not hammered with robots retries.
			c.logger.Debug("robots fetch failed, allowing all",
				"origin", origin, "error", err)
			return
		}
		entry.data = data
		entry.sitemaps = data.Sitemaps
	})

	return entry
}

func (c *RobotsCache) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse robots.txt: %w", err)
	}
	return data, nil
}
