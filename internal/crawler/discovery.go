package crawler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// commonDocPaths are probed when a site has no sitemap. These cover the
// usual homes of developer documentation.
var commonDocPaths = []string{
	"/docs", "/documentation", "/api", "/reference", "/guide",
	"/tutorial", "/getting-started", "/quickstart", "/api-reference",
	"/api-docs", "/developer", "/examples",
}

// docLinkKeywords qualify a same-host anchor as documentation-like.
var docLinkKeywords = []string{
	"doc", "api", "guide", "tutorial", "reference", "manual",
	"help", "example", "getting-started",
}

// FallbackDiscoverer finds crawl entry points for sites without a
// sitemap: well-known documentation paths plus documentation-looking
// links scraped from the seed page.
type FallbackDiscoverer struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewFallbackDiscoverer creates a discoverer.
func NewFallbackDiscoverer(userAgent string, timeout time.Duration, logger *slog.Logger) *FallbackDiscoverer {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &FallbackDiscoverer{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		timeout:   timeout,
		logger:    logger.With("component", "discovery"),
	}
}

// Discover returns candidate URLs beyond the seed itself. The seed is
// always crawled; these supplement the frontier.
func (d *FallbackDiscoverer) Discover(ctx context.Context, seedURL string) []string {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return nil
	}
	origin := seed.Scheme + "://" + seed.Host

	seen := make(map[string]bool)
	var urls []string
	add := func(u string) {
		if !seen[u] && u != seedURL {
			seen[u] = true
			urls = append(urls, u)
		}
	}

	for _, path := range commonDocPaths {
		candidate := origin + path
		if d.probe(ctx, candidate) {
			add(candidate)
		}
	}

	for _, link := range d.scrapeDocLinks(ctx, seed) {
		add(link)
	}

	d.logger.Debug("fallback discovery finished", "seed", seedURL, "found", len(urls))
	return urls
}

func (d *FallbackDiscoverer) probe(ctx context.Context, candidate string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, candidate, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// scrapeDocLinks fetches the seed page and collects same-host anchors
// whose URL or text mentions documentation.
func (d *FallbackDiscoverer) scrapeDocLinks(ctx context.Context, seed *url.URL) []string {
	collector := colly.NewCollector(
		colly.UserAgent(d.userAgent),
		colly.MaxDepth(1),
		colly.AllowedDomains(seed.Host),
		colly.StdlibContext(ctx),
	)
	collector.SetRequestTimeout(d.timeout)

	var links []string
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		abs := e.Request.AbsoluteURL(e.Attr("href"))
		if abs == "" {
			return
		}
		target, err := url.Parse(abs)
		if err != nil || target.Host != seed.Host {
			return
		}
		haystack := strings.ToLower(target.Path + " " + e.Text)
		for _, kw := range docLinkKeywords {
			if strings.Contains(haystack, kw) {
				target.Fragment = ""
				links = append(links, target.String())
				return
			}
		}
	})

	if err := collector.Visit(seed.String()); err != nil {
		d.logger.Debug("seed scrape failed", "url", seed.String(), "error", err)
		return nil
	}
	collector.Wait()
	return links
}
