package crawler

import (
	"context"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxSitemapDepth caps sitemap-index recursion. An index pointing at
// another index pointing at sitemaps is the deepest real-world shape.
const maxSitemapDepth = 2

// wellKnownSitemapPaths are probed when robots.txt declares no sitemap.
var wellKnownSitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemaps.xml",
	"/sitemap/sitemap.xml",
}

type sitemapURLSet struct {
	XMLName xml.Name        `xml:"urlset"`
	URLs    []sitemapURLRef `xml:"url"`
}

type sitemapURLRef struct {
	Loc string `xml:"loc"`
}

type sitemapIndex struct {
	XMLName  xml.Name        `xml:"sitemapindex"`
	Sitemaps []sitemapURLRef `xml:"sitemap"`
}

// SitemapDiscoverer locates and parses sitemaps for a seed URL.
type SitemapDiscoverer struct {
	client    *http.Client
	robots    *RobotsCache
	userAgent string
	logger    *slog.Logger
}

// NewSitemapDiscoverer creates a discoverer that consults robots.txt
// first and falls back to well-known sitemap locations.
func NewSitemapDiscoverer(robots *RobotsCache, userAgent string, timeout time.Duration, logger *slog.Logger) *SitemapDiscoverer {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &SitemapDiscoverer{
		client:    &http.Client{Timeout: timeout},
		robots:    robots,
		userAgent: userAgent,
		logger:    logger.With("component", "sitemap"),
	}
}

// Discover returns the page URLs listed in the site's sitemaps and
// whether any sitemap was found. URLs outside the seed's host are
// dropped.
func (d *SitemapDiscoverer) Discover(ctx context.Context, seedURL string) ([]string, bool) {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return nil, false
	}

	candidates := d.robots.Sitemaps(ctx, seedURL)
	if len(candidates) == 0 {
		origin := seed.Scheme + "://" + seed.Host
		for _, path := range wellKnownSitemapPaths {
			candidate := origin + path
			if d.probe(ctx, candidate) {
				candidates = append(candidates, candidate)
				break
			}
		}
	}

	if len(candidates) == 0 {
		return nil, false
	}

	seen := make(map[string]bool)
	var urls []string
	for _, sitemapURL := range candidates {
		for _, u := range d.fetchSitemap(ctx, sitemapURL, 0) {
			parsed, err := url.Parse(u)
			if err != nil || parsed.Host != seed.Host {
				continue
			}
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}

	d.logger.Info("sitemap discovery finished",
		"seed", seedURL, "sitemaps", len(candidates), "urls", len(urls))
	return urls, len(urls) > 0
}

// probe issues a HEAD request and accepts only a clean 200.
func (d *SitemapDiscoverer) probe(ctx context.Context, sitemapURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, sitemapURL, nil)
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

// fetchSitemap downloads one sitemap document and returns the page URLs
// it lists, recursing into sitemap indexes up to maxSitemapDepth.
func (d *SitemapDiscoverer) fetchSitemap(ctx context.Context, sitemapURL string, depth int) []string {
	if depth > maxSitemapDepth {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Debug("sitemap fetch failed", "url", sitemapURL, "error", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil
	}

	// Some servers answer missing sitemaps with a 200 HTML error page.
	if looksLikeHTML(resp.Header.Get("Content-Type"), body) {
		d.logger.Debug("sitemap response is HTML, skipping", "url", sitemapURL)
		return nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		var urls []string
		for _, child := range index.Sitemaps {
			loc := strings.TrimSpace(child.Loc)
			if loc == "" {
				continue
			}
			urls = append(urls, d.fetchSitemap(ctx, loc, depth+1)...)
		}
		return urls
	}

	var urlset sitemapURLSet
	if err := xml.Unmarshal(body, &urlset); err != nil {
		d.logger.Debug("sitemap parse failed", "url", sitemapURL, "error", err)
		return nil
	}

	var urls []string
	for _, ref := range urlset.URLs {
		loc := strings.TrimSpace(ref.Loc)
		if loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls
}

func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	head := strings.TrimSpace(string(body[:min(len(body), 256)]))
	lower := strings.ToLower(head)
	return strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html")
}
