package crawler

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmylchreest/llmtxt-api/internal/models"
)

// localePathRe matches locale prefixes like /fr/, /de-DE/ or /zh_hans/.
var localePathRe = regexp.MustCompile(`^[a-z]{2}([-_][a-z]{2,4})?$`)

// skipExtensions are URL suffixes that never yield HTML documentation.
var skipExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".zip": true, ".tar": true, ".gz": true,
	".rar": true, ".7z": true, ".jpg": true, ".jpeg": true, ".png": true,
	".gif": true, ".bmp": true, ".svg": true, ".mp3": true, ".mp4": true,
	".avi": true, ".mov": true, ".wav": true, ".css": true, ".js": true,
	".json": true, ".xml": true, ".txt": true,
}

// Progress reports crawl advancement to the caller.
type Progress struct {
	CurrentURL      string
	PagesProcessed  int
	PagesDiscovered int
}

// ProgressFunc receives progress updates during a crawl.
type ProgressFunc func(Progress)

// Engine runs a breadth-first crawl rooted at a seed URL, bounded by
// page count, depth and politeness settings.
type Engine struct {
	opts     models.CrawlConfig
	fetcher  *Fetcher
	extract  *Extractor
	robots   *RobotsCache
	sitemap  *SitemapDiscoverer
	fallback *FallbackDiscoverer
	logger   *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewEngine builds a crawl engine from options.
func NewEngine(opts models.CrawlConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "crawler")

	robots := NewRobotsCache(opts.UserAgent, opts.Timeout, logger)
	return &Engine{
		opts:     opts,
		fetcher:  NewFetcher(opts),
		extract:  NewExtractor(opts.Language),
		robots:   robots,
		sitemap:  NewSitemapDiscoverer(robots, opts.UserAgent, opts.Timeout, logger),
		fallback: NewFallbackDiscoverer(opts.UserAgent, opts.Timeout, logger),
		logger:   logger,
	}
}

// Crawl walks the site breadth-first from seedURL. Returns the pages
// collected so far together with ctx.Err() when the context is
// cancelled mid-crawl; the partial result is still usable.
func (e *Engine) Crawl(ctx context.Context, seedURL string, onProgress ProgressFunc) (*models.CrawlResult, error) {
	start := time.Now()
	result := &models.CrawlResult{}

	seed, err := url.Parse(seedURL)
	if err != nil {
		return result, err
	}
	seedSegments := pathSegments(seed.Path)

	// Frontier bucketed by depth. Within a depth URLs are processed in
	// lexicographic order, so two runs over the same site agree.
	frontier := map[int][]string{}
	seen := map[string]bool{}

	enqueue := func(rawURL string) {
		u, err := url.Parse(rawURL)
		if err != nil || u.Host != seed.Host {
			return
		}
		u.Fragment = ""
		normalized := u.String()
		if seen[normalized] || e.shouldSkip(u) {
			return
		}
		depth := urlDepth(u, seedSegments)
		if depth > e.opts.MaxDepth {
			return
		}
		seen[normalized] = true
		frontier[depth] = append(frontier[depth], normalized)
	}

	enqueue(seedURL)

	if urls, ok := e.sitemap.Discover(ctx, seedURL); ok {
		for _, u := range urls {
			enqueue(u)
		}
	} else {
		for _, u := range e.fallback.Discover(ctx, seedURL) {
			enqueue(u)
		}
	}

	for depth := 0; depth <= e.opts.MaxDepth; depth++ {
		for len(frontier[depth]) > 0 {
			batch := frontier[depth]
			frontier[depth] = nil
			sort.Strings(batch)

			for _, pageURL := range batch {
				if len(result.Pages) >= e.opts.MaxPages {
					result.Duration = time.Since(start)
					return result, nil
				}
				if err := ctx.Err(); err != nil {
					result.Duration = time.Since(start)
					return result, err
				}

				if e.opts.RespectRobots && !e.robots.Allowed(ctx, pageURL) {
					result.BlockedURLs = append(result.BlockedURLs, pageURL)
					e.logger.Debug("blocked by robots.txt", "url", pageURL)
					continue
				}

				page, links, err := e.fetchPage(ctx, pageURL, depth)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						result.Duration = time.Since(start)
						return result, ctx.Err()
					}
					if !errors.Is(err, ErrWrongLanguage) && !errors.Is(err, ErrNonHTML) {
						result.FailedURLs = append(result.FailedURLs, pageURL)
					}
					e.logger.Debug("page skipped", "url", pageURL, "error", err)
					continue
				}

				result.Pages = append(result.Pages, *page)
				for _, link := range links {
					enqueue(link)
				}

				if onProgress != nil {
					onProgress(Progress{
						CurrentURL:      pageURL,
						PagesProcessed:  len(result.Pages),
						PagesDiscovered: len(seen),
					})
				}
			}
		}
	}

	result.Duration = time.Since(start)
	e.logger.Info("crawl finished",
		"seed", seedURL,
		"pages", len(result.Pages),
		"failed", len(result.FailedURLs),
		"blocked", len(result.BlockedURLs),
		"duration", result.Duration)
	return result, nil
}

func (e *Engine) fetchPage(ctx context.Context, pageURL string, depth int) (*models.PageRecord, []string, error) {
	if err := e.wait(ctx, pageURL); err != nil {
		return nil, nil, err
	}

	resp, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, nil, err
	}

	if signal := detectChallenge(resp.Header, resp.Body); signal != ChallengeNone {
		return nil, nil, &ChallengeError{URL: pageURL, Signal: signal}
	}

	extracted, err := e.extract.Extract(resp.FinalURL, resp.Body, resp.Header.Get("Content-Language"))
	if err != nil {
		return nil, nil, err
	}

	title := extracted.Title
	if title == "" {
		title = pageURL
	}

	page := &models.PageRecord{
		URL:         pageURL,
		Title:       title,
		Content:     extracted.Text,
		Markdown:    extracted.Markdown,
		Depth:       depth,
		FetchedAt:   time.Now().UTC(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Links:       extracted.Links,
		Meta: models.PageMeta{
			WordCount:      len(strings.Fields(extracted.Text)),
			CharCount:      len(extracted.Text),
			MarkdownLength: len(extracted.Markdown),
			FinalURL:       resp.FinalURL,
		},
	}
	return page, extracted.Links, nil
}

// wait blocks until the per-host politeness limiter admits a request.
// The interval honors robots Crawl-delay when it exceeds the configured
// request delay.
func (e *Engine) wait(ctx context.Context, pageURL string) error {
	u, err := url.Parse(pageURL)
	if err != nil {
		return err
	}

	e.mu.Lock()
	limiter, ok := e.limiters[u.Host]
	if !ok {
		delay := e.opts.RequestDelay
		if e.opts.RespectRobots {
			if robotsDelay := e.robots.CrawlDelay(ctx, pageURL); robotsDelay > delay {
				delay = robotsDelay
			}
		}
		if delay <= 0 {
			limiter = rate.NewLimiter(rate.Inf, 1)
		} else {
			limiter = rate.NewLimiter(rate.Every(delay), 1)
		}
		if e.limiters == nil {
			e.limiters = make(map[string]*rate.Limiter)
		}
		e.limiters[u.Host] = limiter
	}
	e.mu.Unlock()

	return limiter.Wait(ctx)
}

// shouldSkip filters URLs that cannot be useful documentation: binary
// or asset extensions, and locale prefixes that don't match the
// configured language. An empty language disables the locale filter.
func (e *Engine) shouldSkip(u *url.URL) bool {
	if ext := strings.ToLower(path.Ext(u.Path)); skipExtensions[ext] {
		return true
	}

	lang := primaryLanguage(e.opts.Language)
	if lang == "" {
		return false
	}

	segments := pathSegments(u.Path)
	if len(segments) > 0 {
		first := strings.ToLower(segments[0])
		if localePathRe.MatchString(first) && !strings.HasPrefix(first, lang) {
			return true
		}
	}
	return false
}

// primaryLanguage reduces a BCP-47-ish tag to its primary subtag:
// "en-GB" and "en_US" both yield "en".
func primaryLanguage(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}

// urlDepth is how many path segments the URL has beyond the seed.
func urlDepth(u *url.URL, seedSegments []string) int {
	depth := len(pathSegments(u.Path)) - len(seedSegments)
	if depth < 0 {
		return 0
	}
	return depth
}

func pathSegments(p string) []string {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
