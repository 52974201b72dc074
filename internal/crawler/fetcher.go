// Package crawler implements the polite, bounded, breadth-first crawl
// pipeline: robots handling, sitemap discovery, fetching, and content
// extraction.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmylchreest/llmtxt-api/internal/models"
)

// ErrNonHTML is returned when a response content-type is not text/html.
var ErrNonHTML = errors.New("response is not HTML")

// ErrWrongLanguage is returned when a page declares a language that does
// not match the configured prefix.
var ErrWrongLanguage = errors.New("page language does not match filter")

// HTTPStatusError reports a non-2xx response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

const maxRedirects = 10

// maxBodyBytes caps how much of a response body is read. Documentation
// pages beyond this are truncated rather than ballooning memory.
const maxBodyBytes = 10 << 20 // 10 MiB

// FetchResult holds a fetched HTTP response.
type FetchResult struct {
	FinalURL    string
	StatusCode  int
	Header      http.Header
	Body        []byte
	ContentType string
}

// Fetcher performs single-page HTTP GETs with the configured headers,
// timeout and redirect policy. It does not implement politeness; the
// crawl engine serializes and paces requests per host.
type Fetcher struct {
	client    *http.Client
	userAgent string
	language  string
}

// NewFetcher creates a fetcher from crawl options.
func NewFetcher(opts models.CrawlConfig) *Fetcher {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	if opts.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		}
	} else {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Fetcher{
		client:    client,
		userAgent: opts.UserAgent,
		language:  opts.Language,
	}
}

// Fetch retrieves a URL and returns the response, or a typed error.
// Non-HTML content types are rejected with ErrNonHTML before the body
// is read in full.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	if f.language != "" {
		req.Header.Set("Accept-Language", f.language+";q=0.9,*;q=0.5")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "text/html") {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNonHTML, rawURL, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &FetchResult{
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		Body:        body,
		ContentType: contentType,
	}, nil
}
