package mw

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	logfilter "github.com/jmylchreest/slog-logfilter"
)

// LogFiltersConfig holds configuration for the log filters loader.
type LogFiltersConfig struct {
	S3Client     *s3.Client
	Bucket       string
	Key          string        // default: "config/logfilters.json"
	CacheTTL     time.Duration // how often to check for updates (default: 5 min)
	ErrorBackoff time.Duration // wait after an error (default: 1 min)
	Logger       *slog.Logger
}

// LogFiltersLoader loads slog-logfilter rules from object storage so
// log verbosity can be tuned at runtime without a redeploy. Fetches are
// ETag-conditional and failures keep the current filter set.
type LogFiltersLoader struct {
	s3Client *s3.Client
	bucket   string
	key      string

	mu           sync.RWMutex
	etag         string
	lastFetch    time.Time
	lastError    time.Time
	filterCount  int
	cacheTTL     time.Duration
	errorBackoff time.Duration
	logger       *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewLogFiltersLoader creates a loader. A nil S3 client disables it.
func NewLogFiltersLoader(cfg LogFiltersConfig) *LogFiltersLoader {
	if cfg.Key == "" {
		cfg.Key = "config/logfilters.json"
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = 1 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &LogFiltersLoader{
		s3Client:     cfg.S3Client,
		bucket:       cfg.Bucket,
		key:          cfg.Key,
		cacheTTL:     cfg.CacheTTL,
		errorBackoff: cfg.ErrorBackoff,
		logger:       cfg.Logger,
		stopCh:       make(chan struct{}),
	}
}

// Start fetches the filters and begins periodic refresh.
func (l *LogFiltersLoader) Start(ctx context.Context) {
	if l.s3Client == nil {
		l.logger.Info("log filters loader disabled (no storage client)")
		return
	}

	l.refresh(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.cacheTTL)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.refresh(context.Background())
			case <-l.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	l.logger.Info("log filters loader started",
		"bucket", l.bucket, "key", l.key, "cache_ttl", l.cacheTTL.String())
}

// Stop stops the periodic refresh.
func (l *LogFiltersLoader) Stop() {
	close(l.stopCh)
	l.wg.Wait()
}

func (l *LogFiltersLoader) refresh(ctx context.Context) {
	l.mu.Lock()
	if !l.lastError.IsZero() && time.Since(l.lastError) < l.errorBackoff {
		l.mu.Unlock()
		return
	}
	currentEtag := l.etag
	l.mu.Unlock()

	input := &s3.GetObjectInput{
		Bucket: &l.bucket,
		Key:    &l.key,
	}
	if currentEtag != "" {
		quoted := "\"" + currentEtag + "\""
		input.IfNoneMatch = &quoted
	}

	resp, err := l.s3Client.GetObject(ctx, input)
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			l.fail()
			l.logger.Info("no log filters object, using defaults",
				"bucket", l.bucket, "key", l.key)
			return
		}

		var notModified interface{ ErrorCode() string }
		if errors.As(err, &notModified) && notModified.ErrorCode() == "NotModified" {
			l.logger.Debug("log filters unchanged", "etag", currentEtag)
			return
		}

		l.fail()
		l.logger.Error("failed to fetch log filters",
			"error", err, "bucket", l.bucket, "key", l.key)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	var filters []logfilter.LogFilter
	if err := json.NewDecoder(resp.Body).Decode(&filters); err != nil {
		l.fail()
		l.logger.Error("failed to parse log filters JSON", "error", err)
		return
	}

	logfilter.SetFilters(filters)

	newEtag := ""
	if resp.ETag != nil {
		newEtag = *resp.ETag
		if len(newEtag) >= 2 && newEtag[0] == '"' && newEtag[len(newEtag)-1] == '"' {
			newEtag = newEtag[1 : len(newEtag)-1]
		}
	}

	l.mu.Lock()
	l.lastFetch = time.Now()
	l.lastError = time.Time{}
	l.etag = newEtag
	l.filterCount = len(filters)
	l.mu.Unlock()

	active := 0
	for _, f := range filters {
		if f.IsActive() {
			active++
		}
	}
	l.logger.Info("log filters loaded",
		"etag", newEtag, "total_filters", len(filters), "active_filters", active)
}

func (l *LogFiltersLoader) fail() {
	l.mu.Lock()
	l.lastError = time.Now()
	l.mu.Unlock()
}

// LogFiltersStats reports loader state for diagnostics.
type LogFiltersStats struct {
	FilterCount int       `json:"filter_count"`
	Etag        string    `json:"etag"`
	LastFetch   time.Time `json:"last_fetch"`
	CacheTTL    string    `json:"cache_ttl"`
}

// Stats returns current loader statistics.
func (l *LogFiltersLoader) Stats() LogFiltersStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return LogFiltersStats{
		FilterCount: l.filterCount,
		Etag:        l.etag,
		LastFetch:   l.lastFetch,
		CacheTTL:    l.cacheTTL.String(),
	}
}
