// Package worker runs background job processing and periodic cleanup.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobSource is the slice of the job service the worker needs.
type JobSource interface {
	ClaimPending(ctx context.Context) (string, bool)
	Process(ctx context.Context, jobID string)
}

// Cleaner removes expired jobs from storage.
type Cleaner interface {
	CleanupOldJobs(ctx context.Context, maxAge time.Duration) (int, error)
}

// Worker polls for pending generation jobs and processes them with a
// fixed pool of goroutines. An optional cleanup loop prunes old jobs
// from storage.
type Worker struct {
	jobs         JobSource
	cleaner      Cleaner
	pollInterval time.Duration
	concurrency  int

	cleanupInterval time.Duration
	cleanupMaxAge   time.Duration

	stop   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
}

// Config holds worker configuration.
type Config struct {
	PollInterval time.Duration
	Concurrency  int

	// CleanupInterval of zero disables the cleanup loop.
	CleanupInterval time.Duration
	CleanupMaxAge   time.Duration
}

// New creates a worker. cleaner may be nil when storage is disabled.
func New(jobs JobSource, cleaner Cleaner, cfg Config, logger *slog.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		jobs:            jobs,
		cleaner:         cleaner,
		pollInterval:    cfg.PollInterval,
		concurrency:     cfg.Concurrency,
		cleanupInterval: cfg.CleanupInterval,
		cleanupMaxAge:   cfg.CleanupMaxAge,
		stop:            make(chan struct{}),
		logger:          logger.With("component", "worker"),
	}
}

// Start begins processing jobs.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "concurrency", w.concurrency, "poll_interval", w.pollInterval)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i)
	}

	if w.cleaner != nil && w.cleanupInterval > 0 {
		w.wg.Add(1)
		go w.runCleanup(ctx)
	}
}

// Stop gracefully stops the worker, waiting for in-flight jobs.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processNextJob(ctx, workerID)
		}
	}
}

func (w *Worker) processNextJob(ctx context.Context, workerID int) {
	jobID, ok := w.jobs.ClaimPending(ctx)
	if !ok {
		return
	}

	w.logger.Info("picked up job", "worker_id", workerID, "job_id", jobID)
	w.jobs.Process(ctx, jobID)
}

func (w *Worker) runCleanup(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := w.cleaner.CleanupOldJobs(ctx, w.cleanupMaxAge)
			if err != nil {
				w.logger.Error("cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				w.logger.Info("cleanup pass finished", "removed", removed)
			}
		}
	}
}
