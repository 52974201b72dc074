package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/llmtxt-api/internal/composer"
	"github.com/jmylchreest/llmtxt-api/internal/config"
	"github.com/jmylchreest/llmtxt-api/internal/crawler"
	"github.com/jmylchreest/llmtxt-api/internal/models"
)

// Artifact file names served by the download endpoint.
const (
	FileLLMTxt      = "llm.txt"
	FileLLMsFullTxt = "llms-full.txt"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotCancellable = errors.New("job is not cancellable")
	ErrInvalidFileType   = errors.New("invalid file type")
	ErrArtifactNotFound  = errors.New("artifact not found")
)

// snapshotEvery is how many crawled pages pass between persistence
// snapshots during a run.
const snapshotEvery = 10

// Crawl phases map onto the progress scale: initialization ends at 0.1,
// crawling spans 0.2 to 0.6, composition runs to 0.9, and 1.0 is done.
const (
	progressInit      = 0.1
	progressCrawlFrom = 0.2
	progressCrawlTo   = 0.6
	progressFull      = 0.8
	progressPersist   = 0.9
)

type crawlEngine interface {
	Crawl(ctx context.Context, seedURL string, onProgress crawler.ProgressFunc) (*models.CrawlResult, error)
}

type digestSummarizer interface {
	Summarize(ctx context.Context, digest string, maxBytes int) (string, error)
}

// JobService owns generation jobs: creation, execution, cancellation
// and artifact retrieval. Jobs live in memory and are snapshotted to
// object storage so completed work survives a restart.
type JobService struct {
	cfg        *config.Config
	storage    *StorageService
	composer   *composer.Composer
	summarizer digestSummarizer
	logger     *slog.Logger

	// newEngine is swapped in tests.
	newEngine func(models.CrawlConfig, *slog.Logger) crawlEngine

	mu      sync.Mutex
	jobs    map[string]*models.Job
	cancels map[string]context.CancelFunc
}

// NewJobService creates the job service. summarizer may be nil, in
// which case oversized digests are truncated instead of summarized.
func NewJobService(cfg *config.Config, storage *StorageService, summarizer digestSummarizer, logger *slog.Logger) *JobService {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		cfg:        cfg,
		storage:    storage,
		composer:   composer.New(),
		summarizer: summarizer,
		logger:     logger.With("component", "jobs"),
		newEngine: func(opts models.CrawlConfig, l *slog.Logger) crawlEngine {
			return crawler.NewEngine(opts, l)
		},
		jobs:    make(map[string]*models.Job),
		cancels: make(map[string]context.CancelFunc),
	}
}

// CreateJob registers a new pending job and snapshots it.
func (s *JobService) CreateJob(ctx context.Context, url string, opts models.CrawlConfig, fullVersion bool) (*models.Job, error) {
	job := models.NewJob(ulid.Make().String(), url, opts, fullVersion)

	s.mu.Lock()
	s.jobs[job.ID] = job
	clone := job.Clone()
	s.mu.Unlock()

	s.snapshot(ctx, clone)
	s.logger.Info("job created", "job_id", job.ID, "url", url, "full_version", fullVersion)
	return clone, nil
}

// GetJob returns a copy of the job. Jobs evicted from memory are read
// back from storage and cached again.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	if job, ok := s.jobs[jobID]; ok {
		clone := job.Clone()
		s.mu.Unlock()
		return clone, nil
	}
	s.mu.Unlock()

	if s.storage == nil || !s.storage.Enabled() {
		return nil, ErrJobNotFound
	}
	job, err := s.storage.LoadJob(ctx, jobID)
	if err != nil {
		return nil, ErrJobNotFound
	}

	s.mu.Lock()
	if cached, ok := s.jobs[jobID]; ok {
		job = cached
	} else {
		s.jobs[jobID] = job
	}
	clone := job.Clone()
	s.mu.Unlock()
	return clone, nil
}

// ListJobs returns summaries of all known jobs, newest first. In-memory
// jobs take precedence over their persisted snapshots.
func (s *JobService) ListJobs(ctx context.Context) ([]models.JobSummary, error) {
	byID := make(map[string]models.JobSummary)

	if s.storage != nil && s.storage.Enabled() {
		persisted, err := s.storage.ListJobs(ctx)
		if err != nil {
			s.logger.Warn("failed to list persisted jobs", "error", err)
		}
		for _, summary := range persisted {
			byID[summary.ID] = summary
		}
	}

	s.mu.Lock()
	for _, job := range s.jobs {
		byID[job.ID] = models.JobSummary{
			ID:           job.ID,
			Status:       job.Status,
			URL:          job.URL,
			LastModified: job.UpdatedAt,
		}
	}
	s.mu.Unlock()

	summaries := make([]models.JobSummary, 0, len(byID))
	for _, summary := range byID {
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].LastModified.Equal(summaries[j].LastModified) {
			return summaries[i].LastModified.After(summaries[j].LastModified)
		}
		return summaries[i].ID > summaries[j].ID
	})
	return summaries, nil
}

// ClaimPending atomically takes the oldest pending job and marks it
// running. Returns false when nothing is waiting.
func (s *JobService) ClaimPending(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *models.Job
	for _, job := range s.jobs {
		if job.Status != models.JobStatusPending {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return "", false
	}
	if err := oldest.Transition(models.JobStatusRunning, "Job started"); err != nil {
		return "", false
	}
	return oldest.ID, true
}

// HasActiveJobs reports whether any job is pending or running. The
// idle monitor uses this to hold off scale-to-zero shutdown.
func (s *JobService) HasActiveJobs() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if !job.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// CancelJob cancels a pending or running job. Running jobs keep the
// pages crawled so far; completed jobs are left untouched.
func (s *JobService) CancelJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		s.mu.Unlock()
		return ErrJobNotCancellable
	}
	if err := job.Transition(models.JobStatusCancelled, "Cancelled by user"); err != nil {
		s.mu.Unlock()
		return ErrJobNotCancellable
	}
	cancel := s.cancels[jobID]
	clone := job.Clone()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.snapshot(ctx, clone)
	s.logger.Info("job cancelled", "job_id", jobID)
	return nil
}

// Download returns the named artifact for a completed job.
func (s *JobService) Download(ctx context.Context, jobID, fileType string) (string, error) {
	if fileType != FileLLMTxt && fileType != FileLLMsFullTxt {
		return "", fmt.Errorf("%w: %s", ErrInvalidFileType, fileType)
	}

	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}

	var content string
	switch fileType {
	case FileLLMTxt:
		content = job.LLMTxt
	case FileLLMsFullTxt:
		content = job.LLMsFullTxt
	}
	if content != "" {
		return content, nil
	}

	if s.storage != nil && s.storage.Enabled() {
		if content, err := s.storage.LoadArtifact(ctx, jobID, fileType); err == nil && content != "" {
			return content, nil
		}
	}
	return "", ErrArtifactNotFound
}

// Process runs one claimed job to a terminal state. The job gets its
// own cancellable context so CancelJob can interrupt the crawl.
func (s *JobService) Process(ctx context.Context, jobID string) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != models.JobStatusRunning {
		s.mu.Unlock()
		return
	}
	s.cancels[jobID] = cancel
	opts := job.Options
	seedURL := job.URL
	fullVersion := job.FullVersion
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.cancels, jobID)
		s.mu.Unlock()
	}()

	logger := s.logger.With("job_id", jobID, "url", seedURL)
	logger.Info("processing job")

	s.update(ctx, jobID, func(j *models.Job) {
		_ = j.SetProgress(progressInit, "Initializing crawler...")
		j.Phase = models.PhaseInitializing
		j.AppendLog("Initializing crawler...")
	})

	s.update(ctx, jobID, func(j *models.Job) {
		_ = j.SetProgress(progressCrawlFrom, "Starting web crawl...")
		j.Phase = models.PhaseCrawling
		j.AppendLog("Starting web crawl...")
	})

	engine := s.newEngine(opts, logger)
	lastSnapshot := 0
	result, crawlErr := engine.Crawl(jobCtx, seedURL, func(p crawler.Progress) {
		frac := progressCrawlFrom
		if opts.MaxPages > 0 {
			frac += (progressCrawlTo - progressCrawlFrom) * float64(p.PagesProcessed) / float64(opts.MaxPages)
		}
		snapshot := p.PagesProcessed-lastSnapshot >= snapshotEvery
		if snapshot {
			lastSnapshot = p.PagesProcessed
		}
		s.updateOpts(ctx, jobID, snapshot, func(j *models.Job) {
			_ = j.SetProgress(frac, fmt.Sprintf("Crawled page %d", p.PagesProcessed))
			j.CurrentPageURL = p.CurrentURL
			j.PagesDiscovered = p.PagesDiscovered
			j.PagesProcessed = p.PagesProcessed
		})
	})

	if crawlErr != nil && errors.Is(crawlErr, context.Canceled) {
		// CancelJob already moved the job to cancelled; record what
		// survived the interrupted crawl.
		s.update(ctx, jobID, func(j *models.Job) {
			if result != nil {
				j.PagesCrawled = len(result.Pages)
			}
		})
		logger.Info("job cancelled mid-crawl", "pages", pagesIn(result))
		return
	}
	if crawlErr != nil {
		s.fail(ctx, jobID, fmt.Sprintf("Crawl failed: %v", crawlErr))
		return
	}
	if result == nil || len(result.Pages) == 0 {
		s.fail(ctx, jobID, "No pages could be crawled")
		return
	}

	logger.Info("crawl complete",
		"pages", len(result.Pages), "failed", len(result.FailedURLs), "blocked", len(result.BlockedURLs))

	s.update(ctx, jobID, func(j *models.Job) {
		_ = j.SetProgress(progressCrawlTo, "Composing llm.txt...")
		j.Phase = models.PhaseComposing
		j.PagesCrawled = len(result.Pages)
		j.CurrentPageURL = ""
		j.AppendLog(fmt.Sprintf("Crawled %d pages", len(result.Pages)))
	})

	budget := opts.MaxKB * 1024
	llmTxt := s.composeDigest(jobCtx, result.Pages, composer.Options{
		SourceURL: seedURL,
		MaxBytes:  budget,
	}, logger)

	if ok, issues := s.composer.Validate(llmTxt, budget); !ok {
		logger.Warn("digest validation reported issues", "issues", issues)
	}

	var llmsFullTxt string
	if fullVersion {
		s.update(ctx, jobID, func(j *models.Job) {
			_ = j.SetProgress(progressFull, "Composing full version...")
			j.AppendLog("Composing full version...")
		})
		// The full version is unabridged: every crawled page, no budget.
		llmsFullTxt = s.composer.Compose(result.Pages, composer.Options{
			SourceURL:   seedURL,
			FullVersion: true,
		})
	}

	s.update(ctx, jobID, func(j *models.Job) {
		_ = j.SetProgress(progressPersist, "Saving artifacts...")
		j.LLMTxt = llmTxt
		j.LLMsFullTxt = llmsFullTxt
		j.TotalSizeKB = float64(len(llmTxt)+len(llmsFullTxt)) / 1024
	})

	s.saveArtifacts(ctx, jobID, llmTxt, llmsFullTxt)

	s.update(ctx, jobID, func(j *models.Job) {
		j.LLMTxtURL = s.downloadURL(jobID, FileLLMTxt)
		if llmsFullTxt != "" {
			j.LLMsFullTxtURL = s.downloadURL(jobID, FileLLMsFullTxt)
		}
		if err := j.Transition(models.JobStatusCompleted, fmt.Sprintf("Generated llm.txt from %d pages", len(result.Pages))); err == nil {
			j.Phase = models.PhaseCompleted
			j.AppendLog("Job completed")
		}
	})

	logger.Info("job complete", "pages", len(result.Pages), "bytes", len(llmTxt))
}

// composeDigest assembles the digest, trying LLM summarization when the
// unbounded document exceeds the budget and falling back to truncation.
func (s *JobService) composeDigest(ctx context.Context, pages []models.PageRecord, opts composer.Options, logger *slog.Logger) string {
	unbounded := opts
	unbounded.MaxBytes = 0
	digest := s.composer.Compose(pages, unbounded)
	if opts.MaxBytes <= 0 || len(digest) <= opts.MaxBytes {
		return digest
	}

	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(ctx, digest, opts.MaxBytes)
		if err == nil && len(summary) > 0 && len(summary) <= opts.MaxBytes {
			return summary
		}
		if err != nil {
			logger.Warn("summarization failed, falling back to truncation", "error", err)
		}
	}

	return s.composer.Compose(pages, opts)
}

func (s *JobService) saveArtifacts(ctx context.Context, jobID, llmTxt, llmsFullTxt string) {
	if s.storage == nil || !s.storage.Enabled() {
		return
	}
	if err := s.storage.SaveArtifact(ctx, jobID, FileLLMTxt, llmTxt); err != nil {
		s.logger.Warn("failed to persist artifact", "job_id", jobID, "file", FileLLMTxt, "error", err)
	}
	if llmsFullTxt != "" {
		if err := s.storage.SaveArtifact(ctx, jobID, FileLLMsFullTxt, llmsFullTxt); err != nil {
			s.logger.Warn("failed to persist artifact", "job_id", jobID, "file", FileLLMsFullTxt, "error", err)
		}
	}
}

func (s *JobService) downloadURL(jobID, fileType string) string {
	return fmt.Sprintf("%s/v1/generations/%s/download/%s", s.cfg.BaseURL, jobID, fileType)
}

// fail moves a job to failed; cancellation racing ahead of us wins.
func (s *JobService) fail(ctx context.Context, jobID, message string) {
	s.update(ctx, jobID, func(j *models.Job) {
		if err := j.Transition(models.JobStatusFailed, message); err != nil {
			return
		}
		j.ErrorMessage = message
		j.AppendLog(message)
	})
	s.logger.Warn("job failed", "job_id", jobID, "error", message)
}

// update applies fn to the job under the lock and snapshots the result.
func (s *JobService) update(ctx context.Context, jobID string, fn func(*models.Job)) {
	s.updateOpts(ctx, jobID, true, fn)
}

func (s *JobService) updateOpts(ctx context.Context, jobID string, persist bool, fn func(*models.Job)) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	fn(job)
	clone := job.Clone()
	s.mu.Unlock()

	if persist {
		s.snapshot(ctx, clone)
	}
}

// snapshot persists the job record; storage failures are logged, never
// fatal to the job.
func (s *JobService) snapshot(ctx context.Context, job *models.Job) {
	if s.storage == nil || !s.storage.Enabled() {
		return
	}
	if err := s.storage.SaveJob(ctx, job); err != nil {
		s.logger.Warn("failed to snapshot job", "job_id", job.ID, "error", err)
	}
}

func pagesIn(result *models.CrawlResult) int {
	if result == nil {
		return 0
	}
	return len(result.Pages)
}
