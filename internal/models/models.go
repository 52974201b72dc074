// Package models defines the domain models for the application.
// A Job is mutated only by the worker task that processes it; handlers
// observe read-only snapshots taken under the store lock.
package models

import (
	"fmt"
	"time"
)

// JobStatus represents the status of a generation job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status is a sink state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Phase tags for human-facing progress reporting.
const (
	PhaseInitializing = "initializing"
	PhaseCrawling     = "crawling"
	PhaseExtracting   = "extracting"
	PhaseComposing    = "composing"
	PhaseCompleted    = "completed"
)

// CrawlConfig holds the immutable per-job crawl options.
type CrawlConfig struct {
	MaxPages        int           `json:"max_pages"`
	MaxDepth        int           `json:"max_depth"`
	MaxKB           int           `json:"max_kb"`
	RequestDelay    time.Duration `json:"request_delay"`
	Timeout         time.Duration `json:"timeout"`
	UserAgent       string        `json:"user_agent"`
	RespectRobots   bool          `json:"respect_robots"`
	FollowRedirects bool          `json:"follow_redirects"`
	Language        string        `json:"language"` // BCP-47-ish prefix; empty disables the filter
}

// DefaultCrawlConfig returns the baseline crawl options.
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		MaxPages:        100,
		MaxDepth:        3,
		MaxKB:           500,
		RequestDelay:    1 * time.Second,
		Timeout:         30 * time.Second,
		UserAgent:       "llmtxt/0.1.0 (+https://github.com/jmylchreest/llmtxt-api)",
		RespectRobots:   true,
		FollowRedirects: true,
		Language:        "en",
	}
}

// PageMeta carries derived size metrics for a crawled page.
type PageMeta struct {
	WordCount      int    `json:"word_count"`
	CharCount      int    `json:"char_count"`
	MarkdownLength int    `json:"markdown_length"`
	FinalURL       string `json:"final_url"`
}

// PageRecord is one successfully fetched and extracted HTML document.
type PageRecord struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`  // plain text
	Markdown    string    `json:"markdown"` // markdown rendering of the main content
	Depth       int       `json:"depth"`    // path-segment delta from the seed
	FetchedAt   time.Time `json:"fetched_at"`
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	Links       []string  `json:"links"` // outbound absolute links, deduplicated
	Meta        PageMeta  `json:"metadata"`
}

// CrawlResult is the outcome of a crawl: pages plus failure accounting.
type CrawlResult struct {
	Pages       []PageRecord  `json:"pages"`
	FailedURLs  []string      `json:"failed_urls"`
	BlockedURLs []string      `json:"blocked_urls"`
	Duration    time.Duration `json:"duration"`
}

// SuccessRate returns |pages| / (|pages| + |failed|), or 0 when both are empty.
func (r *CrawlResult) SuccessRate() float64 {
	total := len(r.Pages) + len(r.FailedURLs)
	if total == 0 {
		return 0
	}
	return float64(len(r.Pages)) / float64(total)
}

// LogEntry is one line of a job's append-only processing log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Job represents one generation request and its lifecycle.
type Job struct {
	ID          string      `json:"job_id"`
	URL         string      `json:"url"`
	Options     CrawlConfig `json:"options"`
	FullVersion bool        `json:"full_version"`

	Status   JobStatus `json:"status"`
	Progress float64   `json:"progress"`
	Message  string    `json:"message"`

	Phase           string     `json:"current_phase"`
	CurrentPageURL  string     `json:"current_page_url,omitempty"`
	PagesDiscovered int        `json:"pages_discovered"`
	PagesProcessed  int        `json:"pages_processed"`
	ProcessingLogs  []LogEntry `json:"processing_logs"`

	PagesCrawled   int     `json:"pages_crawled"`
	TotalSizeKB    float64 `json:"total_size_kb"`
	LLMTxt         string  `json:"llm_txt,omitempty"`
	LLMsFullTxt    string  `json:"llms_full_txt,omitempty"`
	LLMTxtURL      string  `json:"llm_txt_url,omitempty"`
	LLMsFullTxtURL string  `json:"llms_full_txt_url,omitempty"`

	ErrorMessage string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a pending job in phase "initializing".
func NewJob(id, url string, opts CrawlConfig, fullVersion bool) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          id,
		URL:         url,
		Options:     opts,
		FullVersion: fullVersion,
		Status:      JobStatusPending,
		Phase:       PhaseInitializing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// validTransitions encodes the status DAG. Terminal states are sinks.
var validTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
}

// Transition moves the job to a new status, enforcing the DAG.
// Completion timestamps are set exactly once, on entering a terminal state.
func (j *Job) Transition(to JobStatus, message string) error {
	if j.Status == to {
		j.touch(message)
		return nil
	}
	for _, allowed := range validTransitions[j.Status] {
		if allowed == to {
			j.Status = to
			j.touch(message)
			if to == JobStatusCompleted {
				j.Progress = 1
			}
			if to.IsTerminal() {
				now := time.Now().UTC()
				j.CompletedAt = &now
			}
			return nil
		}
	}
	return fmt.Errorf("invalid status transition %s -> %s", j.Status, to)
}

// SetProgress records a progress fraction, clamped to [0, 1] and never
// decreasing. Writes after a terminal transition are rejected.
func (j *Job) SetProgress(progress float64, message string) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("job %s is %s; progress is frozen", j.ID, j.Status)
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	if progress > j.Progress {
		j.Progress = progress
	}
	j.touch(message)
	return nil
}

// AppendLog adds a timestamped entry to the processing log.
// Entries are never mutated or removed.
func (j *Job) AppendLog(message string) {
	j.ProcessingLogs = append(j.ProcessingLogs, LogEntry{
		Timestamp: time.Now().UTC(),
		Message:   message,
	})
}

func (j *Job) touch(message string) {
	if message != "" {
		j.Message = message
	}
	j.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy safe to hand to readers while the processing
// task keeps mutating the original.
func (j *Job) Clone() *Job {
	c := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	c.ProcessingLogs = append([]LogEntry(nil), j.ProcessingLogs...)
	return &c
}

// JobSummary is the lightweight listing shape derived from storage metadata.
type JobSummary struct {
	ID           string    `json:"job_id"`
	Status       JobStatus `json:"status"`
	URL          string    `json:"url"`
	LastModified time.Time `json:"last_modified"`
	SizeBytes    int64     `json:"size_bytes"`
}
