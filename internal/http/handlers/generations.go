package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/llmtxt-api/internal/config"
	"github.com/jmylchreest/llmtxt-api/internal/models"
	"github.com/jmylchreest/llmtxt-api/internal/service"
)

// GenerationHandler handles llm.txt generation endpoints.
type GenerationHandler struct {
	jobSvc *service.JobService
	cfg    *config.Config
}

// NewGenerationHandler creates a generation handler.
func NewGenerationHandler(jobSvc *service.JobService, cfg *config.Config) *GenerationHandler {
	return &GenerationHandler{jobSvc: jobSvc, cfg: cfg}
}

// CreateGenerationInput is the generation request.
type CreateGenerationInput struct {
	Body struct {
		URL           string `json:"url" minLength:"1" example:"https://docs.example.com" doc:"Seed URL of the documentation site"`
		MaxPages      int    `json:"max_pages,omitempty" default:"150" minimum:"1" maximum:"1000" doc:"Maximum pages to crawl"`
		MaxDepth      int    `json:"max_depth,omitempty" default:"5" minimum:"1" maximum:"10" doc:"Maximum link depth from the seed URL"`
		FullVersion   bool   `json:"full_version,omitempty" doc:"Also generate llms-full.txt with per-page metadata"`
		RespectRobots *bool  `json:"respect_robots,omitempty" doc:"Honor robots.txt (default true)"`
		Language      string `json:"language,omitempty" default:"en" doc:"Language prefix filter for crawled pages"`
	}
}

// CreateGenerationOutput acknowledges an accepted job.
type CreateGenerationOutput struct {
	Body struct {
		JobID   string `json:"job_id" example:"01HXYZ123ABC456DEF789"`
		Status  string `json:"status" example:"pending"`
		Message string `json:"message"`
	}
}

// CreateGeneration accepts a generation request and queues it.
func (h *GenerationHandler) CreateGeneration(ctx context.Context, input *CreateGenerationInput) (*CreateGenerationOutput, error) {
	seed, err := url.Parse(input.Body.URL)
	if err != nil || (seed.Scheme != "http" && seed.Scheme != "https") || seed.Host == "" {
		return nil, huma.Error400BadRequest("url must be a valid http or https URL")
	}

	maxPages := input.Body.MaxPages
	if maxPages == 0 {
		maxPages = 150
	}
	maxDepth := input.Body.MaxDepth
	if maxDepth == 0 {
		maxDepth = 5
	}
	language := input.Body.Language
	if language == "" {
		language = "en"
	}

	opts := models.CrawlConfig{
		MaxPages:        maxPages,
		MaxDepth:        maxDepth,
		MaxKB:           h.cfg.MaxKB,
		RequestDelay:    h.cfg.RequestDelay,
		Timeout:         h.cfg.FetchTimeout,
		UserAgent:       h.cfg.UserAgent,
		RespectRobots:   true,
		FollowRedirects: true,
		Language:        language,
	}
	if input.Body.RespectRobots != nil {
		opts.RespectRobots = *input.Body.RespectRobots
	}

	job, err := h.jobSvc.CreateJob(ctx, input.Body.URL, opts, input.Body.FullVersion)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to create job", err)
	}

	out := &CreateGenerationOutput{}
	out.Body.JobID = job.ID
	out.Body.Status = string(job.Status)
	out.Body.Message = "Job accepted. Poll the status endpoint for progress."
	return out, nil
}

// GetGenerationInput identifies one job.
type GetGenerationInput struct {
	JobID string `path:"job_id" doc:"Job identifier returned at creation"`
}

// GetGenerationOutput is the full job status.
type GetGenerationOutput struct {
	Body models.Job
}

// GetGeneration returns the full status of a job.
func (h *GenerationHandler) GetGeneration(ctx context.Context, input *GetGenerationInput) (*GetGenerationOutput, error) {
	job, err := h.jobSvc.GetJob(ctx, input.JobID)
	if err != nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("job %s not found", input.JobID))
	}
	return &GetGenerationOutput{Body: *job}, nil
}

// ListGenerationsInput bounds the listing.
type ListGenerationsInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum number of jobs to return"`
}

// ListGenerationsOutput lists known jobs.
type ListGenerationsOutput struct {
	Body struct {
		Jobs  []models.JobSummary `json:"jobs"`
		Count int                 `json:"count"`
	}
}

// ListGenerations returns summaries of known jobs, newest first.
func (h *GenerationHandler) ListGenerations(ctx context.Context, input *ListGenerationsInput) (*ListGenerationsOutput, error) {
	summaries, err := h.jobSvc.ListJobs(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list jobs", err)
	}
	if summaries == nil {
		summaries = []models.JobSummary{}
	}
	if input.Limit > 0 && len(summaries) > input.Limit {
		summaries = summaries[:input.Limit]
	}

	out := &ListGenerationsOutput{}
	out.Body.Jobs = summaries
	out.Body.Count = len(summaries)
	return out, nil
}

// CancelGenerationOutput acknowledges a cancellation.
type CancelGenerationOutput struct {
	Body struct {
		JobID   string `json:"job_id"`
		Status  string `json:"status" example:"cancelled"`
		Message string `json:"message"`
	}
}

// CancelGeneration cancels a pending or running job. Jobs already in a
// terminal state are reported as not found, matching the lifecycle: a
// finished job has nothing left to cancel.
func (h *GenerationHandler) CancelGeneration(ctx context.Context, input *GetGenerationInput) (*CancelGenerationOutput, error) {
	if err := h.jobSvc.CancelJob(ctx, input.JobID); err != nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("job %s not found or not cancellable", input.JobID))
	}

	out := &CancelGenerationOutput{}
	out.Body.JobID = input.JobID
	out.Body.Status = string(models.JobStatusCancelled)
	out.Body.Message = "Job cancelled. Partial crawl progress is retained in the job record."
	return out, nil
}

// DownloadGenerationInput selects one artifact of a completed job.
type DownloadGenerationInput struct {
	JobID    string `path:"job_id"`
	FileType string `path:"file_type" enum:"llm.txt,llms-full.txt" doc:"Which artifact to download"`
	Raw      bool   `query:"raw" doc:"Return the file as a text/plain attachment instead of JSON"`
}

// DownloadGenerationOutput carries the artifact, either wrapped in JSON
// or as a plain-text attachment when raw is set.
type DownloadGenerationOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition,omitempty"`
	Body               []byte
}

// DownloadGeneration serves a generated artifact.
func (h *GenerationHandler) DownloadGeneration(ctx context.Context, input *DownloadGenerationInput) (*DownloadGenerationOutput, error) {
	content, err := h.jobSvc.Download(ctx, input.JobID, input.FileType)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidFileType):
			return nil, huma.Error400BadRequest(fmt.Sprintf("invalid file type %q", input.FileType))
		case errors.Is(err, service.ErrJobNotFound):
			return nil, huma.Error404NotFound(fmt.Sprintf("job %s not found", input.JobID))
		case errors.Is(err, service.ErrArtifactNotFound):
			return nil, huma.Error404NotFound(fmt.Sprintf("artifact %s not available for job %s", input.FileType, input.JobID))
		default:
			return nil, huma.Error500InternalServerError("failed to load artifact", err)
		}
	}

	if input.Raw {
		return &DownloadGenerationOutput{
			ContentType:        "text/plain; charset=utf-8",
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", input.FileType),
			Body:               []byte(content),
		}, nil
	}

	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to encode artifact", err)
	}
	return &DownloadGenerationOutput{
		ContentType: "application/json",
		Body:        body,
	}, nil
}

// Register wires the generation routes onto the API.
func (h *GenerationHandler) Register(api huma.API) {
	huma.Get(api, "/health", HealthCheck)

	huma.Register(api, huma.Operation{
		OperationID:   "create-generation",
		Method:        "POST",
		Path:          "/v1/generations",
		Summary:       "Queue an llm.txt generation job",
		DefaultStatus: 202,
	}, h.CreateGeneration)

	huma.Get(api, "/v1/generations", h.ListGenerations)
	huma.Get(api, "/v1/generations/{job_id}", h.GetGeneration)
	huma.Get(api, "/v1/generations/{job_id}/download/{file_type}", h.DownloadGeneration)
	huma.Delete(api, "/v1/generations/{job_id}", h.CancelGeneration)
}
