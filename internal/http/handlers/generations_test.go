package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/llmtxt-api/internal/config"
	"github.com/jmylchreest/llmtxt-api/internal/models"
	"github.com/jmylchreest/llmtxt-api/internal/service"
)

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:  "http://localhost:8080",
		MaxPages: 100,
		MaxDepth: 3,
		MaxKB:    500,
	}
}

func newHandler(t *testing.T) (*GenerationHandler, *service.JobService) {
	t.Helper()
	jobSvc := service.NewJobService(testConfig(), nil, nil, slog.Default())
	return NewGenerationHandler(jobSvc, testConfig()), jobSvc
}

// docSite is a minimal two-page documentation site.
func docSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nAllow: /\n"))
	})
	mux.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Docs</title></head><body><main><p>Index page body.</p><a href="/docs/install">Install</a></main></body></html>`)
	})
	mux.HandleFunc("/docs/install", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Install</title></head><body><main><p>Installation instructions.</p></main></body></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// completeJob drives a created job through the worker path.
func completeJob(t *testing.T, jobSvc *service.JobService) string {
	t.Helper()
	id, ok := jobSvc.ClaimPending(context.Background())
	if !ok {
		t.Fatal("no pending job to claim")
	}
	jobSvc.Process(context.Background(), id)
	return id
}

func TestHealthCheck(t *testing.T) {
	out, err := HealthCheck(context.Background(), &struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Body.Status != "healthy" {
		t.Errorf("status = %q, want healthy", out.Body.Status)
	}
	if out.Body.Version == "" {
		t.Error("version missing")
	}
	if out.Body.Timestamp.IsZero() {
		t.Error("timestamp missing")
	}
}

func TestCreateGenerationValidatesURL(t *testing.T) {
	h, _ := newHandler(t)

	tests := []string{
		"",
		"not-a-url",
		"ftp://example.com/docs",
		"javascript:alert(1)",
	}
	for _, bad := range tests {
		t.Run(bad, func(t *testing.T) {
			input := &CreateGenerationInput{}
			input.Body.URL = bad
			_, err := h.CreateGeneration(context.Background(), input)
			if statusOf(err) != 400 {
				t.Errorf("CreateGeneration(%q) err = %v, want 400", bad, err)
			}
		})
	}
}

func TestCreateGenerationQueuesJob(t *testing.T) {
	h, jobSvc := newHandler(t)

	input := &CreateGenerationInput{}
	input.Body.URL = "https://docs.example.com"
	input.Body.MaxPages = 25
	input.Body.MaxDepth = 2
	input.Body.Language = "en"

	out, err := h.CreateGeneration(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if out.Body.Status != "pending" {
		t.Errorf("status = %q, want pending", out.Body.Status)
	}
	if out.Body.JobID == "" {
		t.Fatal("missing job_id")
	}

	job, err := jobSvc.GetJob(context.Background(), out.Body.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Options.MaxPages != 25 || job.Options.MaxDepth != 2 {
		t.Errorf("options = %+v", job.Options)
	}
	if !job.Options.RespectRobots {
		t.Error("robots should default to respected")
	}
}

func TestCreateGenerationRobotsOptOut(t *testing.T) {
	h, jobSvc := newHandler(t)

	off := false
	input := &CreateGenerationInput{}
	input.Body.URL = "https://docs.example.com"
	input.Body.RespectRobots = &off

	out, err := h.CreateGeneration(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	job, _ := jobSvc.GetJob(context.Background(), out.Body.JobID)
	if job.Options.RespectRobots {
		t.Error("robots opt-out not applied")
	}
}

func TestGetGenerationNotFound(t *testing.T) {
	h, _ := newHandler(t)
	_, err := h.GetGeneration(context.Background(), &GetGenerationInput{JobID: "missing"})
	if statusOf(err) != 404 {
		t.Errorf("err = %v, want 404", err)
	}
}

func TestGenerationEndToEnd(t *testing.T) {
	server := docSite(t)
	h, jobSvc := newHandler(t)

	input := &CreateGenerationInput{}
	input.Body.URL = server.URL + "/docs"
	created, err := h.CreateGeneration(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	completeJob(t, jobSvc)

	status, err := h.GetGeneration(context.Background(), &GetGenerationInput{JobID: created.Body.JobID})
	if err != nil {
		t.Fatal(err)
	}
	if status.Body.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s (%s)", status.Body.Status, status.Body.ErrorMessage)
	}
	if status.Body.Progress != 1.0 {
		t.Errorf("progress = %v, want 1.0", status.Body.Progress)
	}
	if status.Body.PagesCrawled != 2 {
		t.Errorf("pages crawled = %d, want 2", status.Body.PagesCrawled)
	}

	// JSON download wraps the digest.
	dl, err := h.DownloadGeneration(context.Background(), &DownloadGenerationInput{
		JobID: created.Body.JobID, FileType: service.FileLLMTxt,
	})
	if err != nil {
		t.Fatal(err)
	}
	if dl.ContentType != "application/json" {
		t.Errorf("content type = %q", dl.ContentType)
	}
	var wrapped map[string]string
	if err := json.Unmarshal(dl.Body, &wrapped); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(wrapped["content"], "Installation instructions") {
		t.Error("digest missing crawled content")
	}

	// Raw download is a plain-text attachment.
	raw, err := h.DownloadGeneration(context.Background(), &DownloadGenerationInput{
		JobID: created.Body.JobID, FileType: service.FileLLMTxt, Raw: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(raw.ContentType, "text/plain") {
		t.Errorf("raw content type = %q", raw.ContentType)
	}
	if !strings.Contains(raw.ContentDisposition, "attachment") {
		t.Errorf("raw disposition = %q", raw.ContentDisposition)
	}
	if !strings.HasPrefix(string(raw.Body), "# ") {
		t.Error("raw body should be the digest itself")
	}

	// Full version was not requested.
	_, err = h.DownloadGeneration(context.Background(), &DownloadGenerationInput{
		JobID: created.Body.JobID, FileType: service.FileLLMsFullTxt,
	})
	if statusOf(err) != 404 {
		t.Errorf("err = %v, want 404 for missing artifact", err)
	}
}

func TestDownloadGenerationInvalidType(t *testing.T) {
	h, _ := newHandler(t)
	_, err := h.DownloadGeneration(context.Background(), &DownloadGenerationInput{
		JobID: "whatever", FileType: "secrets.txt",
	})
	if statusOf(err) != 400 {
		t.Errorf("err = %v, want 400", err)
	}
}

func TestCancelGeneration(t *testing.T) {
	h, jobSvc := newHandler(t)

	input := &CreateGenerationInput{}
	input.Body.URL = "https://docs.example.com"
	created, err := h.CreateGeneration(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}

	out, err := h.CancelGeneration(context.Background(), &GetGenerationInput{JobID: created.Body.JobID})
	if err != nil {
		t.Fatal(err)
	}
	if out.Body.Status != "cancelled" {
		t.Errorf("status = %q", out.Body.Status)
	}

	job, _ := jobSvc.GetJob(context.Background(), created.Body.JobID)
	if job.Status != models.JobStatusCancelled {
		t.Errorf("job status = %s", job.Status)
	}

	// A second cancel reports not found: the job is already terminal.
	_, err = h.CancelGeneration(context.Background(), &GetGenerationInput{JobID: created.Body.JobID})
	if statusOf(err) != 404 {
		t.Errorf("second cancel err = %v, want 404", err)
	}
}

func TestListGenerations(t *testing.T) {
	h, _ := newHandler(t)

	out, err := h.ListGenerations(context.Background(), &ListGenerationsInput{Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	if out.Body.Count != 0 || out.Body.Jobs == nil {
		t.Errorf("empty list should be [] with count 0, got %+v", out.Body)
	}

	input := &CreateGenerationInput{}
	input.Body.URL = "https://docs.example.com"
	if _, err := h.CreateGeneration(context.Background(), input); err != nil {
		t.Fatal(err)
	}

	out, err = h.ListGenerations(context.Background(), &ListGenerationsInput{Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	if out.Body.Count != 1 || len(out.Body.Jobs) != 1 {
		t.Errorf("count = %d, jobs = %d", out.Body.Count, len(out.Body.Jobs))
	}
}

func TestListGenerationsLimit(t *testing.T) {
	h, _ := newHandler(t)

	for i := 0; i < 3; i++ {
		input := &CreateGenerationInput{}
		input.Body.URL = "https://docs.example.com"
		if _, err := h.CreateGeneration(context.Background(), input); err != nil {
			t.Fatal(err)
		}
	}

	out, err := h.ListGenerations(context.Background(), &ListGenerationsInput{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Body.Jobs) != 2 {
		t.Errorf("jobs = %d, want 2", len(out.Body.Jobs))
	}
}

func statusOf(err error) int {
	if se, ok := err.(huma.StatusError); ok {
		return se.GetStatus()
	}
	return 0
}
