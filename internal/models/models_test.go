package models

import (
	"testing"
	"time"
)

func TestJobStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusPending, false},
		{JobStatusRunning, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
		{JobStatusCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestJobTransitionDAG(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		wantErr bool
	}{
		{"pending to running", JobStatusPending, JobStatusRunning, false},
		{"pending to cancelled", JobStatusPending, JobStatusCancelled, false},
		{"pending to completed skips running", JobStatusPending, JobStatusCompleted, true},
		{"running to completed", JobStatusRunning, JobStatusCompleted, false},
		{"running to failed", JobStatusRunning, JobStatusFailed, false},
		{"running to cancelled", JobStatusRunning, JobStatusCancelled, false},
		{"running back to pending", JobStatusRunning, JobStatusPending, true},
		{"completed is a sink", JobStatusCompleted, JobStatusRunning, true},
		{"failed is a sink", JobStatusFailed, JobStatusCancelled, true},
		{"cancelled is a sink", JobStatusCancelled, JobStatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob("job1", "https://example.com", DefaultCrawlConfig(), false)
			job.Status = tt.from
			err := job.Transition(tt.to, "test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transition(%s -> %s) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
			if err == nil && job.Status != tt.to {
				t.Errorf("status = %s, want %s", job.Status, tt.to)
			}
		})
	}
}

func TestJobTransitionSetsCompletedAt(t *testing.T) {
	job := NewJob("job1", "https://example.com", DefaultCrawlConfig(), false)
	if job.CompletedAt != nil {
		t.Fatal("new job should not have completed_at")
	}

	if err := job.Transition(JobStatusRunning, ""); err != nil {
		t.Fatal(err)
	}
	if job.CompletedAt != nil {
		t.Error("running job should not have completed_at")
	}

	if err := job.Transition(JobStatusCompleted, "done"); err != nil {
		t.Fatal(err)
	}
	if job.CompletedAt == nil {
		t.Error("completed job must have completed_at")
	}
}

func TestJobProgressMonotonic(t *testing.T) {
	job := NewJob("job1", "https://example.com", DefaultCrawlConfig(), false)
	_ = job.Transition(JobStatusRunning, "")

	steps := []struct {
		set  float64
		want float64
	}{
		{0.1, 0.1},
		{0.5, 0.5},
		{0.3, 0.5}, // never decreases
		{1.5, 1.0}, // clamped
		{0.9, 1.0},
	}

	for _, s := range steps {
		if err := job.SetProgress(s.set, ""); err != nil {
			t.Fatal(err)
		}
		if job.Progress != s.want {
			t.Errorf("SetProgress(%v): progress = %v, want %v", s.set, job.Progress, s.want)
		}
	}
}

func TestJobProgressFrozenAfterTerminal(t *testing.T) {
	job := NewJob("job1", "https://example.com", DefaultCrawlConfig(), false)
	_ = job.Transition(JobStatusRunning, "")
	_ = job.SetProgress(0.4, "")
	_ = job.Transition(JobStatusCancelled, "cancelled by user")

	if err := job.SetProgress(0.9, ""); err == nil {
		t.Error("expected error writing progress to a terminal job")
	}
	if job.Progress != 0.4 {
		t.Errorf("progress = %v, want 0.4", job.Progress)
	}
}

func TestJobAppendLog(t *testing.T) {
	job := NewJob("job1", "https://example.com", DefaultCrawlConfig(), false)
	job.AppendLog("first")
	job.AppendLog("second")

	if len(job.ProcessingLogs) != 2 {
		t.Fatalf("log length = %d, want 2", len(job.ProcessingLogs))
	}
	if job.ProcessingLogs[0].Message != "first" || job.ProcessingLogs[1].Message != "second" {
		t.Error("log entries out of order")
	}
	if job.ProcessingLogs[0].Timestamp.IsZero() {
		t.Error("log entry missing timestamp")
	}
}

func TestJobCloneIsIndependent(t *testing.T) {
	job := NewJob("job1", "https://example.com", DefaultCrawlConfig(), false)
	job.AppendLog("original")
	now := time.Now().UTC()
	job.CompletedAt = &now

	clone := job.Clone()
	job.AppendLog("after clone")
	*job.CompletedAt = now.Add(time.Hour)

	if len(clone.ProcessingLogs) != 1 {
		t.Errorf("clone log length = %d, want 1", len(clone.ProcessingLogs))
	}
	if !clone.CompletedAt.Equal(now) {
		t.Error("clone completed_at aliases the original")
	}
}

func TestCrawlResultSuccessRate(t *testing.T) {
	tests := []struct {
		name   string
		pages  int
		failed int
		want   float64
	}{
		{"empty", 0, 0, 0},
		{"all success", 4, 0, 1.0},
		{"half", 2, 2, 0.5},
		{"all failed", 0, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := CrawlResult{
				Pages:      make([]PageRecord, tt.pages),
				FailedURLs: make([]string, tt.failed),
			}
			if got := r.SuccessRate(); got != tt.want {
				t.Errorf("SuccessRate() = %v, want %v", got, tt.want)
			}
		})
	}
}
