package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeJobSource struct {
	mu      sync.Mutex
	pending []string
	done    []string
}

func (f *fakeJobSource) ClaimPending(ctx context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return "", false
	}
	id := f.pending[0]
	f.pending = f.pending[1:]
	return id, true
}

func (f *fakeJobSource) Process(ctx context.Context, jobID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = append(f.done, jobID)
}

func (f *fakeJobSource) processed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.done...)
}

type fakeCleaner struct {
	calls atomic.Int32
}

func (f *fakeCleaner) CleanupOldJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	f.calls.Add(1)
	return 1, nil
}

func TestNewDefaults(t *testing.T) {
	w := New(&fakeJobSource{}, nil, Config{}, nil)

	if w.pollInterval != 1*time.Second {
		t.Errorf("pollInterval = %v, want 1s (default)", w.pollInterval)
	}
	if w.concurrency != 5 {
		t.Errorf("concurrency = %d, want 5 (default)", w.concurrency)
	}
	if w.logger == nil {
		t.Error("logger should be set to default")
	}
}

func TestNewCustomConfig(t *testing.T) {
	cfg := Config{
		PollInterval: 10 * time.Second,
		Concurrency:  8,
	}

	w := New(&fakeJobSource{}, nil, cfg, slog.Default())
	if w.pollInterval != 10*time.Second {
		t.Errorf("pollInterval = %v, want 10s", w.pollInterval)
	}
	if w.concurrency != 8 {
		t.Errorf("concurrency = %d, want 8", w.concurrency)
	}
}

func TestWorkerProcessesPendingJobs(t *testing.T) {
	source := &fakeJobSource{pending: []string{"job-a", "job-b", "job-c"}}
	w := New(source, nil, Config{
		PollInterval: 10 * time.Millisecond,
		Concurrency:  2,
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)

	deadline := time.After(2 * time.Second)
	for len(source.processed()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d jobs processed before timeout", len(source.processed()))
		case <-time.After(10 * time.Millisecond):
		}
	}
	w.Stop()

	got := make(map[string]bool)
	for _, id := range source.processed() {
		if got[id] {
			t.Errorf("job %s processed twice", id)
		}
		got[id] = true
	}
}

func TestWorkerRunsCleanupLoop(t *testing.T) {
	cleaner := &fakeCleaner{}
	w := New(&fakeJobSource{}, cleaner, Config{
		PollInterval:    time.Hour, // keep the job loop quiet
		Concurrency:     1,
		CleanupInterval: 10 * time.Millisecond,
		CleanupMaxAge:   time.Hour,
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)

	deadline := time.After(2 * time.Second)
	for cleaner.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("cleanup never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
	w.Stop()
}

func TestWorkerStartStop(t *testing.T) {
	w := New(&fakeJobSource{}, nil, Config{
		PollInterval: 50 * time.Millisecond,
		Concurrency:  2,
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("Stop() timed out")
	}
}

func TestWorkerStopViaContext(t *testing.T) {
	w := New(&fakeJobSource{}, nil, Config{
		PollInterval: 50 * time.Millisecond,
		Concurrency:  1,
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Error("Stop() timed out after context cancellation")
	}
}
