// Package shutdown provides idle monitoring for scale-to-zero deployments.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// WorkChecker reports whether background work is in progress. The idle
// monitor will not signal shutdown while it returns true, so crawl jobs
// finish even when no HTTP traffic arrives.
type WorkChecker func() bool

// IdleMonitor tracks request activity and signals when the server has
// been idle long enough to stop. Platforms that stop machines on idle
// (Fly.io and similar) restart them on the next request.
type IdleMonitor struct {
	timeout      time.Duration
	logger       *slog.Logger
	excludePaths []string
	workCheck    WorkChecker

	activeRequests int64
	mu             sync.RWMutex
	lastActivity   time.Time

	shutdownChan chan struct{}
	stopChan     chan struct{}
}

// IdleMonitorConfig holds configuration for the idle monitor.
type IdleMonitorConfig struct {
	// Timeout of zero disables the monitor.
	Timeout time.Duration
	Logger  *slog.Logger
	// ExcludePaths don't count as activity (health checks, probes).
	ExcludePaths []string
	// WorkCheck, when set, holds off shutdown while it returns true.
	WorkCheck WorkChecker
}

// NewIdleMonitor creates an idle monitor.
func NewIdleMonitor(cfg IdleMonitorConfig) *IdleMonitor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &IdleMonitor{
		timeout:      cfg.Timeout,
		logger:       cfg.Logger,
		excludePaths: cfg.ExcludePaths,
		workCheck:    cfg.WorkCheck,
		lastActivity: time.Now(),
		shutdownChan: make(chan struct{}),
		stopChan:     make(chan struct{}),
	}
}

// Start begins watching for idle periods.
func (m *IdleMonitor) Start() {
	if m.timeout <= 0 {
		m.logger.Debug("idle monitoring disabled (timeout=0)")
		return
	}
	m.logger.Info("idle monitoring started", "timeout", m.timeout, "exclude_paths", m.excludePaths)
	go m.run()
}

// Stop stops the monitor.
func (m *IdleMonitor) Stop() {
	if m.timeout <= 0 {
		return
	}
	close(m.stopChan)
}

// ShutdownChan is closed when the idle timeout is reached.
func (m *IdleMonitor) ShutdownChan() <-chan struct{} {
	return m.shutdownChan
}

// Middleware tracks request activity, skipping excluded paths.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if m.timeout <= 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		excluded := false
		for _, p := range m.excludePaths {
			if strings.HasPrefix(r.URL.Path, p) {
				excluded = true
				break
			}
		}

		if !excluded {
			m.requestStart()
			defer m.requestEnd()
		}

		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) requestStart() {
	atomic.AddInt64(&m.activeRequests, 1)
	m.touch()
}

func (m *IdleMonitor) requestEnd() {
	atomic.AddInt64(&m.activeRequests, -1)
	m.touch()
}

func (m *IdleMonitor) touch() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

func (m *IdleMonitor) run() {
	// Check more often than the timeout, within reason.
	checkInterval := m.timeout / 6
	if checkInterval < 5*time.Second {
		checkInterval = 5 * time.Second
	}
	if checkInterval > 30*time.Second {
		checkInterval = 30 * time.Second
	}

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			active := atomic.LoadInt64(&m.activeRequests)
			busy := m.workCheck != nil && m.workCheck()

			// Active work resets the timer so a full grace period
			// follows the last request or job.
			if active > 0 || busy {
				m.touch()
				continue
			}

			m.mu.RLock()
			idleTime := time.Since(m.lastActivity)
			m.mu.RUnlock()

			if idleTime >= m.timeout {
				m.logger.Info("idle timeout reached, signaling graceful shutdown",
					"idle_time", idleTime, "timeout", m.timeout)
				close(m.shutdownChan)
				return
			}

			m.logger.Debug("idle check",
				"idle_time", idleTime, "active_requests", active, "timeout", m.timeout)
		}
	}
}
