// Package constants defines centralized configuration shared across the
// HTTP surface.
package constants

import "time"

// Cache-Control max-age tiers.
const (
	// CacheMaxAgeShort suits endpoints whose payload changes with each
	// deploy (health, version).
	CacheMaxAgeShort = 30 * time.Second

	// CacheMaxAgeLong suits immutable payloads. Artifacts of a
	// completed job never change.
	CacheMaxAgeLong = 1 * time.Hour
)

// HTTP server timeouts.
const (
	ServerReadTimeout  = 15 * time.Second
	ServerWriteTimeout = 60 * time.Second
	ServerIdleTimeout  = 120 * time.Second

	// ShutdownTimeout bounds graceful drain on SIGINT/SIGTERM.
	ShutdownTimeout = 30 * time.Second

	// RequestTimeout bounds a single API request. Generation work
	// happens in the worker, so requests themselves are short.
	RequestTimeout = 30 * time.Second

	// MaxRequestBytes caps request bodies; generation requests are a
	// small JSON document.
	MaxRequestBytes = 1 << 20
)

// Rate limiting for the public API.
const (
	RateLimitRequests = 100
	RateLimitWindow   = 1 * time.Minute
	ThrottleLimit     = 100
)
