package mw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCacheMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   string
	}{
		{"health is public", http.MethodGet, "/health", "public, max-age=30"},
		{"status is never cached", http.MethodGet, "/v1/generations/01ABC", "private, no-cache"},
		{"listing is never cached", http.MethodGet, "/v1/generations", "private, no-cache"},
		{"downloads cache long", http.MethodGet, "/v1/generations/01ABC/download/llm.txt", "private, max-age=3600"},
		{"mutations are no-store", http.MethodPost, "/v1/generations", "no-store"},
		{"cancel is no-store", http.MethodDelete, "/v1/generations/01ABC", "no-store"},
		{"unknown path gets default", http.MethodGet, "/other", "private, no-cache"},
	}

	handler := Cache(DefaultCacheConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if got := rr.Header().Get("Cache-Control"); got != tt.want {
				t.Errorf("Cache-Control = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCacheNoDefaultPolicy(t *testing.T) {
	handler := Cache(CacheConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("Cache-Control"); got != "" {
		t.Errorf("Cache-Control = %q, want unset", got)
	}
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		want    bool
	}{
		{"/health", "/health", true},
		{"/health/live", "/health", true},
		{"/v1/generations/01ABC/download/llm.txt", "/download/", true},
		{"/v1/generations/01ABC", "/download/", false},
		{"/other", "/health", false},
	}

	for _, tt := range tests {
		if got := matchesPattern(tt.path, tt.pattern); got != tt.want {
			t.Errorf("matchesPattern(%q, %q) = %v, want %v", tt.path, tt.pattern, got, tt.want)
		}
	}
}

func TestAPIVersionHeader(t *testing.T) {
	handler := APIVersion()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	got := rr.Header().Get("X-API-Version")
	if got == "" {
		t.Fatal("X-API-Version header missing")
	}
	if strings.Contains(got, " ") {
		t.Errorf("X-API-Version = %q, want a bare version string", got)
	}
}
