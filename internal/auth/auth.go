// Package auth enforces the shared-secret header on non-public endpoints.
package auth

import (
	"net/http"
	"strings"
)

// defaultPublicPaths never require the shared secret: probes, metrics, docs,
// root pages, and the /api/ routes, which are either webhook-signed or
// intentionally open.
var defaultPublicPaths = []string{
	"/health", "/ready", "/metrics",
	"/docs", "/openapi.json", "/favicon.ico",
	"/", "/dashboard", "/analysis", "/redteam",
	"/assets/*", "/api/*",
}

// Config holds the middleware settings.
type Config struct {
	Header      string // header name, default X-API-Key
	Key         string // shared secret; empty disables enforcement
	PublicPaths []string
}

// Middleware returns an http middleware requiring the shared-secret header
// outside the public path set.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	header := cfg.Header
	if header == "" {
		header = "X-API-Key"
	}
	public := cfg.PublicPaths
	if public == nil {
		public = defaultPublicPaths
	}

	exact := make(map[string]bool, len(public))
	var prefixes []string
	for _, p := range public {
		if strings.HasSuffix(p, "/*") {
			prefixes = append(prefixes, strings.TrimSuffix(p, "*"))
			continue
		}
		exact[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Key == "" || isPublic(r.URL.Path, exact, prefixes) {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get(header) != cfg.Key {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"invalid or missing API key"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isPublic(path string, exact map[string]bool, prefixes []string) bool {
	if exact[path] {
		return true
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
