package web

import (
	"net/http"

	"onchainsummer/internal/adapters/http/middleware"
)

// registerRoutes attaches every page and API route to mux.
// debug adds the perf dashboard, which is never exposed in production.
func registerRoutes(mux *http.ServeMux, debug bool) {
	handle(mux, "GET /{$}", handleHome)
	handle(mux, "GET /api/schedule", handleScheduleAPI)
	handle(mux, "GET /healthz", handleHealthz)
	handle(mux, "GET /partner/{slug}", handlePartner)
	handle(mux, "GET /{slug}", handlePartner)
	if debug {
		handle(mux, "GET /debug/perf", handleDebugPerf)
	}
}

// handle registers h and tags each matched request with its pattern for timing.
func handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		middleware.TagRoute(r)
		h(w, r)
	})
}
