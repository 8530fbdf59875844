// Package api is the HTTP surface of the activity map: viewport queries
// (plain and streaming), lasso selection, uploads, and a few read-only
// inspection endpoints. Handlers never touch the engine directly; everything
// goes through the query host so the worker stays the single owner of the
// spatial state.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/openridge/trackmap/internal/config"
	"github.com/openridge/trackmap/internal/engine"
	"github.com/openridge/trackmap/internal/queryhost"
	"github.com/openridge/trackmap/internal/store"
	"github.com/openridge/trackmap/internal/track"
	"github.com/openridge/trackmap/internal/viewcache"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	host    *queryhost.Host
	cache   *viewcache.Cache
	repo    store.Repository
	uploads *track.IDAllocator
	cfg     *config.EngineConfig
}

func NewServer(host *queryhost.Host, cache *viewcache.Cache, repo store.Repository, cfg *config.EngineConfig) *Server {
	return &Server{
		host:    host,
		cache:   cache,
		repo:    repo,
		uploads: track.NewUploadIDAllocator(),
		cfg:     cfg,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/stream", s.streamRuns)
	mux.HandleFunc("/api/runs/filter", s.filterRuns)
	mux.HandleFunc("/api/lasso", s.lassoRuns)
	mux.HandleFunc("/api/upload", s.uploadRun)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/debug/charts/activities", s.activityChart)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write response")
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, map[string]any{
		"cache_capacity":        s.cfg.GetCacheCapacity(),
		"stale_center_fraction": s.cfg.GetStaleCenterFraction(),
		"chunk_size":            s.cfg.GetChunkSize(),
		"strict":                s.cfg.GetStrict(),
	})
}

// collect drains a query handle into a single result. It blocks until the
// channel closes. The status starts out cancelled, not ok: a channel that
// closes without a terminal chunk means the run was cut short, and a
// truncated result must never be mistaken for a complete one.
func collect(h *queryhost.Handle) (engine.FeatureSet, []engine.Summary, queryhost.Status) {
	fs := engine.NewFeatureSet()
	var summaries []engine.Summary
	status := queryhost.StatusCancelled
	for chunk := range h.Chunks {
		fs.Features = append(fs.Features, chunk.Features...)
		summaries = append(summaries, chunk.Summaries...)
		if chunk.Done {
			status = chunk.Status
		}
	}
	return fs, summaries, status
}
