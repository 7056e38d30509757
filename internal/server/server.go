// Package server exposes the stored announcements over HTTP: a JSON API
// plus an HTML digest page.
package server

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	json "github.com/json-iterator/go"
	"github.com/yuin/goldmark"

	"github.com/cexwatch/cexwatch/internal/digest"
	"github.com/cexwatch/cexwatch/internal/store"
)

var md = goldmark.New()

// HealthChecker probes strategy reachability. May be nil; the health
// endpoint then reports storage only.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]bool
}

// Server is the HTTP server for the announcements API.
type Server struct {
	store  *store.Store
	health HealthChecker
	mux    *http.ServeMux
}

// New creates a new Server.
func New(st *store.Store, health HealthChecker) *Server {
	s := &Server{store: st, health: health, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/announcements", s.handleAnnouncements)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/api/runs", s.handleRuns)
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/digest", s.handleDigest)
}

// envelope is the uniform JSON response shape.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleAnnouncements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.Filter{
		Exchange:   q.Get("exchange"),
		Category:   q.Get("category"),
		Importance: q.Get("importance"),
		Limit:      50,
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeJSON(w, http.StatusBadRequest, envelope{Message: "limit must be an integer between 1 and 500"})
			return
		}
		f.Limit = n
	}

	anns, err := s.store.GetAnnouncements(f)
	if err != nil {
		log.Printf("server: listing announcements: %v", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Message: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: anns})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats()
	if err != nil {
		log.Printf("server: computing stats: %v", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Message: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: stats})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.GetRecentRuns(20)
	if err != nil {
		log.Printf("server: listing runs: %v", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Message: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: runs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"storage": s.store != nil}
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
		defer cancel()
		status["strategies"] = s.health.HealthCheck(ctx)
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: status})
}

const digestShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Exchange Announcements Digest</title>
<style>
body { font-family: -apple-system, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.6; }
h1, h2, h3 { line-height: 1.25; }
hr { border: none; border-top: 1px solid #ddd; margin: 2rem 0; }
em { color: #666; }
</style>
</head>
<body>
%s
</body>
</html>`

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	anns, err := s.store.GetAnnouncements(store.Filter{Limit: 100})
	if err != nil {
		log.Printf("server: building digest: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	markdown := digest.Render(anns, time.Now())
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		log.Printf("server: rendering digest markdown: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, digestShell, buf.String()) //nolint: gosec
}

func writeJSON(w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("server: encoding response: %v", err)
	}
}

// Serve starts the HTTP server on the given port.
func Serve(st *store.Store, health HealthChecker, port int) error {
	srv := New(st, health)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
