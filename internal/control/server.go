package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server provides HTTP endpoints for health monitoring and metrics.
type Server struct {
	app    *App
	server *http.Server
}

// NewServer creates a new health server.
func NewServer(app *App, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		app: app,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.app.Health(r.Context())

	status := http.StatusOK
	for _, v := range health {
		if v != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(health)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.app.Handler().Stats()

	resp := map[string]any{
		"counts_by_category": stats.CountsByCategory,
		"counts_by_severity": stats.CountsBySeverity,
		"counts_by_process":  stats.CountsByProcess,
		"last_24h":           stats.Last24Hours,
		"total":              stats.Total,
	}
	recent := make([]map[string]any, 0, len(stats.Recent))
	for _, e := range stats.Recent {
		recent = append(recent, e.Details())
	}
	resp["recent"] = recent

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
