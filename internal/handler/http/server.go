// Package http wires the attribution service to its HTTP surface.
package http

import (
	"DeepLink-Backend/internal/repository"
	"DeepLink-Backend/internal/service"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server groups the HTTP handlers
type Server struct {
	linksHandler    *LinksHandler
	matchHandler    *MatchHandler
	redirectHandler *RedirectHandler
	healthHandler   *HealthHandler
	log             *zap.Logger
}

// NewServer creates the HTTP server facade
func NewServer(storage repository.Storage, attribution *service.AttributionService, log *zap.Logger) *Server {
	return &Server{
		linksHandler:    NewLinksHandler(attribution, log),
		matchHandler:    NewMatchHandler(attribution, log),
		redirectHandler: NewRedirectHandler(attribution, log),
		healthHandler:   NewHealthHandler(storage, log),
		log:             log,
	}
}

// SetupRoutes registers all routes
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Health checks and metrics
	mux.HandleFunc("/health", s.healthHandler.Health)
	mux.HandleFunc("/ready", s.healthHandler.Ready)
	mux.Handle("/metrics", promhttp.Handler())

	// Attribution API
	mux.HandleFunc("/api/v1/links", s.linksHandler.CreateLink)
	mux.HandleFunc("/api/v1/links/", s.linksHandler.GetStats)
	mux.HandleFunc("/api/v1/match", s.matchHandler.MatchDevice)

	// Click redirect
	mux.HandleFunc("/d/", s.redirectHandler.HandleClick)

	return mux
}

// Shared response helpers

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
