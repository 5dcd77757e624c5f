// Package api exposes the review analysis pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/reviewlens/reviewlens/asin"
	"github.com/reviewlens/reviewlens/metrics"
	"github.com/reviewlens/reviewlens/models"
	"github.com/reviewlens/reviewlens/store"
)

// Analyzer runs the scrape-and-score pipeline for one product reference.
type Analyzer interface {
	Analyze(ctx context.Context, ref string) (*models.AnalyzeResult, error)
}

// Server represents the API server
type Server struct {
	analyzer    Analyzer
	store       store.Store
	metrics     *metrics.Registry
	addr        string
	timeout     time.Duration
	server      *http.Server
	mux         *http.ServeMux
	corsEnabled bool
}

// Config contains server configuration
type Config struct {
	Addr           string
	CORSEnabled    bool
	RequestTimeout time.Duration // budget for one analyze call, both fetch attempts included
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		CORSEnabled:    true,
		RequestTimeout: 2 * time.Minute,
	}
}

// NewServer creates a new API server. The analyzer and store are injected;
// the server constructs no pipeline of its own.
func NewServer(config Config, analyzer Analyzer, st store.Store, m *metrics.Registry) *Server {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}

	s := &Server{
		analyzer:    analyzer,
		store:       st,
		metrics:     m,
		addr:        config.Addr,
		timeout:     config.RequestTimeout,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
	}

	// Register routes
	s.registerRoutes()

	// Create HTTP server
	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.middleware(otelhttp.NewHandler(s.mux, "reviewlens-api")),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 3 * time.Minute, // Allow time for a full two-attempt scrape
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("/api/analysis/", s.handleAnalysis) // Handles /api/analysis/{asin}
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}
}

// Start starts the API server
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server. Closing the injected store and
// publisher remains the caller's responsibility.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	return s.server.Shutdown(ctx)
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS headers
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		// Logging (skip health and metrics scrapes to reduce noise)
		quiet := r.URL.Path == "/health" || r.URL.Path == "/metrics"

		start := time.Now()
		if !quiet {
			log.Printf("%s %s", r.Method, r.URL.Path)
		}

		next.ServeHTTP(w, r)

		if !quiet {
			log.Printf("%s %s - completed in %v", r.Method, r.URL.Path, time.Since(start))
		}
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.store.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "degraded",
			"error":  err.Error(),
			"time":   time.Now(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	})
}

// handleAnalyze accepts a product URL or bare ASIN and runs the pipeline
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ref := req.URL
	if ref == "" {
		ref = req.ASIN
	}
	if ref == "" {
		respondError(w, http.StatusBadRequest, "url or asin is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	result, err := s.analyzer.Analyze(ctx, ref)
	if err != nil {
		if errors.Is(err, asin.ErrInvalid) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		// Scrape-level failures are soft: the request itself worked, the
		// payload reports why no analysis is available.
		respondJSON(w, http.StatusOK, models.AnalyzeFailure{
			Success:   false,
			Error:     err.Error(),
			IsBlocked: true,
		})
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleAnalysis handles GET (by ASIN) and DELETE operations
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	// Extract ASIN from path
	id := strings.TrimPrefix(r.URL.Path, "/api/analysis/")
	if id == "" {
		respondError(w, http.StatusBadRequest, "asin is required")
		return
	}
	if !asin.IsValid(id) {
		respondError(w, http.StatusBadRequest, "invalid asin")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetAnalysis(w, r, id)
	case http.MethodDelete:
		s.handleDeleteAnalysis(w, r, id)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleGetAnalysis serves a cached analysis without triggering a scrape
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request, id string) {
	entry, ok, err := s.store.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "analysis not found")
		return
	}

	respondJSON(w, http.StatusOK, models.FromEntry(entry, true))
}

// handleDeleteAnalysis evicts a cached analysis by ASIN
func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "analysis not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete analysis")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "analysis deleted successfully",
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
