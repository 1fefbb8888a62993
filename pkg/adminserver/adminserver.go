// Package adminserver provides the HTTP server for the GoNetGuard console and API.
package adminserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/supporttools/GoNetGuard/pkg/api"
	"github.com/supporttools/GoNetGuard/pkg/config"
	"github.com/supporttools/GoNetGuard/pkg/metrics"
	"github.com/supporttools/GoNetGuard/pkg/version"
)

// RequestIDHeader carries the per-request identifier
const RequestIDHeader = "X-Request-ID"

// Routes is implemented by every API handler and the page site
type Routes interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Server represents the admin HTTP server
type Server struct {
	httpServer *http.Server
	cfg        *config.AppConfig
	logger     *logrus.Logger
	site       Routes
	handlers   []Routes

	// Ping checks the metadata database for /healthz; nil skips the check
	Ping func(ctx context.Context) error
}

// NewServer creates a new admin server. handlers are mounted under /api and
// require authentication; site serves the HTML pages.
func NewServer(cfg *config.AppConfig, logger *logrus.Logger, site Routes, handlers ...Routes) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{cfg: cfg, logger: logger, site: site, handlers: handlers}
}

// Handler builds the complete routing tree
func (s *Server) Handler() http.Handler {
	apiMux := http.NewServeMux()
	for _, h := range s.handlers {
		h.RegisterRoutes(apiMux)
	}
	apiMux.HandleFunc("/api/version", s.versionHandler)

	mux := http.NewServeMux()
	mux.Handle("/api/", api.Authenticate(s.cfg.Auth, s.logger, apiMux))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", s.healthCheckHandler)
	if s.site != nil {
		s.site.RegisterRoutes(mux)
	}

	return s.logRequestMiddleware(mux)
}

// Start starts the admin HTTP server
func (s *Server) Start() *http.Server {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.cfg.Metrics.Port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // synchronous snapshot collection can be slow
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Printf("Admin server running on port %s", s.cfg.Metrics.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	return s.httpServer
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// healthCheckHandler returns a simple health status
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{
		"status":  "healthy",
		"time":    time.Now().Format(time.RFC3339),
		"version": version.Version,
	}

	if s.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["error"] = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding health check response: %v", err)
	}
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(version.Current()); err != nil {
		s.logger.Errorf("Error encoding version response: %v", err)
	}
}

// statusRecorder remembers the status code written by the wrapped handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// logRequestMiddleware tags each request with an ID, then logs and counts it
func (s *Server) logRequestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		metrics.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		entry := s.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"remote":     r.RemoteAddr,
			"duration":   time.Since(started).String(),
		})
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			entry.Debug("HTTP request")
			return
		}
		entry.Info("HTTP request")
	})
}
