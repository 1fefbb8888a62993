package adminserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/supporttools/GoNetGuard/pkg/api"
	"github.com/supporttools/GoNetGuard/pkg/config"
)

// echoRoutes answers with the caller resolved by the auth middleware
type echoRoutes struct{}

func (echoRoutes) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/echo/{name}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, api.CurrentUser(r.Context())+":"+r.PathValue("name"))
	})
}

type pageRoutes struct{}

func (pageRoutes) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "dashboard")
	})
}

func testServer(auth config.AuthConfig) *Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := &config.AppConfig{Auth: auth}
	return NewServer(cfg, logger, pageRoutes{}, echoRoutes{})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// TestHealthCheck tests the health check endpoint
func TestHealthCheck(t *testing.T) {
	server := testServer(config.AuthConfig{})

	rr := serve(server.Handler(), httptest.NewRequest("GET", "/healthz", nil))
	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	var response map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Errorf("Failed to parse response: %v", err)
	}
	if response["status"] != "healthy" {
		t.Errorf("Expected status='healthy', got %v", response["status"])
	}
	if response["time"] == "" {
		t.Errorf("Expected time field to be present")
	}
}

func TestHealthCheckReportsDatabaseFailure(t *testing.T) {
	server := testServer(config.AuthConfig{})
	server.Ping = func(ctx context.Context) error { return errors.New("connection refused") }

	rr := serve(server.Handler(), httptest.NewRequest("GET", "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rr.Code)
	}
}

func TestAPIRequiresAuthWhenEnabled(t *testing.T) {
	server := testServer(config.AuthConfig{Enabled: true, DevUserHeader: "X-Dev-User"})
	h := server.Handler()

	rr := serve(h, httptest.NewRequest("GET", "/api/echo/r1", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", rr.Code)
	}

	req := httptest.NewRequest("GET", "/api/echo/r1", nil)
	req.Header.Set("X-Dev-User", "alice")
	rr = serve(h, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "alice:r1" {
		t.Errorf("Expected alice:r1, got %d %q", rr.Code, rr.Body.String())
	}

	// pages and probes stay reachable
	if rr := serve(h, httptest.NewRequest("GET", "/", nil)); rr.Code != http.StatusOK {
		t.Errorf("Expected dashboard to be public, got %d", rr.Code)
	}
	if rr := serve(h, httptest.NewRequest("GET", "/healthz", nil)); rr.Code != http.StatusOK {
		t.Errorf("Expected healthz to be public, got %d", rr.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	h := testServer(config.AuthConfig{DefaultUser: "admin"}).Handler()

	rr := serve(h, httptest.NewRequest("GET", "/api/echo/x", nil))
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Errorf("Expected a generated request ID")
	}
	if rr.Body.String() != "admin:x" {
		t.Errorf("Expected default user, got %q", rr.Body.String())
	}

	req := httptest.NewRequest("GET", "/api/echo/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr = serve(h, req)
	if got := rr.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("Expected the caller's request ID to be kept, got %q", got)
	}
}

func TestVersionEndpoint(t *testing.T) {
	h := testServer(config.AuthConfig{DefaultUser: "admin"}).Handler()

	rr := serve(h, httptest.NewRequest("GET", "/api/version", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var v map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if v["version"] == "" {
		t.Errorf("Expected a version string")
	}
}
