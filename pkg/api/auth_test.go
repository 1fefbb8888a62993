package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supporttools/GoNetGuard/pkg/auth"
	"github.com/supporttools/GoNetGuard/pkg/config"
)

func whoami() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(CurrentUser(r.Context())))
	})
}

func authRequest(h http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAuthenticate(t *testing.T) {
	secret := "s3cret"
	token, _, err := auth.IssueToken("carol", []byte(secret), time.Hour)
	require.NoError(t, err)

	enabled := config.AuthConfig{Enabled: true, JWTSecret: secret, DevUserHeader: "X-Dev-User", DefaultUser: "admin"}
	disabled := config.AuthConfig{Enabled: false, DefaultUser: "admin"}

	tests := []struct {
		name     string
		cfg      config.AuthConfig
		headers  map[string]string
		wantCode int
		wantUser string
	}{
		{"bearer token", enabled, map[string]string{"Authorization": "Bearer " + token}, http.StatusOK, "carol"},
		{"token wins over header", enabled, map[string]string{"Authorization": "Bearer " + token, "X-Dev-User": "mallory"}, http.StatusOK, "carol"},
		{"dev header", enabled, map[string]string{"X-Dev-User": " dave "}, http.StatusOK, "dave"},
		{"bad token", enabled, map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized, ""},
		{"anonymous with auth on", enabled, nil, http.StatusUnauthorized, ""},
		{"anonymous with auth off", disabled, nil, http.StatusOK, "admin"},
		{"token without secret", disabled, map[string]string{"Authorization": "Bearer " + token}, http.StatusUnauthorized, ""},
		{"default header name", disabled, map[string]string{"X-Dev-User": "erin"}, http.StatusOK, "erin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := authRequest(Authenticate(tt.cfg, quietLogger(), whoami()), tt.headers)
			assert.Equal(t, tt.wantCode, rr.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tt.wantUser, rr.Body.String())
			} else {
				assert.NotEmpty(t, detailOf(t, rr))
			}
		})
	}
}

func TestAuthenticateCustomHeader(t *testing.T) {
	cfg := config.AuthConfig{Enabled: true, DevUserHeader: "X-Remote-User"}
	h := Authenticate(cfg, quietLogger(), whoami())

	assert.Equal(t, http.StatusUnauthorized, authRequest(h, map[string]string{"X-Dev-User": "frank"}).Code)
	rr := authRequest(h, map[string]string{"X-Remote-User": "frank"})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "frank", rr.Body.String())
}
