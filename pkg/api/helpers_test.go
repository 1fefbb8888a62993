package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type routable interface {
	RegisterRoutes(mux *http.ServeMux)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newMux(handlers ...routable) *http.ServeMux {
	mux := http.NewServeMux()
	for _, h := range handlers {
		h.RegisterRoutes(mux)
	}
	return mux
}

// do sends a request as user through the handler and records the response
func do(t *testing.T, h http.Handler, method, path string, body interface{}, user string) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		buf = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		buf = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, path, buf)
	if user != "" {
		req = req.WithContext(WithUser(req.Context(), user))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func detailOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var e errorResponse
	decodeBody(t, rr, &e)
	return e.Detail
}
