// Package api implements the REST endpoints used by the console: inventory,
// tasks, config snapshots and schedules, SNMP metric definitions and storage settings.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
)

// errorResponse is the body of every failed request
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, logger *logrus.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil && logger != nil {
		logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, logger *logrus.Logger, status int, detail string) {
	if logger != nil && status >= http.StatusInternalServerError {
		logger.Error(detail)
	}
	writeJSON(w, logger, status, errorResponse{Detail: detail})
}

// writeRepoError maps repository errors onto HTTP statuses
func writeRepoError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	switch {
	case errors.Is(err, dbmeta.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, err.Error())
	case errors.Is(err, dbmeta.ErrConflict):
		writeError(w, logger, http.StatusConflict, err.Error())
	case errors.Is(err, dbmeta.ErrInvalidState):
		writeError(w, logger, http.StatusBadRequest, err.Error())
	default:
		writeError(w, logger, http.StatusInternalServerError, err.Error())
	}
}

func methodNotAllowed(w http.ResponseWriter, logger *logrus.Logger) {
	writeError(w, logger, http.StatusMethodNotAllowed, "Method not allowed")
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

// pathID parses a numeric path wildcard
func pathID(r *http.Request, name string) (uint, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return uint(id), nil
}

// queryInt reads an integer query parameter, falling back to def when absent.
// Values outside [min, max] are rejected; max <= 0 means unbounded.
func queryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	if n < min || (max > 0 && n > max) {
		if max > 0 {
			return 0, fmt.Errorf("%s must be between %d and %d", key, min, max)
		}
		return 0, fmt.Errorf("%s must be at least %d", key, min)
	}
	return n, nil
}

// paging reads limit and offset in one go
func paging(r *http.Request, defLimit, maxLimit int) (limit, offset int, err error) {
	if limit, err = queryInt(r, "limit", defLimit, 1, maxLimit); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(r, "offset", 0, 0, 0); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
