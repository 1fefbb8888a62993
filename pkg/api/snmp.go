package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/supporttools/GoNetGuard/pkg/config"
	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
	"github.com/supporttools/GoNetGuard/pkg/snmp"
)

// MetricStore persists SNMP metric definitions
type MetricStore interface {
	ListMetrics(limit, offset int) ([]dbmeta.SNMPMetric, error)
	GetMetric(id uint) (*dbmeta.SNMPMetric, error)
	CreateMetric(metric *dbmeta.SNMPMetric) error
	UpdateMetric(metric *dbmeta.SNMPMetric) error
	DeleteMetric(id uint) error
}

// DeviceLookup resolves an inventory device by name
type DeviceLookup interface {
	GetDeviceByName(name string) (*dbmeta.Device, error)
}

// Prober runs one SNMP query
type Prober interface {
	Probe(ctx context.Context, req snmp.Request, valueParser string) snmp.Result
}

// SNMPHandler handles SNMP metric definition and OID test endpoints
type SNMPHandler struct {
	metrics  MetricStore
	devices  DeviceLookup
	prober   Prober
	defaults config.SNMPConfig
	Logger   *logrus.Logger
}

// NewSNMPHandler creates a new SNMP handler
func NewSNMPHandler(metrics MetricStore, devices DeviceLookup, prober Prober, defaults config.SNMPConfig, logger *logrus.Logger) *SNMPHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SNMPHandler{metrics: metrics, devices: devices, prober: prober, defaults: defaults, Logger: logger}
}

// RegisterRoutes registers the SNMP API routes on the provided mux
func (h *SNMPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/snmp/metrics", h.handleMetrics)
	mux.HandleFunc("/api/snmp/metrics/builtin", h.handleBuiltin)
	mux.HandleFunc("/api/snmp/metrics/{id}", h.handleMetric)
	mux.HandleFunc("/api/snmp/test", h.handleTest)
}

type metricRequest struct {
	Name        *string `json:"name"`
	OID         *string `json:"oid"`
	Description *string `json:"description"`
	ValueType   *string `json:"value_type"`
	Unit        *string `json:"unit"`
	ValueParser *string `json:"value_parser"`
}

type metricResponse struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	OID         string    `json:"oid"`
	Description string    `json:"description"`
	ValueType   string    `json:"value_type"`
	Unit        string    `json:"unit"`
	ValueParser string    `json:"value_parser"`
	IsBuiltin   bool      `json:"is_builtin"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func convertMetricToResponse(m *dbmeta.SNMPMetric) metricResponse {
	return metricResponse{
		ID:          m.ID,
		Name:        m.Name,
		OID:         m.OID,
		Description: m.Description,
		ValueType:   m.ValueType,
		Unit:        m.Unit,
		ValueParser: m.ValueParser,
		IsBuiltin:   m.IsBuiltin,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// applyMetric copies the request onto m and validates the result
func applyMetric(m *dbmeta.SNMPMetric, req metricRequest) error {
	if req.Name != nil {
		m.Name = strings.TrimSpace(*req.Name)
	}
	if req.OID != nil {
		m.OID = strings.TrimSpace(*req.OID)
	}
	if req.Description != nil {
		m.Description = *req.Description
	}
	if req.ValueType != nil {
		m.ValueType = strings.ToLower(strings.TrimSpace(*req.ValueType))
	}
	if req.Unit != nil {
		m.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.ValueParser != nil {
		m.ValueParser = strings.TrimSpace(*req.ValueParser)
	}
	if m.ValueType == "" {
		m.ValueType = "gauge"
	}

	switch {
	case m.Name == "":
		return fmt.Errorf("name is required")
	case m.OID == "":
		return fmt.Errorf("oid is required")
	}
	switch m.ValueType {
	case "gauge", "counter", "string":
	default:
		return fmt.Errorf("value_type must be one of gauge, counter, string")
	}
	return snmp.ValidateParser(m.ValueParser)
}

func (h *SNMPHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, offset, err := paging(r, 1000, 1000)
		if err != nil {
			writeError(w, h.Logger, http.StatusBadRequest, err.Error())
			return
		}
		list, err := h.metrics.ListMetrics(limit, offset)
		if err != nil {
			writeError(w, h.Logger, http.StatusInternalServerError, "Failed to list metrics: "+err.Error())
			return
		}
		response := make([]metricResponse, 0, len(list))
		for i := range list {
			response = append(response, convertMetricToResponse(&list[i]))
		}
		writeJSON(w, h.Logger, http.StatusOK, response)

	case http.MethodPost:
		var req metricRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.Logger, http.StatusBadRequest, err.Error())
			return
		}
		metric := &dbmeta.SNMPMetric{}
		if err := applyMetric(metric, req); err != nil {
			writeError(w, h.Logger, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.metrics.CreateMetric(metric); err != nil {
			h.writeMetricError(w, err)
			return
		}
		writeJSON(w, h.Logger, http.StatusCreated, convertMetricToResponse(metric))

	default:
		methodNotAllowed(w, h.Logger)
	}
}

// writeMetricError reports a duplicate name as a validation error
func (h *SNMPHandler) writeMetricError(w http.ResponseWriter, err error) {
	if errors.Is(err, dbmeta.ErrConflict) {
		writeError(w, h.Logger, http.StatusBadRequest, "A metric with this name already exists")
		return
	}
	writeRepoError(w, h.Logger, err)
}

func (h *SNMPHandler) handleBuiltin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, h.Logger)
		return
	}
	builtins := snmp.BuiltinMetrics()
	response := make([]metricResponse, 0, len(builtins))
	for i := range builtins {
		response = append(response, convertMetricToResponse(&builtins[i]))
	}
	writeJSON(w, h.Logger, http.StatusOK, response)
}

func (h *SNMPHandler) handleMetric(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	metric, err := h.metrics.GetMetric(id)
	if err != nil {
		writeRepoError(w, h.Logger, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, h.Logger, http.StatusOK, convertMetricToResponse(metric))

	case http.MethodPut:
		if metric.IsBuiltin {
			writeError(w, h.Logger, http.StatusForbidden, "Built-in metrics are read-only")
			return
		}
		var req metricRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.Logger, http.StatusBadRequest, err.Error())
			return
		}
		if err := applyMetric(metric, req); err != nil {
			writeError(w, h.Logger, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.metrics.UpdateMetric(metric); err != nil {
			h.writeMetricError(w, err)
			return
		}
		writeJSON(w, h.Logger, http.StatusOK, convertMetricToResponse(metric))

	case http.MethodDelete:
		if metric.IsBuiltin {
			writeError(w, h.Logger, http.StatusForbidden, "Built-in metrics are read-only")
			return
		}
		if err := h.metrics.DeleteMetric(id); err != nil {
			writeRepoError(w, h.Logger, err)
			return
		}
		writeJSON(w, h.Logger, http.StatusOK, map[string]string{"message": "Metric deleted"})

	default:
		methodNotAllowed(w, h.Logger)
	}
}

// snmpTestRequest targets either a raw host or an inventory device
type snmpTestRequest struct {
	Host          string `json:"host"`
	DeviceName    string `json:"device_name"`
	OID           string `json:"oid"`
	SNMPVersion   string `json:"snmp_version"`
	SNMPCommunity string `json:"snmp_community"`
	Port          int    `json:"port"`
	ValueParser   string `json:"value_parser"`
	Timeout       int    `json:"timeout"`
}

// dataString reads a string (or number) setting stored in device data
func dataString(data map[string]interface{}, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// buildProbeRequest layers request values over device data over configured defaults
func (h *SNMPHandler) buildProbeRequest(req snmpTestRequest) (snmp.Request, error) {
	probe := snmp.Request{
		Target:    strings.TrimSpace(req.Host),
		OID:       strings.TrimSpace(req.OID),
		Version:   h.defaults.Version,
		Community: h.defaults.Community,
		Port:      h.defaults.Port,
		Timeout:   time.Duration(h.defaults.Timeout) * time.Second,
		Retries:   h.defaults.Retries,
	}

	if name := strings.TrimSpace(req.DeviceName); name != "" {
		device, err := h.devices.GetDeviceByName(name)
		if err != nil {
			return probe, err
		}
		if probe.Target == "" {
			probe.Target = device.Hostname
		}
		if v := dataString(device.Data, "snmp_version"); v != "" {
			probe.Version = v
		}
		if c := dataString(device.Data, "snmp_community"); c != "" {
			probe.Community = c
		}
		if p, err := strconv.Atoi(dataString(device.Data, "snmp_port")); err == nil && p > 0 {
			probe.Port = p
		}
		probe.Username = dataString(device.Data, "snmp_username")
		probe.AuthProtocol = dataString(device.Data, "snmp_auth_protocol")
		probe.AuthPassphrase = dataString(device.Data, "snmp_auth_password")
		probe.PrivProtocol = dataString(device.Data, "snmp_priv_protocol")
		probe.PrivPassphrase = dataString(device.Data, "snmp_priv_password")
	}

	if v := strings.TrimSpace(req.SNMPVersion); v != "" {
		probe.Version = v
	}
	if c := strings.TrimSpace(req.SNMPCommunity); c != "" {
		probe.Community = c
	}
	if req.Port > 0 {
		probe.Port = req.Port
	}
	if req.Timeout > 0 {
		probe.Timeout = time.Duration(req.Timeout) * time.Second
	}

	if probe.Target == "" {
		return probe, fmt.Errorf("host or device_name is required")
	}
	if probe.OID == "" {
		return probe, fmt.Errorf("oid is required")
	}
	return probe, nil
}

func (h *SNMPHandler) handleTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, h.Logger)
		return
	}

	var req snmpTestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}
	if err := snmp.ValidateParser(strings.TrimSpace(req.ValueParser)); err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	probe, err := h.buildProbeRequest(req)
	if err != nil {
		if errors.Is(err, dbmeta.ErrNotFound) {
			writeRepoError(w, h.Logger, err)
			return
		}
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	result := h.prober.Probe(r.Context(), probe, strings.TrimSpace(req.ValueParser))
	h.Logger.WithFields(logrus.Fields{
		"target":  probe.Target,
		"oid":     probe.OID,
		"success": result.Success,
	}).Debug("SNMP test finished")
	writeJSON(w, h.Logger, http.StatusOK, result)
}
