package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supporttools/GoNetGuard/pkg/config"
	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
	"github.com/supporttools/GoNetGuard/pkg/snmp"
)

type memMetrics struct {
	metrics map[uint]*dbmeta.SNMPMetric
	nextID  uint
}

func newMemMetrics(list ...dbmeta.SNMPMetric) *memMetrics {
	m := &memMetrics{metrics: map[uint]*dbmeta.SNMPMetric{}}
	for i := range list {
		metric := list[i]
		m.nextID++
		metric.ID = m.nextID
		m.metrics[metric.ID] = &metric
	}
	return m
}

func (m *memMetrics) nameTaken(name string, except uint) bool {
	for _, existing := range m.metrics {
		if existing.Name == name && existing.ID != except {
			return true
		}
	}
	return false
}

func (m *memMetrics) ListMetrics(limit, offset int) ([]dbmeta.SNMPMetric, error) {
	var out []dbmeta.SNMPMetric
	for id := uint(1); id <= m.nextID; id++ {
		if metric, ok := m.metrics[id]; ok {
			out = append(out, *metric)
		}
	}
	return out, nil
}

func (m *memMetrics) GetMetric(id uint) (*dbmeta.SNMPMetric, error) {
	metric, ok := m.metrics[id]
	if !ok {
		return nil, fmt.Errorf("metric %d: %w", id, dbmeta.ErrNotFound)
	}
	cp := *metric
	return &cp, nil
}

func (m *memMetrics) CreateMetric(metric *dbmeta.SNMPMetric) error {
	if m.nameTaken(metric.Name, 0) {
		return fmt.Errorf("metric %s: %w", metric.Name, dbmeta.ErrConflict)
	}
	m.nextID++
	metric.ID = m.nextID
	cp := *metric
	m.metrics[metric.ID] = &cp
	return nil
}

func (m *memMetrics) UpdateMetric(metric *dbmeta.SNMPMetric) error {
	if m.nameTaken(metric.Name, metric.ID) {
		return fmt.Errorf("metric %s: %w", metric.Name, dbmeta.ErrConflict)
	}
	cp := *metric
	m.metrics[metric.ID] = &cp
	return nil
}

func (m *memMetrics) DeleteMetric(id uint) error {
	delete(m.metrics, id)
	return nil
}

type fakeProber struct {
	got    snmp.Request
	parser string
}

func (f *fakeProber) Probe(ctx context.Context, req snmp.Request, valueParser string) snmp.Result {
	f.got = req
	f.parser = valueParser
	v := "42"
	return snmp.Result{Success: true, RawOutput: ".1.3.6.1.2.1.1.3.0 = Timeticks: (42) 0:00:00.42", ParsedValue: &v}
}

var snmpDefaults = config.SNMPConfig{Community: "public", Version: "v2c", Port: 161, Timeout: 3, Retries: 1}

func snmpMux(metrics *memMetrics, devices *memDevices, prober *fakeProber) *http.ServeMux {
	return newMux(NewSNMPHandler(metrics, devices, prober, snmpDefaults, quietLogger()))
}

func TestCreateMetric(t *testing.T) {
	store := newMemMetrics()
	mux := snmpMux(store, newMemDevices(), &fakeProber{})

	rr := do(t, mux, http.MethodPost, "/api/snmp/metrics", map[string]interface{}{
		"name": "uptime", "oid": "1.3.6.1.2.1.1.3.0", "value_parser": "last_integer",
	}, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp metricResponse
	decodeBody(t, rr, &resp)
	assert.Equal(t, "gauge", resp.ValueType)
	assert.False(t, resp.IsBuiltin)

	rr = do(t, mux, http.MethodPost, "/api/snmp/metrics", map[string]interface{}{"name": "uptime", "oid": "1.3.6.1.2.1.1.3.0"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "A metric with this name already exists", detailOf(t, rr))
}

func TestCreateMetricValidation(t *testing.T) {
	mux := snmpMux(newMemMetrics(), newMemDevices(), &fakeProber{})

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing oid", map[string]interface{}{"name": "x"}},
		{"missing name", map[string]interface{}{"oid": "1.3.6"}},
		{"bad value type", map[string]interface{}{"name": "x", "oid": "1.3.6", "value_type": "histogram"}},
		{"unknown parser", map[string]interface{}{"name": "x", "oid": "1.3.6", "value_parser": "first_word"}},
		{"broken regex", map[string]interface{}{"name": "x", "oid": "1.3.6", "value_parser": "regex:("}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, do(t, mux, http.MethodPost, "/api/snmp/metrics", tt.body, "").Code)
		})
	}
}

func TestBuiltinMetricsAreReadOnly(t *testing.T) {
	store := newMemMetrics(dbmeta.SNMPMetric{Name: "sysUpTime", OID: "1.3.6.1.2.1.1.3.0", ValueType: "gauge", IsBuiltin: true})
	mux := snmpMux(store, newMemDevices(), &fakeProber{})

	rr := do(t, mux, http.MethodPut, "/api/snmp/metrics/1", map[string]interface{}{"unit": "ticks"}, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = do(t, mux, http.MethodDelete, "/api/snmp/metrics/1", nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, store.metrics, uint(1))

	rr = do(t, mux, http.MethodGet, "/api/snmp/metrics/builtin", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var builtins []metricResponse
	decodeBody(t, rr, &builtins)
	assert.NotEmpty(t, builtins)
	for _, b := range builtins {
		assert.True(t, b.IsBuiltin, b.Name)
	}
}

func TestUpdateAndDeleteCustomMetric(t *testing.T) {
	store := newMemMetrics(
		dbmeta.SNMPMetric{Name: "cpu", OID: "1.3.6.1.4.1.9.9.109.1.1.1.1.8", ValueType: "gauge"},
		dbmeta.SNMPMetric{Name: "mem", OID: "1.3.6.1.4.1.9.9.48.1.1.1.5", ValueType: "gauge"},
	)
	mux := snmpMux(store, newMemDevices(), &fakeProber{})

	rr := do(t, mux, http.MethodPut, "/api/snmp/metrics/1", map[string]interface{}{"unit": "%"}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "%", store.metrics[1].Unit)

	rr = do(t, mux, http.MethodPut, "/api/snmp/metrics/1", map[string]interface{}{"name": "mem"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Equal(t, http.StatusOK, do(t, mux, http.MethodDelete, "/api/snmp/metrics/2", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, mux, http.MethodGet, "/api/snmp/metrics/2", nil, "").Code)
}

func TestSNMPTestLayersDeviceSettings(t *testing.T) {
	devices := newMemDevices(dbmeta.Device{
		Name:     "core-sw1",
		Hostname: "10.0.0.1",
		Data: map[string]interface{}{
			"snmp_version":   "v3",
			"snmp_port":      float64(1161),
			"snmp_username":  "monitor",
			"snmp_community": "private",
		},
	})
	prober := &fakeProber{}
	mux := snmpMux(newMemMetrics(), devices, prober)

	rr := do(t, mux, http.MethodPost, "/api/snmp/test", map[string]interface{}{
		"device_name": "core-sw1", "oid": "1.3.6.1.2.1.1.3.0", "snmp_community": "override", "value_parser": "last_integer",
	}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, "10.0.0.1", prober.got.Target)
	assert.Equal(t, "v3", prober.got.Version)
	assert.Equal(t, 1161, prober.got.Port)
	assert.Equal(t, "monitor", prober.got.Username)
	assert.Equal(t, "override", prober.got.Community)
	assert.Equal(t, 3*time.Second, prober.got.Timeout)
	assert.Equal(t, "last_integer", prober.parser)

	var result snmp.Result
	decodeBody(t, rr, &result)
	assert.True(t, result.Success)
	require.NotNil(t, result.ParsedValue)
	assert.Equal(t, "42", *result.ParsedValue)
}

func TestSNMPTestDefaultsAndErrors(t *testing.T) {
	prober := &fakeProber{}
	mux := snmpMux(newMemMetrics(), newMemDevices(), prober)

	rr := do(t, mux, http.MethodPost, "/api/snmp/test", map[string]interface{}{"host": "192.0.2.1", "oid": "1.3.6.1.2.1.1.1.0"}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "public", prober.got.Community)
	assert.Equal(t, 161, prober.got.Port)
	assert.Equal(t, "v2c", prober.got.Version)

	assert.Equal(t, http.StatusNotFound,
		do(t, mux, http.MethodPost, "/api/snmp/test", map[string]interface{}{"device_name": "ghost", "oid": "1.3"}, "").Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, mux, http.MethodPost, "/api/snmp/test", map[string]interface{}{"oid": "1.3"}, "").Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, mux, http.MethodPost, "/api/snmp/test", map[string]interface{}{"host": "192.0.2.1"}, "").Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, mux, http.MethodPost, "/api/snmp/test", map[string]interface{}{"host": "192.0.2.1", "oid": "1.3", "value_parser": "nope"}, "").Code)
}
