package client

import (
	"context"
	"net/http"
)

// ListMetrics lists the stored SNMP metric definitions
func (c *Client) ListMetrics(ctx context.Context) ([]Metric, error) {
	var out []Metric
	err := c.do(ctx, http.MethodGet, "/api/snmp/metrics", nil, nil, &out)
	return out, err
}

// BuiltinMetrics lists the metrics shipped with the server
func (c *Client) BuiltinMetrics(ctx context.Context) ([]Metric, error) {
	var out []Metric
	err := c.do(ctx, http.MethodGet, "/api/snmp/metrics/builtin", nil, nil, &out)
	return out, err
}

// CreateMetric adds a custom metric
func (c *Client) CreateMetric(ctx context.Context, in MetricInput) (*Metric, error) {
	var out Metric
	if err := c.do(ctx, http.MethodPost, "/api/snmp/metrics", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMetric changes a custom metric. Builtins are rejected by the server.
func (c *Client) UpdateMetric(ctx context.Context, id uint, in MetricInput) (*Metric, error) {
	var out Metric
	if err := c.do(ctx, http.MethodPut, pathf("/api/snmp/metrics/%d", id), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMetric removes a custom metric
func (c *Client) DeleteMetric(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, pathf("/api/snmp/metrics/%d", id), nil, nil, nil)
}

// TestOID probes an OID on a host or inventory device
func (c *Client) TestOID(ctx context.Context, in SNMPTestInput) (*SNMPTestResult, error) {
	var out SNMPTestResult
	if err := c.do(ctx, http.MethodPost, "/api/snmp/test", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
