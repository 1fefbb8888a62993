package client

import (
	"context"
	"net/http"
	"strconv"
)

// ListDevices lists inventory devices matching filter
func (c *Client) ListDevices(ctx context.Context, filter DeviceFilter) ([]Device, error) {
	q := filter.Page.values()
	for key, val := range map[string]string{
		"group":       filter.Group,
		"site":        filter.Site,
		"device_type": filter.DeviceType,
		"platform":    filter.Platform,
		"vendor":      filter.Vendor,
		"search":      filter.Search,
	} {
		if val != "" {
			q.Set(key, val)
		}
	}
	if filter.IsActive != nil {
		q.Set("is_active", strconv.FormatBool(*filter.IsActive))
	}

	var out []Device
	err := c.do(ctx, http.MethodGet, "/api/inventory/devices", q, nil, &out)
	return out, err
}

// MaxPageSize is the largest page the server returns for one list request
const MaxPageSize = 1000

// ListAllDevices lists every device matching filter, requesting MaxPageSize
// pages until a short page comes back. filter.Page is ignored.
func (c *Client) ListAllDevices(ctx context.Context, filter DeviceFilter) ([]Device, error) {
	var all []Device
	filter.Page = Page{Limit: MaxPageSize}
	for {
		page, err := c.ListDevices(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < MaxPageSize {
			return all, nil
		}
		filter.Offset += len(page)
	}
}

// GetDevice fetches one device by name
func (c *Client) GetDevice(ctx context.Context, name string) (*Device, error) {
	var out Device
	if err := c.do(ctx, http.MethodGet, pathf("/api/inventory/devices/%s", name), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDevice adds a device
func (c *Client) CreateDevice(ctx context.Context, in DeviceInput) (*Device, error) {
	var out Device
	if err := c.do(ctx, http.MethodPost, "/api/inventory/devices", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateDevice changes the supplied fields of a device
func (c *Client) UpdateDevice(ctx context.Context, name string, in DeviceInput) (*Device, error) {
	var out Device
	if err := c.do(ctx, http.MethodPut, pathf("/api/inventory/devices/%s", name), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDevice removes a device
func (c *Client) DeleteDevice(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, pathf("/api/inventory/devices/%s", name), nil, nil, nil)
}

// BulkUpsertDevices imports devices; rows that fail are reported, not fatal
func (c *Client) BulkUpsertDevices(ctx context.Context, devices []DeviceInput) (*BulkUpsertResult, error) {
	var out BulkUpsertResult
	if devices == nil {
		devices = []DeviceInput{}
	}
	if err := c.do(ctx, http.MethodPost, "/api/inventory/devices/bulk", nil, devices, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BulkDeleteDevices removes devices by name. The server refuses unless confirm is set.
func (c *Client) BulkDeleteDevices(ctx context.Context, names []string, confirm bool) (*BulkDeleteResult, error) {
	var out BulkDeleteResult
	body := map[string]interface{}{"names": names, "confirm": confirm}
	if err := c.do(ctx, http.MethodPost, "/api/inventory/devices/bulk-delete", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TestConnectivity opens a session to the device and reports the outcome
func (c *Client) TestConnectivity(ctx context.Context, name string) (*HostResult, error) {
	var out HostResult
	if err := c.do(ctx, http.MethodPost, pathf("/api/inventory/devices/%s/connectivity-test", name), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListGroups lists device groups
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var out []Group
	err := c.do(ctx, http.MethodGet, "/api/inventory/groups", nil, nil, &out)
	return out, err
}

// CreateGroup adds a device group
func (c *Client) CreateGroup(ctx context.Context, in GroupInput) (*Group, error) {
	var out Group
	if err := c.do(ctx, http.MethodPost, "/api/inventory/groups", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InventoryStats returns inventory counters
func (c *Client) InventoryStats(ctx context.Context) (*InventoryStats, error) {
	var out InventoryStats
	if err := c.do(ctx, http.MethodGet, "/api/inventory/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
