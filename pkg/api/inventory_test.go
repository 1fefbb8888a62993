package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supporttools/GoNetGuard/pkg/client"
	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
	"github.com/supporttools/GoNetGuard/pkg/devices"
)

type memDevices struct {
	devices    map[string]*dbmeta.Device
	groups     map[string]*dbmeta.DeviceGroup
	lastFilter dbmeta.DeviceFilter
	nextID     uint
}

func newMemDevices(list ...dbmeta.Device) *memDevices {
	m := &memDevices{devices: map[string]*dbmeta.Device{}, groups: map[string]*dbmeta.DeviceGroup{}}
	for i := range list {
		d := list[i]
		m.nextID++
		d.ID = m.nextID
		m.devices[d.Name] = &d
	}
	return m
}

func (m *memDevices) ListDevices(filter dbmeta.DeviceFilter) ([]dbmeta.Device, error) {
	m.lastFilter = filter
	var out []dbmeta.Device
	for _, d := range m.devices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if filter.Offset >= len(out) {
		return []dbmeta.Device{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memDevices) GetDeviceByName(name string) (*dbmeta.Device, error) {
	d, ok := m.devices[name]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", name, dbmeta.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (m *memDevices) GetDevicesByNames(names []string) (map[string]dbmeta.Device, error) {
	out := map[string]dbmeta.Device{}
	for _, n := range names {
		if d, ok := m.devices[n]; ok {
			out[n] = *d
		}
	}
	return out, nil
}

func (m *memDevices) CreateDevice(d *dbmeta.Device) error {
	if _, ok := m.devices[d.Name]; ok {
		return fmt.Errorf("device %s: %w", d.Name, dbmeta.ErrConflict)
	}
	m.nextID++
	d.ID = m.nextID
	cp := *d
	m.devices[d.Name] = &cp
	return nil
}

func (m *memDevices) UpdateDevice(d *dbmeta.Device) error {
	cp := *d
	m.devices[d.Name] = &cp
	return nil
}

func (m *memDevices) DeleteDevice(name string) error {
	if _, ok := m.devices[name]; !ok {
		return fmt.Errorf("device %s: %w", name, dbmeta.ErrNotFound)
	}
	delete(m.devices, name)
	return nil
}

func (m *memDevices) DeleteDevices(names []string) (int64, []string, error) {
	var deleted int64
	var missing []string
	for _, n := range names {
		if _, ok := m.devices[n]; ok {
			delete(m.devices, n)
			deleted++
		} else {
			missing = append(missing, n)
		}
	}
	return deleted, missing, nil
}

func (m *memDevices) EnsureGroups(names []string) error {
	for _, n := range names {
		if _, ok := m.groups[n]; !ok {
			m.groups[n] = &dbmeta.DeviceGroup{Name: n}
		}
	}
	return nil
}

func (m *memDevices) ListGroups() ([]dbmeta.DeviceGroup, error) {
	var out []dbmeta.DeviceGroup
	for _, g := range m.groups {
		out = append(out, *g)
	}
	return out, nil
}

func (m *memDevices) CreateGroup(g *dbmeta.DeviceGroup) error {
	if _, ok := m.groups[g.Name]; ok {
		return fmt.Errorf("group %s: %w", g.Name, dbmeta.ErrConflict)
	}
	m.groups[g.Name] = g
	return nil
}

func (m *memDevices) Stats() (*dbmeta.InventoryStats, error) {
	return &dbmeta.InventoryStats{TotalDevices: int64(len(m.devices))}, nil
}

type fakeTester struct{ names []string }

func (f *fakeTester) TestConnectivity(ctx context.Context, names []string) (devices.Results, error) {
	f.names = names
	out := devices.Results{}
	for _, n := range names {
		out[n] = devices.HostResult{Status: "success", Result: map[string]interface{}{"connected": true}}
	}
	return out, nil
}

func inventoryMux(store *memDevices, tester *fakeTester) *http.ServeMux {
	return newMux(NewInventoryHandler(store, tester, quietLogger()))
}

func TestCreateDeviceDerivesVendorAndHidesPassword(t *testing.T) {
	store := newMemDevices()
	mux := inventoryMux(store, &fakeTester{})

	rr := do(t, mux, http.MethodPost, "/api/inventory/devices", map[string]interface{}{
		"name": "core-sw1", "hostname": "10.0.0.1", "platform": "huawei_vrp", "password": "secret", "group_name": "core",
	}, "alice")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var body map[string]interface{}
	decodeBody(t, rr, &body)
	assert.Equal(t, "Huawei", body["vendor"])
	assert.Equal(t, float64(22), body["port"])
	assert.Equal(t, true, body["is_active"])
	_, hasPassword := body["password"]
	assert.False(t, hasPassword)

	assert.Equal(t, "secret", store.devices["core-sw1"].Password)
	assert.Contains(t, store.groups, "core")
}

func TestCreateDeviceConflictAndValidation(t *testing.T) {
	store := newMemDevices(dbmeta.Device{Name: "r1", Hostname: "10.0.0.1"})
	mux := inventoryMux(store, &fakeTester{})

	rr := do(t, mux, http.MethodPost, "/api/inventory/devices", map[string]interface{}{"name": "r1", "hostname": "x"}, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.NotEmpty(t, detailOf(t, rr))

	rr = do(t, mux, http.MethodPost, "/api/inventory/devices", map[string]interface{}{"name": "r2"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "hostname is required", detailOf(t, rr))
}

func TestListDevicesFiltersAndLimits(t *testing.T) {
	store := newMemDevices(dbmeta.Device{Name: "b"}, dbmeta.Device{Name: "a"})
	mux := inventoryMux(store, &fakeTester{})

	rr := do(t, mux, http.MethodGet, "/api/inventory/devices?search=Core&is_active=false&vendor=Cisco", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []deviceResponse
	decodeBody(t, rr, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)

	assert.Equal(t, 50, store.lastFilter.Limit)
	assert.Equal(t, "Core", store.lastFilter.Search)
	assert.Equal(t, "Cisco", store.lastFilter.Vendor)
	require.NotNil(t, store.lastFilter.IsActive)
	assert.False(t, *store.lastFilter.IsActive)

	rr = do(t, mux, http.MethodGet, "/api/inventory/devices?limit=1001", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, mux, http.MethodGet, "/api/inventory/devices?limit=0", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestClientListsWholeInventoryAcrossPages(t *testing.T) {
	var list []dbmeta.Device
	for i := 0; i < 2*client.MaxPageSize+37; i++ {
		list = append(list, dbmeta.Device{Name: fmt.Sprintf("edge-%04d", i), Hostname: "10.0.0.1"})
	}
	srv := httptest.NewServer(inventoryMux(newMemDevices(list...), &fakeTester{}))
	t.Cleanup(srv.Close)
	c := client.New(srv.URL)

	// a single oversized page is refused
	_, err := c.ListDevices(context.Background(), client.DeviceFilter{Page: client.Page{Limit: 10000}})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, client.StatusCode(err))
	assert.Equal(t, "limit must be between 1 and 1000", err.Error())

	devices, err := c.ListAllDevices(context.Background(), client.DeviceFilter{Page: client.Page{Limit: 10000}})
	require.NoError(t, err)
	require.Len(t, devices, len(list))
	assert.Equal(t, "edge-0000", devices[0].Name)
	assert.Equal(t, fmt.Sprintf("edge-%04d", len(list)-1), devices[len(devices)-1].Name)
}

func TestUpdateDeviceKeepsPasswordOnNull(t *testing.T) {
	store := newMemDevices(dbmeta.Device{Name: "r1", Hostname: "10.0.0.1", Password: "old", Platform: "cisco_ios", Vendor: "Cisco"})
	mux := inventoryMux(store, &fakeTester{})

	rr := do(t, mux, http.MethodPut, "/api/inventory/devices/r1", `{"hostname":"10.0.0.9","password":null,"platform":"juniper_junos"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	d := store.devices["r1"]
	assert.Equal(t, "10.0.0.9", d.Hostname)
	assert.Equal(t, "old", d.Password)
	assert.Equal(t, "Juniper", d.Vendor)

	rr = do(t, mux, http.MethodPut, "/api/inventory/devices/r1", map[string]interface{}{"name": "renamed"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, mux, http.MethodPut, "/api/inventory/devices/ghost", map[string]interface{}{}, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetAndDeleteDevice(t *testing.T) {
	store := newMemDevices(dbmeta.Device{Name: "r1", Hostname: "10.0.0.1"})
	mux := inventoryMux(store, &fakeTester{})

	assert.Equal(t, http.StatusOK, do(t, mux, http.MethodGet, "/api/inventory/devices/r1", nil, "").Code)
	assert.Equal(t, http.StatusOK, do(t, mux, http.MethodDelete, "/api/inventory/devices/r1", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, mux, http.MethodGet, "/api/inventory/devices/r1", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, mux, http.MethodDelete, "/api/inventory/devices/r1", nil, "").Code)
}

func TestBulkUpsert(t *testing.T) {
	store := newMemDevices(dbmeta.Device{Name: "r1", Hostname: "10.0.0.1", Site: "dc1", Password: "keep"})
	mux := inventoryMux(store, &fakeTester{})

	rows := []map[string]interface{}{
		{"name": "r1", "hostname": "10.0.0.11", "site": ""},
		{"name": "r2", "hostname": "10.0.0.2", "group_name": "edge"},
		{"hostname": "10.0.0.3"},
		{"name": "r2", "hostname": "10.0.0.4"},
		{"name": "r5"},
	}
	rr := do(t, mux, http.MethodPost, "/api/inventory/devices/bulk", rows, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp bulkUpsertResponse
	decodeBody(t, rr, &resp)
	assert.Equal(t, 1, resp.Created)
	assert.Equal(t, 1, resp.Updated)
	assert.Equal(t, 3, resp.Failed)
	require.Len(t, resp.Errors, 3)
	assert.Equal(t, 2, resp.Errors[0].Index)
	assert.Nil(t, resp.Errors[0].Name)
	assert.Equal(t, 3, resp.Errors[1].Index)
	assert.Equal(t, 4, resp.Errors[2].Index)

	r1 := store.devices["r1"]
	assert.Equal(t, "10.0.0.11", r1.Hostname)
	assert.Equal(t, "dc1", r1.Site, "empty cells do not overwrite")
	assert.Equal(t, "keep", r1.Password)
	assert.Contains(t, store.groups, "edge")
}

func TestBulkDeleteRequiresConfirm(t *testing.T) {
	store := newMemDevices(dbmeta.Device{Name: "r1"}, dbmeta.Device{Name: "r2"})
	mux := inventoryMux(store, &fakeTester{})

	rr := do(t, mux, http.MethodPost, "/api/inventory/devices/bulk-delete", map[string]interface{}{"names": []string{"r1"}}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Len(t, store.devices, 2)

	rr = do(t, mux, http.MethodPost, "/api/inventory/devices/bulk-delete",
		map[string]interface{}{"names": []string{"r1", " ", "ghost"}, "confirm": true}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp bulkDeleteResponse
	decodeBody(t, rr, &resp)
	assert.Equal(t, int64(1), resp.Deleted)
	assert.Equal(t, []string{"ghost"}, resp.NotFound)
	assert.Zero(t, resp.Failed)
}

func TestConnectivityTest(t *testing.T) {
	store := newMemDevices(dbmeta.Device{Name: "r1"})
	tester := &fakeTester{}
	mux := inventoryMux(store, tester)

	rr := do(t, mux, http.MethodPost, "/api/inventory/devices/r1/connectivity-test", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"r1"}, tester.names)
	assert.True(t, strings.Contains(rr.Body.String(), `"connected":true`))

	rr = do(t, mux, http.MethodPost, "/api/inventory/devices/ghost/connectivity-test", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGroupsAndStats(t *testing.T) {
	store := newMemDevices(dbmeta.Device{Name: "r1"})
	mux := inventoryMux(store, &fakeTester{})

	rr := do(t, mux, http.MethodPost, "/api/inventory/groups", map[string]interface{}{"name": "core", "platform": "cisco_ios"}, "")
	assert.Equal(t, http.StatusCreated, rr.Code)
	rr = do(t, mux, http.MethodPost, "/api/inventory/groups", map[string]interface{}{"name": "core"}, "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, mux, http.MethodGet, "/api/inventory/groups", nil, "")
	var groups []groupResponse
	decodeBody(t, rr, &groups)
	require.Len(t, groups, 1)

	rr = do(t, mux, http.MethodGet, "/api/inventory/stats", nil, "")
	var stats dbmeta.InventoryStats
	decodeBody(t, rr, &stats)
	assert.Equal(t, int64(1), stats.TotalDevices)
}
