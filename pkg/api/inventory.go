package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
	"github.com/supporttools/GoNetGuard/pkg/devices"
)

// DeviceStore is the inventory persistence used by InventoryHandler
type DeviceStore interface {
	ListDevices(filter dbmeta.DeviceFilter) ([]dbmeta.Device, error)
	GetDeviceByName(name string) (*dbmeta.Device, error)
	GetDevicesByNames(names []string) (map[string]dbmeta.Device, error)
	CreateDevice(device *dbmeta.Device) error
	UpdateDevice(device *dbmeta.Device) error
	DeleteDevice(name string) error
	DeleteDevices(names []string) (int64, []string, error)
	EnsureGroups(names []string) error
	ListGroups() ([]dbmeta.DeviceGroup, error)
	CreateGroup(group *dbmeta.DeviceGroup) error
	Stats() (*dbmeta.InventoryStats, error)
}

// ConnectivityTester opens and closes a session against named devices
type ConnectivityTester interface {
	TestConnectivity(ctx context.Context, names []string) (devices.Results, error)
}

// InventoryHandler handles device and group management API endpoints
type InventoryHandler struct {
	store  DeviceStore
	tester ConnectivityTester
	Logger *logrus.Logger
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(store DeviceStore, tester ConnectivityTester, logger *logrus.Logger) *InventoryHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &InventoryHandler{store: store, tester: tester, Logger: logger}
}

// RegisterRoutes registers the inventory API routes on the provided mux
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/inventory/devices", h.handleDevices)
	mux.HandleFunc("/api/inventory/devices/bulk", h.handleBulkUpsert)
	mux.HandleFunc("/api/inventory/devices/bulk-delete", h.handleBulkDelete)
	mux.HandleFunc("/api/inventory/devices/{name}", h.handleDevice)
	mux.HandleFunc("/api/inventory/devices/{name}/connectivity-test", h.handleConnectivityTest)
	mux.HandleFunc("/api/inventory/groups", h.handleGroups)
	mux.HandleFunc("/api/inventory/stats", h.handleStats)
}

// deviceRequest is the body for creating or updating a device. Pointer fields
// distinguish "not sent" from zero values on update.
type deviceRequest struct {
	Name        string                 `json:"name"`
	Hostname    *string                `json:"hostname"`
	Site        *string                `json:"site"`
	DeviceType  *string                `json:"device_type"`
	Platform    *string                `json:"platform"`
	Port        *int                   `json:"port"`
	Username    *string                `json:"username"`
	Password    *string                `json:"password"`
	Timeout     *int                   `json:"timeout"`
	GroupName   *string                `json:"group_name"`
	Vendor      *string                `json:"vendor"`
	Model       *string                `json:"model"`
	OSVersion   *string                `json:"os_version"`
	Description *string                `json:"description"`
	IsActive    *bool                  `json:"is_active"`
	Data        map[string]interface{} `json:"data"`
}

// deviceResponse never carries the password
type deviceResponse struct {
	ID            uint                   `json:"id"`
	Name          string                 `json:"name"`
	Hostname      string                 `json:"hostname"`
	Site          string                 `json:"site"`
	DeviceType    string                 `json:"device_type"`
	Platform      string                 `json:"platform"`
	Port          int                    `json:"port"`
	Username      string                 `json:"username"`
	Timeout       int                    `json:"timeout"`
	GroupName     string                 `json:"group_name"`
	Vendor        string                 `json:"vendor"`
	Model         string                 `json:"model"`
	OSVersion     string                 `json:"os_version"`
	Description   string                 `json:"description"`
	IsActive      bool                   `json:"is_active"`
	Data          map[string]interface{} `json:"data"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	LastConnected *time.Time             `json:"last_connected"`
}

func convertDeviceToResponse(d *dbmeta.Device) deviceResponse {
	data := d.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	return deviceResponse{
		ID:            d.ID,
		Name:          d.Name,
		Hostname:      d.Hostname,
		Site:          d.Site,
		DeviceType:    d.DeviceType,
		Platform:      d.Platform,
		Port:          d.Port,
		Username:      d.Username,
		Timeout:       d.Timeout,
		GroupName:     d.GroupName,
		Vendor:        d.Vendor,
		Model:         d.Model,
		OSVersion:     d.OSVersion,
		Description:   d.Description,
		IsActive:      d.IsActive,
		Data:          data,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		LastConnected: d.LastConnected,
	}
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// newDevice builds a device from a create request, applying defaults
func newDevice(req deviceRequest) (*dbmeta.Device, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.New("name is required")
	}
	hostname := str(req.Hostname)
	if hostname == "" {
		return nil, errors.New("hostname is required")
	}

	d := &dbmeta.Device{
		Name:        name,
		Hostname:    hostname,
		Site:        str(req.Site),
		DeviceType:  str(req.DeviceType),
		Platform:    str(req.Platform),
		Port:        22,
		Username:    str(req.Username),
		GroupName:   str(req.GroupName),
		Vendor:      str(req.Vendor),
		Model:       str(req.Model),
		OSVersion:   str(req.OSVersion),
		Description: str(req.Description),
		IsActive:    true,
		Data:        req.Data,
	}
	if req.Password != nil {
		d.Password = *req.Password
	}
	if d.Platform == "" {
		d.Platform = "cisco_ios"
	}
	if req.Port != nil && *req.Port > 0 {
		d.Port = *req.Port
	}
	if req.Timeout != nil {
		d.Timeout = *req.Timeout
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}
	if d.Data == nil {
		d.Data = map[string]interface{}{}
	}
	if d.Vendor == "" {
		d.Vendor = devices.VendorFromPlatform(d.Platform)
	}
	if d.Port < 1 || d.Port > 65535 {
		return nil, errors.New("port must be between 1 and 65535")
	}
	return d, nil
}

// applyUpdate copies the fields present in req onto d. With skipEmpty set,
// empty strings leave the stored value alone (spreadsheet upserts).
func applyUpdate(d *dbmeta.Device, req deviceRequest, skipEmpty bool) {
	set := func(dst *string, src *string) {
		if src == nil {
			return
		}
		v := strings.TrimSpace(*src)
		if v == "" && skipEmpty {
			return
		}
		*dst = v
	}
	set(&d.Hostname, req.Hostname)
	set(&d.Site, req.Site)
	set(&d.DeviceType, req.DeviceType)
	set(&d.Username, req.Username)
	set(&d.GroupName, req.GroupName)
	set(&d.Model, req.Model)
	set(&d.OSVersion, req.OSVersion)
	set(&d.Description, req.Description)
	set(&d.Vendor, req.Vendor)

	platformChanged := false
	if p := str(req.Platform); p != "" {
		platformChanged = p != d.Platform
		d.Platform = p
	}
	// a null password keeps the stored one
	if req.Password != nil && (*req.Password != "" || !skipEmpty) {
		d.Password = *req.Password
	}
	if req.Port != nil && *req.Port > 0 {
		d.Port = *req.Port
	}
	if req.Timeout != nil {
		d.Timeout = *req.Timeout
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}
	if req.Data != nil {
		d.Data = req.Data
	}
	if req.Vendor == nil && (d.Vendor == "" || platformChanged) {
		d.Vendor = devices.VendorFromPlatform(d.Platform)
	}
}

// handleDevices handles listing and creating devices
func (h *InventoryHandler) handleDevices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listDevices(w, r)
	case http.MethodPost:
		h.createDevice(w, r)
	default:
		methodNotAllowed(w, h.Logger)
	}
}

func (h *InventoryHandler) listDevices(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r, 50, 1000)
	if err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	filter := dbmeta.DeviceFilter{
		Group:      q.Get("group"),
		Site:       q.Get("site"),
		DeviceType: q.Get("device_type"),
		Platform:   q.Get("platform"),
		Vendor:     q.Get("vendor"),
		Search:     strings.TrimSpace(q.Get("search")),
		Limit:      limit,
		Offset:     offset,
	}
	if raw := q.Get("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, h.Logger, http.StatusBadRequest, "is_active must be true or false")
			return
		}
		filter.IsActive = &active
	}

	list, err := h.store.ListDevices(filter)
	if err != nil {
		writeError(w, h.Logger, http.StatusInternalServerError, "Failed to list devices: "+err.Error())
		return
	}

	response := make([]deviceResponse, 0, len(list))
	for i := range list {
		response = append(response, convertDeviceToResponse(&list[i]))
	}
	writeJSON(w, h.Logger, http.StatusOK, response)
}

func (h *InventoryHandler) createDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	device, err := newDevice(req)
	if err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}
	if device.GroupName != "" {
		if err := h.store.EnsureGroups([]string{device.GroupName}); err != nil {
			writeRepoError(w, h.Logger, err)
			return
		}
	}
	if err := h.store.CreateDevice(device); err != nil {
		writeRepoError(w, h.Logger, err)
		return
	}

	h.Logger.WithFields(logrus.Fields{"device": device.Name, "user": CurrentUser(r.Context())}).Info("Device created")
	writeJSON(w, h.Logger, http.StatusCreated, convertDeviceToResponse(device))
}

// handleDevice handles reads, updates and deletes of a single device
func (h *InventoryHandler) handleDevice(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	switch r.Method {
	case http.MethodGet:
		device, err := h.store.GetDeviceByName(name)
		if err != nil {
			writeRepoError(w, h.Logger, err)
			return
		}
		writeJSON(w, h.Logger, http.StatusOK, convertDeviceToResponse(device))

	case http.MethodPut:
		var req deviceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.Logger, http.StatusBadRequest, err.Error())
			return
		}
		if req.Name != "" && req.Name != name {
			writeError(w, h.Logger, http.StatusBadRequest, "Device name cannot be changed")
			return
		}

		device, err := h.store.GetDeviceByName(name)
		if err != nil {
			writeRepoError(w, h.Logger, err)
			return
		}
		applyUpdate(device, req, false)
		if device.GroupName != "" {
			if err := h.store.EnsureGroups([]string{device.GroupName}); err != nil {
				writeRepoError(w, h.Logger, err)
				return
			}
		}
		if err := h.store.UpdateDevice(device); err != nil {
			writeRepoError(w, h.Logger, err)
			return
		}
		writeJSON(w, h.Logger, http.StatusOK, convertDeviceToResponse(device))

	case http.MethodDelete:
		if err := h.store.DeleteDevice(name); err != nil {
			writeRepoError(w, h.Logger, err)
			return
		}
		h.Logger.WithFields(logrus.Fields{"device": name, "user": CurrentUser(r.Context())}).Info("Device deleted")
		writeJSON(w, h.Logger, http.StatusOK, map[string]string{"message": "Device " + name + " deleted"})

	default:
		methodNotAllowed(w, h.Logger)
	}
}

// bulkError reports one rejected row of a bulk request
type bulkError struct {
	Index int     `json:"index"`
	Name  *string `json:"name"`
	Error string  `json:"error"`
}

type bulkUpsertResponse struct {
	Created int         `json:"created"`
	Updated int         `json:"updated"`
	Failed  int         `json:"failed"`
	Errors  []bulkError `json:"errors"`
}

// handleBulkUpsert creates or updates every device in the list. Existing
// devices only take the non-empty fields of their row.
func (h *InventoryHandler) handleBulkUpsert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, h.Logger)
		return
	}

	var rows []deviceRequest
	if err := decodeJSON(r, &rows); err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	resp := bulkUpsertResponse{Errors: []bulkError{}}
	fail := func(idx int, name, msg string) {
		be := bulkError{Index: idx, Error: msg}
		if name != "" {
			n := name
			be.Name = &n
		}
		resp.Errors = append(resp.Errors, be)
	}

	type indexed struct {
		idx int
		req deviceRequest
	}
	seen := map[string]bool{}
	var unique []indexed
	var names, groups []string
	for idx, row := range rows {
		name := strings.TrimSpace(row.Name)
		if name == "" {
			fail(idx, "", "name is required")
			continue
		}
		if seen[name] {
			fail(idx, name, "duplicate device name in request")
			continue
		}
		seen[name] = true
		row.Name = name
		unique = append(unique, indexed{idx: idx, req: row})
		names = append(names, name)
		if g := str(row.GroupName); g != "" {
			groups = append(groups, g)
		}
	}

	existing, err := h.store.GetDevicesByNames(names)
	if err != nil {
		writeError(w, h.Logger, http.StatusInternalServerError, "Failed to look up devices: "+err.Error())
		return
	}
	if err := h.store.EnsureGroups(groups); err != nil {
		writeError(w, h.Logger, http.StatusInternalServerError, "Failed to create groups: "+err.Error())
		return
	}

	for _, item := range unique {
		if current, ok := existing[item.req.Name]; ok {
			device := current
			applyUpdate(&device, item.req, true)
			if err := h.store.UpdateDevice(&device); err != nil {
				fail(item.idx, item.req.Name, err.Error())
				continue
			}
			resp.Updated++
			continue
		}

		device, err := newDevice(item.req)
		if err != nil {
			fail(item.idx, item.req.Name, err.Error())
			continue
		}
		if err := h.store.CreateDevice(device); err != nil {
			fail(item.idx, item.req.Name, err.Error())
			continue
		}
		resp.Created++
	}
	resp.Failed = len(resp.Errors)

	h.Logger.WithFields(logrus.Fields{
		"created": resp.Created,
		"updated": resp.Updated,
		"failed":  resp.Failed,
		"user":    CurrentUser(r.Context()),
	}).Info("Bulk device import finished")
	writeJSON(w, h.Logger, http.StatusOK, resp)
}

type bulkDeleteRequest struct {
	Names   []string `json:"names"`
	Confirm bool     `json:"confirm"`
}

type bulkDeleteResponse struct {
	Deleted  int64                    `json:"deleted"`
	NotFound []string                 `json:"not_found"`
	Failed   int                      `json:"failed"`
	Errors   []map[string]interface{} `json:"errors"`
}

func (h *InventoryHandler) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, h.Logger)
		return
	}

	var req bulkDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Confirm {
		writeError(w, h.Logger, http.StatusBadRequest, "Confirmation required: confirm=true")
		return
	}

	var names []string
	for _, n := range req.Names {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	resp := bulkDeleteResponse{NotFound: []string{}, Errors: []map[string]interface{}{}}
	if len(names) == 0 {
		writeJSON(w, h.Logger, http.StatusOK, resp)
		return
	}

	deleted, notFound, err := h.store.DeleteDevices(names)
	if notFound != nil {
		resp.NotFound = notFound
	}
	if err != nil {
		resp.Errors = append(resp.Errors, map[string]interface{}{"error": err.Error()})
	}
	resp.Deleted = deleted
	resp.Failed = len(resp.Errors)

	h.Logger.WithFields(logrus.Fields{"deleted": deleted, "not_found": len(resp.NotFound), "user": CurrentUser(r.Context())}).
		Info("Bulk device delete finished")
	writeJSON(w, h.Logger, http.StatusOK, resp)
}

func (h *InventoryHandler) handleConnectivityTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, h.Logger)
		return
	}

	name := r.PathValue("name")
	if _, err := h.store.GetDeviceByName(name); err != nil {
		writeRepoError(w, h.Logger, err)
		return
	}

	results, err := h.tester.TestConnectivity(r.Context(), []string{name})
	if err != nil {
		writeError(w, h.Logger, http.StatusInternalServerError, "Connectivity test failed: "+err.Error())
		return
	}
	writeJSON(w, h.Logger, http.StatusOK, results[name])
}

type groupRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Username    string                 `json:"username"`
	Password    string                 `json:"password"`
	Platform    string                 `json:"platform"`
	Port        int                    `json:"port"`
	Timeout     int                    `json:"timeout"`
	Data        map[string]interface{} `json:"data"`
}

type groupResponse struct {
	ID           uint                   `json:"id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Username     string                 `json:"username"`
	Platform     string                 `json:"platform"`
	Port         int                    `json:"port"`
	Timeout      int                    `json:"timeout"`
	Data         map[string]interface{} `json:"data"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	DevicesCount int64                  `json:"devices_count"`
}

func convertGroupToResponse(g *dbmeta.DeviceGroup) groupResponse {
	data := g.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	return groupResponse{
		ID:           g.ID,
		Name:         g.Name,
		Description:  g.Description,
		Username:     g.Username,
		Platform:     g.Platform,
		Port:         g.Port,
		Timeout:      g.Timeout,
		Data:         data,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
		DevicesCount: g.DevicesCount,
	}
}

func (h *InventoryHandler) handleGroups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		groups, err := h.store.ListGroups()
		if err != nil {
			writeError(w, h.Logger, http.StatusInternalServerError, "Failed to list groups: "+err.Error())
			return
		}
		response := make([]groupResponse, 0, len(groups))
		for i := range groups {
			response = append(response, convertGroupToResponse(&groups[i]))
		}
		writeJSON(w, h.Logger, http.StatusOK, response)

	case http.MethodPost:
		var req groupRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.Logger, http.StatusBadRequest, err.Error())
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, h.Logger, http.StatusBadRequest, "name is required")
			return
		}
		group := &dbmeta.DeviceGroup{
			Name:        req.Name,
			Description: req.Description,
			Username:    req.Username,
			Password:    req.Password,
			Platform:    req.Platform,
			Port:        req.Port,
			Timeout:     req.Timeout,
			Data:        req.Data,
		}
		if group.Data == nil {
			group.Data = map[string]interface{}{}
		}
		if err := h.store.CreateGroup(group); err != nil {
			writeRepoError(w, h.Logger, err)
			return
		}
		writeJSON(w, h.Logger, http.StatusCreated, convertGroupToResponse(group))

	default:
		methodNotAllowed(w, h.Logger)
	}
}

func (h *InventoryHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, h.Logger)
		return
	}
	stats, err := h.store.Stats()
	if err != nil {
		writeError(w, h.Logger, http.StatusInternalServerError, "Failed to compute inventory stats: "+err.Error())
		return
	}
	writeJSON(w, h.Logger, http.StatusOK, stats)
}
