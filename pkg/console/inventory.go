package console

import (
	"context"
	"strings"

	"github.com/supporttools/GoNetGuard/pkg/client"
)

// PreviewRows is how many parsed rows an import preview shows
const PreviewRows = 20

// FilterDevices keeps devices whose name, hostname, site or platform contains
// query, ignoring case. An empty query keeps everything.
func FilterDevices(devices []client.Device, query string) []client.Device {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return devices
	}
	var out []client.Device
	for _, d := range devices {
		for _, field := range []string{d.Name, d.Hostname, d.Site, d.Platform} {
			if strings.Contains(strings.ToLower(field), q) {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// DeviceNames returns the names of devices in order
func DeviceNames(devices []client.Device) []string {
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}
	return names
}

// InventoryView combines the loaded device list, the search query and the
// selection so the select-all state always follows the filtered list
type InventoryView struct {
	devices   []client.Device
	query     string
	visible   []client.Device
	Selection *Selection
}

// NewInventoryView creates an empty view
func NewInventoryView() *InventoryView {
	return &InventoryView{Selection: NewSelection()}
}

// SetDevices replaces the loaded devices. Selected names that no longer
// exist are dropped.
func (v *InventoryView) SetDevices(devices []client.Device) {
	v.devices = devices
	v.Selection.Retain(DeviceNames(devices))
	v.refresh()
}

// SetQuery applies a search query. Wire it behind a Debouncer for typed input.
func (v *InventoryView) SetQuery(query string) {
	v.query = query
	v.refresh()
}

// Query returns the applied search query
func (v *InventoryView) Query() string {
	return v.query
}

// Visible returns the filtered devices
func (v *InventoryView) Visible() []client.Device {
	return v.visible
}

func (v *InventoryView) refresh() {
	v.visible = FilterDevices(v.devices, v.query)
	v.Selection.SetVisible(DeviceNames(v.visible))
}

// Importer submits parsed rows
type Importer interface {
	BulkUpsertDevices(ctx context.Context, devices []client.DeviceInput) (*client.BulkUpsertResult, error)
}

// ImportPreview holds the rows parsed from a spreadsheet before submission
type ImportPreview struct {
	rows []client.DeviceInput
}

// NewImportPreview wraps parsed rows
func NewImportPreview(rows []client.DeviceInput) *ImportPreview {
	return &ImportPreview{rows: rows}
}

// Rows returns the first PreviewRows rows. The slice is capped, so appending
// to it never writes into the rows Submit sends.
func (p *ImportPreview) Rows() []client.DeviceInput {
	n := len(p.rows)
	if n > PreviewRows {
		n = PreviewRows
	}
	return p.rows[:n:n]
}

// Total is the number of parsed rows
func (p *ImportPreview) Total() int {
	return len(p.rows)
}

// Hidden is the number of rows not shown in the preview
func (p *ImportPreview) Hidden() int {
	if n := len(p.rows) - PreviewRows; n > 0 {
		return n
	}
	return 0
}

// Submit sends every parsed row, not just the previewed ones
func (p *ImportPreview) Submit(ctx context.Context, importer Importer) (*client.BulkUpsertResult, error) {
	return importer.BulkUpsertDevices(ctx, p.rows)
}
