package pages

import (
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
)

// DevicesPageData holds data for the devices page
type DevicesPageData struct {
	Devices     []dbmeta.Device
	Search      string
	Group       string
	Groups      []string
	LastUpdated time.Time
}

const devicesTemplate = `
{{define "content"}}
<form class="row g-2 mb-3" method="get" action="/devices">
    <div class="col-md-4">
        <input class="form-control" type="search" name="search" placeholder="Name or hostname" value="{{.Content.Search}}">
    </div>
    <div class="col-md-3">
        <select class="form-select" name="group">
            <option value="">All groups</option>
            {{$current := .Content.Group}}
            {{range .Content.Groups}}
            <option value="{{.}}" {{if eq . $current}}selected{{end}}>{{.}}</option>
            {{end}}
        </select>
    </div>
    <div class="col-md-2"><button class="btn btn-primary" type="submit">Filter</button></div>
</form>

<div class="card">
    <div class="card-header d-flex justify-content-between align-items-center">
        <span><i data-feather="server"></i> Inventory</span>
        <span class="text-muted small">Showing {{len .Content.Devices}} devices</span>
    </div>
    <div class="card-body">
        {{if .Content.Devices}}
        <div class="table-responsive">
            <table class="table table-striped table-hover">
                <thead>
                    <tr><th>Name</th><th>Hostname</th><th>Platform</th><th>Vendor</th><th>Group</th><th>Site</th><th>Active</th><th>Last connected</th></tr>
                </thead>
                <tbody>
                {{range .Content.Devices}}
                <tr>
                    <td>{{.Name}}</td>
                    <td>{{.Hostname}}:{{.Port}}</td>
                    <td>{{.Platform}}</td>
                    <td>{{.Vendor}}</td>
                    <td>{{.GroupName}}</td>
                    <td>{{.Site}}</td>
                    <td>{{if .IsActive}}<span class="badge bg-success">yes</span>{{else}}<span class="badge bg-secondary">no</span>{{end}}</td>
                    <td>{{timeAgo .LastConnected}}</td>
                </tr>
                {{end}}
                </tbody>
            </table>
        </div>
        {{else}}
        <p class="text-muted">No devices match</p>
        {{end}}
    </div>
</div>
{{end}}
`

// DevicesPage renders the device inventory
func (s *Site) DevicesPage(w http.ResponseWriter, r *http.Request) {
	tmpl := parsePage(w, devicesTemplate)
	if tmpl == nil {
		return
	}

	data := DevicesPageData{
		Search:      strings.TrimSpace(r.URL.Query().Get("search")),
		Group:       r.URL.Query().Get("group"),
		LastUpdated: time.Now(),
	}

	devices, err := s.Devices.ListDevices(dbmeta.DeviceFilter{
		Group:  data.Group,
		Search: data.Search,
		Limit:  1000,
	})
	if err != nil {
		log.Printf("Devices page: failed to list devices: %v", err)
		http.Error(w, "Failed to load devices", http.StatusInternalServerError)
		return
	}
	data.Devices = devices

	if stats, err := s.Devices.Stats(); err == nil {
		for g := range stats.ByGroup {
			data.Groups = append(data.Groups, g)
		}
		sort.Strings(data.Groups)
	}

	renderTemplate(w, tmpl, "/devices", PageData{
		Title:    "Devices",
		Subtitle: "Network devices managed by the console",
		Content:  data,
	})
}
