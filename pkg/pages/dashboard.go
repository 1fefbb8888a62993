package pages

import (
	"log"
	"net/http"
	"time"

	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
)

// DashboardData holds data for the dashboard page
type DashboardData struct {
	Inventory    *dbmeta.InventoryStats
	Tasks        *dbmeta.TaskSummary
	RecentTasks  []dbmeta.Task
	Schedules    []dbmeta.BackupSchedule
	EnabledCount int
	LocalEnabled bool
	S3Enabled    bool
	LastUpdated  time.Time
	Errors       []string
}

const dashboardTemplate = `
{{define "content"}}
{{range .Content.Errors}}
<div class="alert alert-warning">{{.}}</div>
{{end}}
<div class="row">
    <div class="col-md-3">
        <div class="card bg-light">
            <div class="card-body">
                <h5 class="card-title">Devices</h5>
                <p class="display-4">{{if .Content.Inventory}}{{comma .Content.Inventory.TotalDevices}}{{else}}-{{end}}</p>
                <div class="text-muted">{{if .Content.Inventory}}{{.Content.Inventory.ActiveDevices}} active, {{.Content.Inventory.GroupsCount}} groups{{end}}</div>
            </div>
        </div>
    </div>
    <div class="col-md-3">
        <div class="card bg-light">
            <div class="card-body">
                <h5 class="card-title">Tasks</h5>
                <p class="display-4">{{if .Content.Tasks}}{{comma .Content.Tasks.TotalTasks}}{{else}}-{{end}}</p>
                <div class="text-muted">Success rate {{if .Content.Tasks}}{{percent .Content.Tasks.SuccessRate}}{{else}}-{{end}}</div>
            </div>
        </div>
    </div>
    <div class="col-md-3">
        <div class="card bg-light">
            <div class="card-body">
                <h5 class="card-title">Backup schedules</h5>
                <p class="display-4">{{len .Content.Schedules}}</p>
                <div class="text-muted">{{.Content.EnabledCount}} enabled</div>
            </div>
        </div>
    </div>
    <div class="col-md-3">
        <div class="card bg-light">
            <div class="card-body">
                <h5 class="card-title">Archive</h5>
                <p class="card-text">
                    <span class="badge {{if .Content.LocalEnabled}}bg-success{{else}}bg-secondary{{end}}">Local</span>
                    <span class="badge {{if .Content.S3Enabled}}bg-success{{else}}bg-secondary{{end}}">S3</span>
                </p>
            </div>
        </div>
    </div>
</div>

{{if .Content.Tasks}}
<div class="row mt-4">
    {{range $status, $count := .Content.Tasks.StatusCounts}}
    <div class="col-md-2">
        <div class="card">
            <div class="card-body">
                <h6 class="card-title"><span class="badge {{statusClass $status}}">{{$status}}</span></h6>
                <p class="fs-3 mb-0">{{$count}}</p>
            </div>
        </div>
    </div>
    {{end}}
</div>
{{end}}

<div class="card mt-4">
    <div class="card-header">Recent tasks</div>
    <div class="card-body">
        {{if .Content.RecentTasks}}
        <table class="table table-sm table-hover">
            <thead><tr><th>ID</th><th>Name</th><th>Type</th><th>Status</th><th>Targets</th><th>Created</th><th>By</th></tr></thead>
            <tbody>
            {{range .Content.RecentTasks}}
            <tr>
                <td>{{.ID}}</td>
                <td>{{.Name}}</td>
                <td>{{.TaskType}}</td>
                <td><span class="badge status-badge {{statusClass .Status}}">{{.Status}}</span></td>
                <td>{{len .Targets}}</td>
                <td title="{{formatTime .CreatedAt}}">{{timeAgo .CreatedAt}}</td>
                <td>{{.CreatedBy}}</td>
            </tr>
            {{end}}
            </tbody>
        </table>
        {{else}}
        <p class="text-muted">No tasks yet</p>
        {{end}}
    </div>
</div>
<div class="text-muted small">Last updated {{formatTime .Content.LastUpdated}}</div>
{{end}}
`

// DashboardPage renders the main dashboard
func (s *Site) DashboardPage(w http.ResponseWriter, r *http.Request) {
	tmpl := parsePage(w, dashboardTemplate)
	if tmpl == nil {
		return
	}

	data := DashboardData{LastUpdated: time.Now()}
	if s.Config != nil {
		data.LocalEnabled = s.Config.Local.Enabled
		data.S3Enabled = s.Config.S3.Enabled
	}

	var err error
	if data.Inventory, err = s.Devices.Stats(); err != nil {
		log.Printf("Dashboard: failed to load inventory stats: %v", err)
		data.Errors = append(data.Errors, "Inventory statistics are unavailable")
	}
	if data.Tasks, err = s.Tasks.Summary(); err != nil {
		log.Printf("Dashboard: failed to load task summary: %v", err)
		data.Errors = append(data.Errors, "Task statistics are unavailable")
	}
	if data.RecentTasks, err = s.Tasks.ListTasks(dbmeta.TaskFilter{Limit: 10}); err != nil {
		log.Printf("Dashboard: failed to load recent tasks: %v", err)
	}
	if data.Schedules, err = s.Schedules.ListSchedules(200, 0); err != nil {
		log.Printf("Dashboard: failed to load schedules: %v", err)
	}
	for _, sc := range data.Schedules {
		if sc.Enabled {
			data.EnabledCount++
		}
	}

	renderTemplate(w, tmpl, "/", PageData{
		Title:    "Dashboard",
		Subtitle: "Inventory, task and backup overview",
		Content:  data,
	})
}
