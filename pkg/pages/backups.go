package pages

import (
	"log"
	"net/http"
	"time"

	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
)

// BackupsPageData holds data for the config backups page
type BackupsPageData struct {
	Schedules    []dbmeta.BackupSchedule
	Snapshots    []dbmeta.SnapshotMeta
	TotalBytes   int64
	Device       string
	LocalEnabled bool
	LocalPath    string
	S3Enabled    bool
	S3Bucket     string
	S3Prefix     string
	LastUpdated  time.Time
}

const backupsTemplate = `
{{define "content"}}
<div class="row">
    <div class="col-md-6">
        <div class="card">
            <div class="card-header">Local archive</div>
            <div class="card-body">
                {{if .Content.LocalEnabled}}
                <span class="badge bg-success">enabled</span> <code>{{.Content.LocalPath}}</code>
                {{else}}<span class="badge bg-secondary">disabled</span>{{end}}
            </div>
        </div>
    </div>
    <div class="col-md-6">
        <div class="card">
            <div class="card-header">S3 archive</div>
            <div class="card-body">
                {{if .Content.S3Enabled}}
                <span class="badge bg-success">enabled</span> <code>s3://{{.Content.S3Bucket}}/{{.Content.S3Prefix}}</code>
                {{else}}<span class="badge bg-secondary">disabled</span>{{end}}
            </div>
        </div>
    </div>
</div>

<div class="card">
    <div class="card-header"><i data-feather="clock"></i> Schedules</div>
    <div class="card-body">
        {{if .Content.Schedules}}
        <table class="table table-sm table-hover">
            <thead>
                <tr><th>Name</th><th>Devices</th><th>Every</th><th>Enabled</th><th>Last run</th><th>Last status</th><th>Next run</th><th>Owner</th></tr>
            </thead>
            <tbody>
            {{range .Content.Schedules}}
            <tr>
                <td>{{.Name}}</td>
                <td>{{len .Devices}}</td>
                <td>{{.IntervalMinutes}} min</td>
                <td>{{if .Enabled}}yes{{else}}no{{end}}</td>
                <td>{{timeAgo .LastRunAt}}</td>
                <td>{{if .LastStatus}}<span class="badge status-badge {{statusClass .LastStatus}}">{{.LastStatus}}</span>{{end}}
                    {{if .LastError}}<div class="small text-danger">{{.LastError}}</div>{{end}}</td>
                <td>{{formatTime .NextRunAt}}</td>
                <td>{{.CreatedBy}}</td>
            </tr>
            {{end}}
            </tbody>
        </table>
        {{else}}
        <p class="text-muted">No schedules</p>
        {{end}}
    </div>
</div>

<div class="card">
    <div class="card-header d-flex justify-content-between align-items-center">
        <span><i data-feather="file-text"></i> Recent snapshots{{if .Content.Device}} for {{.Content.Device}}{{end}}</span>
        <span class="text-muted small">{{len .Content.Snapshots}} shown, {{formatBytes .Content.TotalBytes}}</span>
    </div>
    <div class="card-body">
        {{if .Content.Snapshots}}
        <table class="table table-sm table-striped">
            <thead>
                <tr><th>ID</th><th>Device</th><th>Size</th><th>SHA-256</th><th>Collected</th><th>By</th><th></th></tr>
            </thead>
            <tbody>
            {{range .Content.Snapshots}}
            <tr>
                <td>{{.ID}}</td>
                <td><a href="/backups?device={{.DeviceName}}">{{.DeviceName}}</a></td>
                <td>{{formatBytes .Bytes}}</td>
                <td><code>{{.ContentSHA256}}</code></td>
                <td title="{{formatTime .CollectedAt}}">{{timeAgo .CollectedAt}}</td>
                <td>{{.CreatedBy}}</td>
                <td><a href="/api/configs/snapshots/{{.ID}}/download">download</a></td>
            </tr>
            {{end}}
            </tbody>
        </table>
        {{else}}
        <p class="text-muted">No snapshots collected yet</p>
        {{end}}
    </div>
</div>
{{end}}
`

// BackupsPage renders backup schedules and recent snapshots
func (s *Site) BackupsPage(w http.ResponseWriter, r *http.Request) {
	tmpl := parsePage(w, backupsTemplate)
	if tmpl == nil {
		return
	}

	data := BackupsPageData{
		Device:      r.URL.Query().Get("device"),
		LastUpdated: time.Now(),
	}
	if s.Config != nil {
		data.LocalEnabled = s.Config.Local.Enabled
		data.LocalPath = s.Config.Local.SnapshotDirectory
		data.S3Enabled = s.Config.S3.Enabled
		data.S3Bucket = s.Config.S3.Bucket
		data.S3Prefix = s.Config.S3.Prefix
	}

	var err error
	if data.Schedules, err = s.Schedules.ListSchedules(200, 0); err != nil {
		log.Printf("Backups page: failed to list schedules: %v", err)
		http.Error(w, "Failed to load schedules", http.StatusInternalServerError)
		return
	}
	if data.Snapshots, err = s.Snapshots.ListSnapshots(data.Device, 50, 0); err != nil {
		log.Printf("Backups page: failed to list snapshots: %v", err)
		http.Error(w, "Failed to load snapshots", http.StatusInternalServerError)
		return
	}
	for _, snap := range data.Snapshots {
		data.TotalBytes += snap.Bytes
	}

	renderTemplate(w, tmpl, "/backups", PageData{
		Title:    "Config Backups",
		Subtitle: "Scheduled running-config collection and stored snapshots",
		Content:  data,
	})
}
