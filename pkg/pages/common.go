// Package pages provides the server-rendered console pages.
package pages

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/supporttools/GoNetGuard/pkg/config"
	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
	"github.com/supporttools/GoNetGuard/pkg/version"
)

// PageData is what the layout renders around a page's content block
type PageData struct {
	Title    string
	Subtitle string
	Path     string
	Version  string
	Rendered time.Time
	Sections []NavSection
	Content  interface{}
}

// NavSection is one sidebar entry
type NavSection struct {
	Path   string
	Label  string
	Active bool
}

var sections = []NavSection{
	{Path: "/", Label: "Overview"},
	{Path: "/devices", Label: "Inventory"},
	{Path: "/tasks", Label: "Tasks"},
	{Path: "/backups", Label: "Config backups"},
}

// DeviceSource reads the inventory
type DeviceSource interface {
	ListDevices(filter dbmeta.DeviceFilter) ([]dbmeta.Device, error)
	Stats() (*dbmeta.InventoryStats, error)
}

// TaskSource reads task history
type TaskSource interface {
	ListTasks(filter dbmeta.TaskFilter) ([]dbmeta.Task, error)
	Summary() (*dbmeta.TaskSummary, error)
}

// ScheduleSource reads backup schedules
type ScheduleSource interface {
	ListSchedules(limit, offset int) ([]dbmeta.BackupSchedule, error)
}

// SnapshotSource reads snapshot metadata
type SnapshotSource interface {
	ListSnapshots(deviceName string, limit, offset int) ([]dbmeta.SnapshotMeta, error)
}

// Site renders the console pages from the metadata repositories
type Site struct {
	Devices   DeviceSource
	Tasks     TaskSource
	Schedules ScheduleSource
	Snapshots SnapshotSource
	Config    *config.AppConfig
}

// RegisterRoutes registers the page routes on the provided mux
func (s *Site) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/{$}", s.DashboardPage)
	mux.HandleFunc("/devices", s.DevicesPage)
	mux.HandleFunc("/tasks", s.TasksPage)
	mux.HandleFunc("/backups", s.BackupsPage)
}

// asTime accepts time.Time or *time.Time; ok is false for nil or zero values
func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	}
	return time.Time{}, false
}

// statusClass maps task and run statuses to badge classes
func statusClass(status string) string {
	switch status {
	case dbmeta.TaskCompleted, "success":
		return "bg-success"
	case dbmeta.TaskFailed:
		return "bg-danger"
	case dbmeta.TaskRunning:
		return "bg-primary"
	case dbmeta.TaskCanceled:
		return "bg-secondary"
	}
	return "bg-warning text-dark"
}

var pageFuncs = template.FuncMap{
	"formatTime": func(v interface{}) string {
		t, ok := asTime(v)
		if !ok {
			return "-"
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"timeAgo": func(v interface{}) string {
		t, ok := asTime(v)
		if !ok {
			return "never"
		}
		return humanize.Time(t)
	},
	"formatBytes": func(n int64) string {
		if n < 0 {
			n = 0
		}
		return humanize.Bytes(uint64(n))
	},
	"comma":       humanize.Comma,
	"statusClass": statusClass,
	"percent": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%.1f%%", *v)
	},
}

const layoutHTML = `{{define "layout"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} | GoNetGuard</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css">
<style>
  .ng-shell { display: flex; min-height: 100vh; }
  .ng-side { width: 13rem; background: #1f2933; color: #cbd2d9; padding: 1.25rem 0; flex-shrink: 0; }
  .ng-side .brand { color: #fff; font-weight: 600; padding: 0 1.25rem 1rem; display: block; text-decoration: none; }
  .ng-side a.section { display: block; padding: .45rem 1.25rem; color: inherit; text-decoration: none; }
  .ng-side a.section.active { background: #323f4b; color: #fff; border-left: 3px solid #3ebd93; }
  .ng-main { flex: 1; padding: 1.5rem 2rem; background: #f5f7fa; }
  .ng-main .card { margin-bottom: 1.25rem; }
  .ng-foot { font-size: .8rem; color: #7b8794; margin-top: 2rem; }
  pre.ng-output { max-height: 14rem; overflow: auto; font-size: .8rem; }
</style>
</head>
<body>
<div class="ng-shell">
  <nav class="ng-side">
    <a class="brand" href="/">GoNetGuard</a>
    {{range .Sections}}<a class="section{{if .Active}} active{{end}}" href="{{.Path}}">{{.Label}}</a>
    {{end}}
    <a class="section" href="/metrics">Prometheus metrics</a>
  </nav>
  <main class="ng-main">
    <h2 class="mb-0">{{.Title}}</h2>
    {{with .Subtitle}}<p class="text-muted">{{.}}</p>{{end}}
    {{template "content" .}}
    <div class="ng-foot">GoNetGuard {{.Version}} &middot; rendered {{formatTime .Rendered}}</div>
  </main>
</div>
</body>
</html>{{end}}`

var layout = template.Must(template.New("layout").Funcs(pageFuncs).Parse(layoutHTML))

// parsePage adds a page's content block to a copy of the layout
func parsePage(w http.ResponseWriter, contentTemplate string) *template.Template {
	tmpl, err := layout.Clone()
	if err == nil {
		_, err = tmpl.Parse(contentTemplate)
	}
	if err != nil {
		log.Printf("Page template error: %v", err)
		http.Error(w, "Template parsing error: "+err.Error(), http.StatusInternalServerError)
		return nil
	}
	return tmpl
}

// renderTemplate renders data into the layout, marking path active in the sidebar
func renderTemplate(w http.ResponseWriter, tmpl *template.Template, path string, data PageData) {
	data.Path = path
	if data.Version == "" {
		data.Version = version.Version
	}
	if data.Rendered.IsZero() {
		data.Rendered = time.Now()
	}
	data.Sections = make([]NavSection, len(sections))
	copy(data.Sections, sections)
	for i := range data.Sections {
		data.Sections[i].Active = data.Sections[i].Path == path
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Printf("Error rendering page %s: %v", path, err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("Error writing page %s: %v", path, err)
	}
}
