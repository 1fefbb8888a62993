package pages

import (
	"log"
	"net/http"

	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
)

// TasksPageData holds data for the tasks page
type TasksPageData struct {
	Tasks    []dbmeta.Task
	Status   string
	Statuses []string
}

const tasksTemplate = `
{{define "content"}}
<div class="mb-3">
    <a class="btn btn-sm {{if eq .Content.Status ""}}btn-primary{{else}}btn-outline-primary{{end}}" href="/tasks">all</a>
    {{$current := .Content.Status}}
    {{range .Content.Statuses}}
    <a class="btn btn-sm {{if eq . $current}}btn-primary{{else}}btn-outline-primary{{end}}" href="/tasks?status={{.}}">{{.}}</a>
    {{end}}
</div>

<div class="card">
    <div class="card-header"><i data-feather="list"></i> Tasks</div>
    <div class="card-body">
        {{if .Content.Tasks}}
        <table class="table table-striped table-hover">
            <thead>
                <tr><th>ID</th><th>Name</th><th>Type</th><th>Status</th><th>Targets</th><th>Started</th><th>Completed</th><th>By</th></tr>
            </thead>
            <tbody>
            {{range .Content.Tasks}}
            <tr>
                <td>{{.ID}}</td>
                <td>{{.Name}}{{if .ErrorMessage}}<div class="small text-danger">{{.ErrorMessage}}</div>{{end}}</td>
                <td>{{.TaskType}}</td>
                <td><span class="badge status-badge {{statusClass .Status}}">{{.Status}}</span></td>
                <td>{{len .Targets}}</td>
                <td>{{formatTime .StartedAt}}</td>
                <td>{{formatTime .CompletedAt}}</td>
                <td>{{.CreatedBy}}</td>
            </tr>
            {{end}}
            </tbody>
        </table>
        {{else}}
        <p class="text-muted">No tasks</p>
        {{end}}
    </div>
</div>
{{end}}
`

// TasksPage renders the task history
func (s *Site) TasksPage(w http.ResponseWriter, r *http.Request) {
	tmpl := parsePage(w, tasksTemplate)
	if tmpl == nil {
		return
	}

	data := TasksPageData{
		Status:   r.URL.Query().Get("status"),
		Statuses: []string{dbmeta.TaskPending, dbmeta.TaskRunning, dbmeta.TaskCompleted, dbmeta.TaskFailed, dbmeta.TaskCanceled},
	}
	tasks, err := s.Tasks.ListTasks(dbmeta.TaskFilter{Status: data.Status, Limit: 200})
	if err != nil {
		log.Printf("Tasks page: failed to list tasks: %v", err)
		http.Error(w, "Failed to load tasks", http.StatusInternalServerError)
		return
	}
	data.Tasks = tasks

	renderTemplate(w, tmpl, "/tasks", PageData{
		Title:    "Tasks",
		Subtitle: "Command, config and connectivity tasks run against devices",
		Content:  data,
	})
}
