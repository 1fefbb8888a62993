package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
	"github.com/supporttools/GoNetGuard/pkg/taskrunner"
)

// TaskStore is the task persistence used by TaskHandler
type TaskStore interface {
	CreateTask(task *dbmeta.Task) error
	GetTask(id uint) (*dbmeta.Task, error)
	ListTasks(filter dbmeta.TaskFilter) ([]dbmeta.Task, error)
	RenameTask(id uint, name, description *string) (*dbmeta.Task, error)
	CancelTask(id uint) error
	ListLogs(taskID uint, limit, offset int) ([]dbmeta.TaskLog, error)
	Summary() (*dbmeta.TaskSummary, error)
}

// Submitter queues tasks for background execution
type Submitter interface {
	Submit(taskID uint) error
}

// TaskHandler handles task API endpoints
type TaskHandler struct {
	store  TaskStore
	runner Submitter
	Logger *logrus.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(store TaskStore, runner Submitter, logger *logrus.Logger) *TaskHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TaskHandler{store: store, runner: runner, Logger: logger}
}

// RegisterRoutes registers the task API routes on the provided mux
func (h *TaskHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/tasks", h.handleTasks)
	mux.HandleFunc("/api/tasks/stats/summary", h.handleSummary)
	mux.HandleFunc("/api/tasks/{id}", h.handleTask)
	mux.HandleFunc("/api/tasks/{id}/cancel", h.handleCancel)
	mux.HandleFunc("/api/tasks/{id}/logs", h.handleLogs)
}

type taskCreateRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	TaskType    string                 `json:"task_type"`
	Targets     []string               `json:"targets"`
	Command     string                 `json:"command"`
	Config      string                 `json:"config"`
	Parameters  map[string]interface{} `json:"parameters"`
	AutoStart   *bool                  `json:"auto_start"`
}

type taskUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type taskResponse struct {
	ID           uint                   `json:"id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	TaskType     string                 `json:"task_type"`
	Status       string                 `json:"status"`
	Targets      []string               `json:"targets"`
	Command      string                 `json:"command"`
	Config       string                 `json:"config"`
	Parameters   map[string]interface{} `json:"parameters"`
	Results      map[string]interface{} `json:"results"`
	ErrorMessage string                 `json:"error_message"`
	CreatedAt    time.Time              `json:"created_at"`
	StartedAt    *time.Time             `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at"`
	CreatedBy    string                 `json:"created_by"`
}

type taskSummaryResponse struct {
	ID           uint       `json:"id"`
	Name         string     `json:"name"`
	TaskType     string     `json:"task_type"`
	Status       string     `json:"status"`
	TargetsCount int        `json:"targets_count"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedBy    string     `json:"created_by"`
}

type taskLogResponse struct {
	ID           uint                   `json:"id"`
	DeviceName   string                 `json:"device_name"`
	Status       string                 `json:"status"`
	Result       map[string]interface{} `json:"result"`
	RawOutput    string                 `json:"raw_output"`
	ErrorMessage string                 `json:"error_message"`
	CreatedAt    time.Time              `json:"created_at"`
}

func convertTaskToResponse(t *dbmeta.Task) taskResponse {
	resp := taskResponse{
		ID:           t.ID,
		Name:         t.Name,
		Description:  t.Description,
		TaskType:     t.TaskType,
		Status:       t.Status,
		Targets:      t.Targets,
		Command:      t.Command,
		Config:       t.Config,
		Parameters:   t.Parameters,
		Results:      t.Results,
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    t.CreatedAt,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
		CreatedBy:    t.CreatedBy,
	}
	if resp.Targets == nil {
		resp.Targets = []string{}
	}
	if resp.Parameters == nil {
		resp.Parameters = map[string]interface{}{}
	}
	if resp.Results == nil {
		resp.Results = map[string]interface{}{}
	}
	return resp
}

// normalizeTaskType lower-cases the type and folds the dashed running-config alias
func normalizeTaskType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "running-config" {
		return dbmeta.TaskTypeRunningConfig
	}
	return t
}

func (h *TaskHandler) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listTasks(w, r)
	case http.MethodPost:
		h.createTask(w, r)
	default:
		methodNotAllowed(w, h.Logger)
	}
}

func (h *TaskHandler) listTasks(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r, 50, 1000)
	if err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	tasks, err := h.store.ListTasks(dbmeta.TaskFilter{
		Status:   r.URL.Query().Get("status"),
		TaskType: r.URL.Query().Get("task_type"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, h.Logger, http.StatusInternalServerError, "Failed to list tasks: "+err.Error())
		return
	}

	response := make([]taskSummaryResponse, 0, len(tasks))
	for _, t := range tasks {
		response = append(response, taskSummaryResponse{
			ID:           t.ID,
			Name:         t.Name,
			TaskType:     t.TaskType,
			Status:       t.Status,
			TargetsCount: len(t.Targets),
			CreatedAt:    t.CreatedAt,
			CompletedAt:  t.CompletedAt,
			CreatedBy:    t.CreatedBy,
		})
	}
	writeJSON(w, h.Logger, http.StatusOK, response)
}

func (h *TaskHandler) createTask(w http.ResponseWriter, r *http.Request) {
	var req taskCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	taskType := normalizeTaskType(req.TaskType)
	var targets []string
	for _, t := range req.Targets {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	if req.Parameters == nil {
		req.Parameters = map[string]interface{}{}
	}

	switch {
	case req.Name == "":
		writeError(w, h.Logger, http.StatusBadRequest, "name is required")
		return
	case len(targets) == 0:
		writeError(w, h.Logger, http.StatusBadRequest, "targets must not be empty")
		return
	}

	switch taskType {
	case dbmeta.TaskTypeCommand:
		if strings.TrimSpace(req.Command) == "" {
			writeError(w, h.Logger, http.StatusBadRequest, "command is required when task_type=command")
			return
		}
	case dbmeta.TaskTypeConfig:
		if len(taskrunner.ConfigLines(req.Config, req.Parameters)) == 0 {
			writeError(w, h.Logger, http.StatusBadRequest, "config or parameters.configs is required when task_type=config")
			return
		}
	case dbmeta.TaskTypeConnectivity, dbmeta.TaskTypeRunningConfig:
	default:
		writeError(w, h.Logger, http.StatusBadRequest, "unsupported task_type: "+req.TaskType)
		return
	}

	task := &dbmeta.Task{
		Name:        req.Name,
		Description: req.Description,
		TaskType:    taskType,
		Targets:     targets,
		Command:     req.Command,
		Config:      req.Config,
		Parameters:  req.Parameters,
		CreatedBy:   CurrentUser(r.Context()),
	}
	if err := h.store.CreateTask(task); err != nil {
		writeError(w, h.Logger, http.StatusInternalServerError, "Failed to create task: "+err.Error())
		return
	}

	log := h.Logger.WithFields(logrus.Fields{"task_id": task.ID, "task_type": task.TaskType, "user": task.CreatedBy})
	if req.AutoStart == nil || *req.AutoStart {
		if err := h.runner.Submit(task.ID); err != nil {
			// stays pending and is picked up again on restart
			log.WithError(err).Warn("Task created but not queued")
		}
	}
	log.Info("Task created")

	writeJSON(w, h.Logger, http.StatusCreated, convertTaskToResponse(task))
}

func (h *TaskHandler) handleTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		task, err := h.store.GetTask(id)
		if err != nil {
			writeRepoError(w, h.Logger, err)
			return
		}
		writeJSON(w, h.Logger, http.StatusOK, convertTaskToResponse(task))

	case http.MethodPut:
		var req taskUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.Logger, http.StatusBadRequest, err.Error())
			return
		}
		if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
			writeError(w, h.Logger, http.StatusBadRequest, "name must not be empty")
			return
		}
		task, err := h.store.RenameTask(id, req.Name, req.Description)
		if err != nil {
			writeRepoError(w, h.Logger, err)
			return
		}
		writeJSON(w, h.Logger, http.StatusOK, convertTaskToResponse(task))

	case http.MethodDelete:
		writeError(w, h.Logger, http.StatusMethodNotAllowed, "Tasks cannot be deleted; they are kept as an audit trail")

	default:
		methodNotAllowed(w, h.Logger)
	}
}

func (h *TaskHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, h.Logger)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CancelTask(id); err != nil {
		writeRepoError(w, h.Logger, err)
		return
	}
	task, err := h.store.GetTask(id)
	if err != nil {
		writeRepoError(w, h.Logger, err)
		return
	}

	h.Logger.WithFields(logrus.Fields{"task_id": id, "user": CurrentUser(r.Context())}).Info("Task canceled")
	writeJSON(w, h.Logger, http.StatusOK, convertTaskToResponse(task))
}

func (h *TaskHandler) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, h.Logger)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := paging(r, 200, 2000)
	if err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.store.GetTask(id); err != nil {
		writeRepoError(w, h.Logger, err)
		return
	}
	logs, err := h.store.ListLogs(id, limit, offset)
	if err != nil {
		writeError(w, h.Logger, http.StatusInternalServerError, "Failed to list task logs: "+err.Error())
		return
	}

	response := make([]taskLogResponse, 0, len(logs))
	for _, l := range logs {
		response = append(response, taskLogResponse{
			ID:           l.ID,
			DeviceName:   l.DeviceName,
			Status:       l.Status,
			Result:       l.Result,
			RawOutput:    l.RawOutput,
			ErrorMessage: l.ErrorMessage,
			CreatedAt:    l.CreatedAt,
		})
	}
	writeJSON(w, h.Logger, http.StatusOK, response)
}

func (h *TaskHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, h.Logger)
		return
	}
	summary, err := h.store.Summary()
	if err != nil {
		writeError(w, h.Logger, http.StatusInternalServerError, "Failed to summarise tasks: "+err.Error())
		return
	}
	writeJSON(w, h.Logger, http.StatusOK, summary)
}
