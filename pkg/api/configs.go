package api

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
)

const maxIntervalMinutes = 7 * 24 * 60

// SnapshotStore reads stored config snapshots
type SnapshotStore interface {
	ListSnapshots(deviceName string, limit, offset int) ([]dbmeta.SnapshotMeta, error)
	GetSnapshot(id uint) (*dbmeta.ConfigSnapshot, error)
}

// SnapshotSaver collects running-config snapshots on demand
type SnapshotSaver interface {
	SaveRunningConfigs(ctx context.Context, names []string, command string, timeout int, createdBy string) (map[string]interface{}, error)
}

// ScheduleStore persists backup schedules
type ScheduleStore interface {
	ListSchedules(limit, offset int) ([]dbmeta.BackupSchedule, error)
	GetScheduleByID(id uint) (*dbmeta.BackupSchedule, error)
	FindByOwner(name, createdBy string) (*dbmeta.BackupSchedule, error)
	SaveSchedule(schedule *dbmeta.BackupSchedule) error
	DeleteSchedule(id uint) error
	ListRuns(scheduleID uint, limit, offset int) ([]dbmeta.BackupRun, error)
}

// Presigner creates temporary download links for archived snapshots
type Presigner interface {
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ConfigHandler handles config snapshot and backup schedule API endpoints
type ConfigHandler struct {
	snapshots SnapshotStore
	saver     SnapshotSaver
	schedules ScheduleStore
	presigner Presigner
	Logger    *logrus.Logger

	now func() time.Time
}

// NewConfigHandler creates a new config handler. presigner may be nil when
// archives are not uploaded to S3.
func NewConfigHandler(snapshots SnapshotStore, saver SnapshotSaver, schedules ScheduleStore, presigner Presigner, logger *logrus.Logger) *ConfigHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ConfigHandler{
		snapshots: snapshots,
		saver:     saver,
		schedules: schedules,
		presigner: presigner,
		Logger:    logger,
		now:       time.Now,
	}
}

// RegisterRoutes registers the config API routes on the provided mux
func (h *ConfigHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/configs/snapshots", h.handleSnapshots)
	mux.HandleFunc("/api/configs/snapshots/{id}", h.handleSnapshot)
	mux.HandleFunc("/api/configs/snapshots/{id}/download", h.handleDownload)
	mux.HandleFunc("/api/configs/schedules", h.handleSchedules)
	mux.HandleFunc("/api/configs/schedules/{id}", h.handleSchedule)
	mux.HandleFunc("/api/configs/schedules/{id}/run-now", h.handleRunNow)
	mux.HandleFunc("/api/configs/schedules/{id}/runs", h.handleRuns)
}

type saveSnapshotsRequest struct {
	Devices []string `json:"devices"`
	Command string   `json:"command"`
	Timeout int      `json:"timeout"`
}

type snapshotListItem struct {
	ID          uint      `json:"id"`
	DeviceName  string    `json:"device_name"`
	ConfigType  string    `json:"config_type"`
	Bytes       int64     `json:"bytes"`
	SHA256      string    `json:"sha256"`
	ArchiveKey  string    `json:"archive_key,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
	CreatedBy   string    `json:"created_by"`
}

type snapshotResponse struct {
	snapshotListItem
	DeviceID uint   `json:"device_id"`
	Content  string `json:"content"`
}

func (h *ConfigHandler) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, offset, err := paging(r, 50, 1000)
		if err != nil {
			writeError(w, h.Logger, http.StatusBadRequest, err.Error())
			return
		}
		items, err := h.snapshots.ListSnapshots(r.URL.Query().Get("device_name"), limit, offset)
		if err != nil {
			writeError(w, h.Logger, http.StatusInternalServerError, "Failed to list snapshots: "+err.Error())
			return
		}
		response := make([]snapshotListItem, 0, len(items))
		for _, it := range items {
			response = append(response, snapshotListItem{
				ID:          it.ID,
				DeviceName:  it.DeviceName,
				ConfigType:  it.ConfigType,
				Bytes:       it.Bytes,
				SHA256:      it.ContentSHA256,
				ArchiveKey:  it.ArchiveKey,
				CollectedAt: it.CollectedAt,
				CreatedBy:   it.CreatedBy,
			})
		}
		writeJSON(w, h.Logger, http.StatusOK, response)

	case http.MethodPost:
		var req saveSnapshotsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.Logger, http.StatusBadRequest, err.Error())
			return
		}
		var names []string
		for _, n := range req.Devices {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		if len(names) == 0 {
			writeError(w, h.Logger, http.StatusBadRequest, "devices must not be empty")
			return
		}

		user := CurrentUser(r.Context())
		results, err := h.saver.SaveRunningConfigs(r.Context(), names, strings.TrimSpace(req.Command), req.Timeout, user)
		if err != nil {
			writeError(w, h.Logger, http.StatusInternalServerError, "Failed to save running-config: "+err.Error())
			return
		}
		h.Logger.WithFields(logrus.Fields{"devices": len(names), "user": user}).Info("Running-config snapshots collected")
		writeJSON(w, h.Logger, http.StatusOK, map[string]interface{}{"results": results})

	default:
		methodNotAllowed(w, h.Logger)
	}
}

func (h *ConfigHandler) loadSnapshot(w http.ResponseWriter, r *http.Request) (*dbmeta.ConfigSnapshot, bool) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, h.Logger)
		return nil, false
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return nil, false
	}
	snap, err := h.snapshots.GetSnapshot(id)
	if err != nil {
		writeRepoError(w, h.Logger, err)
		return nil, false
	}
	return snap, true
}

func (h *ConfigHandler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadSnapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.Logger, http.StatusOK, snapshotResponse{
		snapshotListItem: snapshotListItem{
			ID:          snap.ID,
			DeviceName:  snap.DeviceName,
			ConfigType:  snap.ConfigType,
			Bytes:       snap.Bytes,
			SHA256:      snap.ContentSHA256,
			ArchiveKey:  snap.ArchiveKey,
			CollectedAt: snap.CollectedAt,
			CreatedBy:   snap.CreatedBy,
		},
		DeviceID: snap.DeviceID,
		Content:  snap.Content,
	})
}

// handleDownload redirects to the S3 copy when one exists, else streams the stored content
func (h *ConfigHandler) handleDownload(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadSnapshot(w, r)
	if !ok {
		return
	}

	if h.presigner != nil && snap.ArchiveKey != "" {
		url, err := h.presigner.PresignedURL(r.Context(), snap.ArchiveKey, 15*time.Minute)
		if err == nil {
			http.Redirect(w, r, url, http.StatusFound)
			return
		}
		h.Logger.WithError(err).WithField("snapshot_id", snap.ID).Warn("Failed to presign snapshot download, serving stored content")
	}

	filename := fmt.Sprintf("%s-%s.cfg", snap.DeviceName, snap.CollectedAt.UTC().Format("20060102T150405Z"))
	if snap.ArchiveKey != "" {
		filename = path.Base(snap.ArchiveKey)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(snap.Content)); err != nil {
		h.Logger.WithError(err).Error("Failed to write snapshot download")
	}
}

// scheduleRequest is the body for creating or updating a backup schedule
type scheduleRequest struct {
	Name            *string  `json:"name"`
	Devices         []string `json:"devices"`
	IntervalMinutes *int     `json:"interval_minutes"`
	Enabled         *bool    `json:"enabled"`
	RunImmediately  *bool    `json:"run_immediately"`
	Command         *string  `json:"command"`
	Timeout         *int     `json:"timeout"`
}

type scheduleResponse struct {
	ID              uint       `json:"id"`
	Name            string     `json:"name"`
	Enabled         bool       `json:"enabled"`
	Devices         []string   `json:"devices"`
	IntervalMinutes int        `json:"interval_minutes"`
	Command         string     `json:"command"`
	Timeout         int        `json:"timeout"`
	LastRunAt       *time.Time `json:"last_run_at"`
	NextRunAt       *time.Time `json:"next_run_at"`
	LastStatus      string     `json:"last_status"`
	LastError       string     `json:"last_error"`
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type runResponse struct {
	ID           uint                   `json:"id"`
	ScheduleID   uint                   `json:"schedule_id"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at"`
	Status       string                 `json:"status"`
	Results      map[string]interface{} `json:"results"`
	ErrorMessage string                 `json:"error_message"`
}

func convertScheduleToResponse(s *dbmeta.BackupSchedule) scheduleResponse {
	devices := s.Devices
	if devices == nil {
		devices = []string{}
	}
	return scheduleResponse{
		ID:              s.ID,
		Name:            s.Name,
		Enabled:         s.Enabled,
		Devices:         devices,
		IntervalMinutes: s.IntervalMinutes,
		Command:         s.Command,
		Timeout:         s.Timeout,
		LastRunAt:       s.LastRunAt,
		NextRunAt:       s.NextRunAt,
		LastStatus:      s.LastStatus,
		LastError:       s.LastError,
		CreatedBy:       s.CreatedBy,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func validInterval(minutes int) error {
	if minutes < 1 || minutes > maxIntervalMinutes {
		return fmt.Errorf("interval_minutes must be between 1 and %d", maxIntervalMinutes)
	}
	return nil
}

func (h *ConfigHandler) handleSchedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, offset, err := paging(r, 200, 1000)
		if err != nil {
			writeError(w, h.Logger, http.StatusBadRequest, err.Error())
			return
		}
		schedules, err := h.schedules.ListSchedules(limit, offset)
		if err != nil {
			writeError(w, h.Logger, http.StatusInternalServerError, "Failed to list schedules: "+err.Error())
			return
		}
		response := make([]scheduleResponse, 0, len(schedules))
		for i := range schedules {
			response = append(response, convertScheduleToResponse(&schedules[i]))
		}
		writeJSON(w, h.Logger, http.StatusOK, response)

	case http.MethodPost:
		h.createSchedule(w, r)

	default:
		methodNotAllowed(w, h.Logger)
	}
}

// createSchedule upserts by name for the calling user
func (h *ConfigHandler) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	name := str(req.Name)
	devices := cleanNames(req.Devices)
	interval := 60
	if req.IntervalMinutes != nil {
		interval = *req.IntervalMinutes
	}
	switch {
	case name == "":
		writeError(w, h.Logger, http.StatusBadRequest, "name is required")
		return
	case len(devices) == 0:
		writeError(w, h.Logger, http.StatusBadRequest, "devices must not be empty")
		return
	}
	if err := validInterval(interval); err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	user := CurrentUser(r.Context())
	schedule, err := h.schedules.FindByOwner(name, user)
	if err != nil {
		writeRepoError(w, h.Logger, err)
		return
	}
	status := http.StatusOK
	if schedule == nil {
		schedule = &dbmeta.BackupSchedule{Name: name, CreatedBy: user}
		status = http.StatusCreated
	}

	schedule.Devices = devices
	schedule.IntervalMinutes = interval
	schedule.Command = str(req.Command)
	schedule.Timeout = 0
	if req.Timeout != nil {
		schedule.Timeout = *req.Timeout
	}
	schedule.Enabled = req.Enabled == nil || *req.Enabled

	now := h.now()
	if schedule.Enabled {
		next := now.Add(time.Duration(interval) * time.Minute)
		if req.RunImmediately == nil || *req.RunImmediately {
			next = now
		}
		schedule.NextRunAt = &next
	} else {
		schedule.NextRunAt = nil
	}

	if err := h.schedules.SaveSchedule(schedule); err != nil {
		writeRepoError(w, h.Logger, err)
		return
	}
	h.Logger.WithFields(logrus.Fields{"schedule_id": schedule.ID, "name": schedule.Name, "user": user}).Info("Backup schedule saved")
	writeJSON(w, h.Logger, status, convertScheduleToResponse(schedule))
}

func (h *ConfigHandler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		schedule, err := h.schedules.GetScheduleByID(id)
		if err != nil {
			writeRepoError(w, h.Logger, err)
			return
		}
		writeJSON(w, h.Logger, http.StatusOK, convertScheduleToResponse(schedule))

	case http.MethodPut:
		h.updateSchedule(w, r, id)

	case http.MethodDelete:
		if err := h.schedules.DeleteSchedule(id); err != nil {
			writeRepoError(w, h.Logger, err)
			return
		}
		h.Logger.WithFields(logrus.Fields{"schedule_id": id, "user": CurrentUser(r.Context())}).Info("Backup schedule deleted")
		writeJSON(w, h.Logger, http.StatusOK, map[string]string{"message": "Schedule deleted"})

	default:
		methodNotAllowed(w, h.Logger)
	}
}

func (h *ConfigHandler) updateSchedule(w http.ResponseWriter, r *http.Request, id uint) {
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	schedule, err := h.schedules.GetScheduleByID(id)
	if err != nil {
		writeRepoError(w, h.Logger, err)
		return
	}

	if req.Name != nil {
		if str(req.Name) == "" {
			writeError(w, h.Logger, http.StatusBadRequest, "name must not be empty")
			return
		}
		schedule.Name = str(req.Name)
	}
	if req.Devices != nil {
		devices := cleanNames(req.Devices)
		if len(devices) == 0 {
			writeError(w, h.Logger, http.StatusBadRequest, "devices must not be empty")
			return
		}
		schedule.Devices = devices
	}
	if req.IntervalMinutes != nil {
		if err := validInterval(*req.IntervalMinutes); err != nil {
			writeError(w, h.Logger, http.StatusBadRequest, err.Error())
			return
		}
		schedule.IntervalMinutes = *req.IntervalMinutes
	}
	if req.Command != nil {
		schedule.Command = str(req.Command)
	}
	if req.Timeout != nil {
		schedule.Timeout = *req.Timeout
	}
	if req.Enabled != nil {
		schedule.Enabled = *req.Enabled
	}

	now := h.now()
	switch {
	case !schedule.Enabled:
		schedule.NextRunAt = nil
	case req.RunImmediately != nil && *req.RunImmediately:
		schedule.NextRunAt = &now
	case schedule.NextRunAt == nil:
		next := now.Add(time.Duration(schedule.IntervalMinutes) * time.Minute)
		schedule.NextRunAt = &next
	}

	if err := h.schedules.SaveSchedule(schedule); err != nil {
		writeRepoError(w, h.Logger, err)
		return
	}
	writeJSON(w, h.Logger, http.StatusOK, convertScheduleToResponse(schedule))
}

func (h *ConfigHandler) handleRunNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, h.Logger)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	schedule, err := h.schedules.GetScheduleByID(id)
	if err != nil {
		writeRepoError(w, h.Logger, err)
		return
	}
	if !schedule.Enabled {
		writeError(w, h.Logger, http.StatusBadRequest, "Schedule is disabled")
		return
	}

	now := h.now()
	schedule.NextRunAt = &now
	if err := h.schedules.SaveSchedule(schedule); err != nil {
		writeRepoError(w, h.Logger, err)
		return
	}
	writeJSON(w, h.Logger, http.StatusOK, map[string]string{"message": "Triggered; the scheduler will run it shortly"})
}

func (h *ConfigHandler) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, h.Logger)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := paging(r, 50, 1000)
	if err != nil {
		writeError(w, h.Logger, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := h.schedules.ListRuns(id, limit, offset)
	if err != nil {
		writeError(w, h.Logger, http.StatusInternalServerError, "Failed to list backup runs: "+err.Error())
		return
	}
	response := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		response = append(response, runResponse{
			ID:           run.ID,
			ScheduleID:   run.ScheduleID,
			StartedAt:    run.StartedAt,
			CompletedAt:  run.CompletedAt,
			Status:       run.Status,
			Results:      run.Results,
			ErrorMessage: run.ErrorMessage,
		})
	}
	writeJSON(w, h.Logger, http.StatusOK, response)
}
