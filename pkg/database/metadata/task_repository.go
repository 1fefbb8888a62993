package metadata

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// TaskFilter narrows a task listing
type TaskFilter struct {
	Status   string
	TaskType string
	Limit    int
	Offset   int
}

// TaskSummary aggregates task history
type TaskSummary struct {
	TotalTasks              int64            `json:"total_tasks"`
	StatusCounts            map[string]int64 `json:"status_counts"`
	TasksByType             map[string]int64 `json:"tasks_by_type"`
	SuccessRate             *float64         `json:"success_rate"`
	AvgExecutionTimeSeconds *float64         `json:"avg_execution_time_seconds"`
}

// TaskRepository handles database operations for tasks and task logs
type TaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository instance
func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// CreateTask inserts a new pending task
func (r *TaskRepository) CreateTask(task *Task) error {
	task.Status = TaskPending
	task.CreatedAt = time.Now()
	if task.Results == nil {
		task.Results = map[string]interface{}{}
	}
	if err := r.db.Create(task).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID
func (r *TaskRepository) GetTask(id uint) (*Task, error) {
	var task Task
	err := r.db.Where("id = ?", id).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// ListTasks returns tasks newest first
func (r *TaskRepository) ListTasks(filter TaskFilter) ([]Task, error) {
	query := r.db.Model(&Task{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TaskType != "" {
		query = query.Where("task_type = ?", filter.TaskType)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var tasks []Task
	if err := query.Order("id DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// RenameTask changes the name and description of a pending task. The status
// guard is part of the UPDATE, so a task that starts meanwhile keeps its name.
func (r *TaskRepository) RenameTask(id uint, name, description *string) (*Task, error) {
	updates := map[string]interface{}{}
	if name != nil {
		updates["name"] = *name
	}
	if description != nil {
		updates["description"] = *description
	}

	updated := false
	if len(updates) > 0 {
		result := r.db.Model(&Task{}).
			Where("id = ? AND status = ?", id, TaskPending).
			Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to update task: %w", result.Error)
		}
		updated = result.RowsAffected > 0
	}

	task, err := r.GetTask(id)
	if err != nil {
		return nil, err
	}
	// mysql reports no affected rows when the values are unchanged
	if !updated && task.Status != TaskPending {
		return nil, fmt.Errorf("task %d is %s: %w", id, task.Status, ErrInvalidState)
	}
	return task, nil
}

// CancelTask moves a pending task to canceled; any other state is rejected
func (r *TaskRepository) CancelTask(id uint) error {
	now := time.Now()
	result := r.db.Model(&Task{}).
		Where("id = ? AND status = ?", id, TaskPending).
		Updates(map[string]interface{}{
			"status":        TaskCanceled,
			"error_message": "canceled",
			"completed_at":  now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to cancel task: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	task, err := r.GetTask(id)
	if err != nil {
		return err
	}
	return fmt.Errorf("task %d is %s: %w", id, task.Status, ErrInvalidState)
}

// StartTask claims a pending task for execution. It returns false when the task
// is no longer pending, for example because it was canceled while queued.
func (r *TaskRepository) StartTask(id uint) (bool, error) {
	now := time.Now()
	result := r.db.Model(&Task{}).
		Where("id = ? AND status = ?", id, TaskPending).
		Updates(map[string]interface{}{
			"status":     TaskRunning,
			"started_at": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to start task: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// FinishTask stores the outcome of a running task
func (r *TaskRepository) FinishTask(id uint, status string, results map[string]interface{}, errorMessage string) error {
	now := time.Now()
	update := Task{
		Status:       status,
		Results:      results,
		ErrorMessage: errorMessage,
		CompletedAt:  &now,
	}
	err := r.db.Model(&Task{ID: id}).
		Select("status", "results", "error_message", "completed_at").
		Updates(&update).Error
	if err != nil {
		return fmt.Errorf("failed to finish task: %w", err)
	}
	return nil
}

// AddLogs stores per-device log lines for a task
func (r *TaskRepository) AddLogs(logs []TaskLog) error {
	if len(logs) == 0 {
		return nil
	}
	now := time.Now()
	for i := range logs {
		if logs[i].CreatedAt.IsZero() {
			logs[i].CreatedAt = now
		}
	}
	if err := r.db.CreateInBatches(logs, 100).Error; err != nil {
		return fmt.Errorf("failed to store task logs: %w", err)
	}
	return nil
}

// DeleteLogs removes the logs of a previous execution
func (r *TaskRepository) DeleteLogs(taskID uint) error {
	if err := r.db.Where("task_id = ?", taskID).Delete(&TaskLog{}).Error; err != nil {
		return fmt.Errorf("failed to delete task logs: %w", err)
	}
	return nil
}

// ListLogs returns log lines for a task newest first
func (r *TaskRepository) ListLogs(taskID uint, limit, offset int) ([]TaskLog, error) {
	query := r.db.Where("task_id = ?", taskID).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var logs []TaskLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list task logs: %w", err)
	}
	return logs, nil
}

type taskBucket struct {
	Bucket string
	Total  int64
}

type taskTiming struct {
	StartedAt   time.Time
	CompletedAt time.Time
}

// Summary aggregates counts, success rate and average execution time
func (r *TaskRepository) Summary() (*TaskSummary, error) {
	summary := &TaskSummary{
		StatusCounts: map[string]int64{},
		TasksByType:  map[string]int64{},
	}

	if err := r.db.Model(&Task{}).Count(&summary.TotalTasks).Error; err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	var byStatus []taskBucket
	if err := r.db.Model(&Task{}).Select("status AS bucket, COUNT(*) AS total").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("failed to count tasks by status: %w", err)
	}
	for _, b := range byStatus {
		summary.StatusCounts[b.Bucket] = b.Total
	}

	var byType []taskBucket
	if err := r.db.Model(&Task{}).Select("task_type AS bucket, COUNT(*) AS total").Group("task_type").Scan(&byType).Error; err != nil {
		return nil, fmt.Errorf("failed to count tasks by type: %w", err)
	}
	for _, b := range byType {
		summary.TasksByType[b.Bucket] = b.Total
	}

	completed := summary.StatusCounts[TaskCompleted]
	failed := summary.StatusCounts[TaskFailed]
	if denom := completed + failed; denom > 0 {
		rate := float64(completed) / float64(denom) * 100.0
		summary.SuccessRate = &rate
	}

	// averaged here rather than in SQL; interval arithmetic differs per dialect
	var timings []taskTiming
	err := r.db.Model(&Task{}).
		Select("started_at, completed_at").
		Where("started_at IS NOT NULL AND completed_at IS NOT NULL").
		Scan(&timings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load task timings: %w", err)
	}
	if len(timings) > 0 {
		var total float64
		for _, t := range timings {
			total += t.CompletedAt.Sub(t.StartedAt).Seconds()
		}
		avg := total / float64(len(timings))
		summary.AvgExecutionTimeSeconds = &avg
	}

	return summary, nil
}
