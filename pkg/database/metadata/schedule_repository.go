package metadata

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ScheduleRepository handles database operations for backup schedules and their runs
type ScheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new ScheduleRepository instance
func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// ListSchedules retrieves backup schedules newest first
func (r *ScheduleRepository) ListSchedules(limit, offset int) ([]BackupSchedule, error) {
	query := r.db.Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var schedules []BackupSchedule
	if err := query.Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("failed to get schedules: %w", err)
	}
	return schedules, nil
}

// GetScheduleByID retrieves a backup schedule by ID
func (r *ScheduleRepository) GetScheduleByID(id uint) (*BackupSchedule, error) {
	var schedule BackupSchedule
	err := r.db.Where("id = ?", id).First(&schedule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("schedule %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

// FindByOwner retrieves the schedule a user created under the given name, or nil
func (r *ScheduleRepository) FindByOwner(name, createdBy string) (*BackupSchedule, error) {
	var schedules []BackupSchedule
	err := r.db.Where("name = ? AND created_by = ?", name, createdBy).Limit(1).Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up schedule: %w", err)
	}
	if len(schedules) == 0 {
		return nil, nil
	}
	return &schedules[0], nil
}

// SaveSchedule inserts or updates a backup schedule
func (r *ScheduleRepository) SaveSchedule(schedule *BackupSchedule) error {
	now := time.Now()
	if schedule.ID == 0 {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	if err := r.db.Save(schedule).Error; err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

// DeleteSchedule deletes a backup schedule and its run history
func (r *ScheduleRepository) DeleteSchedule(id uint) error {
	tx := r.db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	result := tx.Delete(&BackupSchedule{}, id)
	if result.Error != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete schedule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return fmt.Errorf("schedule %d: %w", id, ErrNotFound)
	}

	if err := tx.Where("schedule_id = ?", id).Delete(&BackupRun{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete schedule runs: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DueSchedules returns enabled schedules whose next run is at or before now,
// oldest first
func (r *ScheduleRepository) DueSchedules(now time.Time, limit int) ([]BackupSchedule, error) {
	var schedules []BackupSchedule
	err := r.db.
		Where("enabled = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, now).
		Order("next_run_at ASC, id ASC").
		Limit(limit).
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get due schedules: %w", err)
	}
	return schedules, nil
}

// StartRun records the beginning of a schedule execution
func (r *ScheduleRepository) StartRun(scheduleID uint) (*BackupRun, error) {
	run := &BackupRun{
		ScheduleID: scheduleID,
		Status:     "running",
		Results:    map[string]interface{}{},
		StartedAt:  time.Now(),
	}
	if err := r.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create backup run: %w", err)
	}
	return run, nil
}

// FinishRun stores the outcome of a run and advances its schedule in one transaction
func (r *ScheduleRepository) FinishRun(run *BackupRun, schedule *BackupSchedule) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(run).Error; err != nil {
			return fmt.Errorf("failed to update backup run: %w", err)
		}
		err := tx.Model(schedule).
			Select("last_run_at", "last_status", "last_error", "next_run_at", "updated_at").
			Updates(schedule).Error
		if err != nil {
			return fmt.Errorf("failed to update schedule: %w", err)
		}
		return nil
	})
}

// ListRuns returns the run history of a schedule newest first
func (r *ScheduleRepository) ListRuns(scheduleID uint, limit, offset int) ([]BackupRun, error) {
	query := r.db.Where("schedule_id = ?", scheduleID).Order("started_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var runs []BackupRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list backup runs: %w", err)
	}
	return runs, nil
}
