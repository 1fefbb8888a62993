package metadata

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// MetricRepository handles database operations for SNMP metric definitions
type MetricRepository struct {
	db *gorm.DB
}

// NewMetricRepository creates a new MetricRepository instance
func NewMetricRepository(db *gorm.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// ListMetrics returns metric definitions ordered by ID
func (r *MetricRepository) ListMetrics(limit, offset int) ([]SNMPMetric, error) {
	query := r.db.Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var metrics []SNMPMetric
	if err := query.Find(&metrics).Error; err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	return metrics, nil
}

// GetMetric retrieves a metric definition by ID
func (r *MetricRepository) GetMetric(id uint) (*SNMPMetric, error) {
	var metric SNMPMetric
	err := r.db.Where("id = ?", id).First(&metric).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("metric %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get metric: %w", err)
	}
	return &metric, nil
}

// MetricNameTaken reports whether another metric already uses name
func (r *MetricRepository) MetricNameTaken(name string, exceptID uint) (bool, error) {
	var count int64
	query := r.db.Model(&SNMPMetric{}).Where("name = ?", name)
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check metric name: %w", err)
	}
	return count > 0, nil
}

// CreateMetric inserts a metric definition, failing with ErrConflict on a duplicate name
func (r *MetricRepository) CreateMetric(metric *SNMPMetric) error {
	taken, err := r.MetricNameTaken(metric.Name, 0)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("metric %s: %w", metric.Name, ErrConflict)
	}

	now := time.Now()
	metric.CreatedAt = now
	metric.UpdatedAt = now
	if err := r.db.Create(metric).Error; err != nil {
		return fmt.Errorf("failed to create metric: %w", err)
	}
	return nil
}

// UpdateMetric saves a metric definition
func (r *MetricRepository) UpdateMetric(metric *SNMPMetric) error {
	taken, err := r.MetricNameTaken(metric.Name, metric.ID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("metric %s: %w", metric.Name, ErrConflict)
	}

	metric.UpdatedAt = time.Now()
	if err := r.db.Save(metric).Error; err != nil {
		return fmt.Errorf("failed to update metric: %w", err)
	}
	return nil
}

// DeleteMetric removes a metric definition
func (r *MetricRepository) DeleteMetric(id uint) error {
	result := r.db.Delete(&SNMPMetric{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete metric: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("metric %d: %w", id, ErrNotFound)
	}
	return nil
}

// EnsureBuiltinMetrics inserts the given built-in definitions that are not yet present
func (r *MetricRepository) EnsureBuiltinMetrics(builtins []SNMPMetric) (int, error) {
	created := 0
	for _, b := range builtins {
		taken, err := r.MetricNameTaken(b.Name, 0)
		if err != nil {
			return created, err
		}
		if taken {
			continue
		}
		metric := b
		metric.IsBuiltin = true
		if err := r.CreateMetric(&metric); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
