package metadata

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SnapshotMeta is a snapshot listing entry without the configuration body
type SnapshotMeta struct {
	ID            uint
	DeviceName    string
	ConfigType    string
	Bytes         int64
	ContentSHA256 string
	ArchiveKey    string
	CollectedAt   time.Time
	CreatedBy     string
}

// SnapshotRepository handles database operations for configuration snapshots
type SnapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository creates a new SnapshotRepository instance
func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// CreateSnapshots stores collected snapshots in one transaction
func (r *SnapshotRepository) CreateSnapshots(snapshots []*ConfigSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx := r.db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	for _, snap := range snapshots {
		if snap.CollectedAt.IsZero() {
			snap.CollectedAt = time.Now()
		}
		if err := tx.Create(snap).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to create snapshot for %s: %w", snap.DeviceName, err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SetArchiveKey records where the archived copy of a snapshot lives
func (r *SnapshotRepository) SetArchiveKey(id uint, key string) error {
	err := r.db.Model(&ConfigSnapshot{}).Where("id = ?", id).Update("archive_key", key).Error
	if err != nil {
		return fmt.Errorf("failed to update snapshot archive key: %w", err)
	}
	return nil
}

// ListSnapshots returns snapshot metadata newest first
func (r *SnapshotRepository) ListSnapshots(deviceName string, limit, offset int) ([]SnapshotMeta, error) {
	query := r.db.Model(&ConfigSnapshot{}).
		Select("id, device_name, config_type, bytes, content_sha256, archive_key, collected_at, created_by")
	if deviceName != "" {
		query = query.Where("device_name = ?", deviceName)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var items []SnapshotMeta
	if err := query.Order("collected_at DESC, id DESC").Scan(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return items, nil
}

// GetSnapshot retrieves a snapshot including its content
func (r *SnapshotRepository) GetSnapshot(id uint) (*ConfigSnapshot, error) {
	var snap ConfigSnapshot
	err := r.db.Where("id = ?", id).First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("snapshot %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &snap, nil
}

// LatestSnapshot returns the most recent snapshot collected for a device
func (r *SnapshotRepository) LatestSnapshot(deviceName string) (*ConfigSnapshot, error) {
	var snap ConfigSnapshot
	err := r.db.Where("device_name = ?", deviceName).Order("collected_at DESC, id DESC").First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("snapshot for %s: %w", deviceName, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return &snap, nil
}

// ArchiveKeys returns every archive key already referenced by a snapshot
func (r *SnapshotRepository) ArchiveKeys() (map[string]bool, error) {
	var keys []string
	err := r.db.Model(&ConfigSnapshot{}).Where("archive_key <> ''").Pluck("archive_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list archive keys: %w", err)
	}
	known := make(map[string]bool, len(keys))
	for _, k := range keys {
		known[k] = true
	}
	return known, nil
}
