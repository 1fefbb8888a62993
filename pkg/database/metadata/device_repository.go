package metadata

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// DeviceFilter narrows a device listing
type DeviceFilter struct {
	Group      string
	Site       string
	DeviceType string
	Platform   string
	Vendor     string
	IsActive   *bool
	Search     string
	Limit      int
	Offset     int
}

// InventoryStats summarises the device inventory
type InventoryStats struct {
	TotalDevices    int64            `json:"total_devices"`
	ActiveDevices   int64            `json:"active_devices"`
	InactiveDevices int64            `json:"inactive_devices"`
	GroupsCount     int64            `json:"groups_count"`
	ByPlatform      map[string]int64 `json:"devices_by_platform"`
	ByGroup         map[string]int64 `json:"devices_by_group"`
	ByVendor        map[string]int64 `json:"devices_by_vendor"`
	LastUpdated     time.Time        `json:"last_updated"`
}

// DeviceRepository handles database operations for devices and device groups
type DeviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a new DeviceRepository instance
func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// ListDevices returns devices matching the filter ordered by name
func (r *DeviceRepository) ListDevices(filter DeviceFilter) ([]Device, error) {
	query := r.db.Model(&Device{})

	if filter.Group != "" {
		query = query.Where("group_name = ?", filter.Group)
	}
	if filter.Site != "" {
		query = query.Where("site = ?", filter.Site)
	}
	if filter.DeviceType != "" {
		query = query.Where("device_type = ?", filter.DeviceType)
	}
	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform)
	}
	if filter.Vendor != "" {
		query = query.Where("vendor = ?", filter.Vendor)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(hostname) LIKE ?", like, like)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var devices []Device
	if err := query.Order("name").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// GetDeviceByName retrieves a device by its unique name
func (r *DeviceRepository) GetDeviceByName(name string) (*Device, error) {
	var device Device
	err := r.db.Where("name = ?", name).First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("device %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &device, nil
}

// GetDevicesByNames returns the devices that exist among names, keyed by name
func (r *DeviceRepository) GetDevicesByNames(names []string) (map[string]Device, error) {
	result := make(map[string]Device, len(names))
	if len(names) == 0 {
		return result, nil
	}

	var devices []Device
	if err := r.db.Where("name IN ?", names).Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}
	for _, d := range devices {
		result[d.Name] = d
	}
	return result, nil
}

// CreateDevice inserts a new device, failing with ErrConflict on a duplicate name
func (r *DeviceRepository) CreateDevice(device *Device) error {
	exists, err := r.DeviceExists(device.Name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("device %s: %w", device.Name, ErrConflict)
	}

	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	if err := r.db.Create(device).Error; err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

// UpdateDevice saves every column of an existing device
func (r *DeviceRepository) UpdateDevice(device *Device) error {
	device.UpdatedAt = time.Now()
	if err := r.db.Save(device).Error; err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	return nil
}

// TouchLastConnected records a successful session against the device
func (r *DeviceRepository) TouchLastConnected(name string, at time.Time) error {
	err := r.db.Model(&Device{}).Where("name = ?", name).Update("last_connected", at).Error
	if err != nil {
		return fmt.Errorf("failed to update last connected: %w", err)
	}
	return nil
}

// DeleteDevice removes a device by name
func (r *DeviceRepository) DeleteDevice(name string) error {
	result := r.db.Where("name = ?", name).Delete(&Device{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete device: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("device %s: %w", name, ErrNotFound)
	}
	return nil
}

// DeviceExists checks if a device with the given name exists
func (r *DeviceRepository) DeviceExists(name string) (bool, error) {
	var count int64
	err := r.db.Model(&Device{}).Where("name = ?", name).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check if device exists: %w", err)
	}
	return count > 0, nil
}

// ListGroups returns all groups with their device counts
func (r *DeviceRepository) ListGroups() ([]DeviceGroup, error) {
	var groups []DeviceGroup
	if err := r.db.Order("name").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	counts, err := r.countBy("group_name")
	if err != nil {
		return nil, err
	}
	for i := range groups {
		groups[i].DevicesCount = counts[groups[i].Name]
	}
	return groups, nil
}

// GetGroupByName retrieves a device group by name
func (r *DeviceRepository) GetGroupByName(name string) (*DeviceGroup, error) {
	var group DeviceGroup
	err := r.db.Where("name = ?", name).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("group %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &group, nil
}

// CreateGroup inserts a device group, failing with ErrConflict on a duplicate name
func (r *DeviceRepository) CreateGroup(group *DeviceGroup) error {
	var count int64
	if err := r.db.Model(&DeviceGroup{}).Where("name = ?", group.Name).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check if group exists: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("group %s: %w", group.Name, ErrConflict)
	}

	now := time.Now()
	group.CreatedAt = now
	group.UpdatedAt = now
	if err := r.db.Create(group).Error; err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// Stats aggregates inventory counters
func (r *DeviceRepository) Stats() (*InventoryStats, error) {
	stats := &InventoryStats{LastUpdated: time.Now()}

	if err := r.db.Model(&Device{}).Count(&stats.TotalDevices).Error; err != nil {
		return nil, fmt.Errorf("failed to count devices: %w", err)
	}
	if err := r.db.Model(&Device{}).Where("is_active = ?", true).Count(&stats.ActiveDevices).Error; err != nil {
		return nil, fmt.Errorf("failed to count active devices: %w", err)
	}
	stats.InactiveDevices = stats.TotalDevices - stats.ActiveDevices
	if err := r.db.Model(&DeviceGroup{}).Count(&stats.GroupsCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count groups: %w", err)
	}

	var err error
	if stats.ByPlatform, err = r.countBy("platform"); err != nil {
		return nil, err
	}
	if stats.ByGroup, err = r.countBy("group_name"); err != nil {
		return nil, err
	}
	if stats.ByVendor, err = r.countBy("vendor"); err != nil {
		return nil, err
	}
	relabel(stats.ByPlatform, "unknown")
	relabel(stats.ByGroup, "ungrouped")
	relabel(stats.ByVendor, "unknown")
	return stats, nil
}

type columnCount struct {
	Bucket string
	Total  int64
}

// countBy groups devices on a whitelisted column
func (r *DeviceRepository) countBy(column string) (map[string]int64, error) {
	switch column {
	case "platform", "group_name", "vendor":
	default:
		return nil, fmt.Errorf("cannot group devices by %s", column)
	}

	var rows []columnCount
	err := r.db.Model(&Device{}).
		Select(column + " AS bucket, COUNT(*) AS total").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count devices by %s: %w", column, err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Bucket] = row.Total
	}
	return counts, nil
}

// relabel moves the count of the empty bucket under label
func relabel(counts map[string]int64, label string) {
	if n, ok := counts[""]; ok {
		delete(counts, "")
		counts[label] += n
	}
}

// EnsureGroups creates any of the named groups that do not exist yet
func (r *DeviceRepository) EnsureGroups(names []string) error {
	wanted := map[string]bool{}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			wanted[n] = true
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	list := make([]string, 0, len(wanted))
	for n := range wanted {
		list = append(list, n)
	}

	var existing []string
	if err := r.db.Model(&DeviceGroup{}).Where("name IN ?", list).Pluck("name", &existing).Error; err != nil {
		return fmt.Errorf("failed to look up groups: %w", err)
	}
	for _, n := range existing {
		delete(wanted, n)
	}

	now := time.Now()
	for n := range wanted {
		group := DeviceGroup{Name: n, Data: map[string]interface{}{}, CreatedAt: now, UpdatedAt: now}
		if err := r.db.Create(&group).Error; err != nil {
			return fmt.Errorf("failed to create group %s: %w", n, err)
		}
	}
	return nil
}

// DeleteDevices hard-deletes the named devices and reports which names did not exist
func (r *DeviceRepository) DeleteDevices(names []string) (int64, []string, error) {
	existing, err := r.GetDevicesByNames(names)
	if err != nil {
		return 0, nil, err
	}

	var notFound, present []string
	for _, n := range names {
		if _, ok := existing[n]; ok {
			present = append(present, n)
		} else {
			notFound = append(notFound, n)
		}
	}
	if len(present) == 0 {
		return 0, notFound, nil
	}

	result := r.db.Where("name IN ?", present).Delete(&Device{})
	if result.Error != nil {
		return 0, notFound, fmt.Errorf("failed to delete devices: %w", result.Error)
	}
	return result.RowsAffected, notFound, nil
}
