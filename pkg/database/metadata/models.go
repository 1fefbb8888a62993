// Package metadata provides database models and operations for the device inventory,
// task history, configuration snapshots, backup schedules and SNMP metric definitions
package metadata

import (
	"time"
)

// Task statuses
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskCanceled  = "canceled"
)

// Task types
const (
	TaskTypeCommand       = "command"
	TaskTypeConfig        = "config"
	TaskTypeConnectivity  = "connectivity"
	TaskTypeRunningConfig = "running_config"
)

// Device represents a managed network device
type Device struct {
	ID            uint                   `gorm:"primaryKey;autoIncrement"`
	Name          string                 `gorm:"type:varchar(255);not null;uniqueIndex"`
	Hostname      string                 `gorm:"type:varchar(255);not null"`
	Site          string                 `gorm:"type:varchar(255);index"`
	DeviceType    string                 `gorm:"type:varchar(100);index"`
	Platform      string                 `gorm:"type:varchar(100);not null;default:cisco_ios"`
	Port          int                    `gorm:"not null;default:22"`
	Username      string                 `gorm:"type:varchar(255)"`
	Password      string                 `gorm:"type:varchar(255)"`
	Timeout       int                    `gorm:"not null;default:30"`
	GroupName     string                 `gorm:"type:varchar(255);index"`
	Vendor        string                 `gorm:"type:varchar(100);index"`
	Model         string                 `gorm:"type:varchar(255)"`
	OSVersion     string                 `gorm:"type:varchar(255)"`
	Description   string                 `gorm:"type:text"`
	IsActive      bool                   `gorm:"not null"` // no default tag: gorm would drop an explicit false on insert
	Data          map[string]interface{} `gorm:"serializer:json;type:text"`
	CreatedAt     time.Time              `gorm:"not null"`
	UpdatedAt     time.Time              `gorm:"not null"`
	LastConnected *time.Time
}

// TableName specifies the table name for the Device model
func (Device) TableName() string {
	return "devices"
}

// DeviceGroup holds connection defaults shared by a set of devices
type DeviceGroup struct {
	ID          uint                   `gorm:"primaryKey;autoIncrement"`
	Name        string                 `gorm:"type:varchar(255);not null;uniqueIndex"`
	Description string                 `gorm:"type:text"`
	Username    string                 `gorm:"type:varchar(255)"`
	Password    string                 `gorm:"type:varchar(255)"`
	Platform    string                 `gorm:"type:varchar(100)"`
	Port        int
	Timeout     int
	Data        map[string]interface{} `gorm:"serializer:json;type:text"`
	CreatedAt   time.Time              `gorm:"not null"`
	UpdatedAt   time.Time              `gorm:"not null"`

	DevicesCount int64 `gorm:"-"`
}

// TableName specifies the table name for the DeviceGroup model
func (DeviceGroup) TableName() string {
	return "device_groups"
}

// Task is an asynchronous job executed against a set of devices
type Task struct {
	ID           uint                   `gorm:"primaryKey;autoIncrement"`
	Name         string                 `gorm:"type:varchar(255);not null"`
	Description  string                 `gorm:"type:text"`
	TaskType     string                 `gorm:"type:varchar(50);not null;index"`
	Status       string                 `gorm:"type:varchar(20);not null;default:pending;index"`
	Targets      []string               `gorm:"serializer:json;type:text"`
	Command      string                 `gorm:"type:text"`
	Config       string                 `gorm:"type:text"`
	Parameters   map[string]interface{} `gorm:"serializer:json;type:text"`
	Results      map[string]interface{} `gorm:"serializer:json;type:text"`
	ErrorMessage string                 `gorm:"type:text"`
	CreatedBy    string                 `gorm:"type:varchar(255)"`
	CreatedAt    time.Time              `gorm:"not null;index"`
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// TableName specifies the table name for the Task model
func (Task) TableName() string {
	return "tasks"
}

// IsTerminal reports whether the task can no longer change state
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskCompleted, TaskFailed, TaskCanceled:
		return true
	}
	return false
}

// TaskLog is the per-device outcome of a task
type TaskLog struct {
	ID           uint                   `gorm:"primaryKey;autoIncrement"`
	TaskID       uint                   `gorm:"not null;index"`
	DeviceName   string                 `gorm:"type:varchar(255);not null;index"`
	Status       string                 `gorm:"type:varchar(20);not null"` // success or failed
	Result       map[string]interface{} `gorm:"serializer:json;type:text"`
	RawOutput    string
	ErrorMessage string                 `gorm:"type:text"`
	CreatedAt    time.Time              `gorm:"not null"`
}

// TableName specifies the table name for the TaskLog model
func (TaskLog) TableName() string {
	return "task_logs"
}

// ConfigSnapshot is a collected device configuration
type ConfigSnapshot struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	DeviceID      uint      `gorm:"not null;index"`
	DeviceName    string    `gorm:"type:varchar(255);not null;index"`
	ConfigType    string    `gorm:"type:varchar(50);not null;default:running"`
	Content       string
	ContentSHA256 string    `gorm:"column:content_sha256;type:varchar(64);not null;index"`
	Bytes         int64     `gorm:"not null"`
	ArchiveKey    string    `gorm:"type:varchar(1024)"`
	CreatedBy     string    `gorm:"type:varchar(255)"`
	CollectedAt   time.Time `gorm:"not null;index"`
}

// TableName specifies the table name for the ConfigSnapshot model
func (ConfigSnapshot) TableName() string {
	return "config_snapshots"
}

// BackupSchedule represents a recurring running-config collection
type BackupSchedule struct {
	ID              uint       `gorm:"primaryKey;autoIncrement"`
	Name            string     `gorm:"type:varchar(255);not null;index:idx_schedule_owner"`
	Enabled         bool       `gorm:"not null"`
	Devices         []string   `gorm:"serializer:json;type:text"`
	IntervalMinutes int        `gorm:"not null;default:60"`
	Command         string     `gorm:"type:varchar(255)"`
	Timeout         int
	LastRunAt       *time.Time
	NextRunAt       *time.Time `gorm:"index"`
	LastStatus      string     `gorm:"type:varchar(20)"`
	LastError       string     `gorm:"type:text"`
	CreatedBy       string     `gorm:"type:varchar(255);index:idx_schedule_owner"`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

// TableName specifies the table name for the BackupSchedule model
func (BackupSchedule) TableName() string {
	return "backup_schedules"
}

// BackupRun records one execution of a BackupSchedule
type BackupRun struct {
	ID           uint                   `gorm:"primaryKey;autoIncrement"`
	ScheduleID   uint                   `gorm:"not null;index"`
	Status       string                 `gorm:"type:varchar(20);not null"` // running, completed or failed
	Results      map[string]interface{} `gorm:"serializer:json;type:text"`
	ErrorMessage string                 `gorm:"type:text"`
	StartedAt    time.Time              `gorm:"not null"`
	CompletedAt  *time.Time
}

// TableName specifies the table name for the BackupRun model
func (BackupRun) TableName() string {
	return "backup_runs"
}

// SNMPMetric is a named OID definition with an optional value parser
type SNMPMetric struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Name        string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	OID         string    `gorm:"column:oid;type:varchar(255);not null"`
	Description string    `gorm:"type:text"`
	ValueType   string    `gorm:"type:varchar(20);not null;default:gauge"`
	Unit        string    `gorm:"type:varchar(50)"`
	ValueParser string    `gorm:"type:varchar(255)"`
	IsBuiltin   bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName specifies the table name for the SNMPMetric model
func (SNMPMetric) TableName() string {
	return "snmp_metrics"
}
