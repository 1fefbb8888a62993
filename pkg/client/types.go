package client

import "time"

// Task statuses as reported by the server
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// IsTerminal reports whether a task in status can no longer change
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Device is an inventory entry. The server never returns passwords.
type Device struct {
	ID            uint                   `json:"id,omitempty"`
	Name          string                 `json:"name"`
	Hostname      string                 `json:"hostname"`
	Site          string                 `json:"site"`
	DeviceType    string                 `json:"device_type"`
	Platform      string                 `json:"platform"`
	Port          int                    `json:"port"`
	Username      string                 `json:"username"`
	Timeout       int                    `json:"timeout"`
	GroupName     string                 `json:"group_name"`
	Vendor        string                 `json:"vendor"`
	Model         string                 `json:"model"`
	OSVersion     string                 `json:"os_version"`
	Description   string                 `json:"description"`
	IsActive      bool                   `json:"is_active"`
	Data          map[string]interface{} `json:"data,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	LastConnected *time.Time             `json:"last_connected"`
}

// DeviceInput creates or updates a device. Nil fields are left unchanged on update.
type DeviceInput struct {
	Name        string                 `json:"name,omitempty"`
	Hostname    *string                `json:"hostname,omitempty"`
	Site        *string                `json:"site,omitempty"`
	DeviceType  *string                `json:"device_type,omitempty"`
	Platform    *string                `json:"platform,omitempty"`
	Port        *int                   `json:"port,omitempty"`
	Username    *string                `json:"username,omitempty"`
	Password    *string                `json:"password,omitempty"`
	Timeout     *int                   `json:"timeout,omitempty"`
	GroupName   *string                `json:"group_name,omitempty"`
	Vendor      *string                `json:"vendor,omitempty"`
	Model       *string                `json:"model,omitempty"`
	OSVersion   *string                `json:"os_version,omitempty"`
	Description *string                `json:"description,omitempty"`
	IsActive    *bool                  `json:"is_active,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// DeviceFilter narrows a device listing
type DeviceFilter struct {
	Group      string
	Site       string
	DeviceType string
	Platform   string
	Vendor     string
	Search     string
	IsActive   *bool
	Page
}

// Group is a device group
type Group struct {
	ID           uint                   `json:"id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Username     string                 `json:"username"`
	Platform     string                 `json:"platform"`
	Port         int                    `json:"port"`
	Timeout      int                    `json:"timeout"`
	Data         map[string]interface{} `json:"data"`
	DevicesCount int64                  `json:"devices_count"`
}

// BulkError describes one rejected row of a bulk request
type BulkError struct {
	Index int     `json:"index"`
	Name  *string `json:"name"`
	Error string  `json:"error"`
}

// BulkUpsertResult summarises a bulk import
type BulkUpsertResult struct {
	Created int         `json:"created"`
	Updated int         `json:"updated"`
	Failed  int         `json:"failed"`
	Errors  []BulkError `json:"errors"`
}

// BulkDeleteResult summarises a bulk delete
type BulkDeleteResult struct {
	Deleted  int64                    `json:"deleted"`
	NotFound []string                 `json:"not_found"`
	Failed   int                      `json:"failed"`
	Errors   []map[string]interface{} `json:"errors"`
}

// InventoryStats are the inventory counters
type InventoryStats struct {
	TotalDevices    int64            `json:"total_devices"`
	ActiveDevices   int64            `json:"active_devices"`
	InactiveDevices int64            `json:"inactive_devices"`
	GroupsCount     int64            `json:"groups_count"`
	ByPlatform      map[string]int64 `json:"devices_by_platform"`
	ByGroup         map[string]int64 `json:"devices_by_group"`
	ByVendor        map[string]int64 `json:"devices_by_vendor"`
}

// HostResult is one device's outcome of an operation
type HostResult struct {
	Status    string      `json:"status"`
	Result    interface{} `json:"result"`
	Failed    bool        `json:"failed"`
	Exception string      `json:"exception,omitempty"`
	Diff      string      `json:"diff"`
	Changed   bool        `json:"changed"`
}

// GroupInput creates a device group
type GroupInput struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Username    string                 `json:"username,omitempty"`
	Password    string                 `json:"password,omitempty"`
	Platform    string                 `json:"platform,omitempty"`
	Port        int                    `json:"port,omitempty"`
	Timeout     int                    `json:"timeout,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Task is an asynchronous job
type Task struct {
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

// TaskListItem is the summary row returned by task listings
type TaskListItem struct {
	ID           uint       `json:"id"`
	Name         string     `json:"name"`
	TaskType     string     `json:"task_type"`
	Status       string     `json:"status"`
	TargetsCount int        `json:"targets_count"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedBy    string     `json:"created_by"`
}

// TaskInput creates a task
type TaskInput struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	TaskType    string                 `json:"task_type"`
	Targets     []string               `json:"targets"`
	Command     string                 `json:"command,omitempty"`
	Config      string                 `json:"config,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	AutoStart   *bool                  `json:"auto_start,omitempty"`
}

// TaskLog is one per-device log line of a task
type TaskLog struct {
	ID           uint                   `json:"id"`
	DeviceName   string                 `json:"device_name"`
	Status       string                 `json:"status"`
	Result       map[string]interface{} `json:"result"`
	RawOutput    string                 `json:"raw_output"`
	ErrorMessage string                 `json:"error_message"`
	CreatedAt    time.Time              `json:"created_at"`
}

// TaskSummary holds task statistics
type TaskSummary struct {
	TotalTasks              int64            `json:"total_tasks"`
	StatusCounts            map[string]int64 `json:"status_counts"`
	TasksByType             map[string]int64 `json:"tasks_by_type"`
	SuccessRate             *float64         `json:"success_rate"`
	AvgExecutionTimeSeconds *float64         `json:"avg_execution_time_seconds"`
}

// Snapshot is a stored configuration. Content is empty in listings.
type Snapshot struct {
	ID          uint      `json:"id"`
	DeviceID    uint      `json:"device_id,omitempty"`
	DeviceName  string    `json:"device_name"`
	ConfigType  string    `json:"config_type"`
	Bytes       int64     `json:"bytes"`
	SHA256      string    `json:"sha256"`
	ArchiveKey  string    `json:"archive_key,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
	CreatedBy   string    `json:"created_by"`
	Content     string    `json:"content,omitempty"`
}

// Schedule is a recurring running-config backup
type Schedule struct {
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

// ScheduleInput creates or updates a schedule. Nil fields keep their value on update.
type ScheduleInput struct {
	Name            *string  `json:"name,omitempty"`
	Devices         []string `json:"devices,omitempty"`
	IntervalMinutes *int     `json:"interval_minutes,omitempty"`
	Enabled         *bool    `json:"enabled,omitempty"`
	RunImmediately  *bool    `json:"run_immediately,omitempty"`
	Command         *string  `json:"command,omitempty"`
	Timeout         *int     `json:"timeout,omitempty"`
}

// BackupRun is one execution of a schedule
type BackupRun struct {
	ID           uint                   `json:"id"`
	ScheduleID   uint                   `json:"schedule_id"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at"`
	Status       string                 `json:"status"`
	Results      map[string]interface{} `json:"results"`
	ErrorMessage string                 `json:"error_message"`
}

// Metric is an SNMP metric definition
type Metric struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	OID         string    `json:"oid"`
	Description string    `json:"description"`
	ValueType   string    `json:"value_type"`
	Unit        string    `json:"unit"`
	ValueParser string    `json:"value_parser"`
	IsBuiltin   bool      `json:"is_builtin"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MetricInput creates or updates a metric
type MetricInput struct {
	Name        *string `json:"name,omitempty"`
	OID         *string `json:"oid,omitempty"`
	Description *string `json:"description,omitempty"`
	ValueType   *string `json:"value_type,omitempty"`
	Unit        *string `json:"unit,omitempty"`
	ValueParser *string `json:"value_parser,omitempty"`
}

// SNMPTestInput targets a host or an inventory device
type SNMPTestInput struct {
	Host          string `json:"host,omitempty"`
	DeviceName    string `json:"device_name,omitempty"`
	OID           string `json:"oid"`
	SNMPVersion   string `json:"snmp_version,omitempty"`
	SNMPCommunity string `json:"snmp_community,omitempty"`
	Port          int    `json:"port,omitempty"`
	ValueParser   string `json:"value_parser,omitempty"`
	Timeout       int    `json:"timeout,omitempty"`
}

// SNMPValue is one parsed varbind
type SNMPValue struct {
	OID   string `json:"oid"`
	Type  string `json:"type"`
	Value string `json:"value"`
	Raw   string `json:"raw"`
}

// SNMPTestResult is the outcome of an OID probe
type SNMPTestResult struct {
	Success      bool        `json:"success"`
	RawOutput    string      `json:"raw_output"`
	ParsedValues []SNMPValue `json:"parsed_values"`
	ParsedValue  *string     `json:"parsed_value"`
	Error        string      `json:"error"`
}

// S3Test overrides the configured storage settings for a connectivity test
type S3Test struct {
	Region          string `json:"region,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	AccessKeyID     string `json:"access_key,omitempty"`
	SecretAccessKey string `json:"secret_key,omitempty"`
	UseSSL          *bool  `json:"use_ssl,omitempty"`
	InsecureSSL     *bool  `json:"insecure_ssl,omitempty"`
}

// StorageResponse wraps the storage endpoints' replies
type StorageResponse struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
