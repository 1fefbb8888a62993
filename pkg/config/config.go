// Package config provides configuration loading and management for GoNetGuard
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MetadataDBConfig defines the connection settings for the inventory/metadata database
type MetadataDBConfig struct {
	Type            string `yaml:"type"` // mysql, postgres or sqlite
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	SSLMode         string `yaml:"sslMode"`
	Path            string `yaml:"path"` // sqlite file
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime string `yaml:"connMaxLifetime"`
	AutoMigrate     bool   `yaml:"autoMigrate"`
}

// LocalConfig defines where archived config snapshots are written
type LocalConfig struct {
	Enabled           bool   `yaml:"enabled"`
	SnapshotDirectory string `yaml:"snapshotDirectory"`
	RetentionDays     int    `yaml:"retentionDays"` // 0 keeps forever
}

// S3Config defines S3 storage settings for archived snapshots
type S3Config struct {
	Enabled            bool   `yaml:"enabled"`
	Bucket             string `yaml:"bucket"`
	Region             string `yaml:"region"`
	Endpoint           string `yaml:"endpoint"`
	AccessKey          string `yaml:"accessKey"`
	SecretKey          string `yaml:"secretKey"`
	Prefix             string `yaml:"prefix"`
	PathStyle          bool   `yaml:"pathStyle"`
	UseSSL             bool   `yaml:"useSSL"`
	CustomCAPath       string `yaml:"customCAPath"`
	SkipCertValidation bool   `yaml:"skipCertValidation"`
}

// MetricsConfig defines the admin/API server settings
type MetricsConfig struct {
	Port string `yaml:"port"`
}

// SSHConfig defines defaults applied to device sessions
type SSHConfig struct {
	DefaultUsername      string         `yaml:"defaultUsername"`
	DefaultPassword      string         `yaml:"defaultPassword"`
	DefaultPlatform      string         `yaml:"defaultPlatform"`
	DefaultPort          int            `yaml:"defaultPort"`
	DefaultTimeout       int            `yaml:"defaultTimeout"`       // seconds
	RunningConfigTimeout int            `yaml:"runningConfigTimeout"` // seconds
	KnownHostsFile       string         `yaml:"knownHostsFile"`
	MaxParallel          int            `yaml:"maxParallel"` // hosts contacted at once per operation
	CommandTimeouts      map[string]int `yaml:"commandTimeouts"`
}

// SNMPConfig defines defaults for ad-hoc SNMP probes
type SNMPConfig struct {
	Community string `yaml:"community"`
	Version   string `yaml:"version"`
	Port      int    `yaml:"port"`
	Timeout   int    `yaml:"timeout"` // seconds
	Retries   int    `yaml:"retries"`
}

// TaskRunnerConfig defines the background task worker pool
type TaskRunnerConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queueSize"`
}

// SchedulerConfig defines the backup schedule poller
type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TickInterval string `yaml:"tickInterval"`
	BatchSize    int    `yaml:"batchSize"`
}

// AuthConfig defines how the API identifies the caller
type AuthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	JWTSecret     string `yaml:"jwtSecret"`
	DevUserHeader string `yaml:"devUserHeader"`
	DefaultUser   string `yaml:"defaultUser"`
}

// AppConfig contains the complete application configuration
type AppConfig struct {
	MetadataDB MetadataDBConfig `yaml:"metadata_database"`
	Local      LocalConfig      `yaml:"local"`
	S3         S3Config         `yaml:"s3"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	SSH        SSHConfig        `yaml:"ssh"`
	SNMP       SNMPConfig       `yaml:"snmp"`
	TaskRunner TaskRunnerConfig `yaml:"taskRunner"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Auth       AuthConfig       `yaml:"auth"`
	Debug      bool             `yaml:"debug"`
	ConfigFile string           `yaml:"-"`
}

// CFG is the global configuration object
var CFG AppConfig

// LoadConfiguration loads the optional YAML file named by CONFIG_FILE and then
// applies environment variables on top of it
func LoadConfiguration() {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		log.Printf("Loading configuration file %s...", path)
		if err := LoadFile(path); err != nil {
			log.Printf("Failed to load configuration file: %v", err)
		}
	}

	log.Println("Loading configuration from environment variables...")
	loadFromEnvironment()
}

// LoadFile reads a YAML configuration file into CFG
func LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fileCfg AppConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	fileCfg.ConfigFile = path
	CFG = fileCfg
	return nil
}

// loadFromEnvironment overlays environment variables onto CFG
func loadFromEnvironment() {
	CFG.Debug = parseEnvBool("DEBUG", CFG.Debug)

	// Metadata DB settings
	CFG.MetadataDB.Type = getEnvOrDefault("METADATA_DB_TYPE", orString(CFG.MetadataDB.Type, "sqlite"))
	CFG.MetadataDB.Host = getEnvOrDefault("METADATA_DB_HOST", orString(CFG.MetadataDB.Host, "localhost"))
	CFG.MetadataDB.Port = parseEnvInt("METADATA_DB_PORT", CFG.MetadataDB.Port)
	CFG.MetadataDB.Username = getEnvOrDefault("METADATA_DB_USERNAME", orString(CFG.MetadataDB.Username, "gonetguard"))
	CFG.MetadataDB.Password = getEnvOrDefault("METADATA_DB_PASSWORD", CFG.MetadataDB.Password)
	CFG.MetadataDB.Database = getEnvOrDefault("METADATA_DB_DATABASE", orString(CFG.MetadataDB.Database, "gonetguard"))
	CFG.MetadataDB.SSLMode = getEnvOrDefault("METADATA_DB_SSLMODE", orString(CFG.MetadataDB.SSLMode, "disable"))
	CFG.MetadataDB.Path = getEnvOrDefault("METADATA_DB_PATH", orString(CFG.MetadataDB.Path, "/data/gonetguard.db"))
	CFG.MetadataDB.MaxOpenConns = parseEnvInt("METADATA_DB_MAX_OPEN_CONNS", CFG.MetadataDB.MaxOpenConns)
	CFG.MetadataDB.MaxIdleConns = parseEnvInt("METADATA_DB_MAX_IDLE_CONNS", CFG.MetadataDB.MaxIdleConns)
	CFG.MetadataDB.ConnMaxLifetime = getEnvOrDefault("METADATA_DB_CONN_MAX_LIFETIME", orString(CFG.MetadataDB.ConnMaxLifetime, "5m"))
	CFG.MetadataDB.AutoMigrate = parseEnvBool("METADATA_DB_AUTO_MIGRATE", true)

	// Snapshot archive settings
	CFG.Local.Enabled = parseEnvBool("LOCAL_SNAPSHOT_ENABLED", true)
	CFG.Local.SnapshotDirectory = getEnvOrDefault("LOCAL_SNAPSHOT_DIRECTORY", orString(CFG.Local.SnapshotDirectory, "/snapshots"))
	CFG.Local.RetentionDays = parseEnvInt("LOCAL_SNAPSHOT_RETENTION_DAYS", CFG.Local.RetentionDays)

	CFG.S3.Enabled = parseEnvBool("S3_ARCHIVE_ENABLED", CFG.S3.Enabled)
	CFG.S3.Bucket = getEnvOrDefault("S3_BUCKET", CFG.S3.Bucket)
	CFG.S3.Region = getEnvOrDefault("S3_REGION", orString(CFG.S3.Region, "us-east-1"))
	CFG.S3.Endpoint = getEnvOrDefault("S3_ENDPOINT", CFG.S3.Endpoint)
	CFG.S3.AccessKey = getEnvOrDefault("S3_ACCESS_KEY", CFG.S3.AccessKey)
	CFG.S3.SecretKey = getEnvOrDefault("S3_SECRET_KEY", CFG.S3.SecretKey)
	CFG.S3.Prefix = getEnvOrDefault("S3_PREFIX", orString(CFG.S3.Prefix, "device-configs"))
	CFG.S3.PathStyle = parseEnvBool("S3_PATH_STYLE", CFG.S3.PathStyle)
	CFG.S3.UseSSL = parseEnvBool("S3_USE_SSL", true)
	CFG.S3.CustomCAPath = getEnvOrDefault("S3_CUSTOM_CA_PATH", CFG.S3.CustomCAPath)
	CFG.S3.SkipCertValidation = parseEnvBool("S3_SKIP_CERT_VALIDATION", CFG.S3.SkipCertValidation)

	CFG.Metrics.Port = getEnvOrDefault("METRICS_PORT", CFG.Metrics.Port)

	// Device access
	CFG.SSH.DefaultUsername = getEnvOrDefault("SSH_DEFAULT_USERNAME", CFG.SSH.DefaultUsername)
	CFG.SSH.DefaultPassword = getEnvOrDefault("SSH_DEFAULT_PASSWORD", CFG.SSH.DefaultPassword)
	CFG.SSH.DefaultPlatform = getEnvOrDefault("SSH_DEFAULT_PLATFORM", CFG.SSH.DefaultPlatform)
	CFG.SSH.DefaultPort = parseEnvInt("SSH_DEFAULT_PORT", CFG.SSH.DefaultPort)
	CFG.SSH.DefaultTimeout = parseEnvInt("SSH_DEFAULT_TIMEOUT", CFG.SSH.DefaultTimeout)
	CFG.SSH.RunningConfigTimeout = parseEnvInt("SSH_RUNNING_CONFIG_TIMEOUT", CFG.SSH.RunningConfigTimeout)
	CFG.SSH.KnownHostsFile = getEnvOrDefault("SSH_KNOWN_HOSTS_FILE", CFG.SSH.KnownHostsFile)
	CFG.SSH.MaxParallel = parseEnvInt("SSH_MAX_PARALLEL", CFG.SSH.MaxParallel)

	CFG.SNMP.Community = getEnvOrDefault("SNMP_COMMUNITY", CFG.SNMP.Community)
	CFG.SNMP.Version = getEnvOrDefault("SNMP_VERSION", CFG.SNMP.Version)
	CFG.SNMP.Port = parseEnvInt("SNMP_PORT", CFG.SNMP.Port)
	CFG.SNMP.Timeout = parseEnvInt("SNMP_TIMEOUT", CFG.SNMP.Timeout)
	CFG.SNMP.Retries = parseEnvInt("SNMP_RETRIES", CFG.SNMP.Retries)

	CFG.TaskRunner.Workers = parseEnvInt("TASK_WORKERS", CFG.TaskRunner.Workers)
	CFG.TaskRunner.QueueSize = parseEnvInt("TASK_QUEUE_SIZE", CFG.TaskRunner.QueueSize)

	CFG.Scheduler.Enabled = parseEnvBool("BACKUP_SCHEDULER_ENABLED", true)
	CFG.Scheduler.TickInterval = getEnvOrDefault("BACKUP_SCHEDULER_TICK", CFG.Scheduler.TickInterval)
	CFG.Scheduler.BatchSize = parseEnvInt("BACKUP_SCHEDULER_BATCH", CFG.Scheduler.BatchSize)

	CFG.Auth.Enabled = parseEnvBool("AUTH_ENABLED", CFG.Auth.Enabled)
	CFG.Auth.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", CFG.Auth.JWTSecret)
	CFG.Auth.DevUserHeader = getEnvOrDefault("AUTH_DEV_USER_HEADER", CFG.Auth.DevUserHeader)
	CFG.Auth.DefaultUser = getEnvOrDefault("AUTH_DEFAULT_USER", CFG.Auth.DefaultUser)

	setDefaults()
}

// setDefaults ensures all config fields have reasonable default values
func setDefaults() {
	if CFG.Metrics.Port == "" {
		CFG.Metrics.Port = "8080"
	}

	if CFG.MetadataDB.Port == 0 {
		switch CFG.MetadataDB.Type {
		case "postgres":
			CFG.MetadataDB.Port = 5432
		default:
			CFG.MetadataDB.Port = 3306
		}
	}
	if CFG.MetadataDB.MaxOpenConns == 0 {
		CFG.MetadataDB.MaxOpenConns = 10
	}
	if CFG.MetadataDB.MaxIdleConns == 0 {
		CFG.MetadataDB.MaxIdleConns = 5
	}

	if CFG.SSH.DefaultPlatform == "" {
		CFG.SSH.DefaultPlatform = "cisco_ios"
	}
	if CFG.SSH.DefaultPort == 0 {
		CFG.SSH.DefaultPort = 22
	}
	if CFG.SSH.DefaultTimeout == 0 {
		CFG.SSH.DefaultTimeout = 30
	}
	if CFG.SSH.RunningConfigTimeout == 0 {
		CFG.SSH.RunningConfigTimeout = 180
	}
	if CFG.SSH.MaxParallel == 0 {
		CFG.SSH.MaxParallel = 10
	}

	if CFG.SNMP.Community == "" {
		CFG.SNMP.Community = "public"
	}
	if CFG.SNMP.Version == "" {
		CFG.SNMP.Version = "2c"
	}
	if CFG.SNMP.Port == 0 {
		CFG.SNMP.Port = 161
	}
	if CFG.SNMP.Timeout == 0 {
		CFG.SNMP.Timeout = 5
	}
	if CFG.SNMP.Retries == 0 {
		CFG.SNMP.Retries = 1
	}

	if CFG.TaskRunner.Workers == 0 {
		CFG.TaskRunner.Workers = 2
	}
	if CFG.TaskRunner.QueueSize == 0 {
		CFG.TaskRunner.QueueSize = 100
	}

	if CFG.Scheduler.TickInterval == "" {
		CFG.Scheduler.TickInterval = "5s"
	}
	if CFG.Scheduler.BatchSize == 0 {
		CFG.Scheduler.BatchSize = 10
	}

	if CFG.Auth.DevUserHeader == "" {
		CFG.Auth.DevUserHeader = "X-Dev-User"
	}
	if CFG.Auth.DefaultUser == "" {
		CFG.Auth.DefaultUser = "admin"
	}
}

// Helper functions for environment variables

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if defaultValue != "" && os.Getenv("DEBUG") == "true" {
		log.Printf("Environment variable %s not set. Using default: %s", key, defaultValue)
	}
	return defaultValue
}

func parseEnvInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		log.Printf("Error parsing %s as int: %v. Using default value: %d", key, err, defaultValue)
		return defaultValue
	}
	return n
}

func parseEnvBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		if os.Getenv("DEBUG") == "true" {
			log.Printf("Environment variable %s not set. Using default: %t", key, defaultValue)
		}
		return defaultValue
	}
	value = strings.ToLower(value)

	switch value {
	case "1", "t", "true", "yes", "on", "enabled":
		return true
	case "0", "f", "false", "no", "off", "disabled":
		return false
	default:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("Error parsing %s as bool: %v. Using default value: %t", key, err, defaultValue)
			return defaultValue
		}
		return boolValue
	}
}

func orString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// DisplayConfiguration outputs the current configuration in a readable format
// while masking sensitive information
func DisplayConfiguration() {
	log.Println("========== GoNetGuard Configuration ==========")

	log.Printf("Debug Mode: %t", CFG.Debug)
	log.Printf("Config File: %s", CFG.ConfigFile)

	log.Println("\n----- Metadata Database -----")
	log.Printf("Type: %s", CFG.MetadataDB.Type)
	if CFG.MetadataDB.Type == "sqlite" {
		log.Printf("Path: %s", CFG.MetadataDB.Path)
	} else {
		log.Printf("Host: %s", CFG.MetadataDB.Host)
		log.Printf("Port: %d", CFG.MetadataDB.Port)
		log.Printf("Username: %s", CFG.MetadataDB.Username)
		log.Printf("Password: %s", maskSensitiveInfo(CFG.MetadataDB.Password))
		log.Printf("Database: %s", CFG.MetadataDB.Database)
	}
	log.Printf("Auto Migrate: %t", CFG.MetadataDB.AutoMigrate)

	log.Println("\n----- Snapshot Archive -----")
	log.Printf("Local Enabled: %t", CFG.Local.Enabled)
	log.Printf("Local Directory: %s", CFG.Local.SnapshotDirectory)
	log.Printf("Local Retention Days: %d", CFG.Local.RetentionDays)
	log.Printf("S3 Enabled: %t", CFG.S3.Enabled)
	if CFG.S3.Enabled {
		log.Printf("Bucket: %s", CFG.S3.Bucket)
		log.Printf("Region: %s", CFG.S3.Region)
		log.Printf("Endpoint: %s", CFG.S3.Endpoint)
		log.Printf("Access Key: %s", maskSensitiveInfo(CFG.S3.AccessKey))
		log.Printf("Secret Key: %s", maskSensitiveInfo(CFG.S3.SecretKey))
		log.Printf("Prefix: %s", CFG.S3.Prefix)
	}

	log.Println("\n----- Device Access -----")
	log.Printf("Default Platform: %s", CFG.SSH.DefaultPlatform)
	log.Printf("Default Port: %d", CFG.SSH.DefaultPort)
	log.Printf("Default Username: %s", CFG.SSH.DefaultUsername)
	log.Printf("Default Password: %s", maskSensitiveInfo(CFG.SSH.DefaultPassword))
	log.Printf("Default Timeout: %ds", CFG.SSH.DefaultTimeout)
	log.Printf("SNMP: v%s port %d community %s", CFG.SNMP.Version, CFG.SNMP.Port, maskSensitiveInfo(CFG.SNMP.Community))

	log.Println("\n----- Workers -----")
	log.Printf("Task Workers: %d (queue %d)", CFG.TaskRunner.Workers, CFG.TaskRunner.QueueSize)
	log.Printf("Backup Scheduler: enabled=%t tick=%s batch=%d",
		CFG.Scheduler.Enabled, CFG.Scheduler.TickInterval, CFG.Scheduler.BatchSize)

	log.Println("\n----- API -----")
	log.Printf("Port: %s", CFG.Metrics.Port)
	log.Printf("Auth Enabled: %t", CFG.Auth.Enabled)
	log.Printf("JWT Secret: %s", maskSensitiveInfo(CFG.Auth.JWTSecret))
	log.Println("============================================")
}

// maskSensitiveInfo masks sensitive information for logging
func maskSensitiveInfo(info string) string {
	if info == "" {
		return "[not set]"
	}

	if len(info) <= 4 {
		return "****"
	}

	return info[:2] + "****" + info[len(info)-2:]
}

// ValidateConfig validates the configuration
func ValidateConfig() error {
	switch CFG.MetadataDB.Type {
	case "mysql", "postgres":
		if CFG.MetadataDB.Host == "" {
			return fmt.Errorf("metadata database host is required for %s", CFG.MetadataDB.Type)
		}
		if CFG.MetadataDB.Username == "" {
			return fmt.Errorf("metadata database username is required for %s", CFG.MetadataDB.Type)
		}
		if CFG.MetadataDB.Database == "" {
			return fmt.Errorf("metadata database name is required for %s", CFG.MetadataDB.Type)
		}
	case "sqlite":
		if CFG.MetadataDB.Path == "" {
			return fmt.Errorf("metadata database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported metadata database type %q", CFG.MetadataDB.Type)
	}

	if CFG.MetadataDB.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(CFG.MetadataDB.ConnMaxLifetime); err != nil {
			return fmt.Errorf("invalid metadata database connection max lifetime: %v", err)
		}
	}

	if CFG.Local.Enabled && CFG.Local.SnapshotDirectory == "" {
		return fmt.Errorf("local snapshot directory must be specified when local archiving is enabled")
	}
	if CFG.Local.RetentionDays < 0 {
		return fmt.Errorf("local retention days cannot be negative")
	}

	if CFG.S3.Enabled {
		if CFG.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket must be specified when S3 archiving is enabled")
		}
		if CFG.S3.AccessKey == "" || CFG.S3.SecretKey == "" {
			return fmt.Errorf("S3 access key and secret key must be specified when S3 archiving is enabled")
		}
		if CFG.S3.CustomCAPath != "" {
			if _, err := os.Stat(CFG.S3.CustomCAPath); err != nil {
				return fmt.Errorf("custom CA path %s is not accessible: %w", CFG.S3.CustomCAPath, err)
			}
		}
		if CFG.S3.CustomCAPath != "" && CFG.S3.SkipCertValidation {
			log.Printf("Warning: Both custom CA path and skip certificate validation are set. Custom CA will be ignored.")
		}
	}

	switch CFG.SNMP.Version {
	case "1", "2c", "3":
	default:
		return fmt.Errorf("unsupported SNMP version %q", CFG.SNMP.Version)
	}

	if CFG.TaskRunner.Workers < 1 {
		return fmt.Errorf("task runner needs at least one worker")
	}

	if _, err := time.ParseDuration(CFG.Scheduler.TickInterval); err != nil {
		return fmt.Errorf("invalid backup scheduler tick interval: %v", err)
	}

	if CFG.Auth.Enabled && CFG.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required when auth is enabled")
	}

	return nil
}
