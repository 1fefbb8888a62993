package metadata

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/supporttools/GoNetGuard/pkg/config"
)

// DB is the global database instance
var DB *gorm.DB

// Initialize sets up the database connection and runs migrations if enabled
func Initialize() error {
	db, err := Connect(config.CFG.MetadataDB)
	if err != nil {
		return fmt.Errorf("failed to connect to metadata database: %w", err)
	}
	DB = db

	if config.CFG.MetadataDB.AutoMigrate {
		log.Println("Running database migrations for metadata tables")
		if err := RunMigrations(db); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	return nil
}

// Dialector returns the gorm dialector for the configured database type
func Dialector(cfg config.MetadataDBConfig) (gorm.Dialector, error) {
	switch cfg.Type {
	case "mysql":
		dsn := mysqldriver.Config{
			User:                 cfg.Username,
			Passwd:               cfg.Password,
			Net:                  "tcp",
			Addr:                 fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			DBName:               cfg.Database,
			ParseTime:            true,
			Loc:                  time.Local,
			AllowNativePasswords: true,
			Params:               map[string]string{"charset": "utf8mb4"},
		}
		return mysql.Open(dsn.FormatDSN()), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode)
		sqlDB, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres connection: %w", err)
		}
		return postgres.New(postgres.Config{Conn: sqlDB}), nil
	case "sqlite":
		return sqlite.Open(cfg.Path + "?_foreign_keys=on&_busy_timeout=5000"), nil
	default:
		return nil, fmt.Errorf("unsupported metadata database type %q", cfg.Type)
	}
}

// Connect establishes a connection to the database
func Connect(cfg config.MetadataDBConfig) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Silent
	if config.CFG.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	if cfg.Type == "sqlite" {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if cfg.ConnMaxLifetime != "" {
		duration, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			log.Printf("Warning: Invalid connection max lifetime '%s', using default 5m: %v",
				cfg.ConnMaxLifetime, err)
			duration = 5 * time.Minute
		}
		sqlDB.SetConnMaxLifetime(duration)
	}

	if cfg.Type == "sqlite" {
		log.Printf("Connected to sqlite metadata database at %s", cfg.Path)
	} else {
		log.Printf("Connected to %s metadata database at %s:%d", cfg.Type, cfg.Host, cfg.Port)
	}
	return db, nil
}

// RunMigrations runs all necessary database migrations
func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Device{},
		&DeviceGroup{},
		&Task{},
		&TaskLog{},
		&ConfigSnapshot{},
		&BackupSchedule{},
		&BackupRun{},
		&SNMPMetric{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}
	return nil
}

// Close closes the database connection
func Close() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	return sqlDB.Close()
}

// GetDB returns the global database instance
func GetDB() *gorm.DB {
	return DB
}
