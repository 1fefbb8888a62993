package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/supporttools/GoNetGuard/pkg/adminserver"
	"github.com/supporttools/GoNetGuard/pkg/api"
	"github.com/supporttools/GoNetGuard/pkg/config"
	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
	"github.com/supporttools/GoNetGuard/pkg/devices"
	"github.com/supporttools/GoNetGuard/pkg/pages"
	"github.com/supporttools/GoNetGuard/pkg/scheduler"
	"github.com/supporttools/GoNetGuard/pkg/snapshot"
	"github.com/supporttools/GoNetGuard/pkg/snmp"
	"github.com/supporttools/GoNetGuard/pkg/storage/local"
	"github.com/supporttools/GoNetGuard/pkg/storage/s3"
	"github.com/supporttools/GoNetGuard/pkg/taskrunner"
	"github.com/supporttools/GoNetGuard/pkg/version"
)

func main() {
	log.Printf("Starting GoNetGuard %s...", version.Current())

	config.LoadConfiguration()
	if err := config.ValidateConfig(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if config.CFG.Debug {
		logger.SetLevel(logrus.DebugLevel)
		config.DisplayConfiguration()
	}

	if err := dbmeta.Initialize(); err != nil {
		log.Fatalf("Failed to initialize metadata database: %v", err)
	}
	db := dbmeta.GetDB()

	deviceRepo := dbmeta.NewDeviceRepository(db)
	taskRepo := dbmeta.NewTaskRepository(db)
	snapshotRepo := dbmeta.NewSnapshotRepository(db)
	scheduleRepo := dbmeta.NewScheduleRepository(db)
	metricRepo := dbmeta.NewMetricRepository(db)

	if n, err := metricRepo.EnsureBuiltinMetrics(snmp.BuiltinMetrics()); err != nil {
		log.Printf("Failed to seed built-in SNMP metrics: %v", err)
	} else if n > 0 {
		log.Printf("Seeded %d built-in SNMP metrics", n)
	}

	manager := devices.NewManager(deviceRepo, config.CFG.SSH, &devices.SSHDialer{KnownHostsFile: config.CFG.SSH.KnownHostsFile})

	var archives []snapshot.Archive
	var presigner api.Presigner
	if config.CFG.Local.Enabled {
		localClient, err := local.NewClient()
		if err != nil {
			log.Fatalf("Failed to initialize local snapshot storage: %v", err)
		}
		archives = append(archives, localClient)
	}
	if config.CFG.S3.Enabled {
		s3Client, err := s3.NewClient()
		if err != nil {
			log.Fatalf("Failed to initialize S3 snapshot storage: %v", err)
		}
		archives = append(archives, s3Client)
		presigner = s3Client
	}
	snapshots := snapshot.NewService(manager, snapshotRepo, config.CFG.Local.RetentionDays, archives...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := taskrunner.New(taskRepo, manager, snapshots, config.CFG.TaskRunner.Workers, config.CFG.TaskRunner.QueueSize, logger)
	runner.Start(ctx)
	requeuePendingTasks(taskRepo, runner)

	var sched *scheduler.Scheduler
	if config.CFG.Scheduler.Enabled {
		tick, _ := time.ParseDuration(config.CFG.Scheduler.TickInterval)
		sched = scheduler.NewScheduler(scheduleRepo, snapshots, tick, config.CFG.Scheduler.BatchSize)
		if err := sched.SetupJobs(); err != nil {
			log.Fatalf("Failed to setup scheduled jobs: %v", err)
		}
		sched.Start()
	}

	site := &pages.Site{
		Devices:   deviceRepo,
		Tasks:     taskRepo,
		Schedules: scheduleRepo,
		Snapshots: snapshotRepo,
		Config:    &config.CFG,
	}
	adminSrv := adminserver.NewServer(&config.CFG, logger, site,
		api.NewInventoryHandler(deviceRepo, manager, logger),
		api.NewTaskHandler(taskRepo, runner, logger),
		api.NewConfigHandler(snapshotRepo, snapshots, scheduleRepo, presigner, logger),
		api.NewSNMPHandler(metricRepo, deviceRepo, snmp.NewProber(), config.CFG.SNMP, logger),
		api.NewS3ConfigHandler(&config.CFG, logger),
	)
	adminSrv.Ping = pingDatabase(db)
	adminSrv.Start()

	log.Println("GoNetGuard is running. Press Ctrl+C to exit.")
	waitForSignal()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := adminSrv.Stop(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
	if sched != nil {
		sched.Stop()
	}
	runner.Stop()
	if err := dbmeta.Close(); err != nil {
		log.Printf("Error closing metadata database: %v", err)
	}
	log.Println("GoNetGuard stopped")
}

// requeuePendingTasks resubmits tasks that were queued before the last restart
func requeuePendingTasks(store *dbmeta.TaskRepository, runner *taskrunner.Runner) {
	pending, err := store.ListTasks(dbmeta.TaskFilter{Status: dbmeta.TaskPending})
	if err != nil {
		log.Printf("Failed to load pending tasks: %v", err)
		return
	}
	// oldest first
	for i := len(pending) - 1; i >= 0; i-- {
		if err := runner.Submit(pending[i].ID); err != nil {
			log.Printf("Failed to requeue task %d: %v", pending[i].ID, err)
		}
	}
	if len(pending) > 0 {
		log.Printf("Requeued %d pending tasks", len(pending))
	}
}

func pingDatabase(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("metadata database unavailable: %w", err)
		}
		return sqlDB.PingContext(ctx)
	}
}

// waitForSignal blocks until SIGINT or SIGTERM
func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sig := <-c
	log.Printf("Received signal %s, shutting down...", sig)
}
