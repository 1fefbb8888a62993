// Package scheduler runs recurring config backups and snapshot retention.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
	"github.com/supporttools/GoNetGuard/pkg/metrics"
)

// ScheduleStore persists schedules and their runs
type ScheduleStore interface {
	DueSchedules(now time.Time, limit int) ([]dbmeta.BackupSchedule, error)
	GetScheduleByID(id uint) (*dbmeta.BackupSchedule, error)
	StartRun(scheduleID uint) (*dbmeta.BackupRun, error)
	FinishRun(run *dbmeta.BackupRun, schedule *dbmeta.BackupSchedule) error
}

// SnapshotService saves snapshots and prunes archives
type SnapshotService interface {
	SaveRunningConfigs(ctx context.Context, names []string, command string, timeout int, createdBy string) (map[string]interface{}, error)
	EnforceRetention(ctx context.Context)
}

// Scheduler handles cron scheduling for backups and retention
type Scheduler struct {
	cronScheduler *cron.Cron
	store         ScheduleStore
	snapshots     SnapshotService
	tickInterval  time.Duration
	batchSize     int

	// ticks never overlap
	tickMu sync.Mutex
	now    func() time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(store ScheduleStore, snapshots SnapshotService, tickInterval time.Duration, batchSize int) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Scheduler{
		cronScheduler: cron.New(),
		store:         store,
		snapshots:     snapshots,
		tickInterval:  tickInterval,
		batchSize:     batchSize,
		now:           time.Now,
	}
}

// SetupJobs configures all scheduled jobs
func (s *Scheduler) SetupJobs() error {
	spec := fmt.Sprintf("@every %s", s.tickInterval)
	if _, err := s.cronScheduler.AddFunc(spec, func() { s.Tick(context.Background()) }); err != nil {
		return fmt.Errorf("failed to schedule backup poller: %w", err)
	}
	log.Printf("Scheduled backup poller every %s (batch %d)", s.tickInterval, s.batchSize)

	_, err := s.cronScheduler.AddFunc("15 * * * *", func() {
		s.snapshots.EnforceRetention(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention policy enforcement: %w", err)
	}
	log.Println("Scheduled snapshot retention enforcement at minute 15 of every hour")

	return nil
}

// Start begins the scheduled jobs
func (s *Scheduler) Start() {
	s.cronScheduler.Start()
	log.Println("Backup scheduler started successfully")
}

// Stop halts all scheduled jobs and waits for a running tick
func (s *Scheduler) Stop() {
	ctx := s.cronScheduler.Stop()
	<-ctx.Done()
	log.Println("Backup scheduler stopped")
}

// Tick runs every due schedule, at most batchSize per call. A tick that
// starts while another is running returns immediately.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		return
	}
	defer s.tickMu.Unlock()

	due, err := s.store.DueSchedules(s.now(), s.batchSize)
	if err != nil {
		log.Printf("Backup scheduler tick failed: %v", err)
		return
	}

	for _, schedule := range due {
		if err := s.RunSchedule(ctx, schedule.ID); err != nil {
			log.Printf("Backup schedule %d failed: %v", schedule.ID, err)
		}
	}
}

// RunSchedule executes one schedule and advances next_run_at
func (s *Scheduler) RunSchedule(ctx context.Context, scheduleID uint) error {
	schedule, err := s.store.GetScheduleByID(scheduleID)
	if err != nil {
		return err
	}
	if !schedule.Enabled {
		return nil
	}

	run, err := s.store.StartRun(schedule.ID)
	if err != nil {
		return err
	}

	createdBy := schedule.CreatedBy
	if createdBy == "" {
		createdBy = "scheduler"
	}

	results, runErr := s.snapshots.SaveRunningConfigs(ctx, schedule.Devices, schedule.Command, schedule.Timeout, createdBy)
	now := s.now()
	next := now.Add(time.Duration(schedule.IntervalMinutes) * time.Minute)

	run.CompletedAt = &now
	schedule.LastRunAt = &now
	schedule.NextRunAt = &next

	ok, failedCount := 0, 0
	if runErr != nil {
		run.Status = dbmeta.TaskFailed
		run.ErrorMessage = runErr.Error()
		schedule.LastStatus = dbmeta.TaskFailed
		schedule.LastError = runErr.Error()
	} else {
		ok, failedCount = countOutcomes(results)
		run.Status = dbmeta.TaskCompleted
		if failedCount > 0 {
			run.Status = dbmeta.TaskFailed
		}
		run.Results = results
		schedule.LastStatus = run.Status
		schedule.LastError = ""
	}

	metrics.BackupRuns.WithLabelValues(run.Status).Inc()
	if err := s.store.FinishRun(run, schedule); err != nil {
		return err
	}

	if runErr != nil {
		log.Printf("Backup schedule %d (%s) failed: %v", schedule.ID, schedule.Name, runErr)
		return nil
	}
	log.Printf("Backup schedule %d (%s) finished: ok=%d failed=%d next=%s",
		schedule.ID, schedule.Name, ok, failedCount, next.Format(time.RFC3339))
	return nil
}

// RunRetentionOnce runs retention policy enforcement once
func (s *Scheduler) RunRetentionOnce(ctx context.Context) {
	log.Println("Running one-time snapshot retention enforcement")
	s.snapshots.EnforceRetention(ctx)
}

// countOutcomes counts results explicitly marked failed=false as ok and everything else as failed
func countOutcomes(results map[string]interface{}) (ok, failed int) {
	for _, r := range results {
		m, isMap := r.(map[string]interface{})
		if isMap {
			if f, isBool := m["failed"].(bool); isBool && !f {
				ok++
				continue
			}
		}
		failed++
	}
	return ok, failed
}
