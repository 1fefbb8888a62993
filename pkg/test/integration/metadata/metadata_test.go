package metadata_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/supporttools/GoNetGuard/pkg/config"
	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
)

// openTestDB connects to the database named by TEST_DB_TYPE. sqlite runs
// against a temp file; mysql and postgres read TEST_DB_HOST, TEST_DB_PORT,
// TEST_DB_USER, TEST_DB_PASSWORD and TEST_DB_NAME.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dbType := os.Getenv("TEST_DB_TYPE")
	if dbType == "" {
		dbType = "sqlite"
	}

	cfg := config.MetadataDBConfig{Type: dbType, SSLMode: "disable", MaxOpenConns: 5, MaxIdleConns: 2}
	switch dbType {
	case "sqlite":
		cfg.Path = filepath.Join(t.TempDir(), "metadata.db")
	case "mysql", "postgres":
		if os.Getenv("TEST_DB_HOST") == "" {
			t.Skipf("Skipping %s tests: TEST_DB_HOST is not set", dbType)
		}
		cfg.Host = os.Getenv("TEST_DB_HOST")
		cfg.Port, _ = strconv.Atoi(os.Getenv("TEST_DB_PORT"))
		cfg.Username = os.Getenv("TEST_DB_USER")
		cfg.Password = os.Getenv("TEST_DB_PASSWORD")
		cfg.Database = os.Getenv("TEST_DB_NAME")
	default:
		t.Skipf("Skipping unsupported TEST_DB_TYPE %q", dbType)
	}

	db, err := dbmeta.Connect(cfg)
	require.NoError(t, err)
	require.NoError(t, dbmeta.RunMigrations(db))

	t.Cleanup(func() {
		for _, table := range []string{"task_logs", "tasks", "config_snapshots", "backup_runs", "backup_schedules", "snmp_metrics", "devices", "device_groups"} {
			db.Exec("DELETE FROM " + table)
		}
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestDeviceLifecycle(t *testing.T) {
	repo := dbmeta.NewDeviceRepository(openTestDB(t))

	require.NoError(t, repo.EnsureGroups([]string{"core", "core", " "}))
	require.NoError(t, repo.CreateDevice(&dbmeta.Device{
		Name: "core-sw1", Hostname: "10.0.0.1", Site: "dc1", Platform: "cisco_ios",
		Port: 22, Timeout: 30, GroupName: "core", IsActive: true,
		Data: map[string]interface{}{"snmp_community": "public"},
	}))
	require.NoError(t, repo.CreateDevice(&dbmeta.Device{
		Name: "edge-r1", Hostname: "10.0.1.1", Site: "dc2", Platform: "huawei", Port: 22, Timeout: 30, IsActive: true,
	}))

	err := repo.CreateDevice(&dbmeta.Device{Name: "core-sw1", Hostname: "10.0.0.9", Port: 22, Timeout: 30})
	assert.ErrorIs(t, err, dbmeta.ErrConflict)

	dev, err := repo.GetDeviceByName("core-sw1")
	require.NoError(t, err)
	assert.Equal(t, "public", dev.Data["snmp_community"])

	list, err := repo.ListDevices(dbmeta.DeviceFilter{Site: "dc1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "core-sw1", list[0].Name)

	groups, err := repo.ListGroups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "core", groups[0].Name)

	require.NoError(t, repo.TouchLastConnected("edge-r1", time.Now()))
	edge, err := repo.GetDeviceByName("edge-r1")
	require.NoError(t, err)
	assert.NotNil(t, edge.LastConnected)

	deleted, notFound, err := repo.DeleteDevices([]string{"edge-r1", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, []string{"ghost"}, notFound)

	_, err = repo.GetDeviceByName("edge-r1")
	assert.ErrorIs(t, err, dbmeta.ErrNotFound)
}

func TestTaskStateTransitions(t *testing.T) {
	repo := dbmeta.NewTaskRepository(openTestDB(t))

	task := &dbmeta.Task{Name: "show version", TaskType: dbmeta.TaskTypeCommand, Targets: []string{"core-sw1"}, Command: "show version"}
	require.NoError(t, repo.CreateTask(task))
	assert.Equal(t, dbmeta.TaskPending, task.Status)

	started, err := repo.StartTask(task.ID)
	require.NoError(t, err)
	assert.True(t, started)

	started, err = repo.StartTask(task.ID)
	require.NoError(t, err)
	assert.False(t, started, "a running task cannot be claimed twice")

	assert.ErrorIs(t, repo.CancelTask(task.ID), dbmeta.ErrInvalidState)

	require.NoError(t, repo.AddLogs([]dbmeta.TaskLog{{TaskID: task.ID, DeviceName: "core-sw1", Status: "success", RawOutput: "IOS 15"}}))
	require.NoError(t, repo.FinishTask(task.ID, dbmeta.TaskCompleted, map[string]interface{}{"core-sw1": "IOS 15"}, ""))

	got, err := repo.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, dbmeta.TaskCompleted, got.Status)
	assert.Equal(t, "IOS 15", got.Results["core-sw1"])
	assert.NotNil(t, got.CompletedAt)

	logs, err := repo.ListLogs(task.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	queued := &dbmeta.Task{Name: "queued", TaskType: dbmeta.TaskTypeConnectivity, Targets: []string{"core-sw1"}}
	require.NoError(t, repo.CreateTask(queued))
	require.NoError(t, repo.CancelTask(queued.ID))

	summary, err := repo.Summary()
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.TotalTasks)
	assert.Equal(t, int64(1), summary.StatusCounts[dbmeta.TaskCanceled])
}

func TestDueSchedulesAndRuns(t *testing.T) {
	repo := dbmeta.NewScheduleRepository(openTestDB(t))

	now := time.Now().UTC().Truncate(time.Second)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := &dbmeta.BackupSchedule{Name: "nightly", Enabled: true, Devices: []string{"core-sw1"}, IntervalMinutes: 60, NextRunAt: &past, CreatedBy: "alice"}
	later := &dbmeta.BackupSchedule{Name: "later", Enabled: true, Devices: []string{"core-sw1"}, IntervalMinutes: 60, NextRunAt: &future, CreatedBy: "alice"}
	off := &dbmeta.BackupSchedule{Name: "off", Enabled: false, Devices: []string{"core-sw1"}, IntervalMinutes: 60, NextRunAt: &past, CreatedBy: "alice"}
	for _, s := range []*dbmeta.BackupSchedule{due, later, off} {
		require.NoError(t, repo.SaveSchedule(s))
	}

	list, err := repo.DueSchedules(now, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "nightly", list[0].Name)
	assert.Equal(t, []string{"core-sw1"}, list[0].Devices)

	owned, err := repo.FindByOwner("nightly", "alice")
	require.NoError(t, err)
	assert.Equal(t, due.ID, owned.ID)

	run, err := repo.StartRun(due.ID)
	require.NoError(t, err)

	finished := now
	next := now.Add(time.Hour)
	run.Status = "completed"
	run.CompletedAt = &finished
	run.Results = map[string]interface{}{"core-sw1": "ok"}
	due.LastRunAt = &finished
	due.LastStatus = "completed"
	due.NextRunAt = &next
	require.NoError(t, repo.FinishRun(run, due))

	list, err = repo.DueSchedules(now, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	runs, err := repo.ListRuns(due.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Status)

	require.NoError(t, repo.DeleteSchedule(due.ID))
	runs, err = repo.ListRuns(due.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSnapshotsAndArchiveKeys(t *testing.T) {
	repo := dbmeta.NewSnapshotRepository(openTestDB(t))

	older := &dbmeta.ConfigSnapshot{DeviceID: 1, DeviceName: "core-sw1", ConfigType: "running", Content: "a", ContentSHA256: "aa", Bytes: 1, CollectedAt: time.Now().Add(-time.Hour)}
	newer := &dbmeta.ConfigSnapshot{DeviceID: 1, DeviceName: "core-sw1", ConfigType: "running", Content: "b", ContentSHA256: "bb", Bytes: 1, CollectedAt: time.Now()}
	require.NoError(t, repo.CreateSnapshots([]*dbmeta.ConfigSnapshot{older, newer}))
	require.NoError(t, repo.SetArchiveKey(newer.ID, "by-device/core-sw1/x.cfg"))

	latest, err := repo.LatestSnapshot("core-sw1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	keys, err := repo.ArchiveKeys()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"by-device/core-sw1/x.cfg": true}, keys)

	metas, err := repo.ListSnapshots("core-sw1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, metas, 2)
}
