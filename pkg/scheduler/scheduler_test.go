package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
)

type fakeStore struct {
	mu        sync.Mutex
	schedules map[uint]*dbmeta.BackupSchedule
	runs      []*dbmeta.BackupRun
	dueLimit  int
}

func (f *fakeStore) DueSchedules(now time.Time, limit int) ([]dbmeta.BackupSchedule, error) {
	f.dueLimit = limit
	var out []dbmeta.BackupSchedule
	for _, s := range f.schedules {
		if s.Enabled && s.NextRunAt != nil && !s.NextRunAt.After(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) GetScheduleByID(id uint) (*dbmeta.BackupSchedule, error) {
	s, ok := f.schedules[id]
	if !ok {
		return nil, dbmeta.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) StartRun(id uint) (*dbmeta.BackupRun, error) {
	run := &dbmeta.BackupRun{ID: uint(len(f.runs) + 1), ScheduleID: id, Status: "running", StartedAt: time.Now()}
	f.runs = append(f.runs, run)
	return run, nil
}

func (f *fakeStore) FinishRun(run *dbmeta.BackupRun, schedule *dbmeta.BackupSchedule) error {
	f.schedules[schedule.ID] = schedule
	return nil
}

type fakeSnapshots struct {
	mu        sync.Mutex
	calls     int
	createdBy string
	results   map[string]interface{}
	err       error
	block     chan struct{}
	entered   chan struct{}
	retention int
}

func (f *fakeSnapshots) SaveRunningConfigs(ctx context.Context, names []string, command string, timeout int, createdBy string) (map[string]interface{}, error) {
	if f.entered != nil {
		close(f.entered)
		f.entered = nil
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.calls++
	f.createdBy = createdBy
	f.mu.Unlock()
	return f.results, f.err
}

func (f *fakeSnapshots) EnforceRetention(ctx context.Context) {
	f.retention++
}

func fixedNow() time.Time {
	return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

func dueSchedule(id uint) *dbmeta.BackupSchedule {
	past := fixedNow().Add(-time.Minute)
	return &dbmeta.BackupSchedule{ID: id, Name: "nightly", Enabled: true, Devices: []string{"r1", "r2"},
		IntervalMinutes: 60, NextRunAt: &past}
}

func TestRunScheduleCompleted(t *testing.T) {
	store := &fakeStore{schedules: map[uint]*dbmeta.BackupSchedule{1: dueSchedule(1)}}
	snaps := &fakeSnapshots{results: map[string]interface{}{
		"r1": map[string]interface{}{"status": "success", "failed": false},
		"r2": map[string]interface{}{"status": "success", "failed": false},
	}}
	s := NewScheduler(store, snaps, 0, 0)
	s.now = fixedNow

	require.NoError(t, s.RunSchedule(context.Background(), 1))

	sched := store.schedules[1]
	assert.Equal(t, dbmeta.TaskCompleted, sched.LastStatus)
	assert.Empty(t, sched.LastError)
	assert.Equal(t, fixedNow().Add(time.Hour), *sched.NextRunAt)
	assert.Equal(t, fixedNow(), *sched.LastRunAt)
	assert.Equal(t, "scheduler", snaps.createdBy)

	require.Len(t, store.runs, 1)
	assert.Equal(t, dbmeta.TaskCompleted, store.runs[0].Status)
	assert.NotNil(t, store.runs[0].CompletedAt)
}

func TestRunScheduleWithFailures(t *testing.T) {
	store := &fakeStore{schedules: map[uint]*dbmeta.BackupSchedule{1: dueSchedule(1)}}
	snaps := &fakeSnapshots{results: map[string]interface{}{
		"r1": map[string]interface{}{"status": "success", "failed": false},
		"r2": map[string]interface{}{"status": "failed", "failed": true, "exception": "device not found"},
	}}
	s := NewScheduler(store, snaps, 0, 0)
	s.now = fixedNow

	require.NoError(t, s.RunSchedule(context.Background(), 1))
	assert.Equal(t, dbmeta.TaskFailed, store.runs[0].Status)
	assert.Equal(t, dbmeta.TaskFailed, store.schedules[1].LastStatus)
	assert.Empty(t, store.schedules[1].LastError)
}

func TestRunScheduleError(t *testing.T) {
	store := &fakeStore{schedules: map[uint]*dbmeta.BackupSchedule{1: dueSchedule(1)}}
	s := NewScheduler(store, &fakeSnapshots{err: errors.New("database is locked")}, 0, 0)
	s.now = fixedNow

	require.NoError(t, s.RunSchedule(context.Background(), 1))
	assert.Equal(t, "database is locked", store.runs[0].ErrorMessage)
	assert.Equal(t, "database is locked", store.schedules[1].LastError)
	assert.Equal(t, fixedNow().Add(time.Hour), *store.schedules[1].NextRunAt)
}

func TestRunScheduleSkipsDisabled(t *testing.T) {
	sched := dueSchedule(1)
	sched.Enabled = false
	store := &fakeStore{schedules: map[uint]*dbmeta.BackupSchedule{1: sched}}
	snaps := &fakeSnapshots{}
	s := NewScheduler(store, snaps, 0, 0)

	require.NoError(t, s.RunSchedule(context.Background(), 1))
	assert.Empty(t, store.runs)
	assert.Zero(t, snaps.calls)
}

func TestTickRunsDueSchedulesWithBatchLimit(t *testing.T) {
	future := fixedNow().Add(time.Hour)
	store := &fakeStore{schedules: map[uint]*dbmeta.BackupSchedule{
		1: dueSchedule(1),
		2: {ID: 2, Enabled: true, IntervalMinutes: 30, NextRunAt: &future},
	}}
	snaps := &fakeSnapshots{results: map[string]interface{}{}}
	s := NewScheduler(store, snaps, time.Second, 10)
	s.now = fixedNow

	s.Tick(context.Background())
	assert.Equal(t, 10, store.dueLimit)
	assert.Equal(t, 1, snaps.calls)
}

func TestTickDoesNotOverlap(t *testing.T) {
	store := &fakeStore{schedules: map[uint]*dbmeta.BackupSchedule{1: dueSchedule(1)}}
	entered := make(chan struct{})
	snaps := &fakeSnapshots{results: map[string]interface{}{}, block: make(chan struct{}), entered: entered}
	s := NewScheduler(store, snaps, time.Second, 10)
	s.now = fixedNow

	done := make(chan struct{})
	go func() {
		s.Tick(context.Background())
		close(done)
	}()

	<-entered
	s.Tick(context.Background())
	close(snaps.block)
	<-done

	assert.Equal(t, 1, snaps.calls)
}

func TestSetupJobsAndRetention(t *testing.T) {
	snaps := &fakeSnapshots{}
	s := NewScheduler(&fakeStore{}, snaps, 5*time.Second, 10)
	require.NoError(t, s.SetupJobs())
	assert.Len(t, s.cronScheduler.Entries(), 2)

	s.RunRetentionOnce(context.Background())
	assert.Equal(t, 1, snaps.retention)
}
