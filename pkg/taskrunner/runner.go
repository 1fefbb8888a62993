// Package taskrunner executes queued device tasks on a bounded worker pool.
package taskrunner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	dbmeta "github.com/supporttools/GoNetGuard/pkg/database/metadata"
	"github.com/supporttools/GoNetGuard/pkg/devices"
	"github.com/supporttools/GoNetGuard/pkg/metrics"
)

// MaxRawOutput is the number of characters of device output kept per task log
const MaxRawOutput = 20000

const truncatedMarker = "\n...<truncated>..."

// Store persists task state
type Store interface {
	GetTask(id uint) (*dbmeta.Task, error)
	StartTask(id uint) (bool, error)
	DeleteLogs(taskID uint) error
	FinishTask(id uint, status string, results map[string]interface{}, errorMessage string) error
	AddLogs(logs []dbmeta.TaskLog) error
}

// DeviceRunner executes device operations by inventory name
type DeviceRunner interface {
	SendCommand(ctx context.Context, names []string, command string, timeout int) (devices.Results, error)
	SendConfig(ctx context.Context, names []string, lines []string, dryRun bool, timeout int) (devices.Results, error)
	TestConnectivity(ctx context.Context, names []string) (devices.Results, error)
}

// SnapshotSaver collects running-config snapshots
type SnapshotSaver interface {
	SaveRunningConfigs(ctx context.Context, names []string, command string, timeout int, createdBy string) (map[string]interface{}, error)
}

// Runner consumes task IDs and executes them
type Runner struct {
	store     Store
	devices   DeviceRunner
	snapshots SnapshotSaver
	logger    *logrus.Logger

	workers int
	queue   chan uint

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a runner with the given number of workers and queue capacity
func New(store Store, deviceRunner DeviceRunner, snapshots SnapshotSaver, workers, queueSize int, logger *logrus.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 100
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{
		store:     store,
		devices:   deviceRunner,
		snapshots: snapshots,
		logger:    logger,
		workers:   workers,
		queue:     make(chan uint, queueSize),
	}
}

// Start launches the workers. Calling Start twice has no effect.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
	r.logger.WithField("workers", r.workers).Info("Task runner started")
}

// Stop cancels running work and waits for the workers to exit
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	r.logger.Info("Task runner stopped")
}

// Submit queues a task for execution. It fails when the queue is full.
func (r *Runner) Submit(taskID uint) error {
	select {
	case r.queue <- taskID:
		metrics.TaskQueueDepth.Set(float64(len(r.queue)))
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (r *Runner) worker(ctx context.Context, idx int) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			metrics.TaskQueueDepth.Set(float64(len(r.queue)))
			if err := r.Execute(ctx, id); err != nil {
				r.logger.WithFields(logrus.Fields{"task_id": id, "worker": idx}).WithError(err).Error("Task execution failed")
			}
		}
	}
}

// Execute runs one task synchronously. A task that is no longer pending is skipped.
func (r *Runner) Execute(ctx context.Context, taskID uint) error {
	task, err := r.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Status != dbmeta.TaskPending {
		r.logger.WithFields(logrus.Fields{"task_id": taskID, "status": task.Status}).Debug("Skipping task that is not pending")
		return nil
	}

	if err := r.store.DeleteLogs(taskID); err != nil {
		return err
	}
	claimed, err := r.store.StartTask(taskID)
	if err != nil {
		return err
	}
	if !claimed {
		// canceled between the read and the claim
		return nil
	}

	log := r.logger.WithFields(logrus.Fields{"task_id": taskID, "task_type": task.TaskType, "targets": len(task.Targets)})
	log.Info("Task started")
	started := time.Now()

	results, err := r.runPayload(ctx, task)
	if err != nil {
		metrics.TasksFinished.WithLabelValues(task.TaskType, dbmeta.TaskFailed).Inc()
		if ferr := r.store.FinishTask(taskID, dbmeta.TaskFailed, map[string]interface{}{}, err.Error()); ferr != nil {
			log.WithError(ferr).Error("Failed to record task failure")
		}
		return err
	}

	status := dbmeta.TaskCompleted
	if anyFailed(results) {
		status = dbmeta.TaskFailed
	}
	if err := r.store.FinishTask(taskID, status, results, ""); err != nil {
		return err
	}
	if err := r.store.AddLogs(buildLogs(taskID, results)); err != nil {
		return err
	}

	metrics.TasksFinished.WithLabelValues(task.TaskType, status).Inc()
	metrics.TaskDuration.WithLabelValues(task.TaskType).Observe(time.Since(started).Seconds())
	log.WithFields(logrus.Fields{"status": status, "duration": time.Since(started).String()}).Info("Task finished")
	return nil
}

func (r *Runner) runPayload(ctx context.Context, task *dbmeta.Task) (map[string]interface{}, error) {
	params := task.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	timeout := intParam(params, "timeout")

	switch strings.ToLower(task.TaskType) {
	case dbmeta.TaskTypeCommand:
		res, err := r.devices.SendCommand(ctx, task.Targets, task.Command, timeout)
		if err != nil {
			return nil, err
		}
		return res.ToMap(), nil

	case dbmeta.TaskTypeConfig:
		lines := ConfigLines(task.Config, params)
		if len(lines) == 0 {
			return nil, fmt.Errorf("config cannot be empty")
		}
		dryRun, _ := params["dry_run"].(bool)
		res, err := r.devices.SendConfig(ctx, task.Targets, lines, dryRun, timeout)
		if err != nil {
			return nil, err
		}
		return res.ToMap(), nil

	case dbmeta.TaskTypeConnectivity:
		res, err := r.devices.TestConnectivity(ctx, task.Targets)
		if err != nil {
			return nil, err
		}
		return res.ToMap(), nil

	case dbmeta.TaskTypeRunningConfig, "running-config":
		command, _ := params["command"].(string)
		return r.snapshots.SaveRunningConfigs(ctx, task.Targets, command, timeout, task.CreatedBy)
	}
	return nil, fmt.Errorf("unsupported task_type: %s", task.TaskType)
}

// ConfigLines returns parameters.configs when present, else the non-blank lines of config
func ConfigLines(config string, params map[string]interface{}) []string {
	if raw, ok := params["configs"].([]interface{}); ok && len(raw) > 0 {
		lines := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				lines = append(lines, s)
			}
		}
		if len(lines) > 0 {
			return lines
		}
	}
	if raw, ok := params["configs"].([]string); ok && len(raw) > 0 {
		return raw
	}

	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(config), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, strings.TrimRight(l, "\r"))
		}
	}
	return lines
}

func intParam(params map[string]interface{}, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func anyFailed(results map[string]interface{}) bool {
	for _, r := range results {
		if m, ok := r.(map[string]interface{}); ok {
			if failed, _ := m["failed"].(bool); failed {
				return true
			}
		}
	}
	return false
}

// Truncate cuts s to MaxRawOutput characters and appends a marker when it was longer
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxRawOutput {
		return s
	}
	return string(runes[:MaxRawOutput]) + truncatedMarker
}

// buildLogs produces one log row per device. The raw output is stored
// separately from the result so the JSON column stays small.
func buildLogs(taskID uint, results map[string]interface{}) []dbmeta.TaskLog {
	logs := make([]dbmeta.TaskLog, 0, len(results))
	for name, r := range results {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}

		entry := dbmeta.TaskLog{TaskID: taskID, DeviceName: name, Status: "success"}
		if failed, _ := m["failed"].(bool); failed {
			entry.Status = "failed"
		}
		if raw, ok := m["result"].(string); ok {
			entry.RawOutput = Truncate(raw)
		}
		if ex, ok := m["exception"].(string); ok && ex != "" {
			entry.ErrorMessage = ex
		}

		rest := make(map[string]interface{}, len(m))
		for k, v := range m {
			if k != "result" {
				rest[k] = v
			}
		}
		entry.Result = rest
		logs = append(logs, entry)
	}
	return logs
}
