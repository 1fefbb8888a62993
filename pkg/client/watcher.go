package client

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultPollInterval is how often a pending or running task is re-fetched
const DefaultPollInterval = 1000 * time.Millisecond

// ErrNotCancelable is returned by TaskWatcher.Cancel when the last observed
// status is not pending
var ErrNotCancelable = errors.New("only pending tasks can be canceled")

// TaskSource is the part of Client a TaskWatcher needs
type TaskSource interface {
	GetTask(ctx context.Context, id uint) (*Task, error)
	CancelTask(ctx context.Context, id uint) (*Task, error)
}

// TaskWatcher polls one task until it reaches a terminal status.
//
// Callbacks run on the polling goroutine and must not block for long.
// They may call Watch or Stop.
type TaskWatcher struct {
	// Interval overrides DefaultPollInterval
	Interval time.Duration

	OnUpdate   func(*Task)
	OnTerminal func(*Task)
	OnError    func(message string)

	source TaskSource
	ctx    context.Context

	mu     sync.Mutex
	id     uint
	gen    uint64
	last   *Task
	cancel context.CancelFunc
}

// NewTaskWatcher creates an idle watcher. Polling ends for good once ctx is done.
func NewTaskWatcher(ctx context.Context, source TaskSource) *TaskWatcher {
	return &TaskWatcher{source: source, ctx: ctx, Interval: DefaultPollInterval}
}

// Watch starts polling id, replacing any previous id. Watch(0) stops polling.
func (w *TaskWatcher) Watch(id uint) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if id != 0 && id == w.id && w.cancel != nil {
		return
	}
	w.stopLocked()
	w.id = id
	w.last = nil
	if id == 0 || w.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithCancel(w.ctx)
	w.cancel = cancel
	go w.poll(ctx, w.gen, id)
}

// Stop ends polling and forgets the current id
func (w *TaskWatcher) Stop() {
	w.Watch(0)
}

// ID returns the watched task id, 0 when idle
func (w *TaskWatcher) ID() uint {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.id
}

// Active reports whether requests are still being issued
func (w *TaskWatcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// Last returns the most recent task state seen for the current id
func (w *TaskWatcher) Last() *Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Cancel asks the server to cancel the watched task. It is only attempted
// while the last observed status is pending.
func (w *TaskWatcher) Cancel(ctx context.Context) (*Task, error) {
	w.mu.Lock()
	id, gen, last := w.id, w.gen, w.last
	w.mu.Unlock()

	if id == 0 || last == nil || last.Status != StatusPending {
		return nil, ErrNotCancelable
	}
	task, err := w.source.CancelTask(ctx, id)
	if err != nil {
		return nil, err
	}
	w.settle(gen, task, nil)
	return task, nil
}

func (w *TaskWatcher) stopLocked() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.gen++
}

func (w *TaskWatcher) interval() time.Duration {
	if w.Interval <= 0 {
		return DefaultPollInterval
	}
	return w.Interval
}

func (w *TaskWatcher) poll(ctx context.Context, gen uint64, id uint) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		task, err := w.source.GetTask(ctx, id)
		if ctx.Err() != nil {
			return
		}
		if !w.settle(gen, task, err) {
			return
		}
		timer.Reset(w.interval())
	}
}

// settle applies a fetch result if it belongs to the current generation and
// reports whether polling should continue
func (w *TaskWatcher) settle(gen uint64, task *Task, err error) bool {
	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		return false
	}

	if err != nil {
		onError := w.OnError
		w.mu.Unlock()
		if onError != nil {
			onError(err.Error())
		}
		return true
	}

	prev := w.last
	w.last = task
	terminal := IsTerminal(task.Status)
	fire := terminal && (prev == nil || !IsTerminal(prev.Status))
	if terminal {
		// late responses for this id must not overwrite the terminal state
		w.stopLocked()
	}
	onUpdate, onTerminal := w.OnUpdate, w.OnTerminal
	w.mu.Unlock()

	if onUpdate != nil {
		onUpdate(task)
	}
	if fire && onTerminal != nil {
		onTerminal(task)
	}
	return !terminal
}
