package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTasks serves a fixed status sequence per task id; the last entry repeats
type scriptedTasks struct {
	mu       sync.Mutex
	statuses map[uint][]string
	calls    map[uint]int
	delay    map[uint]time.Duration
	fail     error
	canceled []uint
}

func newScriptedTasks() *scriptedTasks {
	return &scriptedTasks{
		statuses: map[uint][]string{},
		calls:    map[uint]int{},
		delay:    map[uint]time.Duration{},
	}
}

func (s *scriptedTasks) GetTask(ctx context.Context, id uint) (*Task, error) {
	s.mu.Lock()
	n := s.calls[id]
	s.calls[id]++
	seq, delay, fail := s.statuses[id], s.delay[id], s.fail
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}
	if n >= len(seq) {
		n = len(seq) - 1
	}
	return &Task{ID: id, Status: seq[n], Results: map[string]interface{}{"n": n}}, nil
}

func (s *scriptedTasks) CancelTask(ctx context.Context, id uint) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled = append(s.canceled, id)
	return &Task{ID: id, Status: StatusCanceled}, nil
}

func (s *scriptedTasks) count(id uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func fastWatcher(ctx context.Context, src TaskSource) *TaskWatcher {
	w := NewTaskWatcher(ctx, src)
	w.Interval = 10 * time.Millisecond
	return w
}

func TestWatcherStopsAtTerminalStatus(t *testing.T) {
	src := newScriptedTasks()
	src.statuses[1] = []string{StatusPending, StatusRunning, StatusCompleted}

	var terminal int32
	done := make(chan *Task, 4)
	w := fastWatcher(context.Background(), src)
	w.OnTerminal = func(task *Task) {
		atomic.AddInt32(&terminal, 1)
		done <- task
	}
	w.Watch(1)

	select {
	case task := <-done:
		assert.Equal(t, StatusCompleted, task.Status)
		assert.Equal(t, 2, task.Results["n"])
	case <-time.After(2 * time.Second):
		t.Fatal("terminal callback never fired")
	}

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 3, src.count(1), "no requests after a terminal status")
	assert.Equal(t, int32(1), atomic.LoadInt32(&terminal))
	assert.False(t, w.Active())
	assert.Equal(t, StatusCompleted, w.Last().Status)
}

func TestWatcherPollsUnresolvedTaskUntilStopped(t *testing.T) {
	src := newScriptedTasks()
	src.statuses[5] = []string{StatusPending}

	w := fastWatcher(context.Background(), src)
	w.Watch(5)
	require.Eventually(t, func() bool { return src.count(5) >= 5 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, w.Active())

	w.Stop()
	before := src.count(5)
	time.Sleep(60 * time.Millisecond)
	assert.LessOrEqual(t, src.count(5), before+1)
	assert.Equal(t, uint(0), w.ID())
	assert.False(t, w.Active())
}

func TestWatcherContextCancellation(t *testing.T) {
	src := newScriptedTasks()
	src.statuses[5] = []string{StatusRunning}

	ctx, cancel := context.WithCancel(context.Background())
	w := fastWatcher(ctx, src)
	w.Watch(5)
	require.Eventually(t, func() bool { return src.count(5) >= 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	before := src.count(5)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, before, src.count(5))

	w.Watch(6)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, src.count(6), "a finished context never polls again")
}

func TestWatcherReportsErrorsWithoutRetryStorm(t *testing.T) {
	src := newScriptedTasks()
	src.statuses[2] = []string{StatusRunning}
	src.fail = &APIError{StatusCode: 500, Message: "database unavailable"}

	var mu sync.Mutex
	var messages []string
	w := NewTaskWatcher(context.Background(), src)
	w.Interval = 40 * time.Millisecond
	w.OnError = func(msg string) {
		mu.Lock()
		messages = append(messages, msg)
		mu.Unlock()
	}
	w.Watch(2)
	time.Sleep(130 * time.Millisecond)
	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, messages)
	assert.Equal(t, "database unavailable", messages[0])
	// one immediate fetch plus one per interval
	assert.LessOrEqual(t, src.count(2), 5)
}

func TestWatcherDiscardsResultsForPreviousID(t *testing.T) {
	src := newScriptedTasks()
	src.statuses[1] = []string{StatusCompleted}
	src.delay[1] = 50 * time.Millisecond
	src.statuses[2] = []string{StatusRunning}

	var terminal int32
	w := fastWatcher(context.Background(), src)
	w.OnTerminal = func(task *Task) { atomic.AddInt32(&terminal, 1) }

	w.Watch(1)
	require.Eventually(t, func() bool { return src.count(1) == 1 }, time.Second, time.Millisecond)
	w.Watch(2)

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&terminal))
	require.NotNil(t, w.Last())
	assert.Equal(t, uint(2), w.Last().ID)
	w.Stop()
}

func TestWatchSameIDDoesNotRestart(t *testing.T) {
	src := newScriptedTasks()
	src.statuses[3] = []string{StatusRunning}

	w := NewTaskWatcher(context.Background(), src)
	w.Interval = time.Hour
	w.Watch(3)
	w.Watch(3)
	require.Eventually(t, func() bool { return src.count(3) >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, src.count(3))
	w.Stop()
}

func TestWatcherCancel(t *testing.T) {
	src := newScriptedTasks()
	src.statuses[4] = []string{StatusPending}

	terminal := make(chan *Task, 1)
	w := fastWatcher(context.Background(), src)
	w.OnTerminal = func(task *Task) { terminal <- task }

	_, err := w.Cancel(context.Background())
	assert.True(t, errors.Is(err, ErrNotCancelable), "nothing watched yet")

	w.Watch(4)
	require.Eventually(t, func() bool { return w.Last() != nil }, time.Second, time.Millisecond)

	task, err := w.Cancel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, task.Status)
	assert.Equal(t, []uint{4}, src.canceled)

	select {
	case got := <-terminal:
		assert.Equal(t, StatusCanceled, got.Status)
	case <-time.After(time.Second):
		t.Fatal("cancel did not settle as terminal")
	}
	assert.False(t, w.Active())
}

func TestWatcherCancelRequiresPending(t *testing.T) {
	src := newScriptedTasks()
	src.statuses[4] = []string{StatusRunning}

	w := fastWatcher(context.Background(), src)
	w.Watch(4)
	require.Eventually(t, func() bool { return w.Last() != nil }, time.Second, time.Millisecond)

	_, err := w.Cancel(context.Background())
	assert.ErrorIs(t, err, ErrNotCancelable)
	assert.Empty(t, src.canceled)
	w.Stop()
}
