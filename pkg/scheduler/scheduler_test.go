package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/fabric/pkg/events"
	"github.com/forgelabs/fabric/pkg/storage"
	"github.com/forgelabs/fabric/pkg/types"
)

type memRepo struct {
	mu    sync.Mutex
	tasks map[types.TaskID]*types.Task
}

func newMemRepo() *memRepo {
	return &memRepo{tasks: make(map[types.TaskID]*types.Task)}
}

func (r *memRepo) SaveTask(task *types.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *task
	r.tasks[task.TaskID] = &cp
	return nil
}

func (r *memRepo) LoadTasksByStatus(status types.TaskStatus) ([]*types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Task
	for _, t := range r.tasks {
		if t.Status == status {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) GetTask(id types.TaskID) (*types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, types.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memRepo) DeleteTask(id types.TaskID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	return nil
}

func (r *memRepo) SaveExecutionResult(*types.ExecutionResult) error { return nil }
func (r *memRepo) GetExecutionResult(types.ExecutionID) (*types.ExecutionResult, error) {
	return nil, nil
}
func (r *memRepo) ListExecutionResults(types.ResultFilter) ([]*types.ExecutionResult, error) {
	return nil, nil
}
func (r *memRepo) DeleteExecutionResultsOlderThan(time.Time) (int, error) { return 0, nil }
func (r *memRepo) SaveAudit(*types.AuditRecord) error                     { return nil }
func (r *memRepo) ListAudit(types.SandboxID) ([]*types.AuditRecord, error) {
	return nil, nil
}
func (r *memRepo) SaveSandboxMetric(types.SandboxID, string, float64, string, time.Time) error {
	return nil
}
func (r *memRepo) SaveViolation(*types.ResourceViolation) error         { return nil }
func (r *memRepo) SaveSecurityViolation(*types.SecurityViolation) error { return nil }
func (r *memRepo) ListViolations(types.SandboxID) ([]*types.ResourceViolation, error) {
	return nil, nil
}
func (r *memRepo) ListSecurityViolations(types.SandboxID) ([]*types.SecurityViolation, error) {
	return nil, nil
}
func (r *memRepo) PruneViolationsOlderThan(time.Time) (int, error) { return 0, nil }
func (r *memRepo) Close() error                                   { return nil }

var _ storage.Repository = (*memRepo)(nil)

func testConfig() Config {
	return Config{QueueCapacity: 10, PollInterval: 5 * time.Millisecond, MaxRetryDelay: time.Second}
}

func TestScheduler_ScheduleAndDequeue(t *testing.T) {
	s := New(testConfig(), newMemRepo(), events.NewBroker())
	s.Start()
	defer s.Stop()

	taskID, err := s.Schedule(types.ExecutionRequest{ToolID: "echo"}, types.NewExecutionID())
	require.NoError(t, err)

	select {
	case task := <-s.Out():
		assert.Equal(t, taskID, task.TaskID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dequeued task")
	}
}

func TestScheduler_QueueFullRejectsAdmission(t *testing.T) {
	cfg := testConfig()
	cfg.QueueCapacity = 1
	cfg.PollInterval = time.Hour // no pump draining during this test
	s := New(cfg, newMemRepo(), events.NewBroker())

	_, err := s.Schedule(types.ExecutionRequest{ToolID: "echo"}, types.NewExecutionID())
	require.NoError(t, err)

	_, err = s.Schedule(types.ExecutionRequest{ToolID: "echo"}, types.NewExecutionID())
	assert.ErrorIs(t, err, types.ErrQueueFull)
}

func TestScheduler_CancelQueuedTask(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = time.Hour
	s := New(cfg, newMemRepo(), events.NewBroker())

	taskID, err := s.Schedule(types.ExecutionRequest{ToolID: "echo"}, types.NewExecutionID())
	require.NoError(t, err)

	require.NoError(t, s.Cancel(taskID))

	task, err := s.Status(taskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusCancelled, task.Status)

	assert.ErrorIs(t, s.Cancel(taskID), types.ErrAlreadyCancelled)
}

func TestScheduler_CancelRunningTaskSignalsAbort(t *testing.T) {
	s := New(testConfig(), newMemRepo(), events.NewBroker())

	taskID, err := s.Schedule(types.ExecutionRequest{ToolID: "echo"}, types.NewExecutionID())
	require.NoError(t, err)

	aborted := false
	_, cancel := context.WithCancel(context.Background())
	s.RegisterCancel(taskID, func() { aborted = true; cancel() })

	require.NoError(t, s.Cancel(taskID))
	assert.True(t, aborted)
}

func TestScheduler_CompleteSuccessMarksCompleted(t *testing.T) {
	s := New(testConfig(), newMemRepo(), events.NewBroker())
	taskID, err := s.Schedule(types.ExecutionRequest{ToolID: "echo"}, types.NewExecutionID())
	require.NoError(t, err)

	s.Complete(taskID, nil)

	task, err := s.Status(taskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusCompleted, task.Status)
}

func TestScheduler_CompleteRetriableFailureReschedules(t *testing.T) {
	cfg := testConfig()
	s := New(cfg, newMemRepo(), events.NewBroker())

	req := types.ExecutionRequest{
		ToolID:  "echo",
		Options: types.ExecutionOptions{RetryCount: 2, RetryDelay: time.Millisecond},
	}
	taskID, err := s.Schedule(req, types.NewExecutionID())
	require.NoError(t, err)

	s.Complete(taskID, types.ErrExecutionTimeout)

	task, err := s.Status(taskID)
	require.NoError(t, err)
	assert.Equal(t, 1, task.Attempts)

	assert.Eventually(t, func() bool {
		task, _ := s.Status(taskID)
		return task.Status == types.TaskStatusQueued
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_CompleteNonRetriableFailsTask(t *testing.T) {
	s := New(testConfig(), newMemRepo(), events.NewBroker())
	taskID, err := s.Schedule(types.ExecutionRequest{ToolID: "echo"}, types.NewExecutionID())
	require.NoError(t, err)

	s.Complete(taskID, fmt.Errorf("boom"))

	task, err := s.Status(taskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, task.Status)
}

func TestScheduler_RestartRebuildsQueueAndFailsStaleRunning(t *testing.T) {
	repo := newMemRepo()
	queued := &types.Task{TaskID: types.NewTaskID(), Status: types.TaskStatusQueued, Priority: types.PriorityNormal}
	stale := &types.Task{TaskID: types.NewTaskID(), Status: types.TaskStatusRunning, Priority: types.PriorityNormal}
	require.NoError(t, repo.SaveTask(queued))
	require.NoError(t, repo.SaveTask(stale))

	s := New(testConfig(), repo, events.NewBroker())
	require.NoError(t, s.Restart(context.Background()))

	q, err := s.Status(queued.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusQueued, q.Status)

	st, err := s.Status(stale.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, st.Status)
}

func TestScheduler_MaxConcurrentPreservesPriorityOrder(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	s := New(cfg, newMemRepo(), events.NewBroker())
	s.Start()
	defer s.Stop()

	low := func() types.TaskID {
		id, err := s.Schedule(types.ExecutionRequest{ToolID: "echo", Options: types.ExecutionOptions{Priority: types.PriorityLow}}, types.NewExecutionID())
		require.NoError(t, err)
		return id
	}

	low1 := low()
	low()
	low()

	var first *types.Task
	select {
	case first = <-s.Out():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first dequeue")
	}
	assert.Equal(t, low1, first.TaskID)

	criticalID, err := s.Schedule(types.ExecutionRequest{ToolID: "echo", Options: types.ExecutionOptions{Priority: types.PriorityCritical}}, types.NewExecutionID())
	require.NoError(t, err)

	// Low#1 is still "in flight" from the scheduler's point of view, so
	// MaxConcurrent should hold the rest of the queue back until it's
	// Complete'd, however many ticks that takes.
	select {
	case <-s.Out():
		t.Fatal("a second task dequeued before Complete freed capacity")
	case <-time.After(30 * time.Millisecond):
	}

	s.Complete(low1, nil)

	select {
	case second := <-s.Out():
		assert.Equal(t, criticalID, second.TaskID, "critical task should preempt the remaining low-priority tasks")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second dequeue")
	}
}

func TestScheduler_QueueStats(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = time.Hour
	cfg.QueueCapacity = 5
	s := New(cfg, newMemRepo(), events.NewBroker())

	_, err := s.Schedule(types.ExecutionRequest{ToolID: "echo"}, types.NewExecutionID())
	require.NoError(t, err)

	stats := s.QueueStats()
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 0, stats.Running)
	assert.Equal(t, 5, s.Capacity())
}
