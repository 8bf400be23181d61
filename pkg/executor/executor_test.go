package executor

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/fabric/pkg/events"
	"github.com/forgelabs/fabric/pkg/registry"
	"github.com/forgelabs/fabric/pkg/resources"
	"github.com/forgelabs/fabric/pkg/results"
	"github.com/forgelabs/fabric/pkg/runtime"
	"github.com/forgelabs/fabric/pkg/sandbox"
	"github.com/forgelabs/fabric/pkg/scheduler"
	"github.com/forgelabs/fabric/pkg/storage"
	"github.com/forgelabs/fabric/pkg/types"
	"github.com/forgelabs/fabric/pkg/worker"
)

type fakeDriver struct {
	mu       sync.Mutex
	exitCode int
	execErr  error
}

func (f *fakeDriver) PullImage(ctx context.Context, imageRef string) error { return nil }
func (f *fakeDriver) CreateContainer(ctx context.Context, sandboxID types.SandboxID, config types.SandboxConfig) (types.ContainerID, error) {
	return types.NewContainerID(), nil
}
func (f *fakeDriver) Start(ctx context.Context, containerID types.ContainerID) error { return nil }
func (f *fakeDriver) Stop(ctx context.Context, containerID types.ContainerID, timeout time.Duration) error {
	return nil
}
func (f *fakeDriver) Delete(ctx context.Context, containerID types.ContainerID, removeVolumes bool) error {
	return nil
}
func (f *fakeDriver) Exec(ctx context.Context, containerID types.ContainerID, command []string) (runtime.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return runtime.ExecResult{}, f.execErr
	}
	return runtime.ExecResult{Stdout: []byte("ok"), ExitCode: f.exitCode, Duration: time.Millisecond}, nil
}
func (f *fakeDriver) Logs(ctx context.Context, containerID types.ContainerID, tail int) (io.ReadCloser, error) {
	return io.NopCloser(nil), nil
}
func (f *fakeDriver) Stats(ctx context.Context, containerID types.ContainerID) (types.ResourceUsage, error) {
	return types.ResourceUsage{}, nil
}
func (f *fakeDriver) Pause(ctx context.Context, containerID types.ContainerID) error   { return nil }
func (f *fakeDriver) Unpause(ctx context.Context, containerID types.ContainerID) error { return nil }
func (f *fakeDriver) PID(ctx context.Context, containerID types.ContainerID) (int, error) {
	return 1, nil
}

var _ runtime.Driver = (*fakeDriver)(nil)

type fakeEnforcer struct{}

func (fakeEnforcer) Apply(types.SandboxID, types.ResourceLimits) error { return nil }
func (fakeEnforcer) Attach(types.SandboxID, int) error                 { return nil }
func (fakeEnforcer) CurrentUsage(types.SandboxID) (types.ResourceUsage, error) {
	return types.ResourceUsage{}, nil
}
func (fakeEnforcer) CheckViolations(types.SandboxID) ([]types.ResourceViolation, error) {
	return nil, nil
}
func (fakeEnforcer) Remove(types.SandboxID) error { return nil }

type noopIsolator struct{}

func (noopIsolator) CreateNamespaceIsolation(types.NamespaceConfig) (types.NamespaceID, error) {
	return types.NewNamespaceID(), nil
}
func (noopIsolator) ApplySecurityPolicy(types.SandboxID, types.SecurityPolicy) error { return nil }
func (noopIsolator) ApplySeccompPolicy(types.SandboxID, types.SeccompProfile) error  { return nil }
func (noopIsolator) SetCapabilities(types.SandboxID, []string) error                { return nil }
func (noopIsolator) DestroyIsolation(types.SandboxID) error                         { return nil }

type memRepo struct {
	mu      sync.Mutex
	tasks   map[types.TaskID]*types.Task
	results map[types.ExecutionID]*types.ExecutionResult
}

func newMemRepo() *memRepo {
	return &memRepo{tasks: make(map[types.TaskID]*types.Task), results: make(map[types.ExecutionID]*types.ExecutionResult)}
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
	return t, nil
}
func (r *memRepo) DeleteTask(id types.TaskID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	return nil
}

func (r *memRepo) SaveExecutionResult(result *types.ExecutionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.results[result.ExecutionID]; exists {
		return types.ErrAlreadyStored
	}
	cp := *result
	r.results[result.ExecutionID] = &cp
	return nil
}
func (r *memRepo) GetExecutionResult(id types.ExecutionID) (*types.ExecutionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.results[id]
	if !ok {
		return nil, types.ErrTaskNotFound
	}
	return result, nil
}
func (r *memRepo) ListExecutionResults(filter types.ResultFilter) ([]*types.ExecutionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.ExecutionResult
	for _, res := range r.results {
		out = append(out, res)
	}
	return out, nil
}
func (r *memRepo) DeleteExecutionResultsOlderThan(cutoff time.Time) (int, error) { return 0, nil }
func (r *memRepo) SaveAudit(*types.AuditRecord) error                           { return nil }
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

func testRegistry() registry.Registry {
	return registry.NewStatic(&types.ToolDescriptor{
		ToolID:                "echo-tool",
		CommandTemplate:       []string{"/bin/echo", "${message}"},
		AllowedIsolationTypes: []types.IsolationType{types.IsolationProcess},
	})
}

type testHarness struct {
	exec   *Executor
	driver *fakeDriver
	repo   *memRepo
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	driver := &fakeDriver{}
	repo := newMemRepo()
	broker := events.NewBroker()

	lc := sandbox.New(driver, driver, fakeEnforcer{}, noopIsolator{}, resources.NewNetworkLimiter(), nil, types.ResourceLimits{})
	pool := worker.New(worker.Config{
		MinWorkers: 1, MaxWorkers: 4,
		ScaleUpThreshold: 0.8, ScaleDownThreshold: 0.3,
		ScaleInterval: time.Hour, WorkerIdleTimeout: time.Minute, WorkerStallTimeout: time.Minute,
	}, lc, testRegistry(), broker)

	sched := scheduler.New(scheduler.Config{QueueCapacity: 10, PollInterval: 5 * time.Millisecond, MaxRetryDelay: time.Second, MaxConcurrent: 4}, repo, broker)
	store := results.New(repo, broker)

	exec := New(Config{MaxConcurrentExecutions: 4}, testRegistry(), sched, pool, store)
	exec.Start()
	t.Cleanup(func() {
		exec.Stop()
		pool.Stop()
	})

	return &testHarness{exec: exec, driver: driver, repo: repo}
}

func TestExecutor_ExecuteSync(t *testing.T) {
	h := newTestHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := h.exec.Execute(ctx, types.ExecutionRequest{
		ToolID:     "echo-tool",
		Parameters: map[string]any{"message": "hi"},
		Options:    types.ExecutionOptions{Timeout: time.Second},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestExecutor_ExecuteAsyncThenStatusAndResult(t *testing.T) {
	h := newTestHarness(t)

	executionID, err := h.exec.ExecuteAsync(context.Background(), types.ExecutionRequest{
		ToolID:     "echo-tool",
		Parameters: map[string]any{"message": "hi"},
		Options:    types.ExecutionOptions{Timeout: time.Second},
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		result, err := h.exec.Result(executionID)
		return err == nil && result.Success
	}, 2*time.Second, 10*time.Millisecond)
}

func TestExecutor_UnknownToolRejected(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.exec.ExecuteAsync(context.Background(), types.ExecutionRequest{ToolID: "no-such-tool"})
	assert.Error(t, err)
}

func TestExecutor_CancelQueuedTask(t *testing.T) {
	h := newTestHarness(t)

	executionID, err := h.exec.ExecuteAsync(context.Background(), types.ExecutionRequest{
		ToolID: "echo-tool", Parameters: map[string]any{"message": "hi"},
	})
	require.NoError(t, err)
	require.NoError(t, h.exec.Cancel(executionID))

	task, err := h.exec.Status(executionID)
	require.NoError(t, err)
	assert.True(t, task.Status == types.TaskStatusCancelled || task.Status == types.TaskStatusCompleted)
}

func TestExecutor_ChildWaitsForParentVisibility(t *testing.T) {
	h := newTestHarness(t)

	parentCtx, parentCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer parentCancel()
	parentResult, err := h.exec.Execute(parentCtx, types.ExecutionRequest{
		ToolID: "echo-tool", Parameters: map[string]any{"message": "parent"},
	})
	require.NoError(t, err)

	childExecutionID, err := h.exec.ExecuteAsync(context.Background(), types.ExecutionRequest{
		ToolID:     "echo-tool",
		Parameters: map[string]any{"message": "child"},
		Context:    types.RequestContext{ParentExecutionID: parentResult.ExecutionID},
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := h.exec.Result(childExecutionID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}
