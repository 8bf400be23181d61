package worker

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/fabric/pkg/events"
	"github.com/forgelabs/fabric/pkg/registry"
	"github.com/forgelabs/fabric/pkg/resources"
	"github.com/forgelabs/fabric/pkg/runtime"
	"github.com/forgelabs/fabric/pkg/sandbox"
	"github.com/forgelabs/fabric/pkg/types"
)

func testRegistry() registry.Registry {
	return registry.NewStatic(&types.ToolDescriptor{
		ToolID:                "echo-tool",
		CommandTemplate:       []string{"/bin/echo", "${message}"},
		AllowedIsolationTypes: []types.IsolationType{types.IsolationProcess},
	})
}

func testTask() *types.Task {
	return &types.Task{
		TaskID:      types.NewTaskID(),
		ExecutionID: types.NewExecutionID(),
		ExecutionRequest: types.ExecutionRequest{
			ToolID:     "echo-tool",
			Parameters: map[string]any{"message": "hi"},
			Options:    types.ExecutionOptions{Timeout: time.Second},
		},
		Status: types.TaskStatusQueued,
	}
}

type fakeDriver struct {
	created      map[types.ContainerID]types.SandboxConfig
	panicOnExec  bool
	exitCode     int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{created: make(map[types.ContainerID]types.SandboxConfig)}
}

func (f *fakeDriver) PullImage(ctx context.Context, imageRef string) error { return nil }

func (f *fakeDriver) CreateContainer(ctx context.Context, sandboxID types.SandboxID, config types.SandboxConfig) (types.ContainerID, error) {
	id := types.NewContainerID()
	f.created[id] = config
	return id, nil
}

func (f *fakeDriver) Start(ctx context.Context, containerID types.ContainerID) error { return nil }

func (f *fakeDriver) Stop(ctx context.Context, containerID types.ContainerID, timeout time.Duration) error {
	return nil
}

func (f *fakeDriver) Delete(ctx context.Context, containerID types.ContainerID, removeVolumes bool) error {
	return nil
}

func (f *fakeDriver) Exec(ctx context.Context, containerID types.ContainerID, command []string) (runtime.ExecResult, error) {
	if f.panicOnExec {
		panic("simulated worker panic")
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
	return 999, nil
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

func newTestPool(t *testing.T, driver *fakeDriver, cfg Config) *Pool {
	t.Helper()
	lc := sandbox.New(driver, driver, fakeEnforcer{}, noopIsolator{}, resources.NewNetworkLimiter(), nil, types.ResourceLimits{})
	return New(cfg, lc, testRegistry(), events.NewBroker())
}

func testConfig() Config {
	return Config{
		MinWorkers:         1,
		MaxWorkers:         4,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.3,
		ScaleInterval:      time.Hour, // disabled for deterministic tests
		WorkerIdleTimeout:  time.Minute,
		WorkerStallTimeout: time.Minute,
	}
}

func TestPool_SubmitAndExecute(t *testing.T) {
	driver := newFakeDriver()
	pool := newTestPool(t, driver, testConfig())
	defer pool.Stop()

	resultCh := make(chan WorkResult, 1)
	work := Work{Task: testTask(), ResultCh: resultCh}

	require.NoError(t, pool.Submit(context.Background(), work))

	select {
	case result := <-resultCh:
		require.NoError(t, result.Err)
		assert.True(t, result.Result.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for work result")
	}
}

func TestPool_PoolStatusCountsWorkers(t *testing.T) {
	driver := newFakeDriver()
	cfg := testConfig()
	cfg.MinWorkers = 3
	pool := newTestPool(t, driver, cfg)
	defer pool.Stop()

	status := pool.PoolStatus()
	assert.Equal(t, 3, status.Total)
	assert.Equal(t, 3, status.Idle)
	assert.Equal(t, 0, status.Busy)
}

func TestPool_WorkersReflectsAssignment(t *testing.T) {
	driver := newFakeDriver()
	pool := newTestPool(t, driver, testConfig())
	defer pool.Stop()

	workers := pool.Workers()
	require.Len(t, workers, 1)
	assert.Equal(t, types.WorkerStatusIdle, workers[0].Status)
	assert.Empty(t, workers[0].CurrentWorkID)

	resultCh := make(chan WorkResult, 1)
	require.NoError(t, pool.Submit(context.Background(), Work{Task: testTask(), ResultCh: resultCh}))

	select {
	case <-resultCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for work result")
	}

	assert.Eventually(t, func() bool {
		w := pool.Workers()[0]
		return w.Status == types.WorkerStatusIdle && w.CurrentWorkID == ""
	}, time.Second, 10*time.Millisecond)
}

func TestPool_ScaleClampsToBounds(t *testing.T) {
	driver := newFakeDriver()
	pool := newTestPool(t, driver, testConfig())
	defer pool.Stop()

	pool.Scale(100)
	assert.Equal(t, 4, pool.PoolStatus().Total)

	pool.Scale(0)
	assert.Equal(t, 1, pool.PoolStatus().Total)
}

func TestPool_WorkerPanicIsRecoveredAndReplaced(t *testing.T) {
	driver := newFakeDriver()
	driver.panicOnExec = true
	pool := newTestPool(t, driver, testConfig())
	defer pool.Stop()

	resultCh := make(chan WorkResult, 1)
	work := Work{Task: testTask(), ResultCh: resultCh}

	require.NoError(t, pool.Submit(context.Background(), work))

	select {
	case result := <-resultCh:
		assert.ErrorIs(t, result.Err, types.ErrWorkerPanic)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for panic result")
	}

	// the panicked worker is replaced, so the pool returns to MinWorkers.
	assert.Eventually(t, func() bool {
		return pool.PoolStatus().Total == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPool_AutoscaleUpOnHighUtilization(t *testing.T) {
	driver := newFakeDriver()
	cfg := testConfig()
	cfg.MinWorkers = 1
	cfg.MaxWorkers = 8
	pool := newTestPool(t, driver, cfg)
	defer pool.Stop()

	pool.mu.Lock()
	for _, w := range pool.workers {
		w.busy = true
	}
	pool.mu.Unlock()

	pool.autoscale()
	assert.Equal(t, 2, pool.PoolStatus().Total)
}
