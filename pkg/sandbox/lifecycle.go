// Package sandbox implements the Sandbox Lifecycle (C5): the state machine
// that turns a SandboxConfig into a running, isolated, resource-limited
// workload and back down again. It composes the Resource Enforcer (C3),
// the Isolation Layer (C4) and a Container Driver (C6) without knowing
// which concrete backend any of them is.
package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/forgelabs/fabric/pkg/isolation"
	"github.com/forgelabs/fabric/pkg/log"
	"github.com/forgelabs/fabric/pkg/resources"
	"github.com/forgelabs/fabric/pkg/runtime"
	"github.com/forgelabs/fabric/pkg/types"
)

// DefaultCreationTimeout and DefaultDestructionTimeout bound the create()
// and destroy() sequences; a sequence that blocks past its deadline fails
// rather than hanging a worker forever.
const (
	DefaultCreationTimeout    = 60 * time.Second
	DefaultDestructionTimeout = 30 * time.Second
)

// Auditor records the two security-relevant events a sandbox's lifecycle
// produces. Defined here, implemented by pkg/monitor, so this package
// never imports the monitoring layer it feeds.
type Auditor interface {
	RecordCreation(sandboxID types.SandboxID, tenantID types.TenantID, userID types.UserID, config types.SandboxConfig) error
	RecordExecution(sandboxID types.SandboxID, tenantID types.TenantID, userID types.UserID, command []string, env map[string]string) error
}

// Lifecycle is the C5 component: create/execute/destroy/pause/resume plus
// read accessors, all addressed by SandboxID.
type Lifecycle struct {
	mu        sync.RWMutex
	sandboxes map[types.SandboxID]*types.Sandbox
	logs      map[types.SandboxID][]types.LogEntry

	containerDriver runtime.Driver
	processDriver   runtime.Driver
	enforcer        resources.Enforcer
	isolator        isolation.Isolator
	netLimiter      *resources.NetworkLimiter
	auditor         Auditor

	defaultLimits types.ResourceLimits

	creationTimeout    time.Duration
	destructionTimeout time.Duration
}

// New constructs a Lifecycle. containerDriver backs Container isolation;
// processDriver backs Namespace, Process, Chroot and None isolation.
func New(containerDriver, processDriver runtime.Driver, enforcer resources.Enforcer, isolator isolation.Isolator, netLimiter *resources.NetworkLimiter, auditor Auditor, defaultLimits types.ResourceLimits) *Lifecycle {
	return &Lifecycle{
		sandboxes:          make(map[types.SandboxID]*types.Sandbox),
		logs:               make(map[types.SandboxID][]types.LogEntry),
		containerDriver:    containerDriver,
		processDriver:      processDriver,
		enforcer:           enforcer,
		isolator:           isolator,
		netLimiter:         netLimiter,
		auditor:            auditor,
		defaultLimits:      defaultLimits,
		creationTimeout:    DefaultCreationTimeout,
		destructionTimeout: DefaultDestructionTimeout,
	}
}

// driverFor returns the Driver responsible for an isolation type. Container
// sandboxes go through the container runtime; everything else is a direct
// child process with namespace/chroot attributes applied via SysProcAttr.
func (l *Lifecycle) driverFor(isolationType types.IsolationType) runtime.Driver {
	if isolationType == types.IsolationContainer {
		return l.containerDriver
	}
	return l.processDriver
}

// Create runs the six-step creation sequence from spec §4.3, rolling back
// in reverse order on any step's failure.
func (l *Lifecycle) Create(ctx context.Context, config types.SandboxConfig) (types.SandboxID, error) {
	ctx, cancel := context.WithTimeout(ctx, l.creationTimeout)
	defer cancel()

	var rollbacks []func()
	rollback := func() {
		for i := len(rollbacks) - 1; i >= 0; i-- {
			rollbacks[i]()
		}
	}

	config.ResourceLimits = resources.WithDefaults(config.ResourceLimits, l.defaultLimits)

	// Step 1: validate.
	if err := resources.Validate(config.ResourceLimits); err != nil {
		return "", types.NewSandboxCreationFailed("validate", err)
	}
	if err := isolation.ValidateSecurityPolicy(config.SecurityPolicy); err != nil {
		return "", types.NewSandboxCreationFailed("validate", err)
	}

	sandboxID := types.NewSandboxID()
	logger := log.WithSandboxID(string(sandboxID))

	// Step 2: audit record.
	if l.auditor != nil {
		if err := l.auditor.RecordCreation(sandboxID, config.TenantID, config.CreatedBy, config); err != nil {
			return "", types.NewSandboxCreationFailed("audit", err)
		}
	}

	driver := l.driverFor(config.IsolationType)

	// Step 3: branch on isolation type.
	switch config.IsolationType {
	case types.IsolationContainer:
		if err := driver.PullImage(ctx, config.Image); err != nil {
			rollback()
			return "", types.NewSandboxCreationFailed("pull_image", err)
		}
	case types.IsolationNamespace:
		nsID, err := l.isolator.CreateNamespaceIsolation(config.Namespaces)
		if err != nil {
			rollback()
			return "", types.NewSandboxCreationFailed("namespace", err)
		}
		rollbacks = append(rollbacks, func() { _ = l.isolator.DestroyIsolation(sandboxID); _ = nsID })
	case types.IsolationChroot:
		if config.RootDir == "" {
			rollback()
			return "", types.NewSandboxCreationFailed("chroot", fmt.Errorf("chroot isolation requires a root directory"))
		}
	case types.IsolationProcess:
		// no extra allocation beyond the process itself
	case types.IsolationNone:
		logger.Warn().Msg("sandbox created with no isolation, workload runs with host privileges")
	default:
		rollback()
		return "", types.NewSandboxCreationFailed("validate", fmt.Errorf("unknown isolation type %q", config.IsolationType))
	}

	containerID, err := driver.CreateContainer(ctx, sandboxID, config)
	if err != nil {
		rollback()
		return "", types.NewSandboxCreationFailed("create_container", err)
	}
	rollbacks = append(rollbacks, func() { _ = driver.Delete(context.Background(), containerID, true) })

	// Step 4: security policy via the isolation layer.
	if err := l.isolator.ApplySecurityPolicy(sandboxID, config.SecurityPolicy); err != nil {
		rollback()
		return "", types.NewSandboxCreationFailed("security_policy", err)
	}
	rollbacks = append(rollbacks, func() { _ = l.isolator.DestroyIsolation(sandboxID) })

	// Step 5: resource limits via the enforcer.
	if err := l.enforcer.Apply(sandboxID, config.ResourceLimits); err != nil {
		rollback()
		return "", types.NewSandboxCreationFailed("resource_limits", err)
	}
	rollbacks = append(rollbacks, func() { _ = l.enforcer.Remove(sandboxID) })

	if config.ResourceLimits.NetworkBytesSec != nil {
		l.netLimiter.Set(sandboxID, *config.ResourceLimits.NetworkBytesSec)
		rollbacks = append(rollbacks, func() { l.netLimiter.Remove(sandboxID) })
	}

	if err := driver.Start(ctx, containerID); err != nil {
		rollback()
		return "", types.NewSandboxCreationFailed("start", err)
	}

	if pid, err := driver.PID(ctx, containerID); err == nil {
		if err := l.enforcer.Attach(sandboxID, pid); err != nil {
			logger.Warn().Err(err).Msg("attach to resource enforcer failed, limits applied but not joined")
		}
	}

	// Step 6: register and transition to Running.
	sb := &types.Sandbox{
		SandboxID:      sandboxID,
		IsolationType:  config.IsolationType,
		Status:         types.SandboxStatusRunning,
		ContainerID:    containerID,
		ResourceLimits: config.ResourceLimits,
		SecurityPolicy: config.SecurityPolicy,
		CreatedAt:      time.Now(),
		TenantID:       config.TenantID,
		CreatedBy:      config.CreatedBy,
	}
	l.mu.Lock()
	l.sandboxes[sandboxID] = sb
	l.mu.Unlock()

	logger.Info().Str("isolation_type", string(config.IsolationType)).Msg("sandbox created")
	return sandboxID, nil
}

// Execute runs command inside an already-Running sandbox and waits for it
// to finish or the deadline to elapse.
func (l *Lifecycle) Execute(ctx context.Context, sandboxID types.SandboxID, executionID types.ExecutionID, command []string, deadline time.Duration) (types.ExecutionResult, error) {
	sb, err := l.get(sandboxID)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	if sb.Status != types.SandboxStatusRunning {
		return types.ExecutionResult{}, types.ErrSandboxNotRunning
	}

	if l.auditor != nil {
		_ = l.auditor.RecordExecution(sandboxID, sb.TenantID, sb.CreatedBy, command, nil)
	}

	if deadline <= 0 {
		return types.ExecutionResult{}, types.ErrExecutionTimeout
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, deadline)
	defer cancel()

	driver := l.driverFor(sb.IsolationType)
	execResult, err := driver.Exec(ctx, sb.ContainerID, command)
	now := time.Now()

	result := types.ExecutionResult{
		ExecutionID: executionID,
		CreatedAt:   now,
		Logs: []types.LogEntry{
			{Level: types.LogLevelInfo, Timestamp: now, Source: "stdout", Message: string(execResult.Stdout)},
			{Level: types.LogLevelInfo, Timestamp: now, Source: "stderr", Message: string(execResult.Stderr)},
		},
		Metrics: []types.MetricSample{
			{Name: "execution_duration_seconds", Value: execResult.Duration.Seconds(), Timestamp: now},
		},
	}

	if err != nil {
		if ctx.Err() != nil {
			return result, types.ErrExecutionTimeout
		}
		return result, fmt.Errorf("execute in sandbox %s: %w", sandboxID, err)
	}

	if execResult.ExitCode != 0 {
		result.Success = false
		result.Error = (&types.ExitNonZeroError{Code: execResult.ExitCode}).Error()
	} else {
		result.Success = true
	}

	l.appendLogs(sandboxID, result.Logs)
	return result, nil
}

// Destroy tears down a sandbox in the reverse order of creation: stop the
// workload, release resource handles, tear down isolation, delete the
// container, then mark the sandbox Destroyed. Idempotent.
func (l *Lifecycle) Destroy(ctx context.Context, sandboxID types.SandboxID) error {
	sb, err := l.get(sandboxID)
	if err != nil {
		return err
	}
	if sb.Status == types.SandboxStatusDestroyed || sb.Status == types.SandboxStatusDead {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.destructionTimeout)
	defer cancel()

	driver := l.driverFor(sb.IsolationType)
	logger := log.WithSandboxID(string(sandboxID))

	failed := false
	if err := driver.Stop(ctx, sb.ContainerID, l.destructionTimeout); err != nil {
		logger.Warn().Err(err).Msg("stop failed during destroy")
		failed = true
	}
	if err := l.enforcer.Remove(sandboxID); err != nil {
		logger.Warn().Err(err).Msg("enforcer remove failed during destroy")
	}
	l.netLimiter.Remove(sandboxID)
	if err := l.isolator.DestroyIsolation(sandboxID); err != nil {
		logger.Warn().Err(err).Msg("isolation teardown failed during destroy")
	}
	if err := driver.Delete(ctx, sb.ContainerID, true); err != nil {
		logger.Warn().Err(err).Msg("container delete failed during destroy")
		failed = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	sb = l.sandboxes[sandboxID]
	now := time.Now()
	sb.DestroyedAt = now
	if failed || ctx.Err() != nil {
		sb.Status = types.SandboxStatusDead
		return types.ErrDestructionTimeout
	}
	sb.Status = types.SandboxStatusDestroyed
	return nil
}

// Pause suspends a Running sandbox's processes.
func (l *Lifecycle) Pause(ctx context.Context, sandboxID types.SandboxID) error {
	sb, err := l.get(sandboxID)
	if err != nil {
		return err
	}
	if sb.Status != types.SandboxStatusRunning {
		return types.ErrSandboxNotRunning
	}
	driver := l.driverFor(sb.IsolationType)
	if err := driver.Pause(ctx, sb.ContainerID); err != nil {
		return err
	}
	l.mu.Lock()
	l.sandboxes[sandboxID].Status = types.SandboxStatusPaused
	l.mu.Unlock()
	return nil
}

// Resume continues a Paused sandbox's processes.
func (l *Lifecycle) Resume(ctx context.Context, sandboxID types.SandboxID) error {
	sb, err := l.get(sandboxID)
	if err != nil {
		return err
	}
	if sb.Status != types.SandboxStatusPaused {
		return fmt.Errorf("sandbox %s is not paused", sandboxID)
	}
	driver := l.driverFor(sb.IsolationType)
	if err := driver.Unpause(ctx, sb.ContainerID); err != nil {
		return err
	}
	l.mu.Lock()
	l.sandboxes[sandboxID].Status = types.SandboxStatusRunning
	l.mu.Unlock()
	return nil
}

// Status returns a sandbox's current lifecycle state.
func (l *Lifecycle) Status(sandboxID types.SandboxID) (types.SandboxStatus, error) {
	sb, err := l.get(sandboxID)
	if err != nil {
		return "", err
	}
	return sb.Status, nil
}

// Info returns a copy of a sandbox's full record.
func (l *Lifecycle) Info(sandboxID types.SandboxID) (types.Sandbox, error) {
	sb, err := l.get(sandboxID)
	if err != nil {
		return types.Sandbox{}, err
	}
	return *sb, nil
}

// Metrics returns a sandbox's most recently sampled resource usage.
func (l *Lifecycle) Metrics(sandboxID types.SandboxID) (types.ResourceUsage, error) {
	if _, err := l.get(sandboxID); err != nil {
		return types.ResourceUsage{}, err
	}
	return l.enforcer.CurrentUsage(sandboxID)
}

// Logs returns the captured stdout/stderr entries for a sandbox's
// executions, most recent last.
func (l *Lifecycle) Logs(sandboxID types.SandboxID) ([]types.LogEntry, error) {
	if _, err := l.get(sandboxID); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.LogEntry, len(l.logs[sandboxID]))
	copy(out, l.logs[sandboxID])
	return out, nil
}

func (l *Lifecycle) get(sandboxID types.SandboxID) (*types.Sandbox, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sb, ok := l.sandboxes[sandboxID]
	if !ok {
		return nil, types.ErrSandboxNotFound
	}
	return sb, nil
}

func (l *Lifecycle) appendLogs(sandboxID types.SandboxID, entries []types.LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs[sandboxID] = append(l.logs[sandboxID], entries...)
}
