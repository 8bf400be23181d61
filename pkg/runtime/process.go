package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/forgelabs/fabric/pkg/types"
)

// processHandle tracks one spawned child and the output it has produced
// so far, keyed by the synthetic ContainerID ProcessDriver hands back from
// CreateContainer.
type processHandle struct {
	cmd     *exec.Cmd
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	started time.Time
	paused  bool
}

// ProcessDriver implements Driver for Process, Chroot and None isolation
// types: it spawns os/exec children directly, applying namespace flags and
// a chroot via SysProcAttr instead of delegating to a container runtime.
// Exec spawns a new child with the sandbox's working directory,
// environment and isolation attributes; it does not join the namespaces
// of the process Start launched.
type ProcessDriver struct {
	mu      sync.Mutex
	procs   map[types.ContainerID]*processHandle
	configs map[types.ContainerID]types.SandboxConfig
}

// NewProcessDriver constructs a ProcessDriver.
func NewProcessDriver() *ProcessDriver {
	return &ProcessDriver{
		procs:   make(map[types.ContainerID]*processHandle),
		configs: make(map[types.ContainerID]types.SandboxConfig),
	}
}

func (p *ProcessDriver) PullImage(ctx context.Context, imageRef string) error {
	return nil // no image concept for bare processes
}

func (p *ProcessDriver) CreateContainer(ctx context.Context, sandboxID types.SandboxID, config types.SandboxConfig) (types.ContainerID, error) {
	if len(config.Command) == 0 {
		return "", fmt.Errorf("process sandbox requires a non-empty command")
	}

	id := types.NewContainerID()
	p.mu.Lock()
	p.configs[id] = config
	p.mu.Unlock()
	return id, nil
}

func (p *ProcessDriver) Start(ctx context.Context, containerID types.ContainerID) error {
	p.mu.Lock()
	config, ok := p.configs[containerID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("process %s was never created", containerID)
	}

	cmd := exec.CommandContext(ctx, config.Command[0], config.Command[1:]...)
	cmd.Dir = config.WorkingDirectory
	for k, v := range config.Environment {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	handle := &processHandle{cmd: cmd, started: time.Now()}
	cmd.Stdout = &handle.stdout
	cmd.Stderr = &handle.stderr

	cmd.SysProcAttr = isolationSysProcAttr(config)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	p.mu.Lock()
	p.procs[containerID] = handle
	p.mu.Unlock()

	go func() {
		_ = cmd.Wait()
	}()

	return nil
}

func (p *ProcessDriver) Stop(ctx context.Context, containerID types.ContainerID, timeout time.Duration) error {
	p.mu.Lock()
	handle, ok := p.procs[containerID]
	p.mu.Unlock()
	if !ok || handle.cmd.Process == nil {
		return nil
	}

	_ = handle.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_, _ = handle.cmd.Process.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		_ = handle.cmd.Process.Kill()
	}
	return nil
}

func (p *ProcessDriver) Delete(ctx context.Context, containerID types.ContainerID, removeVolumes bool) error {
	if err := p.Stop(ctx, containerID, 5*time.Second); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.procs, containerID)
	delete(p.configs, containerID)
	p.mu.Unlock()
	return nil
}

func (p *ProcessDriver) Exec(ctx context.Context, containerID types.ContainerID, command []string) (ExecResult, error) {
	if len(command) == 0 {
		return ExecResult{}, fmt.Errorf("empty command")
	}
	p.mu.Lock()
	config, ok := p.configs[containerID]
	p.mu.Unlock()
	if !ok {
		return ExecResult{}, fmt.Errorf("process %s was never created", containerID)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = config.WorkingDirectory
	for k, v := range config.Environment {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.SysProcAttr = isolationSysProcAttr(config)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if ok := asExitError(err, &exitErr); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return ExecResult{}, fmt.Errorf("exec: %w", err)
		}
	}

	return ExecResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Duration: time.Since(start),
	}, nil
}

func asExitError(err error, target **exec.ExitError) bool {
	if exitErr, ok := err.(*exec.ExitError); ok {
		*target = exitErr
		return true
	}
	return false
}

func (p *ProcessDriver) Logs(ctx context.Context, containerID types.ContainerID, tail int) (io.ReadCloser, error) {
	p.mu.Lock()
	handle, ok := p.procs[containerID]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("process %s not found", containerID)
	}
	combined := append(append([]byte{}, handle.stdout.Bytes()...), handle.stderr.Bytes()...)
	if tail > 0 {
		lines := bytes.SplitAfter(combined, []byte("\n"))
		if n := len(lines); n > 0 && len(lines[n-1]) == 0 {
			lines = lines[:n-1]
		}
		if len(lines) > tail {
			combined = bytes.Join(lines[len(lines)-tail:], nil)
		}
	}
	return io.NopCloser(bytes.NewReader(combined)), nil
}

func (p *ProcessDriver) Stats(ctx context.Context, containerID types.ContainerID) (types.ResourceUsage, error) {
	p.mu.Lock()
	handle, ok := p.procs[containerID]
	p.mu.Unlock()
	if !ok || handle.cmd.Process == nil {
		return types.ResourceUsage{}, fmt.Errorf("process %s not running", containerID)
	}

	proc, err := os.FindProcess(handle.cmd.Process.Pid)
	if err != nil {
		return types.ResourceUsage{}, err
	}
	_ = proc // liveness probe only; detailed stats come from pkg/resources' Enforcer

	return types.ResourceUsage{SampledAt: time.Now()}, nil
}

func (p *ProcessDriver) Pause(ctx context.Context, containerID types.ContainerID) error {
	p.mu.Lock()
	handle, ok := p.procs[containerID]
	p.mu.Unlock()
	if !ok || handle.cmd.Process == nil {
		return fmt.Errorf("process %s not running", containerID)
	}
	return handle.cmd.Process.Signal(syscall.SIGSTOP)
}

func (p *ProcessDriver) Unpause(ctx context.Context, containerID types.ContainerID) error {
	p.mu.Lock()
	handle, ok := p.procs[containerID]
	p.mu.Unlock()
	if !ok || handle.cmd.Process == nil {
		return fmt.Errorf("process %s not running", containerID)
	}
	return handle.cmd.Process.Signal(syscall.SIGCONT)
}

func (p *ProcessDriver) PID(ctx context.Context, containerID types.ContainerID) (int, error) {
	p.mu.Lock()
	handle, ok := p.procs[containerID]
	p.mu.Unlock()
	if !ok || handle.cmd.Process == nil {
		return 0, fmt.Errorf("process %s not running", containerID)
	}
	return handle.cmd.Process.Pid, nil
}

var _ Driver = (*ProcessDriver)(nil)
