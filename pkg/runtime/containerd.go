package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"

	"github.com/forgelabs/fabric/pkg/log"
	"github.com/forgelabs/fabric/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace the fabric uses,
	// isolating its containers from any other containerd tenant on the
	// same host.
	DefaultNamespace = "fabric"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// ContainerdDriver implements Driver for Container-isolated sandboxes via
// containerd.
type ContainerdDriver struct {
	client    *containerd.Client
	namespace string

	mu   sync.Mutex
	pids map[types.ContainerID]uint32
}

// NewContainerdDriver connects to the containerd socket at socketPath
// (DefaultSocketPath if empty).
func NewContainerdDriver(socketPath string) (*ContainerdDriver, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}

	return &ContainerdDriver{
		client:    client,
		namespace: DefaultNamespace,
		pids:      make(map[types.ContainerID]uint32),
	}, nil
}

// Close closes the containerd client connection.
func (d *ContainerdDriver) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

func (d *ContainerdDriver) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, d.namespace)
}

func (d *ContainerdDriver) PullImage(ctx context.Context, imageRef string) error {
	ctx = d.ctx(ctx)
	if _, err := d.client.Pull(ctx, imageRef, containerd.WithPullUnpack); err != nil {
		return fmt.Errorf("pull image %s: %w", imageRef, err)
	}
	return nil
}

// linuxResourcesFromLimits turns a sandbox's types.ResourceLimits into OCI
// spec options: the same CFS quota/period and memory limit that
// pkg/resources.toLinuxResources gives the cgroup enforcer, plus CPU
// shares. ProcessCount is not carried into the container spec.
func linuxResourcesFromLimits(limits types.ResourceLimits) []oci.SpecOpts {
	var opts []oci.SpecOpts
	if limits.CPUCores != nil {
		shares := uint64(*limits.CPUCores * 1024)
		period := uint64(100000)
		quota := int64(*limits.CPUCores * float64(period))
		opts = append(opts, oci.WithCPUShares(shares), oci.WithCPUCFS(quota, period))
	}
	if limits.MemoryBytes != nil {
		opts = append(opts, oci.WithMemoryLimit(uint64(*limits.MemoryBytes)))
	}
	return opts
}

func (d *ContainerdDriver) CreateContainer(ctx context.Context, sandboxID types.SandboxID, config types.SandboxConfig) (types.ContainerID, error) {
	ctx = d.ctx(ctx)

	image, err := d.client.GetImage(ctx, config.Image)
	if err != nil {
		return "", fmt.Errorf("get image %s: %w", config.Image, err)
	}

	envs := make([]string, 0, len(config.Environment))
	for k, v := range config.Environment {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}

	specOpts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(envs),
	}
	if len(config.Command) > 0 {
		specOpts = append(specOpts, oci.WithProcessArgs(config.Command...))
	}
	if config.WorkingDirectory != "" {
		specOpts = append(specOpts, oci.WithProcessCwd(config.WorkingDirectory))
	}
	specOpts = append(specOpts, linuxResourcesFromLimits(config.ResourceLimits)...)

	containerID := types.NewContainerID()
	ctrdContainer, err := d.client.NewContainer(
		ctx,
		string(containerID),
		containerd.WithImage(image),
		containerd.WithNewSnapshot(string(containerID)+"-snapshot", image),
		containerd.WithNewSpec(specOpts...),
	)
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}

	return types.ContainerID(ctrdContainer.ID()), nil
}

func (d *ContainerdDriver) Start(ctx context.Context, containerID types.ContainerID) error {
	ctx = d.ctx(ctx)

	container, err := d.client.LoadContainer(ctx, string(containerID))
	if err != nil {
		return fmt.Errorf("load container %s: %w", containerID, err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("start task: %w", err)
	}

	d.mu.Lock()
	d.pids[containerID] = task.Pid()
	d.mu.Unlock()

	return nil
}

func (d *ContainerdDriver) Stop(ctx context.Context, containerID types.ContainerID, timeout time.Duration) error {
	ctx = d.ctx(ctx)

	container, err := d.client.LoadContainer(ctx, string(containerID))
	if err != nil {
		return fmt.Errorf("load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil // not running
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("kill task: %w", err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("wait for task: %w", err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("force kill task: %w", err)
		}
	}

	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (d *ContainerdDriver) Delete(ctx context.Context, containerID types.ContainerID, removeVolumes bool) error {
	ctx = d.ctx(ctx)

	container, err := d.client.LoadContainer(ctx, string(containerID))
	if err != nil {
		return nil // already gone
	}

	if err := d.Stop(ctx, containerID, 10*time.Second); err != nil {
		log.WithComponent("containerd_driver").Warn().Err(err).Str("container_id", string(containerID)).Msg("stop before delete failed")
	}

	opts := []containerd.DeleteOpts{}
	if removeVolumes {
		opts = append(opts, containerd.WithSnapshotCleanup)
	}
	if err := container.Delete(ctx, opts...); err != nil {
		return fmt.Errorf("delete container: %w", err)
	}

	d.mu.Lock()
	delete(d.pids, containerID)
	d.mu.Unlock()
	return nil
}

func (d *ContainerdDriver) Exec(ctx context.Context, containerID types.ContainerID, command []string) (ExecResult, error) {
	ctx = d.ctx(ctx)
	start := time.Now()

	container, err := d.client.LoadContainer(ctx, string(containerID))
	if err != nil {
		return ExecResult{}, fmt.Errorf("load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return ExecResult{}, fmt.Errorf("load task: %w", err)
	}

	spec, err := container.Spec(ctx)
	if err != nil {
		return ExecResult{}, fmt.Errorf("load spec: %w", err)
	}
	procSpec := spec.Process
	procSpec.Args = command

	var stdout, stderr bytes.Buffer
	execID := types.NewContainerID()
	process, err := task.Exec(ctx, string(execID), procSpec, cio.NewCreator(cio.WithStreams(nil, &stdout, &stderr)))
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec: %w", err)
	}
	defer process.Delete(ctx)

	statusC, err := process.Wait(ctx)
	if err != nil {
		return ExecResult{}, fmt.Errorf("wait for exec: %w", err)
	}

	if err := process.Start(ctx); err != nil {
		return ExecResult{}, fmt.Errorf("start exec: %w", err)
	}

	status := <-statusC
	return ExecResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: int(status.ExitCode()),
		Duration: time.Since(start),
	}, nil
}

func (d *ContainerdDriver) Logs(ctx context.Context, containerID types.ContainerID, tail int) (io.ReadCloser, error) {
	return nil, fmt.Errorf("logs not available for containerd driver: attach a cio.LogFile at container creation")
}

func (d *ContainerdDriver) Stats(ctx context.Context, containerID types.ContainerID) (types.ResourceUsage, error) {
	ctx = d.ctx(ctx)

	container, err := d.client.LoadContainer(ctx, string(containerID))
	if err != nil {
		return types.ResourceUsage{}, fmt.Errorf("load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return types.ResourceUsage{}, fmt.Errorf("load task: %w", err)
	}

	_, err = task.Metrics(ctx)
	if err != nil {
		return types.ResourceUsage{}, fmt.Errorf("task metrics: %w", err)
	}

	// Metric decoding is cgroup-version specific (typeurl-encoded);
	// pkg/resources.CgroupEnforcer is the authoritative usage source for
	// limit enforcement. This surfaces only the sample timestamp for
	// drivers that have no enforcer attached (e.g. ad hoc Exec calls).
	return types.ResourceUsage{SampledAt: time.Now()}, nil
}

func (d *ContainerdDriver) Pause(ctx context.Context, containerID types.ContainerID) error {
	ctx = d.ctx(ctx)
	container, err := d.client.LoadContainer(ctx, string(containerID))
	if err != nil {
		return fmt.Errorf("load container %s: %w", containerID, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	return task.Pause(ctx)
}

func (d *ContainerdDriver) Unpause(ctx context.Context, containerID types.ContainerID) error {
	ctx = d.ctx(ctx)
	container, err := d.client.LoadContainer(ctx, string(containerID))
	if err != nil {
		return fmt.Errorf("load container %s: %w", containerID, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	return task.Resume(ctx)
}

func (d *ContainerdDriver) PID(ctx context.Context, containerID types.ContainerID) (int, error) {
	d.mu.Lock()
	pid, ok := d.pids[containerID]
	d.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("container %s has no recorded pid", containerID)
	}
	return int(pid), nil
}

var _ Driver = (*ContainerdDriver)(nil)
