package runtime

import (
	"context"
	"io"
	"time"

	"github.com/forgelabs/fabric/pkg/types"
)

// ExecResult is the outcome of one Driver.Exec call: captured output, exit
// code and wall-clock duration. The sandbox layer turns this into an
// ExecutionResult once it has attached logs and resource usage.
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Driver is the replaceable container/process backend spec §4.6 requires.
// Every method must be safe to call concurrently from multiple workers.
type Driver interface {
	// PullImage fetches imageRef if the backend needs a local image (a
	// no-op for drivers that don't use container images).
	PullImage(ctx context.Context, imageRef string) error

	// CreateContainer builds a container/process from config without
	// starting it, and returns its ContainerID.
	CreateContainer(ctx context.Context, sandboxID types.SandboxID, config types.SandboxConfig) (types.ContainerID, error)

	// Start begins execution of the container's entrypoint.
	Start(ctx context.Context, containerID types.ContainerID) error

	// Stop signals the container to exit, waiting up to timeout before
	// force-killing it.
	Stop(ctx context.Context, containerID types.ContainerID, timeout time.Duration) error

	// Delete removes the container and, if removeVolumes is set, any
	// snapshot/volume state associated with it. Idempotent.
	Delete(ctx context.Context, containerID types.ContainerID, removeVolumes bool) error

	// Exec runs command inside a running container and waits for it to
	// finish or ctx to be cancelled.
	Exec(ctx context.Context, containerID types.ContainerID, command []string) (ExecResult, error)

	// Logs returns the last `tail` lines of the container's output, or all
	// of it if tail <= 0.
	Logs(ctx context.Context, containerID types.ContainerID, tail int) (io.ReadCloser, error)

	// Stats samples the container's current resource usage.
	Stats(ctx context.Context, containerID types.ContainerID) (types.ResourceUsage, error)

	// Pause and Unpause suspend/resume the container's processes.
	Pause(ctx context.Context, containerID types.ContainerID) error
	Unpause(ctx context.Context, containerID types.ContainerID) error

	// PID returns the host PID of the container's root process, for
	// joining it to a resource-limit enforcer's control group.
	PID(ctx context.Context, containerID types.ContainerID) (int, error)
}
