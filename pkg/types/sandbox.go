package types

import "time"

// IsolationType selects the mechanism a Sandbox uses to separate a
// workload from the host.
type IsolationType string

const (
	IsolationContainer IsolationType = "container"
	IsolationNamespace IsolationType = "namespace"
	IsolationProcess   IsolationType = "process"
	IsolationChroot    IsolationType = "chroot"
	IsolationNone      IsolationType = "none"
)

// SandboxStatus is a Sandbox's lifecycle state.
type SandboxStatus string

const (
	SandboxStatusCreating  SandboxStatus = "creating"
	SandboxStatusRunning   SandboxStatus = "running"
	SandboxStatusPaused    SandboxStatus = "paused"
	SandboxStatusDestroyed SandboxStatus = "destroyed"
	SandboxStatusDead      SandboxStatus = "dead"
)

// NamespaceConfig selects which Linux namespace kinds a Namespace-isolated
// sandbox requests.
type NamespaceConfig struct {
	PID   bool
	Mount bool
	Net   bool
	UTS   bool
	IPC   bool
	User  bool
}

// SandboxConfig is the input to Sandbox Lifecycle's create().
type SandboxConfig struct {
	IsolationType    IsolationType
	Namespaces       NamespaceConfig // consulted when IsolationType == IsolationNamespace
	Image            string          // consulted when IsolationType == IsolationContainer
	Command          []string
	Environment      map[string]string
	WorkingDirectory string
	RootDir          string // consulted when IsolationType == IsolationChroot
	ResourceLimits   ResourceLimits
	SecurityPolicy   SecurityPolicy
	TenantID         TenantID
	CreatedBy        UserID
}

// Sandbox is owned exclusively by the Sandbox Lifecycle component; the
// isolation layer, container driver and resource enforcer address it only
// by SandboxID.
type Sandbox struct {
	SandboxID      SandboxID
	IsolationType  IsolationType
	Status         SandboxStatus
	ContainerID    ContainerID // may be synthetic for non-Container types
	ResourceLimits ResourceLimits
	SecurityPolicy SecurityPolicy
	CreatedAt      time.Time
	DestroyedAt    time.Time
	TenantID       TenantID
	CreatedBy      UserID
	ResourceUsage  ResourceUsage
}
