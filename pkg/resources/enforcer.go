package resources

import (
	"time"

	"github.com/forgelabs/fabric/pkg/types"
)

// Enforcer applies a ResourceLimits to a running sandbox, reports its live
// usage and flags violations. Concrete backends are platform specific: the
// Linux implementation drives cgroups; elsewhere rlimitEnforcer only
// records the declared limits and the usage it is given, and enforces
// nothing.
type Enforcer interface {
	// Apply creates or updates the limit enforcement for a sandbox. Called
	// once at sandbox creation and again on any limit change.
	Apply(sandboxID types.SandboxID, limits types.ResourceLimits) error

	// Attach joins a process into the sandbox's enforcement group. Called
	// once the sandbox's root process exists (container PID or exec'd
	// process), after Apply.
	Attach(sandboxID types.SandboxID, pid int) error

	// CurrentUsage returns the most recent sample for a sandbox.
	CurrentUsage(sandboxID types.SandboxID) (types.ResourceUsage, error)

	// CheckViolations compares the current sample against the limits passed
	// to Apply and returns one ResourceViolation per exceeded dimension.
	CheckViolations(sandboxID types.SandboxID) ([]types.ResourceViolation, error)

	// Remove tears down any enforcement state for a sandbox. Safe to call
	// on a sandbox that was never Applied.
	Remove(sandboxID types.SandboxID) error
}

// trackedLimits records the limits applied to a sandbox and when they
// were applied, so CheckViolations can compare a sample against them.
type trackedLimits struct {
	limits    types.ResourceLimits
	appliedAt time.Time
}
