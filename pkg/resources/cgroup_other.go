//go:build !linux

package resources

import (
	"sync"

	"github.com/forgelabs/fabric/pkg/types"
)

// rlimitEnforcer is the non-Linux fallback Enforcer. It has no cgroup
// controller to drive, so it only tracks declared limits and reports
// whatever usage the caller last recorded via Observe; it never actively
// constrains a process. Platforms that need real enforcement must run on
// Linux.
type rlimitEnforcer struct {
	mu     sync.Mutex
	limits map[types.SandboxID]trackedLimits
	usage  map[types.SandboxID]types.ResourceUsage
}

// NewCgroupEnforcer is named to match the Linux constructor so callers can
// build the enforcer without a build-tagged switch of their own.
func NewCgroupEnforcer() Enforcer {
	return &rlimitEnforcer{
		limits: make(map[types.SandboxID]trackedLimits),
		usage:  make(map[types.SandboxID]types.ResourceUsage),
	}
}

func (e *rlimitEnforcer) Apply(sandboxID types.SandboxID, limits types.ResourceLimits) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limits[sandboxID] = trackedLimits{limits: limits, appliedAt: now()}
	return nil
}

func (e *rlimitEnforcer) Attach(_ types.SandboxID, _ int) error {
	return nil
}

// Observe records a usage sample obtained by some other means (e.g. the
// process driver polling its own child). Exported for callers on this
// platform that have no cgroup stat source to poll instead.
func (e *rlimitEnforcer) Observe(sandboxID types.SandboxID, usage types.ResourceUsage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usage[sandboxID] = usage
}

func (e *rlimitEnforcer) CurrentUsage(sandboxID types.SandboxID) (types.ResourceUsage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usage[sandboxID], nil
}

func (e *rlimitEnforcer) CheckViolations(sandboxID types.SandboxID) ([]types.ResourceViolation, error) {
	e.mu.Lock()
	tracked, ok := e.limits[sandboxID]
	usage := e.usage[sandboxID]
	e.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return checkViolations(sandboxID, tracked.limits, usage), nil
}

func (e *rlimitEnforcer) Remove(sandboxID types.SandboxID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.limits, sandboxID)
	delete(e.usage, sandboxID)
	return nil
}
