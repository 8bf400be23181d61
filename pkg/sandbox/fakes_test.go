package sandbox

import (
	"sync"

	"github.com/forgelabs/fabric/pkg/types"
)

// fakeEnforcer is an in-memory resources.Enforcer double.
type fakeEnforcer struct {
	mu     sync.Mutex
	limits map[types.SandboxID]types.ResourceLimits
}

func newFakeEnforcer() *fakeEnforcer {
	return &fakeEnforcer{limits: make(map[types.SandboxID]types.ResourceLimits)}
}

func (f *fakeEnforcer) Apply(sandboxID types.SandboxID, limits types.ResourceLimits) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits[sandboxID] = limits
	return nil
}

func (f *fakeEnforcer) Attach(sandboxID types.SandboxID, pid int) error { return nil }

func (f *fakeEnforcer) CurrentUsage(sandboxID types.SandboxID) (types.ResourceUsage, error) {
	return types.ResourceUsage{}, nil
}

func (f *fakeEnforcer) CheckViolations(sandboxID types.SandboxID) ([]types.ResourceViolation, error) {
	return nil, nil
}

func (f *fakeEnforcer) Remove(sandboxID types.SandboxID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.limits, sandboxID)
	return nil
}

// noopIsolator is an in-memory isolation.Isolator double that never
// rejects a policy.
type noopIsolator struct{}

func (noopIsolator) CreateNamespaceIsolation(config types.NamespaceConfig) (types.NamespaceID, error) {
	return types.NewNamespaceID(), nil
}

func (noopIsolator) ApplySecurityPolicy(sandboxID types.SandboxID, policy types.SecurityPolicy) error {
	return nil
}

func (noopIsolator) ApplySeccompPolicy(sandboxID types.SandboxID, profile types.SeccompProfile) error {
	return nil
}

func (noopIsolator) SetCapabilities(sandboxID types.SandboxID, capabilities []string) error {
	return nil
}

func (noopIsolator) DestroyIsolation(sandboxID types.SandboxID) error { return nil }
