//go:build linux

package resources

import (
	"fmt"
	"sync"

	"github.com/containerd/cgroups"
	"github.com/rs/zerolog"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/forgelabs/fabric/pkg/log"
	"github.com/forgelabs/fabric/pkg/types"
)

const cgroupParent = "/fabric"

// CgroupEnforcer applies resource limits through a dedicated cgroup v1
// hierarchy per sandbox, one control group under /fabric keyed by sandbox
// ID. It is the production Enforcer on Linux; other platforms use
// rlimitEnforcer.
type CgroupEnforcer struct {
	mu     sync.Mutex
	groups map[types.SandboxID]cgroups.Cgroup
	limits map[types.SandboxID]trackedLimits
	logger zerolog.Logger
}

// NewCgroupEnforcer constructs a cgroup-backed Enforcer.
func NewCgroupEnforcer() *CgroupEnforcer {
	return &CgroupEnforcer{
		groups: make(map[types.SandboxID]cgroups.Cgroup),
		limits: make(map[types.SandboxID]trackedLimits),
		logger: log.WithComponent("cgroup_enforcer"),
	}
}

func groupPath(sandboxID types.SandboxID) cgroups.Path {
	return cgroups.StaticPath(fmt.Sprintf("%s/%s", cgroupParent, sandboxID))
}

func toLinuxResources(limits types.ResourceLimits) *specs.LinuxResources {
	res := &specs.LinuxResources{}
	if limits.MemoryBytes != nil {
		res.Memory = &specs.LinuxMemory{Limit: limits.MemoryBytes}
	}
	if limits.CPUCores != nil {
		period := uint64(100000)
		quota := int64(*limits.CPUCores * float64(period))
		res.CPU = &specs.LinuxCPU{Period: &period, Quota: &quota}
	}
	if limits.ProcessCount != nil {
		max := int64(*limits.ProcessCount)
		res.Pids = &specs.LinuxPids{Limit: max}
	}
	return res
}

func (e *CgroupEnforcer) Apply(sandboxID types.SandboxID, limits types.ResourceLimits) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	resources := toLinuxResources(limits)

	ctrl, ok := e.groups[sandboxID]
	if !ok {
		c, err := cgroups.New(cgroups.V1, groupPath(sandboxID), resources)
		if err != nil {
			return fmt.Errorf("%w: create cgroup for %s: %v", types.ErrInvalidResourceLimit, sandboxID, err)
		}
		e.groups[sandboxID] = c
		ctrl = c
	} else if err := ctrl.Update(resources); err != nil {
		return fmt.Errorf("%w: update cgroup for %s: %v", types.ErrInvalidResourceLimit, sandboxID, err)
	}

	e.limits[sandboxID] = trackedLimits{limits: limits}
	return nil
}

func (e *CgroupEnforcer) Attach(sandboxID types.SandboxID, pid int) error {
	e.mu.Lock()
	ctrl, ok := e.groups[sandboxID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("cgroup for sandbox %s not applied", sandboxID)
	}
	if err := ctrl.Add(cgroups.Process{Pid: pid}); err != nil {
		return fmt.Errorf("attach pid %d to sandbox %s: %w", pid, sandboxID, err)
	}
	return nil
}

func (e *CgroupEnforcer) CurrentUsage(sandboxID types.SandboxID) (types.ResourceUsage, error) {
	e.mu.Lock()
	ctrl, ok := e.groups[sandboxID]
	e.mu.Unlock()
	if !ok {
		return types.ResourceUsage{}, fmt.Errorf("cgroup for sandbox %s not applied", sandboxID)
	}

	stat, err := ctrl.Stat(cgroups.IgnoreNotExist)
	if err != nil {
		return types.ResourceUsage{}, fmt.Errorf("stat cgroup for %s: %w", sandboxID, err)
	}

	usage := types.ResourceUsage{SampledAt: now()}
	if stat.Memory != nil && stat.Memory.Usage != nil {
		usage.MemoryUsedBytes = int64(stat.Memory.Usage.Usage)
	}
	if stat.CPU != nil && stat.CPU.Usage != nil {
		usage.CPUTime = nsToDuration(stat.CPU.Usage.Total)
	}
	if stat.Pids != nil {
		usage.ProcessCount = int(stat.Pids.Current)
	}
	return usage, nil
}

func (e *CgroupEnforcer) CheckViolations(sandboxID types.SandboxID) ([]types.ResourceViolation, error) {
	e.mu.Lock()
	tracked, ok := e.limits[sandboxID]
	e.mu.Unlock()
	if !ok {
		return nil, nil
	}

	usage, err := e.CurrentUsage(sandboxID)
	if err != nil {
		return nil, err
	}

	return checkViolations(sandboxID, tracked.limits, usage), nil
}

func (e *CgroupEnforcer) Remove(sandboxID types.SandboxID) error {
	e.mu.Lock()
	ctrl, ok := e.groups[sandboxID]
	delete(e.groups, sandboxID)
	delete(e.limits, sandboxID)
	e.mu.Unlock()
	if !ok {
		return nil
	}
	if err := ctrl.Delete(); err != nil {
		e.logger.Errorf("delete cgroup for %s: %v", sandboxID, err)
		return fmt.Errorf("delete cgroup for %s: %w", sandboxID, err)
	}
	return nil
}
