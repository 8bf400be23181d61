package resources

import (
	"fmt"

	"github.com/forgelabs/fabric/pkg/types"
)

// Platform sanity ceilings from spec §4.4. Configurable in principle; kept
// as constants since no caller has asked to override them yet.
const (
	maxMemoryBytes  = 16 << 30 // 16 GiB
	maxCPUCores     = 32.0
	maxDiskBytes    = 1 << 40 // 1 TiB
	maxProcessCount = 10_000
	maxFDCount      = 1_000_000
)

// Validate rejects a ResourceLimits whose set fields are zero (an explicit
// "no resource" request, never a valid limit) or exceed the platform
// ceiling. A nil field is left untouched by the caller and resolved to a
// configured default elsewhere.
func Validate(limits types.ResourceLimits) error {
	if limits.MemoryBytes != nil {
		if *limits.MemoryBytes == 0 {
			return fmt.Errorf("%w: memory limit must not be zero", types.ErrInvalidResourceLimit)
		}
		if *limits.MemoryBytes > maxMemoryBytes {
			return fmt.Errorf("%w: memory limit %d exceeds ceiling %d", types.ErrInvalidResourceLimit, *limits.MemoryBytes, int64(maxMemoryBytes))
		}
	}
	if limits.CPUCores != nil {
		if *limits.CPUCores <= 0 {
			return fmt.Errorf("%w: cpu limit must be positive", types.ErrInvalidResourceLimit)
		}
		if *limits.CPUCores > maxCPUCores {
			return fmt.Errorf("%w: cpu limit %v exceeds ceiling %v", types.ErrInvalidResourceLimit, *limits.CPUCores, maxCPUCores)
		}
	}
	if limits.DiskBytes != nil {
		if *limits.DiskBytes == 0 {
			return fmt.Errorf("%w: disk limit must not be zero", types.ErrInvalidResourceLimit)
		}
		if *limits.DiskBytes > maxDiskBytes {
			return fmt.Errorf("%w: disk limit %d exceeds ceiling %d", types.ErrInvalidResourceLimit, *limits.DiskBytes, int64(maxDiskBytes))
		}
	}
	if limits.ProcessCount != nil {
		if *limits.ProcessCount == 0 {
			return fmt.Errorf("%w: process limit must not be zero", types.ErrInvalidResourceLimit)
		}
		if *limits.ProcessCount > maxProcessCount {
			return fmt.Errorf("%w: process limit %d exceeds ceiling %d", types.ErrInvalidResourceLimit, *limits.ProcessCount, maxProcessCount)
		}
	}
	if limits.FDCount != nil {
		if *limits.FDCount == 0 {
			return fmt.Errorf("%w: fd limit must not be zero", types.ErrInvalidResourceLimit)
		}
		if *limits.FDCount > maxFDCount {
			return fmt.Errorf("%w: fd limit %d exceeds ceiling %d", types.ErrInvalidResourceLimit, *limits.FDCount, maxFDCount)
		}
	}
	if limits.NetworkBytesSec != nil && *limits.NetworkBytesSec == 0 {
		return fmt.Errorf("%w: network limit must not be zero", types.ErrInvalidResourceLimit)
	}
	if limits.WallClockLimit != nil && *limits.WallClockLimit <= 0 {
		return fmt.Errorf("%w: wall clock limit must be positive", types.ErrInvalidResourceLimit)
	}
	return nil
}

// WithDefaults fills every unset field of limits from defaults, leaving
// explicit values untouched. Used when a SandboxConfig's ResourceLimits
// only overrides a subset of fields.
func WithDefaults(limits types.ResourceLimits, defaults types.ResourceLimits) types.ResourceLimits {
	out := limits
	if out.MemoryBytes == nil {
		out.MemoryBytes = defaults.MemoryBytes
	}
	if out.CPUCores == nil {
		out.CPUCores = defaults.CPUCores
	}
	if out.DiskBytes == nil {
		out.DiskBytes = defaults.DiskBytes
	}
	if out.NetworkBytesSec == nil {
		out.NetworkBytesSec = defaults.NetworkBytesSec
	}
	if out.ProcessCount == nil {
		out.ProcessCount = defaults.ProcessCount
	}
	if out.FDCount == nil {
		out.FDCount = defaults.FDCount
	}
	if out.WallClockLimit == nil {
		out.WallClockLimit = defaults.WallClockLimit
	}
	return out
}
