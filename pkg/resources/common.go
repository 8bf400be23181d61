package resources

import (
	"time"

	"github.com/forgelabs/fabric/pkg/types"
)

func now() time.Time { return time.Now() }

func nsToDuration(ns uint64) time.Duration { return time.Duration(ns) * time.Nanosecond }

// checkViolations compares a usage sample against the set fields of limits
// and returns one ResourceViolation per exceeded dimension, shared by every
// Enforcer backend so the comparison semantics never drift between them.
func checkViolations(sandboxID types.SandboxID, limits types.ResourceLimits, usage types.ResourceUsage) []types.ResourceViolation {
	var violations []types.ResourceViolation
	ts := usage.SampledAt
	if ts.IsZero() {
		ts = now()
	}

	if limits.MemoryBytes != nil && usage.MemoryUsedBytes > *limits.MemoryBytes {
		violations = append(violations, types.ResourceViolation{
			SandboxID:    sandboxID,
			ResourceType: types.ResourceMemory,
			Limit:        float64(*limits.MemoryBytes),
			Used:         float64(usage.MemoryUsedBytes),
			Timestamp:    ts,
		})
	}
	if limits.CPUCores != nil && usage.CPUPercent > *limits.CPUCores*100 {
		violations = append(violations, types.ResourceViolation{
			SandboxID:    sandboxID,
			ResourceType: types.ResourceCPU,
			Limit:        *limits.CPUCores * 100,
			Used:         usage.CPUPercent,
			Timestamp:    ts,
		})
	}
	if limits.DiskBytes != nil {
		used := usage.DiskReadBytes + usage.DiskWriteBytes
		if used > *limits.DiskBytes {
			violations = append(violations, types.ResourceViolation{
				SandboxID:    sandboxID,
				ResourceType: types.ResourceDisk,
				Limit:        float64(*limits.DiskBytes),
				Used:         float64(used),
				Timestamp:    ts,
			})
		}
	}
	if limits.NetworkBytesSec != nil {
		used := usage.NetworkRxBytes + usage.NetworkTxBytes
		if used > *limits.NetworkBytesSec {
			violations = append(violations, types.ResourceViolation{
				SandboxID:    sandboxID,
				ResourceType: types.ResourceNetwork,
				Limit:        float64(*limits.NetworkBytesSec),
				Used:         float64(used),
				Timestamp:    ts,
			})
		}
	}
	if limits.ProcessCount != nil && usage.ProcessCount > *limits.ProcessCount {
		violations = append(violations, types.ResourceViolation{
			SandboxID:    sandboxID,
			ResourceType: types.ResourceProcess,
			Limit:        float64(*limits.ProcessCount),
			Used:         float64(usage.ProcessCount),
			Timestamp:    ts,
		})
	}
	if limits.FDCount != nil && usage.FDCount > *limits.FDCount {
		violations = append(violations, types.ResourceViolation{
			SandboxID:    sandboxID,
			ResourceType: types.ResourceFD,
			Limit:        float64(*limits.FDCount),
			Used:         float64(usage.FDCount),
			Timestamp:    ts,
		})
	}
	return violations
}
