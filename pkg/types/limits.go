package types

import "time"

// ResourceLimits caps a sandbox's consumption. A nil pointer field means
// "inherit platform default"; an explicit zero value is always rejected by
// validation (pkg/resources).
type ResourceLimits struct {
	MemoryBytes     *int64
	CPUCores        *float64
	DiskBytes       *int64
	NetworkBytesSec *int64
	ProcessCount    *int
	FDCount         *int
	WallClockLimit  *time.Duration
}

// ResourceUsage is a rolling sample of a sandbox's live consumption,
// produced by the resource-limit enforcer's sampler.
type ResourceUsage struct {
	MemoryUsedBytes  int64
	CPUTime          time.Duration
	CPUPercent       float64
	DiskReadBytes    int64
	DiskWriteBytes   int64
	NetworkRxBytes   int64
	NetworkTxBytes   int64
	ProcessCount     int
	FDCount          int
	SampledAt        time.Time
}

// ResourceType names the dimension a ResourceViolation was recorded against.
type ResourceType string

const (
	ResourceMemory  ResourceType = "memory"
	ResourceCPU     ResourceType = "cpu"
	ResourceDisk    ResourceType = "disk"
	ResourceNetwork ResourceType = "network"
	ResourceProcess ResourceType = "process"
	ResourceFD      ResourceType = "fd"
)

// ResourceViolation records a sample where usage exceeded a configured limit.
type ResourceViolation struct {
	SandboxID    SandboxID
	ResourceType ResourceType
	Limit        float64
	Used         float64
	Timestamp    time.Time
}
