package types

import "time"

// WorkerStatus is the current activity state of a pool worker.
type WorkerStatus string

const (
	WorkerStatusIdle     WorkerStatus = "idle"
	WorkerStatusBusy     WorkerStatus = "busy"
	WorkerStatusDraining WorkerStatus = "draining"
)

// Worker is a unit of parallel execution capacity. Invariant: a Busy
// worker always has a non-empty CurrentWorkID; a Worker holds at most one
// Work at a time.
type Worker struct {
	WorkerID       WorkerID
	Status         WorkerStatus
	CurrentWorkID  WorkID
	LastActivity   time.Time
	CreatedAt      time.Time
}

// PoolStatus summarizes worker pool occupancy, returned by pool_status().
type PoolStatus struct {
	Total int
	Idle  int
	Busy  int
}

// QueueStats summarizes scheduler queue occupancy, returned by queue_stats().
type QueueStats struct {
	Pending    int
	Running    int
	ByPriority map[Priority]int
}
