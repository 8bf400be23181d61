package types

import "time"

// TaskStatus is the lifecycle state of a Task, as tracked by the scheduler.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether status is one the scheduler never transitions
// out of.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Task is created by the scheduler on admission. It owns its
// ExecutionRequest; Work borrows a Task by id.
type Task struct {
	TaskID           TaskID
	ExecutionID      ExecutionID // set by the Executor façade at admission, carried through for result correlation
	ExecutionRequest ExecutionRequest
	Priority         Priority
	Status           TaskStatus
	CreatedAt        time.Time
	ScheduledAt      time.Time // zero until a retry schedules a re-attempt
	Attempts         int
	LastError        string
}

// Work is created when the scheduler hands a Task to the worker pool, and
// destroyed (logically — the scheduler drops its reference) once a worker
// returns a result for it.
type Work struct {
	WorkID         WorkID
	Task           *Task
	AssignedWorker WorkerID
	StartedAt      time.Time
}
