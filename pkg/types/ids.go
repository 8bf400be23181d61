package types

import "github.com/google/uuid"

// ToolID identifies a tool registered with the external Registry collaborator.
type ToolID string

// TaskID identifies a scheduled unit of work.
type TaskID string

// WorkID identifies a Task once it has been handed to the worker pool.
type WorkID string

// SandboxID identifies an isolated execution environment.
type SandboxID string

// ContainerID identifies a container-runtime-level resource. May be
// synthetic for non-Container isolation types.
type ContainerID string

// ExecutionID identifies one call through the Executor façade. Distinct
// from TaskID: the façade owns the ExecutionID<->TaskID mapping.
type ExecutionID string

// UserID identifies the end user on whose behalf an execution runs.
type UserID string

// TenantID identifies the tenant that owns an execution/sandbox.
type TenantID string

// WorkerID identifies a worker pool slot.
type WorkerID string

// NamespaceID identifies an allocated Linux namespace set.
type NamespaceID string

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// NewTaskID, NewWorkID, ... mint fresh opaque identifiers with a readable
// prefix. IDs are compared only for byte-equality within their own type;
// never across types.
func NewTaskID() TaskID             { return TaskID(newID("task")) }
func NewWorkID() WorkID             { return WorkID(newID("work")) }
func NewSandboxID() SandboxID       { return SandboxID(newID("sbx")) }
func NewExecutionID() ExecutionID   { return ExecutionID(newID("exec")) }
func NewWorkerID() WorkerID         { return WorkerID(newID("worker")) }
func NewNamespaceID() NamespaceID   { return NamespaceID(newID("ns")) }
func NewContainerID() ContainerID   { return ContainerID(newID("ctr")) }
