/*
Package types defines the core data structures shared by every component of
the execution fabric: identifiers, execution requests, tasks, work items,
workers, sandboxes, resource limits, security policy, results and audit
records.

# Architecture

The types package is the foundation of the fabric's data model. It defines:

  - Opaque, distinctly-typed identifiers (ToolID, TaskID, WorkID, SandboxID, ...)
  - Execution requests and their lifecycle (Task, Work)
  - Worker bookkeeping (Worker, WorkerStatus)
  - Sandbox configuration and state (Sandbox, ResourceLimits, SecurityPolicy)
  - Execution outcomes (ExecutionResult, SecurityViolation, ResourceViolation)
  - Tool descriptors handed back by the registry collaborator

All types are designed to be:
  - Serializable (JSON)
  - Immutable where the spec requires it (ExecutionRequest is never mutated
    after admission)
  - Self-documenting (clear field names, minimal comments)

# Thread Safety

Types in this package carry no internal synchronization. Mutation of shared
instances (Worker, Sandbox) must go through the owning component's registry,
which serializes access with its own locking.

# See Also

  - pkg/scheduler for the task queue built on Task/Work
  - pkg/sandbox for the lifecycle state machine built on Sandbox
  - pkg/resources and pkg/isolation for ResourceLimits/SecurityPolicy enforcement
*/
package types
