// Package storage defines the Repository collaborator spec §6 describes —
// persistence of tasks, results, audit records, sandbox metrics and
// violations — and a BoltDB-backed reference implementation in the
// teacher's bucket-per-entity style.
package storage

import (
	"time"

	"github.com/forgelabs/fabric/pkg/types"
)

// Repository is the persistence collaborator the core tolerates being
// "eventually durable" but demands read-your-writes for the same logical
// session from. Every method is atomic for its single record.
type Repository interface {
	SaveTask(task *types.Task) error
	LoadTasksByStatus(status types.TaskStatus) ([]*types.Task, error)
	GetTask(id types.TaskID) (*types.Task, error)
	DeleteTask(id types.TaskID) error

	SaveExecutionResult(result *types.ExecutionResult) error
	GetExecutionResult(id types.ExecutionID) (*types.ExecutionResult, error)
	ListExecutionResults(filter types.ResultFilter) ([]*types.ExecutionResult, error)
	DeleteExecutionResultsOlderThan(cutoff time.Time) (int, error)

	SaveAudit(record *types.AuditRecord) error
	ListAudit(sandboxID types.SandboxID) ([]*types.AuditRecord, error)

	SaveSandboxMetric(sandboxID types.SandboxID, name string, value float64, unit string, ts time.Time) error

	SaveViolation(v *types.ResourceViolation) error
	SaveSecurityViolation(v *types.SecurityViolation) error
	ListViolations(sandboxID types.SandboxID) ([]*types.ResourceViolation, error)
	ListSecurityViolations(sandboxID types.SandboxID) ([]*types.SecurityViolation, error)
	PruneViolationsOlderThan(cutoff time.Time) (int, error)

	Close() error
}
