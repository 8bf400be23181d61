package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the taxonomy in spec §7. Callers distinguish kinds
// with errors.Is; errors.As unwraps the parameterized variants below.
var (
	// Admission
	ErrToolNotFound    = errors.New("tool not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrQueueFull       = errors.New("queue full")
	ErrPolicyRejected  = errors.New("policy rejected")

	// Scheduling
	ErrTaskNotFound      = errors.New("task not found")
	ErrAlreadyCancelled  = errors.New("already cancelled")

	// Pool
	ErrPoolFull       = errors.New("pool full")
	ErrWorkerPanic    = errors.New("worker panic")
	ErrWorkerStalled  = errors.New("worker stalled")

	// Sandbox
	ErrSandboxNotFound   = errors.New("sandbox not found")
	ErrSandboxNotRunning = errors.New("sandbox not running")
	ErrDestructionTimeout = errors.New("destruction timeout")

	// Isolation
	ErrSeccompError           = errors.New("seccomp error")
	ErrCapabilityError        = errors.New("capability error")
	ErrNamespaceError         = errors.New("namespace error")
	ErrIsolationNotSupported  = errors.New("isolation not supported")

	// Resource
	ErrInvalidResourceLimit = errors.New("invalid resource limit")

	// Execution
	ErrExecutionTimeout = errors.New("execution timeout")
	ErrCancelled        = errors.New("cancelled")

	// Security
	ErrPermissionDenied = errors.New("permission denied")
	ErrAuditRejected    = errors.New("audit rejected")

	// Persistence
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrAlreadyStored      = errors.New("already stored")
)

// SandboxCreationFailedError carries the step that failed during sandbox
// creation so callers can tell validation from driver errors from
// isolation errors without string matching.
type SandboxCreationFailedError struct {
	Step  string
	Cause error
}

func (e *SandboxCreationFailedError) Error() string {
	return fmt.Sprintf("sandbox creation failed at %s: %v", e.Step, e.Cause)
}

func (e *SandboxCreationFailedError) Unwrap() error { return e.Cause }

// NewSandboxCreationFailed wraps cause with the creation step it occurred at.
func NewSandboxCreationFailed(step string, cause error) error {
	return &SandboxCreationFailedError{Step: step, Cause: cause}
}

// ExitNonZeroError reports a workload that ran to completion but exited
// with a non-zero status.
type ExitNonZeroError struct {
	Code int
}

func (e *ExitNonZeroError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ResourceViolationError is the error-shaped view of a ResourceViolation,
// surfaced directly per the propagation policy for critical violations.
type ResourceViolationError struct {
	Resource ResourceType
	Limit    float64
	Used     float64
}

func (e *ResourceViolationError) Error() string {
	return fmt.Sprintf("resource violation: %s limit=%v used=%v", e.Resource, e.Limit, e.Used)
}

// Retriable reports whether err belongs to the propagation policy's
// "converted to retriable failure" bucket.
func Retriable(err error) bool {
	switch {
	case errors.Is(err, ErrExecutionTimeout),
		errors.Is(err, ErrWorkerPanic),
		errors.Is(err, ErrDestructionTimeout),
		errors.Is(err, ErrStorageUnavailable):
		return true
	default:
		return false
	}
}
