// Package log provides structured logging for the execution fabric on top
// of zerolog: a package-level Logger initialized once via Init, and
// component-scoped child loggers (WithComponent, WithTaskID, WithSandboxID,
// WithWorkerID, WithTenantID) used throughout the scheduler, worker pool,
// sandbox lifecycle and monitor.
package log
