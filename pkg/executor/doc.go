// Package executor implements the Executor Façade (C11, spec §4.7): the
// single in-process entry point callers use (execute/execute_async/
// status/cancel/list/result/metrics). It owns the ExecutionID<->TaskID
// mapping the scheduler and worker pool never see, wires the scheduler's
// pull channel to the worker pool, and enforces parent-before-child
// result visibility ordering.
package executor
