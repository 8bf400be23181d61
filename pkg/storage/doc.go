// Package storage implements the Repository collaborator spec §6 treats as
// an external interface: tasks, execution results, audit records, sandbox
// metrics and violations, persisted one bucket per entity in BoltDB with
// JSON-encoded values, matching the teacher's BoltStore layout. Callers
// depend on the Repository interface, not *BoltStore, so a different
// backend can be swapped in without touching the scheduler, monitor or
// result manager.
package storage
