// Package monitor implements the C10 component (spec §4.9/§4.10):
// lifecycle and violation recording, audit records with suspicious-pattern
// detection, and the aggregate stats views consumers read through
// get_metrics/get_sandbox_metrics/get_system_metrics. Monitor is an
// observation sink — no other package's business logic depends on it, but
// pkg/sandbox depends on the narrow Auditor interface it implements, so
// Monitor can record creation and execution events without pkg/sandbox
// ever importing this package.
package monitor
