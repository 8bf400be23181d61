// Package sandbox owns the SandboxID->*types.Sandbox registry and the
// create/execute/destroy/pause/resume state machine that drives it. The
// isolation layer, container driver and resource enforcer never see a
// Sandbox; they operate on SandboxID and report back to this package.
package sandbox
