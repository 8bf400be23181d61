// Package resources implements the Resource-Limit Enforcer (C3): limit
// validation, cgroup-backed application, a sampler that
// reports ResourceUsage and flags ResourceViolations, and a token-bucket
// fallback for network bandwidth where no native queueing discipline is
// wired in.
//
// Validate and WithDefaults operate on a types.ResourceLimits before it
// reaches an Enforcer. Enforcer is implemented by CgroupEnforcer on Linux
// (cgroup v1, one control group per sandbox) and by a no-op tracking
// fallback elsewhere. Sampler polls an Enforcer on an interval, keeps a
// running mean of CPU usage per sandbox and turns CheckViolations results
// into stored records and broker events.
package resources
