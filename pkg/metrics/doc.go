// Package metrics exposes Prometheus instrumentation for the execution
// fabric: scheduler queue depth and throughput, worker pool occupancy,
// sandbox lifecycle latency, resource/security violation counts, and
// result-store writes. Handler returns the promhttp handler a caller
// mounts at /metrics; Timer is a small helper for histogram observations.
// RegisterComponent/GetHealth/GetReadiness provide a liveness/readiness
// surface for cmd/fabricd's HTTP endpoints.
package metrics
