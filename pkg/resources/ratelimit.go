package resources

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/forgelabs/fabric/pkg/types"
)

// NetworkLimiter enforces a sandbox's network_bytes_sec limit with a
// token-bucket, used in front of any proxy or syscall interception point
// that moves bytes on the sandbox's behalf. It complements the cgroup
// enforcer, which has no network I/O controller on cgroup v1.
type NetworkLimiter struct {
	mu       sync.Mutex
	buckets  map[types.SandboxID]*rate.Limiter
}

// NewNetworkLimiter constructs an empty NetworkLimiter.
func NewNetworkLimiter() *NetworkLimiter {
	return &NetworkLimiter{buckets: make(map[types.SandboxID]*rate.Limiter)}
}

// Set installs or replaces the token bucket for a sandbox. A burst of one
// second's worth of bytes is allowed, matching the rate itself.
func (n *NetworkLimiter) Set(sandboxID types.SandboxID, bytesPerSec int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if bytesPerSec <= 0 {
		delete(n.buckets, sandboxID)
		return
	}
	n.buckets[sandboxID] = rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
}

// Remove discards the bucket for a sandbox.
func (n *NetworkLimiter) Remove(sandboxID types.SandboxID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.buckets, sandboxID)
}

// Allow reports whether n bytes may be sent now for a sandbox, consuming
// tokens if so. A sandbox with no configured bucket is always allowed.
func (n *NetworkLimiter) Allow(sandboxID types.SandboxID, bytes int) bool {
	n.mu.Lock()
	limiter, ok := n.buckets[sandboxID]
	n.mu.Unlock()
	if !ok {
		return true
	}
	return limiter.AllowN(now(), bytes)
}
