package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forgelabs/fabric/pkg/types"
)

func TestNetworkLimiter_NoBucketAlwaysAllows(t *testing.T) {
	n := NewNetworkLimiter()
	assert.True(t, n.Allow(types.SandboxID("sb-1"), 1<<20))
}

func TestNetworkLimiter_SetThenRemove(t *testing.T) {
	n := NewNetworkLimiter()
	sandboxID := types.SandboxID("sb-1")

	n.Set(sandboxID, 1024)
	n.mu.Lock()
	_, ok := n.buckets[sandboxID]
	n.mu.Unlock()
	assert.True(t, ok)

	n.Remove(sandboxID)
	n.mu.Lock()
	_, ok = n.buckets[sandboxID]
	n.mu.Unlock()
	assert.False(t, ok)
}

func TestNetworkLimiter_ZeroRateClearsBucket(t *testing.T) {
	n := NewNetworkLimiter()
	sandboxID := types.SandboxID("sb-1")
	n.Set(sandboxID, 1024)
	n.Set(sandboxID, 0)

	n.mu.Lock()
	_, ok := n.buckets[sandboxID]
	n.mu.Unlock()
	assert.False(t, ok)
}

func TestNetworkLimiter_BlocksOverBurst(t *testing.T) {
	n := NewNetworkLimiter()
	sandboxID := types.SandboxID("sb-1")
	n.Set(sandboxID, 100)

	assert.True(t, n.Allow(sandboxID, 50))
	assert.False(t, n.Allow(sandboxID, 1<<20))
}
