package isolation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forgelabs/fabric/pkg/types"
)

func TestValidateSecurityPolicy_RejectsUnknownCapability(t *testing.T) {
	policy := types.SecurityPolicy{Capabilities: []string{"CAP_NOT_REAL"}}
	assert.Error(t, ValidateSecurityPolicy(policy))
}

func TestValidateSecurityPolicy_RejectsUnknownSyscall(t *testing.T) {
	policy := types.SecurityPolicy{BlockedSystemCalls: []string{"nope"}}
	assert.Error(t, ValidateSecurityPolicy(policy))
}

func TestValidateSecurityPolicy_AcceptsEmptyPolicy(t *testing.T) {
	assert.NoError(t, ValidateSecurityPolicy(types.SecurityPolicy{}))
}

func TestIsHighlyRestrictive(t *testing.T) {
	assert.True(t, IsHighlyRestrictive(types.SecurityPolicy{}))
	assert.False(t, IsHighlyRestrictive(types.SecurityPolicy{AllowNetworkAccess: true}))
}
