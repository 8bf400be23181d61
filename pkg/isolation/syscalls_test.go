package isolation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgelabs/fabric/pkg/types"
)

func TestValidateSyscalls_EmptyNameRejected(t *testing.T) {
	err := ValidateSyscalls([]string{""})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrSeccompError)
}

func TestValidateSyscalls_UnknownNameRejected(t *testing.T) {
	err := ValidateSyscalls([]string{"totally_not_a_syscall"})
	assert.Error(t, err)
}

func TestValidateSyscalls_KnownNamesAccepted(t *testing.T) {
	assert.NoError(t, ValidateSyscalls([]string{"read", "write", "openat"}))
}

func TestDefaultSeccompProfile_DeniesDangerousSyscalls(t *testing.T) {
	profile := DefaultSeccompProfile()
	assert.Equal(t, types.SeccompAllow, profile.DefaultAction)

	denied := make(map[string]bool, len(profile.Rules))
	for _, rule := range profile.Rules {
		assert.Equal(t, types.SeccompDeny, rule.Action)
		denied[rule.Syscall] = true
	}

	for _, name := range []string{"mount", "umount", "umount2", "reboot", "kexec_load", "kexec_file_load"} {
		assert.True(t, denied[name], "expected %s to be denied by default", name)
	}
}

func TestValidateSeccompProfile_RequiresName(t *testing.T) {
	profile := types.SeccompProfile{DefaultAction: types.SeccompAllow}
	err := ValidateSeccompProfile(profile)
	assert.Error(t, err)
}

func TestValidateSeccompProfile_RejectsUnknownSyscallInRule(t *testing.T) {
	profile := types.SeccompProfile{
		Name:          "custom",
		DefaultAction: types.SeccompAllow,
		Rules:         []types.SeccompRule{{Syscall: "not_a_syscall", Action: types.SeccompDeny}},
	}
	assert.Error(t, ValidateSeccompProfile(profile))
}
