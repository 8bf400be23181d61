package isolation

import (
	"fmt"

	"github.com/forgelabs/fabric/pkg/types"
)

// Isolator implements the Isolation Layer's contract (spec §4.5):
// namespace allocation, security-policy and seccomp-policy application,
// capability installation, validation, and teardown.
type Isolator interface {
	// CreateNamespaceIsolation unshares the requested namespace kinds and
	// returns a handle for later teardown. Partial failure rolls back any
	// namespace already unshared.
	CreateNamespaceIsolation(config types.NamespaceConfig) (types.NamespaceID, error)

	// ApplySecurityPolicy validates policy and records its capabilities and
	// a seccomp profile for sandboxID. With AllowSystemCalls set, the
	// profile allows only those calls; otherwise it is the default profile
	// plus BlockedSystemCalls as deny rules. A non-empty SeccompProfile
	// names the resulting profile; no stored profile is looked up by it.
	ApplySecurityPolicy(sandboxID types.SandboxID, policy types.SecurityPolicy) error

	// ApplySeccompPolicy installs profile for sandboxID independent of
	// ApplySecurityPolicy, for callers that manage seccomp separately.
	ApplySeccompPolicy(sandboxID types.SandboxID, profile types.SeccompProfile) error

	// SetCapabilities validates the listed capabilities and records them
	// for sandboxID. LinuxIsolator does not itself change any process's
	// capability sets; no capability is dropped by this call.
	SetCapabilities(sandboxID types.SandboxID, capabilities []string) error

	// DestroyIsolation releases any state CreateNamespaceIsolation or the
	// Apply* methods allocated for sandboxID. Idempotent.
	DestroyIsolation(sandboxID types.SandboxID) error
}

// ValidateSecurityPolicy rejects an invalid policy before any isolation
// primitive is touched: unknown capabilities, or empty or unknown syscall
// names in either syscall list. An empty SeccompProfile is accepted here:
// it selects the default profile, and ValidateSeccompProfile rejects an
// unnamed profile when one is applied. A policy that denies
// network, filesystem and process-creation simultaneously is legal but
// logged by the caller as unusually restrictive — this function does not
// reject it.
func ValidateSecurityPolicy(policy types.SecurityPolicy) error {
	if err := ValidateCapabilities(policy.Capabilities); err != nil {
		return err
	}
	if err := ValidateSyscalls(policy.AllowSystemCalls); err != nil {
		return err
	}
	if err := ValidateSyscalls(policy.BlockedSystemCalls); err != nil {
		return err
	}
	if policy.SeccompProfile == "" && !policy.IsAllowList() && len(policy.BlockedSystemCalls) == 0 {
		// No explicit syscall policy at all: the isolation layer will
		// apply DefaultSeccompProfile, nothing to validate here.
		return nil
	}
	return nil
}

// IsHighlyRestrictive reports whether a policy denies network, filesystem
// and process-creation access simultaneously. Still legal; callers log a
// warning rather than reject.
func IsHighlyRestrictive(policy types.SecurityPolicy) bool {
	return !policy.AllowNetworkAccess && !policy.AllowFileSystemAccess && !policy.AllowProcessCreation
}

func wrapIsolationErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("isolation: %s: %w", op, err)
}
