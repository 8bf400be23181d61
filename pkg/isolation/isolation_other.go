//go:build !linux

package isolation

import "github.com/forgelabs/fabric/pkg/types"

// OtherIsolator is the fallback Isolator on platforms without the Linux
// namespace/seccomp/capability primitives. Every operation reports
// ErrIsolationNotSupported; this is the declared-unsupported-at-config-time
// behavior for isolation modes this platform cannot honor.
type OtherIsolator struct{}

// New constructs the fallback Isolator.
func New() *OtherIsolator { return &OtherIsolator{} }

func (o *OtherIsolator) CreateNamespaceIsolation(types.NamespaceConfig) (types.NamespaceID, error) {
	return "", types.ErrIsolationNotSupported
}

func (o *OtherIsolator) ApplySecurityPolicy(types.SandboxID, types.SecurityPolicy) error {
	return types.ErrIsolationNotSupported
}

func (o *OtherIsolator) ApplySeccompPolicy(types.SandboxID, types.SeccompProfile) error {
	return types.ErrIsolationNotSupported
}

func (o *OtherIsolator) SetCapabilities(types.SandboxID, []string) error {
	return types.ErrIsolationNotSupported
}

func (o *OtherIsolator) DestroyIsolation(types.SandboxID) error {
	return types.ErrIsolationNotSupported
}
