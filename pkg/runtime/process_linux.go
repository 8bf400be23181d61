//go:build linux

package runtime

import (
	"syscall"

	"github.com/forgelabs/fabric/pkg/isolation"
	"github.com/forgelabs/fabric/pkg/types"
)

// isolationSysProcAttr builds the SysProcAttr that applies a sandbox's
// namespace and chroot isolation to a spawned child, before exec.
func isolationSysProcAttr(config types.SandboxConfig) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{Setpgid: true}
	if config.IsolationType == types.IsolationNamespace || config.IsolationType == types.IsolationProcess {
		attr.Cloneflags = isolation.CloneFlags(config.Namespaces)
	}
	if config.IsolationType == types.IsolationChroot && config.RootDir != "" {
		attr.Chroot = config.RootDir
	}
	return attr
}
