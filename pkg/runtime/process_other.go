//go:build !linux

package runtime

import (
	"syscall"

	"github.com/forgelabs/fabric/pkg/types"
)

// isolationSysProcAttr has no namespace/chroot primitives to apply outside
// Linux; it only detaches the child into its own process group so signals
// sent to the driver don't also hit the workload.
func isolationSysProcAttr(config types.SandboxConfig) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
