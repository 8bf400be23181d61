package isolation

import (
	"fmt"

	"github.com/forgelabs/fabric/pkg/types"
)

// validCapabilities is the closed set of Linux capability names a
// SecurityPolicy may list. Anything outside this set is rejected at
// validation time rather than passed through to the kernel.
var validCapabilities = map[string]bool{
	"CAP_CHOWN":            true,
	"CAP_DAC_OVERRIDE":     true,
	"CAP_DAC_READ_SEARCH":  true,
	"CAP_FOWNER":           true,
	"CAP_FSETID":           true,
	"CAP_KILL":             true,
	"CAP_SETGID":           true,
	"CAP_SETUID":           true,
	"CAP_SETPCAP":          true,
	"CAP_LINUX_IMMUTABLE":  true,
	"CAP_NET_BIND_SERVICE": true,
	"CAP_NET_BROADCAST":    true,
	"CAP_NET_ADMIN":        true,
	"CAP_NET_RAW":          true,
	"CAP_IPC_LOCK":         true,
	"CAP_IPC_OWNER":        true,
	"CAP_SYS_MODULE":       true,
	"CAP_SYS_RAWIO":        true,
	"CAP_SYS_CHROOT":       true,
	"CAP_SYS_PTRACE":       true,
	"CAP_SYS_PACCT":        true,
	"CAP_SYS_ADMIN":        true,
	"CAP_SYS_BOOT":         true,
	"CAP_SYS_NICE":         true,
	"CAP_SYS_RESOURCE":     true,
	"CAP_SYS_TIME":         true,
	"CAP_SYS_TTY_CONFIG":   true,
	"CAP_MKNOD":            true,
	"CAP_LEASE":            true,
	"CAP_AUDIT_WRITE":      true,
	"CAP_AUDIT_CONTROL":    true,
	"CAP_SETFCAP":          true,
	"CAP_MAC_OVERRIDE":     true,
	"CAP_MAC_ADMIN":        true,
	"CAP_SYSLOG":           true,
	"CAP_WAKE_ALARM":       true,
	"CAP_BLOCK_SUSPEND":    true,
	"CAP_AUDIT_READ":       true,
}

// ValidateCapabilities rejects any name outside the closed Linux
// capability set.
func ValidateCapabilities(names []string) error {
	for _, name := range names {
		if !validCapabilities[name] {
			return fmt.Errorf("%w: unknown capability %q", types.ErrCapabilityError, name)
		}
	}
	return nil
}
