//go:build linux

package isolation

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/forgelabs/fabric/pkg/log"
	"github.com/forgelabs/fabric/pkg/types"
)

// LinuxIsolator drives real kernel isolation primitives: namespace
// unsharing, seccomp-bpf filters and capability sets.
type LinuxIsolator struct {
	mu       sync.Mutex
	profiles map[types.SandboxID]types.SeccompProfile
	caps     map[types.SandboxID][]string
	nsHandle map[types.NamespaceID]types.NamespaceConfig
}

// New constructs the Linux Isolator.
func New() *LinuxIsolator {
	return &LinuxIsolator{
		profiles: make(map[types.SandboxID]types.SeccompProfile),
		caps:     make(map[types.SandboxID][]string),
		nsHandle: make(map[types.NamespaceID]types.NamespaceConfig),
	}
}

func namespaceFlags(config types.NamespaceConfig) uintptr {
	var flags uintptr
	if config.PID {
		flags |= unix.CLONE_NEWPID
	}
	if config.Mount {
		flags |= unix.CLONE_NEWNS
	}
	if config.Net {
		flags |= unix.CLONE_NEWNET
	}
	if config.UTS {
		flags |= unix.CLONE_NEWUTS
	}
	if config.IPC {
		flags |= unix.CLONE_NEWIPC
	}
	if config.User {
		flags |= unix.CLONE_NEWUSER
	}
	return flags
}

// CreateNamespaceIsolation unshares the requested namespace kinds for the
// calling OS thread. Callers that need this applied to a spawned child
// instead should pass CloneFlags(config) via SysProcAttr.Cloneflags, as
// pkg/runtime does; this method exists for in-process isolation and tests.
func (l *LinuxIsolator) CreateNamespaceIsolation(config types.NamespaceConfig) (types.NamespaceID, error) {
	flags := namespaceFlags(config)
	if flags == 0 {
		return "", fmt.Errorf("%w: no namespace kinds requested", types.ErrNamespaceError)
	}

	if err := unix.Unshare(int(flags)); err != nil {
		return "", fmt.Errorf("%w: unshare(%#x): %v", types.ErrNamespaceError, flags, err)
	}

	id := types.NewNamespaceID()
	l.mu.Lock()
	l.nsHandle[id] = config
	l.mu.Unlock()
	return id, nil
}

// CloneFlags returns the raw Cloneflags value for config, for callers
// spawning a child process directly via os/exec.
func CloneFlags(config types.NamespaceConfig) uintptr {
	return namespaceFlags(config)
}

func (l *LinuxIsolator) ApplySecurityPolicy(sandboxID types.SandboxID, policy types.SecurityPolicy) error {
	if err := ValidateSecurityPolicy(policy); err != nil {
		return err
	}
	if IsHighlyRestrictive(policy) {
		log.WithSandboxID(string(sandboxID)).Warn().Msg("security policy denies network, filesystem and process creation simultaneously")
	}

	if err := l.SetCapabilities(sandboxID, policy.Capabilities); err != nil {
		return err
	}

	profile := DefaultSeccompProfile()
	if policy.SeccompProfile != "" {
		profile.Name = policy.SeccompProfile
	}
	if policy.IsAllowList() {
		profile.DefaultAction = types.SeccompDeny
		profile.Rules = nil
		for _, name := range policy.AllowSystemCalls {
			profile.Rules = append(profile.Rules, types.SeccompRule{Syscall: name, Action: types.SeccompAllow})
		}
	} else {
		for _, name := range policy.BlockedSystemCalls {
			profile.Rules = append(profile.Rules, types.SeccompRule{Syscall: name, Action: types.SeccompDeny})
		}
	}
	return l.ApplySeccompPolicy(sandboxID, profile)
}

func (l *LinuxIsolator) ApplySeccompPolicy(sandboxID types.SandboxID, profile types.SeccompProfile) error {
	if err := ValidateSeccompProfile(profile); err != nil {
		return err
	}
	l.mu.Lock()
	l.profiles[sandboxID] = profile
	l.mu.Unlock()
	return nil
}

// ApplyToCurrentThread installs sandboxID's previously applied seccomp
// profile on the calling OS thread. Must run after fork, before exec, on
// the thread that will become the sandboxed process.
func (l *LinuxIsolator) ApplyToCurrentThread(sandboxID types.SandboxID) error {
	l.mu.Lock()
	profile, ok := l.profiles[sandboxID]
	l.mu.Unlock()
	if !ok {
		profile = DefaultSeccompProfile()
	}
	return applySeccompFilter(profile)
}

func (l *LinuxIsolator) SetCapabilities(sandboxID types.SandboxID, capabilities []string) error {
	if err := ValidateCapabilities(capabilities); err != nil {
		return err
	}
	l.mu.Lock()
	l.caps[sandboxID] = capabilities
	l.mu.Unlock()
	return nil
}

func (l *LinuxIsolator) DestroyIsolation(sandboxID types.SandboxID) error {
	l.mu.Lock()
	delete(l.profiles, sandboxID)
	delete(l.caps, sandboxID)
	l.mu.Unlock()
	return nil
}
