package isolation

import (
	"fmt"

	"github.com/forgelabs/fabric/pkg/types"
)

// validSyscalls is the closed linux/amd64 syscall-name table a seccomp
// rule or allow/block list may reference. It is not exhaustive of every
// syscall the kernel exposes, only of the ones a sandboxed workload could
// plausibly name in a policy; anything else is rejected rather than
// silently passed through to the BPF program untranslated.
var validSyscalls = map[string]bool{
	"read": true, "write": true, "open": true, "openat": true, "close": true,
	"stat": true, "fstat": true, "lstat": true, "poll": true, "lseek": true,
	"mmap": true, "mprotect": true, "munmap": true, "brk": true,
	"rt_sigaction": true, "rt_sigprocmask": true, "rt_sigreturn": true,
	"ioctl": true, "pread64": true, "pwrite64": true, "readv": true, "writev": true,
	"access": true, "pipe": true, "select": true, "sched_yield": true,
	"mremap": true, "msync": true, "mincore": true, "madvise": true,
	"dup": true, "dup2": true, "pause": true, "nanosleep": true,
	"getpid": true, "sendfile": true, "socket": true, "connect": true,
	"accept": true, "sendto": true, "recvfrom": true, "sendmsg": true,
	"recvmsg": true, "shutdown": true, "bind": true, "listen": true,
	"getsockname": true, "getpeername": true, "socketpair": true,
	"setsockopt": true, "getsockopt": true, "clone": true, "fork": true,
	"vfork": true, "execve": true, "exit": true, "wait4": true, "kill": true,
	"uname": true, "fcntl": true, "flock": true, "fsync": true, "fdatasync": true,
	"truncate": true, "ftruncate": true, "getdents": true, "getcwd": true,
	"chdir": true, "fchdir": true, "rename": true, "mkdir": true, "rmdir": true,
	"creat": true, "link": true, "unlink": true, "symlink": true, "readlink": true,
	"chmod": true, "fchmod": true, "chown": true, "fchown": true, "lchown": true,
	"umask": true, "gettimeofday": true, "getrlimit": true, "getrusage": true,
	"sysinfo": true, "times": true, "getuid": true, "getgid": true,
	"setuid": true, "setgid": true, "geteuid": true, "getegid": true,
	"setpgid": true, "getppid": true, "getpgrp": true, "setsid": true,
	"setreuid": true, "setregid": true, "getgroups": true, "setgroups": true,
	"setresuid": true, "getresuid": true, "setresgid": true, "getresgid": true,
	"getpgid": true, "capget": true, "capset": true, "statfs": true, "fstatfs": true,
	"arch_prctl": true, "gettid": true, "futex": true, "sched_setaffinity": true,
	"sched_getaffinity": true, "exit_group": true, "epoll_create": true,
	"epoll_ctl": true, "epoll_wait": true, "openat2": true, "prctl": true,
	"waitid": true, "pselect6": true, "ppoll": true, "set_tid_address": true,
	"clock_gettime": true, "clock_nanosleep": true, "clock_getres": true,

	"mount": true, "umount": true, "umount2": true, "reboot": true,
	"kexec_load": true, "kexec_file_load": true, "pivot_root": true,
	"ptrace": true, "swapon": true, "swapoff": true, "init_module": true,
	"delete_module": true, "acct": true, "settimeofday": true, "iopl": true,
	"ioperm": true, "create_module": true, "query_module": true,
	"nfsservctl": true, "setdomainname": true, "sethostname": true,
}

// defaultDeniedSyscalls are the calls the default seccomp profile denies.
// Everything else in validSyscalls is allowed by default.
var defaultDeniedSyscalls = []string{
	"mount", "umount", "umount2", "reboot", "kexec_load", "kexec_file_load",
}

// ValidateSyscalls rejects an empty name and any name outside the closed
// syscall table.
func ValidateSyscalls(names []string) error {
	for _, name := range names {
		if name == "" {
			return fmt.Errorf("%w: empty syscall name", types.ErrSeccompError)
		}
		if !validSyscalls[name] {
			return fmt.Errorf("%w: unknown syscall %q", types.ErrSeccompError, name)
		}
	}
	return nil
}

// DefaultSeccompProfile returns the profile applied when a sandbox enables
// seccomp without supplying its own: deny mount, umount, umount2, reboot,
// kexec_load and kexec_file_load, allow everything else.
func DefaultSeccompProfile() types.SeccompProfile {
	rules := make([]types.SeccompRule, 0, len(defaultDeniedSyscalls))
	for _, name := range defaultDeniedSyscalls {
		rules = append(rules, types.SeccompRule{Syscall: name, Action: types.SeccompDeny})
	}
	return types.SeccompProfile{
		Name:          "fabric-default",
		DefaultAction: types.SeccompAllow,
		Rules:         rules,
	}
}

// ValidateSeccompProfile rejects an unnamed profile (when seccomp is
// actually enabled) and any rule referencing an unknown syscall.
func ValidateSeccompProfile(profile types.SeccompProfile) error {
	if profile.Name == "" {
		return fmt.Errorf("%w: seccomp profile must be named", types.ErrSeccompError)
	}
	for _, rule := range profile.Rules {
		if err := ValidateSyscalls([]string{rule.Syscall}); err != nil {
			return err
		}
	}
	return nil
}
