//go:build linux

package isolation

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/forgelabs/fabric/pkg/types"
)

// Classic BPF opcodes used to build a seccomp filter program. Mirrors the
// constants <linux/bpf_common.h> and <linux/seccomp.h> define; x/sys/unix
// exposes the syscall wiring but not these symbolic names.
const (
	bpfLd  = 0x00
	bpfW   = 0x00
	bpfAbs = 0x20
	bpfJmp = 0x05
	bpfJeq = 0x10
	bpfRet = 0x06
	bpfK   = 0x00

	seccompRetAllow = 0x7fff0000
	seccompRetKill  = 0x00000000

	// offsetof(struct seccomp_data, nr) on every architecture x/sys/unix
	// targets: the syscall number is the first 4-byte field.
	seccompDataNROffset = 0
)

func bpfStmt(code uint16, k uint32) unix.SockFilter {
	return unix.SockFilter{Code: code, Jt: 0, Jf: 0, K: k}
}

func bpfJump(code uint16, k uint32, jt, jf uint8) unix.SockFilter {
	return unix.SockFilter{Code: code, Jt: jt, Jf: jf, K: k}
}

// buildSeccompFilter compiles profile into a classic BPF program: load the
// syscall number, compare against each denied syscall in order (first
// match wins, matching SeccompProfile's documented semantics), fall
// through to the default action.
func buildSeccompFilter(profile types.SeccompProfile) ([]unix.SockFilter, error) {
	prog := []unix.SockFilter{
		bpfStmt(bpfLd|bpfW|bpfAbs, seccompDataNROffset),
	}

	for _, rule := range profile.Rules {
		nr, ok := syscallNumber(rule.Syscall)
		if !ok {
			return nil, fmt.Errorf("%w: no syscall number for %q on this platform", types.ErrSeccompError, rule.Syscall)
		}
		prog = append(prog, bpfJump(bpfJmp|bpfJeq|bpfK, uint32(nr), 0, 1))
		prog = append(prog, bpfStmt(bpfRet|bpfK, actionToRet(rule.Action)))
	}

	prog = append(prog, bpfStmt(bpfRet|bpfK, actionToRet(profile.DefaultAction)))
	return prog, nil
}

func actionToRet(action types.SeccompAction) uint32 {
	switch action {
	case types.SeccompDeny, types.SeccompKill:
		return seccompRetKill
	default:
		return seccompRetAllow
	}
}

// applySeccompFilter loads profile into the calling thread via
// PR_SET_NO_NEW_PRIVS + PR_SET_SECCOMP, the same sequence every
// unprivileged seccomp caller must follow.
func applySeccompFilter(profile types.SeccompProfile) error {
	prog, err := buildSeccompFilter(profile)
	if err != nil {
		return err
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("%w: PR_SET_NO_NEW_PRIVS: %v", types.ErrSeccompError, err)
	}

	fprog := unix.SockFprog{
		Len:    uint16(len(prog)),
		Filter: &prog[0],
	}

	const seccompModeFilter = 2
	if err := unix.Prctl(unix.PR_SET_SECCOMP, seccompModeFilter, uintptr(unsafe.Pointer(&fprog)), 0, 0); err != nil {
		return fmt.Errorf("%w: PR_SET_SECCOMP: %v", types.ErrSeccompError, err)
	}
	return nil
}
