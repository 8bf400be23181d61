// Package isolation implements the Isolation Layer (C4): namespace
// allocation, seccomp profile construction and enforcement, validation
// and per-sandbox recording of a Linux capability set, and the closed
// validation tables both draw from.
//
// Isolator is the platform-facing contract; LinuxIsolator drives real
// kernel primitives via golang.org/x/sys/unix, and the non-Linux build
// returns types.ErrIsolationNotSupported for every operation. Capability
// and syscall name validation, and the default seccomp profile, are
// platform independent and live in capabilities.go and syscalls.go.
package isolation
