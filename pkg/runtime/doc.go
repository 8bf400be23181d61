// Package runtime implements the Container Driver (C6): a replaceable
// backend that pulls images, creates/starts/stops/deletes containers,
// execs commands, streams logs and stats, and pauses/resumes.
//
// ContainerdDriver backs Container-isolated sandboxes via containerd.
// ProcessDriver backs Process, Chroot and None isolation by spawning
// os/exec children directly, applying namespace and chroot isolation
// through SysProcAttr on Linux. Both implement the Driver interface and
// are safe for concurrent use from multiple workers.
package runtime
