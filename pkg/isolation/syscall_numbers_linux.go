//go:build linux

package isolation

// amd64SyscallNumbers maps the syscall names in validSyscalls to their
// linux/amd64 syscall number, per the kernel's syscall_64.tbl. Only the
// subset actually reachable through a SeccompRule needs a number; names
// absent here can still pass ValidateSyscalls (for allow/block lists
// interpreted outside the BPF filter) but cannot be used in a seccomp rule
// compiled by this package.
var amd64SyscallNumbers = map[string]int{
	"read": 0, "write": 1, "open": 2, "close": 3, "stat": 4, "fstat": 5,
	"lstat": 6, "poll": 7, "lseek": 8, "mmap": 9, "mprotect": 10,
	"munmap": 11, "brk": 12, "rt_sigaction": 13, "rt_sigprocmask": 14,
	"rt_sigreturn": 15, "ioctl": 16, "pread64": 17, "pwrite64": 18,
	"readv": 19, "writev": 20, "access": 21, "pipe": 22, "select": 23,
	"sched_yield": 24, "mremap": 25, "msync": 26, "mincore": 27,
	"madvise": 28, "dup": 32, "dup2": 33, "pause": 34, "nanosleep": 35,
	"getpid": 39, "sendfile": 40, "socket": 41, "connect": 42,
	"accept": 43, "sendto": 44, "recvfrom": 45, "sendmsg": 46,
	"recvmsg": 47, "shutdown": 48, "bind": 49, "listen": 50,
	"getsockname": 51, "getpeername": 52, "socketpair": 53,
	"setsockopt": 54, "getsockopt": 55, "clone": 56, "fork": 57,
	"vfork": 58, "execve": 59, "exit": 60, "wait4": 61, "kill": 62,
	"uname": 63, "fcntl": 72, "flock": 73, "fsync": 74, "fdatasync": 75,
	"truncate": 76, "ftruncate": 77, "getdents": 78, "getcwd": 79,
	"chdir": 80, "fchdir": 81, "rename": 82, "mkdir": 83, "rmdir": 84,
	"creat": 85, "link": 86, "unlink": 87, "symlink": 88, "readlink": 89,
	"chmod": 90, "fchmod": 91, "chown": 92, "fchown": 93, "lchown": 94,
	"umask": 95, "gettimeofday": 96, "getrlimit": 97, "getrusage": 98,
	"sysinfo": 99, "times": 100, "getuid": 102, "getgid": 104,
	"setuid": 105, "setgid": 106, "geteuid": 107, "getegid": 108,
	"setpgid": 109, "getppid": 110, "getpgrp": 111, "setsid": 112,
	"setreuid": 113, "setregid": 114, "getgroups": 115, "setgroups": 116,
	"setresuid": 117, "getresuid": 118, "setresgid": 119, "getresgid": 120,
	"getpgid": 121, "capget": 125, "capset": 126, "statfs": 137,
	"fstatfs": 138, "iopl": 172, "ioperm": 173, "init_module": 175,
	"delete_module": 176, "acct": 163, "settimeofday": 164,
	"mount": 165, "umount2": 166, "swapon": 167, "swapoff": 168,
	"reboot": 169, "sethostname": 170, "setdomainname": 171,
	"create_module": 174, "query_module": 178, "nfsservctl": 180,
	"arch_prctl": 158, "gettid": 186, "futex": 202,
	"sched_setaffinity": 203, "sched_getaffinity": 204,
	"exit_group": 231, "epoll_create": 213, "epoll_ctl": 233,
	"epoll_wait": 232, "pivot_root": 155, "ptrace": 101,
	"prctl": 157, "waitid": 247, "pselect6": 270, "ppoll": 271,
	"set_tid_address": 218, "clock_gettime": 228,
	"clock_nanosleep": 230, "clock_getres": 229,
	"openat": 257, "openat2": 437, "kexec_load": 246,
	"kexec_file_load": 320,
	"umount": 166,
}

func syscallNumber(name string) (int, bool) {
	n, ok := amd64SyscallNumbers[name]
	return n, ok
}
