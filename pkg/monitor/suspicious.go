package monitor

import (
	"regexp"
	"strings"
)

// dangerousPrograms are command names the audit log flags regardless of
// arguments, mirroring the "dangerous program name" check spec §4.10
// names.
var dangerousPrograms = map[string]bool{
	"rm":          true,
	"dd":          true,
	"mkfs":        true,
	"mkfs.ext4":   true,
	"mkfs.xfs":    true,
	"shutdown":    true,
	"reboot":      true,
	"fdisk":       true,
	"parted":      true,
	":(){:|:&};:": true, // fork bomb, run as the program itself under sh -c
}

var sensitiveEnvKey = regexp.MustCompile(`(?i)(password|secret|token|key)`)

// suspicious inspects a command and its environment for the patterns
// spec §4.10 names, returning whether any fired and why. It never
// redacts or mutates env; flagging is advisory only.
func suspicious(command []string, env map[string]string) (bool, []string) {
	var reasons []string

	if len(command) > 0 {
		program := programName(command[0])
		if dangerousPrograms[program] {
			reasons = append(reasons, "dangerous program: "+program)
		}
		for _, part := range command {
			if strings.Contains(part, "..") && strings.Contains(part, "/") {
				reasons = append(reasons, "path traversal in argument: "+part)
			}
		}
	}

	for key := range env {
		if sensitiveEnvKey.MatchString(key) {
			reasons = append(reasons, "sensitive-looking environment key: "+key)
		}
	}

	return len(reasons) > 0, reasons
}

// programName strips any directory prefix so "/usr/bin/rm" matches the
// same dangerousPrograms entry as "rm".
func programName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
