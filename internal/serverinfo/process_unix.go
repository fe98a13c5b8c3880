//go:build unix

package serverinfo

import "golang.org/x/sys/unix"

// processRunning reports whether a process with the given pid exists.
// Signal 0 performs the existence check without delivering anything.
func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}
