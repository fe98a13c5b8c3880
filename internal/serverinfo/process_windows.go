//go:build windows

package serverinfo

import "os"

// processRunning reports whether a process with the given pid exists.
// os.FindProcess succeeds for any pid on Windows only when the handle can
// actually be opened.
func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
