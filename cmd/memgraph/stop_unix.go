//go:build unix

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// terminate asks the daemon to shut down gracefully.
func terminate(proc *os.Process) error {
	return proc.Signal(unix.SIGTERM)
}
