//go:build windows

package main

import "os"

// terminate stops the daemon. Windows has no SIGTERM delivery for
// unrelated processes, so this kills outright; the storage engine's WAL
// recovery handles the abrupt exit.
func terminate(proc *os.Process) error {
	return proc.Kill()
}
