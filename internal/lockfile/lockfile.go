// Package lockfile provides the single-daemon exclusion lock: at most one
// supervisor process serves a given base directory at a time.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLockBusy is returned when another process holds the lock.
var ErrLockBusy = errors.New("lock already held by another process")

// Lock is a held filesystem lock. Release it with Release; the lock is
// also dropped by the OS if the process dies.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive daemon lock under dir without blocking.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	path := filepath.Join(dir, "memgraph.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	// Best-effort pid annotation for humans inspecting the directory; the
	// flock, not the contents, is the source of truth.
	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	_ = f.Sync()
	return &Lock{file: f, path: path}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release drops the lock and closes the file. The lock file itself is
// left in place; removing it would race a concurrent Acquire.
func (l *Lock) Release() error {
	if err := flockUnlock(l.file); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}
