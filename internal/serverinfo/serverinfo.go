// Package serverinfo manages the identity file: the out-of-band discovery
// mechanism for sibling processes and the CLI's status/stop commands.
package serverinfo

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// FileName is the identity file's name inside the base directory.
const FileName = "server_info.json"

// Info is the identity file payload.
type Info struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	PID           int    `json:"pid"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	InDocker      bool   `json:"in_docker"`
	ContainerName string `json:"container_name,omitempty"`
	DatabasePath  string `json:"database_path"`
	StartedAt     string `json:"started_at"`
}

// Path returns the identity file location for a base directory.
func Path(baseDir string) string {
	return filepath.Join(baseDir, FileName)
}

// Write persists the identity file atomically (write-temp-then-rename) so
// a concurrent reader never sees a torn file.
func Write(baseDir string, info *Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal server info: %w", err)
	}
	path := Path(baseDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o640); err != nil {
		return fmt.Errorf("write server info: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("install server info: %w", err)
	}
	return nil
}

// Read loads the identity file. Returns os.ErrNotExist when no server has
// written one.
func Read(baseDir string) (*Info, error) {
	data, err := os.ReadFile(Path(baseDir))
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse server info: %w", err)
	}
	return &info, nil
}

// Remove deletes the identity file. Missing files are not an error.
func Remove(baseDir string) error {
	err := os.Remove(Path(baseDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// IsAlive reports whether the process named by the identity file is still
// running and answering its health endpoint. A stale file (dead pid,
// unreachable port) reports false; callers may then clean it up.
func IsAlive(info *Info) bool {
	if info == nil || !processRunning(info.PID) {
		return false
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s:%d/health", probeHost(info.Host), info.Port))
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// probeHost maps wildcard binds to a connectable address.
func probeHost(host string) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		return "127.0.0.1"
	}
	return host
}
