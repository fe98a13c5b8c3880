// Package backup copies the database file into a retention-managed backup
// directory, on startup and on a periodic schedule.
package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	prefix = "knowledge_graph_"
	suffix = ".db"
)

// Checkpointer is the slice of the storage engine backups need: a way to
// fold the WAL into the main file before the copy.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
	Path() string
}

// Manager copies the primary database into dir and prunes old copies.
type Manager struct {
	store      Checkpointer
	dir        string
	minBackups int           // always retain at least this many
	minAge     time.Duration // never delete backups younger than this
	log        *slog.Logger

	now func() time.Time
}

// NewManager builds a backup manager. minBackups defaults to 5 and minAge
// to 24h when zero.
func NewManager(store Checkpointer, dir string, minBackups int, minAge time.Duration, log *slog.Logger) *Manager {
	if minBackups <= 0 {
		minBackups = 5
	}
	if minAge <= 0 {
		minAge = 24 * time.Hour
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		store:      store,
		dir:        dir,
		minBackups: minBackups,
		minAge:     minAge,
		log:        log,
		now:        time.Now,
	}
}

// Run takes one backup and prunes. The WAL is checkpointed first so the
// copied file is complete on its own.
func (m *Manager) Run(ctx context.Context) (string, error) {
	if err := m.store.Checkpoint(ctx); err != nil {
		return "", fmt.Errorf("checkpoint before backup: %w", err)
	}
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	dest := filepath.Join(m.dir, fmt.Sprintf("%s%d%s", prefix, m.now().Unix(), suffix))
	if err := copyFile(m.store.Path(), dest); err != nil {
		return "", fmt.Errorf("copy database: %w", err)
	}
	m.log.Info("database backed up", "path", dest)

	if err := m.Prune(); err != nil {
		m.log.Warn("backup pruning failed", "error", err)
	}
	return dest, nil
}

// RunPeriodic blocks, taking a backup every interval until ctx is
// canceled. Failures are logged and the schedule continues.
func (m *Manager) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Run(ctx); err != nil {
				m.log.Warn("periodic backup failed", "error", err)
			}
		}
	}
}

// Prune deletes backups beyond the retention count, oldest first, but
// never deletes a backup younger than the minimum age.
func (m *Manager) Prune() error {
	backups, err := m.list()
	if err != nil {
		return err
	}
	if len(backups) <= m.minBackups {
		return nil
	}
	cutoff := m.now().Add(-m.minAge)
	// Oldest first; the newest minBackups entries are always retained.
	for _, b := range backups[:len(backups)-m.minBackups] {
		if b.taken.After(cutoff) {
			continue
		}
		if err := os.Remove(b.path); err != nil {
			return fmt.Errorf("remove old backup: %w", err)
		}
		m.log.Debug("pruned backup", "path", b.path)
	}
	return nil
}

type entry struct {
	path  string
	taken time.Time
}

// list returns existing backups sorted oldest first. Files that do not
// match the naming scheme are ignored.
func (m *Manager) list() ([]entry, error) {
	dirents, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var backups []entry
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix), 10, 64)
		if err != nil {
			continue
		}
		backups = append(backups, entry{
			path:  filepath.Join(m.dir, name),
			taken: time.Unix(ts, 0),
		})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].taken.Before(backups[j].taken) })
	return backups, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
