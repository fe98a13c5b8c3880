package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	path         string
	checkpoints  int
	checkpointFn func(ctx context.Context) error
}

func (f *fakeStore) Checkpoint(ctx context.Context) error {
	f.checkpoints++
	if f.checkpointFn != nil {
		return f.checkpointFn(ctx)
	}
	return nil
}

func (f *fakeStore) Path() string { return f.path }

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knowledge_graph.db")
	require.NoError(t, os.WriteFile(path, []byte("database contents"), 0o640))
	return &fakeStore{path: path}
}

func TestRunCreatesTimestampedCopy(t *testing.T) {
	store := newFakeStore(t)
	dir := filepath.Join(t.TempDir(), "backup")
	m := NewManager(store, dir, 0, 0, nil)
	m.now = func() time.Time { return time.Unix(1700000000, 0) }

	dest, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "knowledge_graph_1700000000.db"), dest)
	require.Equal(t, 1, store.checkpoints, "WAL must be folded in before the copy")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "database contents", string(data))
}

func TestRunFailsWhenCheckpointFails(t *testing.T) {
	store := newFakeStore(t)
	store.checkpointFn = func(context.Context) error { return fmt.Errorf("locked") }
	m := NewManager(store, t.TempDir(), 0, 0, nil)

	_, err := m.Run(context.Background())
	require.ErrorContains(t, err, "checkpoint before backup")
}

// seedBackup writes a backup file with the given age relative to now.
func seedBackup(t *testing.T, dir string, now time.Time, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("knowledge_graph_%d.db", now.Add(-age).Unix()))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o640))
	return path
}

func TestPruneKeepsNewestMinBackups(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(1700000000, 0)
	m := NewManager(&fakeStore{}, dir, 3, time.Hour, nil)
	m.now = func() time.Time { return now }

	var paths []string
	for i := 0; i < 6; i++ {
		paths = append(paths, seedBackup(t, dir, now, time.Duration(10-i)*24*time.Hour))
	}
	require.NoError(t, m.Prune())

	// Oldest three deleted, newest three kept.
	for _, p := range paths[:3] {
		_, err := os.Stat(p)
		require.True(t, os.IsNotExist(err), "expected %s pruned", p)
	}
	for _, p := range paths[3:] {
		_, err := os.Stat(p)
		require.NoError(t, err, "expected %s retained", p)
	}
}

func TestPruneNeverDeletesYoungBackups(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(1700000000, 0)
	m := NewManager(&fakeStore{}, dir, 2, 24*time.Hour, nil)
	m.now = func() time.Time { return now }

	// Six backups, all only minutes old: count exceeds retention but none
	// are past the minimum age.
	for i := 0; i < 6; i++ {
		seedBackup(t, dir, now, time.Duration(i)*time.Minute)
	}
	require.NoError(t, m.Prune())

	backups, err := m.list()
	require.NoError(t, err)
	require.Len(t, backups, 6)
}

func TestPruneNoopBelowRetentionCount(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(1700000000, 0)
	m := NewManager(&fakeStore{}, dir, 5, time.Hour, nil)
	m.now = func() time.Time { return now }

	seedBackup(t, dir, now, 30*24*time.Hour)
	require.NoError(t, m.Prune())

	backups, err := m.list()
	require.NoError(t, err)
	require.Len(t, backups, 1)
}

func TestListIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(&fakeStore{}, dir, 5, time.Hour, nil)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "knowledge_graph_abc.db"), []byte("x"), 0o640))
	seedBackup(t, dir, time.Unix(1700000000, 0), 0)

	backups, err := m.list()
	require.NoError(t, err)
	require.Len(t, backups, 1)
}

func TestListMissingDirIsEmpty(t *testing.T) {
	m := NewManager(&fakeStore{}, filepath.Join(t.TempDir(), "nope"), 5, time.Hour, nil)
	backups, err := m.list()
	require.NoError(t, err)
	require.Empty(t, backups)
}
