package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// seedV1Database writes a legacy version-1 file: observations as a JSON
// array column on entities, relations keyed by entity name, no metadata
// table.
func seedV1Database(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+path)
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	stmts := []string{
		`CREATE TABLE entities (
			id INTEGER PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			entity_type TEXT NOT NULL,
			observations TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE relations (
			id INTEGER PRIMARY KEY,
			from_entity TEXT NOT NULL,
			to_entity TEXT NOT NULL,
			relation_type TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`INSERT INTO entities (name, entity_type, observations)
			VALUES ('api', 'service', '["speaks http","stateless"]')`,
		`INSERT INTO entities (name, entity_type, observations)
			VALUES ('db', 'datastore', '["holds state"]')`,
		`INSERT INTO entities (name, entity_type, observations)
			VALUES ('bare', 'misc', '[]')`,
		`INSERT INTO relations (from_entity, to_entity, relation_type)
			VALUES ('api', 'db', 'depends_on')`,
		`INSERT INTO relations (from_entity, to_entity, relation_type)
			VALUES ('api', 'vanished', 'depends_on')`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func TestMigrateV1ToV2(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.db")
	seedV1Database(t, path)

	store, err := Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	// Observations exploded into rows, array order preserved.
	api, err := store.GetEntity(ctx, "api")
	require.NoError(t, err)
	require.Equal(t, []string{"speaks http", "stateless"}, api.Observations)

	bare, err := store.GetEntity(ctx, "bare")
	require.NoError(t, err)
	require.Empty(t, bare.Observations)

	// Relations rekeyed by id; the dangling edge to a nonexistent entity
	// is dropped.
	g, err := store.ReadGraph(ctx)
	require.NoError(t, err)
	require.Len(t, g.Relations, 1)
	require.Equal(t, "api", g.Relations[0].FromEntity)
	require.Equal(t, "db", g.Relations[0].ToEntity)

	// FTS rebuilt over migrated rows.
	hits, err := store.SearchLexical(ctx, "stateless", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "api", hits[0].Entity.Name)

	// New writes behave on the migrated file.
	_, err = store.CreateEntity(ctx, "fresh", "service")
	require.NoError(t, err)
	_, _, err = store.CreateRelation(ctx, "fresh", "api", "calls")
	require.NoError(t, err)
}

func TestMigrateTakesSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.db")
	seedV1Database(t, path)

	store, err := Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	found := false
	for _, e := range entries {
		if strings.Contains(e.Name(), ".pre-migration-") {
			found = true
		}
	}
	require.True(t, found, "migration must snapshot the file first")
}

func TestMigrateIdempotentOnReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.db")
	seedV1Database(t, path)

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Second open must not re-run the migration or duplicate data.
	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	api, err := store.GetEntity(ctx, "api")
	require.NoError(t, err)
	require.Len(t, api.Observations, 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	snapshots := 0
	for _, e := range entries {
		if strings.Contains(e.Name(), ".pre-migration-") {
			snapshots++
		}
	}
	require.Equal(t, 1, snapshots)
}

func TestFreshDatabaseRecordsSchemaVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var version int
	err := store.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM schema_metadata`).Scan(&version)
	require.NoError(t, err)
	require.Equal(t, schemaVersion, version)
}
